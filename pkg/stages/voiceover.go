package stages

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/chicogong/ytagents/pkg/logger"
	"github.com/chicogong/ytagents/pkg/schemas"
)

// wordsPerSecond is the narration pace used when the audio cannot be measured
const wordsPerSecond = 2.5

// VoiceoverStage narrates the script
type VoiceoverStage struct {
	TTS    Synthesizer
	Prober DurationProber
	Voice  string
	Log    *logger.Logger
}

func (s *VoiceoverStage) Describe() Descriptor {
	return Descriptor{
		Name:        schemas.StageVoiceover,
		Description: "synthesize the narration to WAV",
		DependsOn:   []schemas.StageName{schemas.StageScript},
		Budget:      BudgetTTS,
	}
}

func (s *VoiceoverStage) Run(ctx context.Context, st *State) schemas.StageResult {
	script := st.Script()
	if script == nil {
		return missing(schemas.StageVoiceover, schemas.StageScript)
	}
	text := script.Narration()
	estimate := EstimateDuration(text)

	out := st.ArtifactPath("audio", ".wav")
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return schemas.Fallback(&schemas.VoiceoverData{Voice: s.Voice, DurationSeconds: estimate}, err.Error())
	}
	if err := s.TTS.Synthesize(ctx, text, s.Voice, out); err != nil {
		s.Log.Warn("voiceover fallback", "workflow_id", st.WorkflowID, "error", err)
		return schemas.Fallback(&schemas.VoiceoverData{Voice: s.Voice, DurationSeconds: estimate}, err.Error())
	}

	duration := estimate
	if s.Prober != nil {
		if d, err := s.Prober.Duration(ctx, out); err == nil && d > 0 {
			duration = d
		} else if err != nil {
			s.Log.Debug("audio duration estimated", "path", out, "error", err)
		}
	}

	return schemas.Ok(&schemas.VoiceoverData{AudioPath: out, Voice: s.Voice, DurationSeconds: duration})
}

// EstimateDuration returns the speaking time of text in seconds
func EstimateDuration(text string) float64 {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return float64(words) / wordsPerSecond
}
