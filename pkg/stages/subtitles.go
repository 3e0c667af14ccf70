package stages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chicogong/ytagents/pkg/logger"
	"github.com/chicogong/ytagents/pkg/schemas"
)

const (
	MaxCueChars = 42
	cueOverlap  = 0.2
)

// SubtitleStage writes an SRT file timed over the voiceover
type SubtitleStage struct {
	Log *logger.Logger
}

func (s *SubtitleStage) Describe() Descriptor {
	return Descriptor{
		Name:        schemas.StageSubtitles,
		Description: "split the narration into timed SRT cues",
		DependsOn:   []schemas.StageName{schemas.StageScript, schemas.StageVoiceover},
		Budget:      BudgetMedia,
	}
}

func (s *SubtitleStage) Run(ctx context.Context, st *State) schemas.StageResult {
	script := st.Script()
	if script == nil {
		return missing(schemas.StageSubtitles, schemas.StageScript)
	}
	text := script.Narration()

	duration := EstimateDuration(text)
	if vo := st.Voiceover(); vo != nil && vo.DurationSeconds > 0 {
		duration = vo.DurationSeconds
	}

	cues := TimeCues(ChunkText(text, MaxCueChars), duration)
	if len(cues) == 0 {
		return schemas.Failed(schemas.StageSubtitles, "narration is empty")
	}

	path := st.ArtifactPath("subtitles", ".srt")
	if err := WriteSRT(path, cues); err != nil {
		s.Log.Warn("subtitles not written", "workflow_id", st.WorkflowID, "error", err)
		return schemas.Fallback(&schemas.SubtitleData{Cues: cues}, err.Error())
	}
	return schemas.Ok(&schemas.SubtitleData{Path: path, Cues: cues})
}

// ChunkText packs sentences into chunks of at most max characters. Sentences
// longer than max are split on word boundaries.
func ChunkText(text string, max int) []string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil
	}

	var chunks []string
	current := ""
	add := func(piece string) {
		switch {
		case current == "":
			current = piece
		case len(current)+1+len(piece) <= max:
			current += " " + piece
		default:
			chunks = append(chunks, current)
			current = piece
		}
	}

	for _, sentence := range splitSentences(text) {
		if len(sentence) <= max {
			add(sentence)
			continue
		}
		for _, w := range wrapWords(sentence, max) {
			add(w)
		}
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}

func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			if i+1 == len(text) || text[i+1] == ' ' {
				out = append(out, strings.TrimSpace(text[start:i+1]))
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func wrapWords(sentence string, max int) []string {
	var lines []string
	line := ""
	for _, w := range strings.Fields(sentence) {
		if line != "" && len(line)+1+len(w) > max {
			lines = append(lines, line)
			line = w
			continue
		}
		if line == "" {
			line = w
		} else {
			line += " " + w
		}
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}

// TimeCues spreads chunks evenly over total seconds. Every cue but the last
// overlaps the next one by 0.2s.
func TimeCues(chunks []string, total float64) []schemas.SubtitleCue {
	if len(chunks) == 0 {
		return nil
	}
	if total <= 0 {
		total = float64(len(chunks)) * 2
	}
	step := total / float64(len(chunks))

	cues := make([]schemas.SubtitleCue, len(chunks))
	for i, c := range chunks {
		end := float64(i+1) * step
		if i < len(chunks)-1 {
			end += cueOverlap
		}
		cues[i] = schemas.SubtitleCue{Index: i + 1, Start: float64(i) * step, End: end, Text: c}
	}
	return cues
}

// FormatSRTTime renders seconds as HH:MM:SS,mmm
func FormatSRTTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(seconds*1000 + 0.5)
	h := ms / 3_600_000
	m := ms % 3_600_000 / 60_000
	s := ms % 60_000 / 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms%1000)
}

// RenderSRT renders cues in SubRip format
func RenderSRT(cues []schemas.SubtitleCue) string {
	var b strings.Builder
	for _, c := range cues {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", c.Index, FormatSRTTime(c.Start), FormatSRTTime(c.End), c.Text)
	}
	return b.String()
}

func WriteSRT(path string, cues []schemas.SubtitleCue) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(RenderSRT(cues)), 0644)
}
