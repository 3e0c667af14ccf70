package stages

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/chicogong/ytagents/pkg/executor"
	"github.com/chicogong/ytagents/pkg/logger"
	"github.com/chicogong/ytagents/pkg/schemas"
	"github.com/chicogong/ytagents/pkg/storage"
)

// AssemblyStage renders the final video and persists it through the storage
// backend. Without a working media engine the placeholder video is stored.
type AssemblyStage struct {
	Assembler Assembler
	Prober    DurationProber
	Storage   storage.VideoBackend
	Log       *logger.Logger
}

func (s *AssemblyStage) Describe() Descriptor {
	return Descriptor{
		Name:        schemas.StageAssembly,
		Description: "assemble clips, narration and subtitles into an MP4 and store it",
		DependsOn:   []schemas.StageName{schemas.StageVoiceover, schemas.StageSubtitles, schemas.StageVisuals},
		Budget:      BudgetMedia,
	}
}

func (s *AssemblyStage) Run(ctx context.Context, st *State) schemas.StageResult {
	spec := s.assemblySpec(st)

	data, duration, err := s.render(ctx, spec, s.progressOptions(st.WorkflowID))
	placeholder := err != nil
	if placeholder {
		s.Log.Warn("assembly fallback", "workflow_id", st.WorkflowID, "error", err)
		duration = spec.DurationSeconds
		data = s.Storage.CreateBlankVideo(st.Topic, duration)
	}

	rec, saveErr := s.Storage.SaveVideo(ctx, data, st.Topic, duration)
	if saveErr != nil {
		return schemas.Failed(schemas.StageAssembly, fmt.Sprintf("store video: %v", saveErr))
	}

	video := &schemas.VideoData{
		VideoID:         rec.ID,
		Filename:        rec.Filename,
		URL:             rec.URL,
		DurationSeconds: rec.Duration,
		FileSize:        rec.FileSize,
		Placeholder:     placeholder,
		SubtitlesPath:   spec.SubtitlesPath,
	}
	s.Log.Info("video stored", "workflow_id", st.WorkflowID, "video_id", rec.ID, "backend", s.Storage.Name(), "placeholder", placeholder)

	if placeholder {
		return schemas.Fallback(video, err.Error())
	}
	return schemas.Ok(video)
}

func (s *AssemblyStage) assemblySpec(st *State) executor.AssemblySpec {
	spec := executor.AssemblySpec{OutputPath: st.ArtifactPath("render", ".mp4")}

	if vo := st.Voiceover(); vo != nil {
		spec.AudioPath = vo.AudioPath
		spec.DurationSeconds = vo.DurationSeconds
	}
	if sub := st.Subtitles(); sub != nil {
		spec.SubtitlesPath = sub.Path
	}

	var planned float64
	if plan := st.Visuals(); plan != nil {
		for _, sc := range plan.Scenes {
			planned += sc.DurationSeconds
			if sc.AssetPath != "" {
				spec.Clips = append(spec.Clips, executor.Clip{Source: sc.AssetPath, Duration: sc.DurationSeconds})
			}
		}
	}
	if spec.DurationSeconds <= 0 {
		spec.DurationSeconds = planned
	}
	return spec
}

// Render progress is logged at most once per step or interval, whichever comes first.
const (
	progressLogStep     = 10.0
	progressLogInterval = 5 * time.Second
)

// progressOptions reports ffmpeg progress at debug level. The callbacks run on
// the executor's stderr reader goroutine only.
func (s *AssemblyStage) progressOptions(workflowID string) *executor.ExecuteOptions {
	lastPercent := -progressLogStep
	var lastAt time.Time
	return &executor.ExecuteOptions{
		OnProgress: func(p *executor.Progress) {
			now := time.Now()
			if p.Percent-lastPercent < progressLogStep && now.Sub(lastAt) < progressLogInterval {
				return
			}
			lastPercent, lastAt = p.Percent, now
			s.Log.Debug("assembly progress", "workflow_id", workflowID, "percent", p.Percent,
				"time", p.Time, "frame", p.Frame, "speed", p.Speed)
		},
	}
}

// render runs the media engine and returns the rendered bytes with their measured duration
func (s *AssemblyStage) render(ctx context.Context, spec executor.AssemblySpec, opts *executor.ExecuteOptions) ([]byte, float64, error) {
	if s.Assembler == nil {
		return nil, 0, executor.ErrFFmpegNotFound
	}
	if len(spec.Clips) == 0 && spec.AudioPath == "" {
		return nil, 0, errors.New("no clips and no narration to assemble")
	}

	res, err := s.Assembler.Assemble(ctx, spec, opts)
	if err != nil {
		return nil, 0, err
	}
	defer os.Remove(res.OutputPath)

	data, err := os.ReadFile(res.OutputPath)
	if err != nil {
		return nil, 0, fmt.Errorf("read rendered video: %w", err)
	}

	duration := spec.DurationSeconds
	if s.Prober != nil {
		if d, err := s.Prober.Duration(ctx, res.OutputPath); err == nil && d > 0 {
			duration = d
		}
	}
	return data, duration, nil
}
