package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chicogong/ytagents/pkg/logger"
	"github.com/chicogong/ytagents/pkg/schemas"
	"github.com/chicogong/ytagents/pkg/stages"
	"github.com/chicogong/ytagents/pkg/store"
	"github.com/chicogong/ytagents/pkg/workflow"
)

type runFunc func(ctx context.Context, st *stages.State) schemas.StageResult

// stubStage returns whatever run produces and counts its calls
type stubStage struct {
	name   schemas.StageName
	deps   []schemas.StageName
	budget stages.Budget
	run    runFunc

	mu    sync.Mutex
	calls int
}

func (s *stubStage) Describe() stages.Descriptor {
	return stages.Descriptor{Name: s.name, DependsOn: s.deps, Budget: s.budget}
}

func (s *stubStage) Run(ctx context.Context, st *stages.State) schemas.StageResult {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.run == nil {
		return schemas.Failed(s.name, "no behaviour")
	}
	return s.run(ctx, st)
}

func (s *stubStage) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func okRun(p schemas.Payload) runFunc {
	return func(context.Context, *stages.State) schemas.StageResult { return schemas.Ok(p) }
}

func fallbackRun(p schemas.Payload, reason string) runFunc {
	return func(context.Context, *stages.State) schemas.StageResult { return schemas.Fallback(p, reason) }
}

func failedRun(stage schemas.StageName, reason string) runFunc {
	return func(context.Context, *stages.State) schemas.StageResult { return schemas.Failed(stage, reason) }
}

// defaultStages mirrors the real dependency declarations with Ok payloads
func defaultStages() []*stubStage {
	return []*stubStage{
		{name: schemas.StageTrends, budget: stages.BudgetHTTP, run: func(_ context.Context, st *stages.State) schemas.StageResult {
			selected := "black holes"
			if len(st.TopTopics) > 0 {
				selected = st.TopTopics[0]
			}
			return schemas.Ok(&schemas.TrendData{Selected: selected, Trends: []schemas.Trend{{Topic: selected}}})
		}},
		{name: schemas.StageResearch, budget: stages.BudgetLLM, run: func(_ context.Context, st *stages.State) schemas.StageResult {
			return schemas.Ok(&schemas.ResearchData{Topic: st.Topic, KeyPoints: []string{"one", "two"}})
		}},
		{name: schemas.StageScript, deps: []schemas.StageName{schemas.StageResearch}, budget: stages.BudgetLLM,
			run: okRun(&schemas.ScriptData{Hook: "hook", Body: "body", CTA: "subscribe"})},
		{name: schemas.StageVoiceover, deps: []schemas.StageName{schemas.StageScript}, budget: stages.BudgetTTS,
			run: okRun(&schemas.VoiceoverData{AudioPath: "audio/x.wav", DurationSeconds: 12})},
		{name: schemas.StageSubtitles, deps: []schemas.StageName{schemas.StageScript, schemas.StageVoiceover}, budget: stages.BudgetMedia,
			run: okRun(&schemas.SubtitleData{Path: "subtitles/x.srt"})},
		{name: schemas.StageVisuals, deps: []schemas.StageName{schemas.StageScript}, budget: stages.BudgetLLM,
			run: okRun(&schemas.VisualPlan{})},
		{name: schemas.StageAssembly, deps: []schemas.StageName{schemas.StageVoiceover, schemas.StageSubtitles, schemas.StageVisuals}, budget: stages.BudgetMedia,
			run: okRun(&schemas.VideoData{VideoID: "vid1", Filename: "vid1.mp4", DurationSeconds: 12})},
		{name: schemas.StageMetadata, deps: []schemas.StageName{schemas.StageResearch, schemas.StageScript}, budget: stages.BudgetLLM,
			run: okRun(&schemas.MetadataData{Title: "Black Holes Explained"})},
		{name: schemas.StageThumbnail, deps: []schemas.StageName{schemas.StageMetadata, schemas.StageAssembly}, budget: stages.BudgetMedia,
			run: okRun(&schemas.ThumbnailData{Path: "thumbnails/x.png", Text: "BLACK HOLES"})},
		{name: schemas.StageUpload, deps: []schemas.StageName{schemas.StageAssembly, schemas.StageMetadata, schemas.StageThumbnail}, budget: stages.BudgetHTTP,
			run: okRun(&schemas.UploadData{Published: true, ExternalID: "yt1", Privacy: "private"})},
		{name: schemas.StageAnalytics, deps: []schemas.StageName{schemas.StageUpload}, budget: stages.BudgetHTTP,
			run: okRun(&schemas.AnalyticsData{Insights: []string{"keep it short"}, TopTopics: []string{"black holes"}})},
	}
}

// newRegistry registers defaultStages with the given behaviours replaced
func newRegistry(overrides map[schemas.StageName]runFunc) *stages.Registry {
	reg := stages.NewRegistry()
	for _, s := range defaultStages() {
		if run, ok := overrides[s.name]; ok {
			s.run = run
		}
		reg.Register(s)
	}
	return reg
}

func stub(t *testing.T, reg *stages.Registry, name schemas.StageName) *stubStage {
	t.Helper()
	ex, err := reg.Get(name)
	require.NoError(t, err)
	return ex.(*stubStage)
}

type fixture struct {
	machine  *workflow.Machine
	registry *stages.Registry
	feedback *MemoryFeedback
	orch     *Orchestrator
}

func newFixture(t *testing.T, opts Options, overrides map[schemas.StageName]runFunc, options ...Option) *fixture {
	t.Helper()
	if opts.OutputDir == "" {
		opts.OutputDir = t.TempDir()
	}

	f := &fixture{
		machine:  workflow.NewMachine(store.NewMemoryStore(), logger.Nop()),
		registry: newRegistry(overrides),
		feedback: NewMemoryFeedback(),
	}
	options = append([]Option{WithFeedback(f.feedback), WithGate(AutoGate{ApproveFallbacks: true})}, options...)

	orch, err := New(f.machine, f.registry, nil, opts, logger.Nop(), options...)
	require.NoError(t, err)
	f.orch = orch
	return f
}

func (f *fixture) step(t *testing.T, id string, step schemas.StepName) *schemas.StepState {
	t.Helper()
	s, err := f.machine.GetStep(context.Background(), id, step)
	require.NoError(t, err)
	return s
}
