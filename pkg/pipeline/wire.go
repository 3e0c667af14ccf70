package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chicogong/ytagents/pkg/clients/ollama"
	"github.com/chicogong/ytagents/pkg/clients/piper"
	"github.com/chicogong/ytagents/pkg/clients/reddit"
	"github.com/chicogong/ytagents/pkg/clients/stock"
	"github.com/chicogong/ytagents/pkg/clients/youtube"
	"github.com/chicogong/ytagents/pkg/config"
	"github.com/chicogong/ytagents/pkg/executor"
	"github.com/chicogong/ytagents/pkg/logger"
	"github.com/chicogong/ytagents/pkg/prober"
	"github.com/chicogong/ytagents/pkg/stages"
	"github.com/chicogong/ytagents/pkg/storage"
	"github.com/chicogong/ytagents/pkg/store"
	"github.com/chicogong/ytagents/pkg/thumbnail"
	"github.com/chicogong/ytagents/pkg/workflow"
)

// feedbackTTL bounds how long shared analytics feedback biases trend selection
const feedbackTTL = 30 * 24 * time.Hour

const youtubeTrendingMax = 25

// Services are the external collaborators the stages wrap
type Services struct {
	LLM          stages.LLM
	TTS          stages.Synthesizer
	Prober       stages.DurationProber
	Stock        stages.StockSource
	Assembler    stages.Assembler
	Thumbnails   stages.ThumbnailRenderer
	Publisher    stages.Publisher
	Stats        stages.StatsSource
	TrendSources []stages.TrendSource
}

// NewServices builds the collaborators from configuration. Unreachable
// services are not an error here; their stages fall back when called.
func NewServices(cfg *config.Config, log *logger.Logger) *Services {
	svc := &Services{
		LLM:       ollama.New(cfg.Ollama.BaseURL, cfg.Ollama.Model),
		TTS:       piper.New(cfg.Piper.Binary),
		Prober:    prober.NewProber(),
		Stock:     stock.New(cfg.Stock.PexelsKey, cfg.Stock.PixabayKey),
		Assembler: executor.NewExecutor(log),
	}

	if r, err := thumbnail.NewRenderer(0); err != nil {
		log.Warn("thumbnail renderer unavailable", "error", err)
	} else {
		svc.Thumbnails = r
	}

	yt := youtube.New(youtube.Config{
		APIKey:       cfg.YouTube.APIKey,
		ClientID:     cfg.YouTube.ClientID,
		ClientSecret: cfg.YouTube.ClientSecret,
		RefreshToken: cfg.YouTube.RefreshToken,
		RegionCode:   cfg.YouTube.RegionCode,
	}, log)
	svc.Publisher = yt
	svc.Stats = yt
	svc.TrendSources = append(svc.TrendSources, stages.YouTubeTrends{Client: yt, Max: youtubeTrendingMax})

	if rc, err := reddit.New(""); err != nil {
		log.Warn("reddit trends unavailable", "error", err)
	} else {
		svc.TrendSources = append(svc.TrendSources, stages.RedditTrends{Client: rc, Subreddits: cfg.Reddit.Subreddits})
	}
	return svc
}

// Registry registers every stage in pipeline order
func (s *Services) Registry(cfg *config.Config, videos storage.VideoBackend, log *logger.Logger) *stages.Registry {
	reg := stages.NewRegistry()
	reg.Register(&stages.TrendStage{Sources: s.TrendSources, Log: log})
	reg.Register(&stages.ResearchStage{LLM: s.LLM, Log: log})
	reg.Register(&stages.ScriptStage{LLM: s.LLM, Log: log})
	reg.Register(&stages.VoiceoverStage{TTS: s.TTS, Prober: s.Prober, Voice: cfg.Piper.Voice, Log: log})
	reg.Register(&stages.SubtitleStage{Log: log})
	reg.Register(&stages.VisualStage{LLM: s.LLM, Stock: s.Stock, Log: log})
	reg.Register(&stages.AssemblyStage{Assembler: s.Assembler, Prober: s.Prober, Storage: videos, Log: log})
	reg.Register(&stages.MetadataStage{LLM: s.LLM, Log: log})
	reg.Register(&stages.ThumbnailStage{Renderer: s.Thumbnails, Log: log})
	reg.Register(&stages.UploadStage{
		Publisher:     s.Publisher,
		Storage:       videos,
		Privacy:       cfg.Pipeline.Privacy,
		ScheduleDelay: cfg.Pipeline.ScheduleDelay.Duration,
		PlaylistID:    cfg.Pipeline.PlaylistID,
		Log:           log,
	})
	reg.Register(&stages.AnalyticsStage{Stats: s.Stats, Videos: videos, Log: log})
	return reg
}

// Runtime is everything a binary needs to drive workflows
type Runtime struct {
	Store        store.Store
	Machine      *workflow.Machine
	Videos       storage.VideoBackend
	Orchestrator *Orchestrator

	closers []func() error
}

// Bootstrap opens the workflow store and the storage backend, then wires the
// orchestrator. Close releases everything it opened.
func Bootstrap(ctx context.Context, cfg *config.Config, log *logger.Logger, opts ...Option) (*Runtime, error) {
	rt := &Runtime{}

	st, feedback, err := openWorkflowStore(ctx, cfg.Workflows)
	if err != nil {
		return nil, err
	}
	rt.Store = st
	rt.closers = append(rt.closers, st.Close)

	videos, err := storage.NewSelector(cfg.Storage, log).Backend(ctx)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("storage backend: %w", err)
	}
	rt.Videos = videos
	rt.closers = append(rt.closers, videos.Close)
	log.Info("storage backend selected", "backend", videos.Name())

	rt.Machine = workflow.NewMachine(st, log)
	reg := NewServices(cfg, log).Registry(cfg, videos, log)

	opts = append([]Option{
		WithFeedback(feedback),
		WithGate(AutoGate{ApproveFallbacks: cfg.Pipeline.ApproveFallbacks}),
	}, opts...)
	rt.Orchestrator, err = New(rt.Machine, reg, videos, OptionsFromConfig(cfg.Pipeline), log, opts...)
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

// Close releases in reverse order of opening
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// openWorkflowStore opens the configured repository. Redis also keeps the
// analytics feedback so every process sees it.
func openWorkflowStore(ctx context.Context, c config.WorkflowStoreConfig) (store.Store, FeedbackStore, error) {
	switch c.Kind {
	case config.WorkflowStoreRedis:
		client, err := store.NewRedisClient(ctx, c.RedisAddr, c.RedisPassword, c.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return store.NewRedisStore(client), NewRedisFeedback(client, feedbackTTL), nil
	case config.WorkflowStorePostgres:
		pg, err := store.NewPostgresStore(ctx, c.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return pg, NewMemoryFeedback(), nil
	case "", config.WorkflowStoreMemory:
		return store.NewMemoryStore(), NewMemoryFeedback(), nil
	}
	return nil, nil, fmt.Errorf("unknown workflow store %q", c.Kind)
}
