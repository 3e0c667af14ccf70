package stages

import (
	"context"
	"time"

	"github.com/chicogong/ytagents/pkg/clients/stock"
	"github.com/chicogong/ytagents/pkg/clients/youtube"
	"github.com/chicogong/ytagents/pkg/executor"
	"github.com/chicogong/ytagents/pkg/schemas"
)

// LLM is the language-generation service. ExtractJSON samples at a fixed low
// temperature.
type LLM interface {
	Generate(ctx context.Context, prompt string, temperature float64) (string, error)
	ExtractJSON(ctx context.Context, prompt string, v interface{}) error
}

// Synthesizer is the text-to-speech service
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice, outPath string) error
}

// DurationProber measures media length in seconds
type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// StockSource finds and downloads stock footage
type StockSource interface {
	Search(ctx context.Context, query string) (*stock.Clip, error)
	Download(ctx context.Context, clip *stock.Clip, dest string) (string, error)
}

// Assembler is the media-assembly service
type Assembler interface {
	Assemble(ctx context.Context, spec executor.AssemblySpec, opts *executor.ExecuteOptions) (*executor.Result, error)
}

// ThumbnailRenderer draws the title card
type ThumbnailRenderer interface {
	RenderFile(text, path string) error
}

// Publisher is the publishing service
type Publisher interface {
	Upload(ctx context.Context, req youtube.UploadRequest) (*youtube.UploadResult, error)
}

// StatsSource is the analytics service
type StatsSource interface {
	Stats(ctx context.Context, ids ...string) (map[string]*schemas.VideoMetrics, error)
	Retention(ctx context.Context, videoID string, since time.Time) ([]schemas.RetentionPoint, error)
}
