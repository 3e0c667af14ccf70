package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/chicogong/ytagents/pkg/logger"
)

// Backend kinds accepted by Config.Kind
const (
	KindAuto       = "auto"
	KindFirebase   = "firebase"
	KindS3         = "s3"
	KindSupabase   = "supabase"
	KindSQLite     = "sqlite"
	KindFilesystem = "filesystem"
)

// Config describes every backend the selector may try
type Config struct {
	Kind      string         `yaml:"backend"`
	OutputDir string         `yaml:"output_dir"`
	Firebase  FirebaseConfig `yaml:"firebase"`
	S3        S3Config       `yaml:"s3"`
	Supabase  SupabaseConfig `yaml:"supabase"`
}

// VideoDir is where local backends keep files and metadata
func (c Config) VideoDir() string {
	dir := c.OutputDir
	if dir == "" {
		dir = "./output"
	}
	return filepath.Join(dir, "videos")
}

// Validate checks that an explicitly chosen backend has its required fields
func (c Config) Validate() error {
	switch c.Kind {
	case "", KindAuto, KindSQLite, KindFilesystem:
		return nil
	case KindFirebase:
		if c.Firebase.Bucket == "" || c.Firebase.ProjectID == "" {
			return fmt.Errorf("storage backend firebase requires FIREBASE_STORAGE_BUCKET and FIREBASE_PROJECT_ID")
		}
	case KindS3:
		if c.S3.Bucket == "" || c.S3.DatabaseURL == "" {
			return fmt.Errorf("storage backend s3 requires AWS_S3_BUCKET and DATABASE_URL")
		}
	case KindSupabase:
		if c.Supabase.URL == "" || c.Supabase.Key == "" {
			return fmt.Errorf("storage backend supabase requires SUPABASE_URL and SUPABASE_KEY")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Kind)
	}
	return nil
}

type candidate struct {
	kind       string
	configured bool
	open       func(ctx context.Context) (*Backend, error)
}

// Selector picks the first backend that initializes and memoizes it
type Selector struct {
	cfg Config
	log *logger.Logger

	once    sync.Once
	backend VideoBackend
	err     error
}

func NewSelector(cfg Config, log *logger.Logger) *Selector {
	return &Selector{cfg: cfg, log: log}
}

// Backend returns the selected backend, initializing it on first use.
// Every failed candidate is logged and skipped.
func (s *Selector) Backend(ctx context.Context) (VideoBackend, error) {
	s.once.Do(func() {
		s.backend, s.err = s.selectBackend(ctx)
	})
	return s.backend, s.err
}

func (s *Selector) candidates() []candidate {
	dir := s.cfg.VideoDir()
	all := []candidate{
		{KindFirebase, s.cfg.Firebase.Bucket != "" && s.cfg.Firebase.ProjectID != "", func(ctx context.Context) (*Backend, error) {
			return NewFirebaseBackend(ctx, s.cfg.Firebase, s.log)
		}},
		{KindS3, s.cfg.S3.Bucket != "" && s.cfg.S3.DatabaseURL != "", func(ctx context.Context) (*Backend, error) {
			return NewS3Backend(ctx, s.cfg.S3, s.log)
		}},
		{KindSupabase, s.cfg.Supabase.URL != "" && s.cfg.Supabase.Key != "", func(ctx context.Context) (*Backend, error) {
			return NewSupabaseBackend(ctx, s.cfg.Supabase, nil, s.log)
		}},
		{KindSQLite, true, func(ctx context.Context) (*Backend, error) {
			return NewSQLiteBackend(dir, s.log)
		}},
		{KindFilesystem, true, func(ctx context.Context) (*Backend, error) {
			return NewFilesystemBackend(dir, s.log)
		}},
	}

	kind := s.cfg.Kind
	if kind == "" || kind == KindAuto {
		return all
	}

	// explicit choice first, then the embedded fallbacks
	var out []candidate
	for _, c := range all {
		if c.kind == kind {
			c.configured = true
			out = append(out, c)
		}
	}
	for _, c := range all {
		if c.kind != kind && (c.kind == KindSQLite || c.kind == KindFilesystem) {
			out = append(out, c)
		}
	}
	return out
}

func (s *Selector) selectBackend(ctx context.Context) (VideoBackend, error) {
	for _, c := range s.candidates() {
		if !c.configured {
			s.log.Debug("storage backend not configured", "backend", c.kind)
			continue
		}
		b, err := c.open(ctx)
		if err != nil {
			s.log.Warn("storage backend unavailable", "backend", c.kind, "error", err)
			continue
		}
		s.log.Info("storage backend selected", "backend", c.kind)
		return b, nil
	}

	tmp, err := os.MkdirTemp("", "ytagents-videos-")
	if err != nil {
		return nil, fmt.Errorf("no storage backend available: %w", err)
	}
	b, err := NewFilesystemBackend(tmp, s.log)
	if err != nil {
		return nil, fmt.Errorf("no storage backend available: %w", err)
	}
	s.log.Warn("using temporary directory for videos", "dir", tmp)
	return b, nil
}

// OpenKind opens exactly the named backend with no fallback
func OpenKind(ctx context.Context, cfg Config, kind string, log *logger.Logger) (*Backend, error) {
	cfg.Kind = kind
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sel := NewSelector(cfg, log)
	for _, c := range sel.candidates() {
		if c.kind == kind {
			return c.open(ctx)
		}
	}
	return nil, fmt.Errorf("unknown storage backend %q", kind)
}
