// Package config loads the single configuration object shared by the binaries.
//
// Sources, lowest precedence first: defaults, an optional YAML file, a .env
// file, and the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/chicogong/ytagents/pkg/storage"
)

// Pipeline modes
const (
	ModeTolerant = "tolerant"
	ModeStrict   = "strict"
)

// Workflow store kinds
const (
	WorkflowStoreMemory   = "memory"
	WorkflowStoreRedis    = "redis"
	WorkflowStorePostgres = "postgres"
)

type Config struct {
	Server    ServerConfig        `yaml:"server"`
	LogMode   string              `yaml:"log_mode"`
	Pipeline  PipelineConfig      `yaml:"pipeline"`
	Storage   storage.Config      `yaml:"storage"`
	Workflows WorkflowStoreConfig `yaml:"workflows"`
	Ollama    OllamaConfig        `yaml:"ollama"`
	Piper     PiperConfig         `yaml:"piper"`
	Stock     StockConfig         `yaml:"stock"`
	YouTube   YouTubeConfig       `yaml:"youtube"`
	Reddit    RedditConfig        `yaml:"reddit"`
	Auth      AuthConfig          `yaml:"auth"`
	Tracing   TracingConfig       `yaml:"tracing"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type Timeouts struct {
	LLM   Duration `yaml:"llm"`
	TTS   Duration `yaml:"tts"`
	Media Duration `yaml:"media"`
	HTTP  Duration `yaml:"http"`
}

type PipelineConfig struct {
	Mode             string   `yaml:"mode"`
	OutputDir        string   `yaml:"output_dir"`
	Timeouts         Timeouts `yaml:"timeouts"`
	ApproveFallbacks bool     `yaml:"approve_fallbacks"`
	Concurrency      int      `yaml:"concurrency"`
	Privacy          string   `yaml:"privacy"`
	ScheduleDelay    Duration `yaml:"schedule_delay"`
	PlaylistID       string   `yaml:"playlist_id"`
	Publish          bool     `yaml:"publish"`
}

type WorkflowStoreConfig struct {
	Kind          string `yaml:"kind"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	PostgresDSN   string `yaml:"postgres_dsn"`
}

type OllamaConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type PiperConfig struct {
	Binary string `yaml:"binary"`
	Voice  string `yaml:"voice"`
}

type StockConfig struct {
	PexelsKey  string `yaml:"pexels_key"`
	PixabayKey string `yaml:"pixabay_key"`
}

type YouTubeConfig struct {
	APIKey       string `yaml:"api_key"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	RegionCode   string `yaml:"region_code"`
}

type RedditConfig struct {
	Subreddits []string `yaml:"subreddits"`
}

type AuthConfig struct {
	Required  bool     `yaml:"required"`
	JWTSecret string   `yaml:"jwt_secret"`
	TokenTTL  Duration `yaml:"token_ttl"`
	APIKeys   []string `yaml:"api_keys"`
}

type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Host: "0.0.0.0", Port: 8080},
		LogMode: "dev",
		Pipeline: PipelineConfig{
			Mode:      ModeTolerant,
			OutputDir: "./output",
			Timeouts: Timeouts{
				LLM:   Duration{5 * time.Minute},
				TTS:   Duration{2 * time.Minute},
				Media: Duration{10 * time.Minute},
				HTTP:  Duration{45 * time.Second},
			},
			ApproveFallbacks: true,
			Concurrency:      2,
			Privacy:          "private",
		},
		Storage: storage.Config{
			Kind:      storage.KindAuto,
			OutputDir: "./output",
			Supabase:  storage.SupabaseConfig{Bucket: "videos"},
		},
		Workflows: WorkflowStoreConfig{Kind: WorkflowStoreMemory},
		Ollama:    OllamaConfig{BaseURL: "http://localhost:11434", Model: "llama2"},
		Piper:     PiperConfig{Binary: "piper", Voice: "male_us"},
		YouTube:   YouTubeConfig{RegionCode: "US"},
		Reddit:    RedditConfig{Subreddits: []string{"technology", "science", "worldnews"}},
		Auth:      AuthConfig{TokenTTL: Duration{24 * time.Hour}},
		Tracing:   TracingConfig{ServiceName: "ytagents"},
	}
}

// Load reads configuration from path (may be empty), .env and the environment,
// then validates it
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("YTAGENTS_CONFIG")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// .env never overrides variables already present in the environment
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.LogMode, "LOG_MODE")
	setString(&c.Server.Host, "HOST")
	if err := setInt(&c.Server.Port, "PORT"); err != nil {
		return err
	}

	setString(&c.Pipeline.Mode, "PIPELINE_MODE")
	setString(&c.Pipeline.OutputDir, "OUTPUT_DIR")
	setString(&c.Pipeline.Privacy, "YOUTUBE_PRIVACY")
	setString(&c.Pipeline.PlaylistID, "YOUTUBE_PLAYLIST_ID")
	if err := setBool(&c.Pipeline.Publish, "PIPELINE_PUBLISH"); err != nil {
		return err
	}
	if err := setInt(&c.Pipeline.Concurrency, "PIPELINE_CONCURRENCY"); err != nil {
		return err
	}
	for env, d := range map[string]*Duration{
		"LLM_TIMEOUT":    &c.Pipeline.Timeouts.LLM,
		"TTS_TIMEOUT":    &c.Pipeline.Timeouts.TTS,
		"MEDIA_TIMEOUT":  &c.Pipeline.Timeouts.Media,
		"HTTP_TIMEOUT":   &c.Pipeline.Timeouts.HTTP,
		"SCHEDULE_DELAY": &c.Pipeline.ScheduleDelay,
	} {
		if err := setDuration(d, env); err != nil {
			return err
		}
	}

	setString(&c.Storage.Kind, "STORAGE_BACKEND")
	setString(&c.Storage.OutputDir, "OUTPUT_DIR")
	setString(&c.Storage.Firebase.Bucket, "FIREBASE_STORAGE_BUCKET")
	setString(&c.Storage.Firebase.ProjectID, "FIREBASE_PROJECT_ID")
	setString(&c.Storage.Firebase.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	setString(&c.Storage.S3.Bucket, "AWS_S3_BUCKET")
	setString(&c.Storage.S3.Region, "AWS_REGION")
	setString(&c.Storage.S3.Endpoint, "AWS_S3_ENDPOINT")
	setString(&c.Storage.S3.DatabaseURL, "DATABASE_URL")
	setString(&c.Storage.Supabase.URL, "SUPABASE_URL")
	setString(&c.Storage.Supabase.Key, "SUPABASE_KEY")
	setString(&c.Storage.Supabase.Bucket, "SUPABASE_BUCKET")

	setString(&c.Workflows.Kind, "WORKFLOW_STORE")
	setString(&c.Workflows.RedisAddr, "REDIS_ADDR")
	setString(&c.Workflows.RedisPassword, "REDIS_PASSWORD")
	if err := setInt(&c.Workflows.RedisDB, "REDIS_DB"); err != nil {
		return err
	}
	setString(&c.Workflows.PostgresDSN, "WORKFLOW_POSTGRES_DSN")

	setString(&c.Ollama.BaseURL, "OLLAMA_BASE_URL")
	setString(&c.Ollama.Model, "OLLAMA_MODEL")
	setString(&c.Piper.Binary, "PIPER_BINARY")
	setString(&c.Piper.Voice, "TTS_VOICE")
	setString(&c.Stock.PexelsKey, "PEXELS_API_KEY")
	setString(&c.Stock.PixabayKey, "PIXABAY_API_KEY")
	setString(&c.YouTube.APIKey, "YOUTUBE_API_KEY")
	setString(&c.YouTube.ClientID, "YOUTUBE_CLIENT_ID")
	setString(&c.YouTube.ClientSecret, "YOUTUBE_CLIENT_SECRET")
	setString(&c.YouTube.RefreshToken, "YOUTUBE_REFRESH_TOKEN")
	setString(&c.YouTube.RegionCode, "YOUTUBE_REGION")
	if v := os.Getenv("REDDIT_SUBREDDITS"); v != "" {
		c.Reddit.Subreddits = splitList(v)
	}

	if err := setBool(&c.Auth.Required, "AUTH_REQUIRED"); err != nil {
		return err
	}
	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	if err := setDuration(&c.Auth.TokenTTL, "JWT_TTL"); err != nil {
		return err
	}
	if v := os.Getenv("API_KEYS"); v != "" {
		c.Auth.APIKeys = splitList(v)
	}

	if err := setBool(&c.Tracing.Enabled, "TRACING_ENABLED"); err != nil {
		return err
	}
	return nil
}

// Validate fails fast on settings no component could run with. An explicitly
// chosen storage backend must carry all of its fields; auto never fails.
func (c *Config) Validate() error {
	var errs []error

	switch c.Pipeline.Mode {
	case ModeTolerant, ModeStrict:
	default:
		errs = append(errs, fmt.Errorf("unknown pipeline mode %q", c.Pipeline.Mode))
	}

	for name, d := range map[string]Duration{
		"llm":   c.Pipeline.Timeouts.LLM,
		"tts":   c.Pipeline.Timeouts.TTS,
		"media": c.Pipeline.Timeouts.Media,
		"http":  c.Pipeline.Timeouts.HTTP,
	} {
		if d.Duration <= 0 {
			errs = append(errs, fmt.Errorf("timeout %s must be positive", name))
		}
	}
	if c.Pipeline.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("pipeline concurrency must be at least 1"))
	}
	switch c.Pipeline.Privacy {
	case "private", "unlisted", "public":
	default:
		errs = append(errs, fmt.Errorf("unknown privacy %q", c.Pipeline.Privacy))
	}

	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, err)
	}

	switch c.Workflows.Kind {
	case WorkflowStoreMemory:
	case WorkflowStoreRedis:
		if c.Workflows.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("workflow store redis requires REDIS_ADDR"))
		}
	case WorkflowStorePostgres:
		if c.Workflows.PostgresDSN == "" {
			errs = append(errs, fmt.Errorf("workflow store postgres requires WORKFLOW_POSTGRES_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown workflow store %q", c.Workflows.Kind))
	}

	if c.Auth.Required && c.Auth.JWTSecret == "" && len(c.Auth.APIKeys) == 0 {
		errs = append(errs, fmt.Errorf("auth required but neither JWT_SECRET nor API_KEYS is set"))
	}

	return errors.Join(errs...)
}

// YouTubeAuthorized reports whether the OAuth credentials needed to publish are present
func (c *Config) YouTubeAuthorized() bool {
	return c.YouTube.ClientID != "" && c.YouTube.ClientSecret != "" && c.YouTube.RefreshToken != ""
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) error {
	v := os.Getenv(env)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", env, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, env string) error {
	v := os.Getenv(env)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", env, err)
	}
	*dst = b
	return nil
}

func setDuration(dst *Duration, env string) error {
	v := os.Getenv(env)
	if v == "" {
		return nil
	}
	d, err := ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", env, err)
	}
	dst.Duration = d
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
