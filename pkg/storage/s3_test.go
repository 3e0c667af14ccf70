package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chicogong/ytagents/pkg/logger"
)

func TestParseS3URI(t *testing.T) {
	tests := []struct {
		name        string
		uri         string
		wantBucket  string
		wantKey     string
		wantErr     bool
		errContains string
	}{
		{
			name:       "valid S3 URI",
			uri:        "s3://my-bucket/videos/cats_20240101_000000_000000000-abcd.mp4",
			wantBucket: "my-bucket",
			wantKey:    "videos/cats_20240101_000000_000000000-abcd.mp4",
		},
		{
			name:       "single key",
			uri:        "s3://bucket/file.mp4",
			wantBucket: "bucket",
			wantKey:    "file.mp4",
		},
		{
			name:        "missing bucket",
			uri:         "s3:///videos/file.mp4",
			wantErr:     true,
			errContains: "missing bucket name",
		},
		{
			name:        "missing key",
			uri:         "s3://my-bucket/",
			wantErr:     true,
			errContains: "missing object key",
		},
		{
			name:        "bucket only",
			uri:         "s3://my-bucket",
			wantErr:     true,
			errContains: "missing object key",
		},
		{
			name:        "wrong scheme",
			uri:         "gs://bucket/file.mp4",
			wantErr:     true,
			errContains: "expected s3://",
		},
		{
			name:        "empty URI",
			uri:         "",
			wantErr:     true,
			errContains: "missing scheme",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, key, err := parseS3URI(tt.uri)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantBucket, bucket)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestNewS3Backend_RequiresConfig(t *testing.T) {
	_, err := NewS3Backend(context.Background(), S3Config{Bucket: "only-bucket"}, logger.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database URL")
}

// Runs the contract against a real bucket and database when both are configured
func TestS3Backend_Contract(t *testing.T) {
	cfg := S3Config{
		Bucket:      os.Getenv("AWS_S3_BUCKET"),
		Region:      os.Getenv("AWS_REGION"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
	}
	if cfg.Bucket == "" || cfg.DatabaseURL == "" {
		t.Skip("Skipping S3 backend test: AWS_S3_BUCKET and DATABASE_URL not set")
	}

	testBackendContract(t, func(t *testing.T) VideoBackend {
		b, err := NewS3Backend(context.Background(), cfg, logger.Nop())
		require.NoError(t, err)
		return b
	})
}
