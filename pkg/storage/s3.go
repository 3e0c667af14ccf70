package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/chicogong/ytagents/pkg/logger"
)

// S3Config selects the bucket and the Postgres database holding metadata
type S3Config struct {
	Bucket      string `yaml:"bucket"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"` // S3 compatible services; enables path style addressing
	DatabaseURL string `yaml:"database_url"`
}

// s3Objects keeps video bytes under videos/ in one bucket.
// Paths are recorded as s3://bucket/videos/<filename>.
type s3Objects struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	now     func() time.Time
}

func newS3Objects(client *s3.Client, bucket string) *s3Objects {
	return &s3Objects{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
		now:     time.Now,
	}
}

func parseS3URI(uri string) (bucket, key string, err error) {
	return parseBucketURI(uri, "s3")
}

func (s *s3Objects) Put(ctx context.Context, filename string, data []byte) (string, error) {
	key := objectKey(filename)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("video/mp4"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put S3 object: %w", err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}

func (s *s3Objects) Delete(ctx context.Context, path string) error {
	bucket, key, err := parseS3URI(path)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete S3 object: %w", err)
	}
	return nil
}

func (s *s3Objects) Locate(ctx context.Context, path string) (*Location, error) {
	bucket, key, err := parseS3URI(path)
	if err != nil {
		return nil, err
	}

	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ErrVideoNotFound
		}
		return nil, fmt.Errorf("failed to check S3 object: %w", err)
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(SignedURLExpiry))
	if err != nil {
		return nil, fmt.Errorf("failed to presign S3 object: %w", err)
	}
	return &Location{URL: req.URL, ExpiresAt: s.now().Add(SignedURLExpiry).UTC()}, nil
}

// probe confirms the bucket is reachable with the loaded credentials
func (s *s3Objects) probe(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", s.bucket, err)
	}
	return nil
}

func isS3NotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey" {
			return true
		}
		if httpResp, ok := apiErr.(interface{ HTTPStatusCode() int }); ok {
			return httpResp.HTTPStatusCode() == http.StatusNotFound
		}
	}
	return false
}

// NewS3Backend stores files in S3 and metadata in Postgres.
// Credentials come from the AWS default chain (env vars, config files, IAM roles).
func NewS3Backend(ctx context.Context, cfg S3Config, log *logger.Logger) (*Backend, error) {
	if cfg.Bucket == "" || cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("s3 backend needs a bucket and a database URL")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	objects := newS3Objects(client, cfg.Bucket)
	if err := objects.probe(ctx); err != nil {
		return nil, err
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	meta, err := newSQLMetadata(db)
	if err != nil {
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return newBackend("s3", objects, meta, log), nil
}
