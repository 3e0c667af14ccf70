package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/firestore"
	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/chicogong/ytagents/pkg/logger"
	"github.com/chicogong/ytagents/pkg/schemas"
)

// FirebaseConfig selects the Cloud Storage bucket and Firestore project
type FirebaseConfig struct {
	Bucket          string `yaml:"bucket"`
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
}

const (
	firestoreCollection = "videos"
	probeObject         = "__ytagents_probe.txt"
)

// gcsObjects keeps files in a bucket; paths are recorded as gs://bucket/videos/<filename>
type gcsObjects struct {
	client *gcs.Client
	bucket string
	now    func() time.Time
}

func (g *gcsObjects) Put(ctx context.Context, filename string, data []byte) (string, error) {
	key := objectKey(filename)
	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "video/mp4"
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return "gs://" + g.bucket + "/" + key, nil
}

func (g *gcsObjects) Delete(ctx context.Context, path string) error {
	bucket, key, err := parseBucketURI(path, "gs")
	if err != nil {
		return err
	}
	if err := g.client.Bucket(bucket).Object(key).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete GCS object %q: %w", key, err)
	}
	return nil
}

func (g *gcsObjects) Locate(ctx context.Context, path string) (*Location, error) {
	bucket, key, err := parseBucketURI(path, "gs")
	if err != nil {
		return nil, err
	}
	if _, err := g.client.Bucket(bucket).Object(key).Attrs(ctx); err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, ErrVideoNotFound
		}
		return nil, fmt.Errorf("failed to stat GCS object: %w", err)
	}

	expires := g.now().Add(SignedURLExpiry).UTC()
	signed, err := g.client.Bucket(bucket).SignedURL(key, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  "GET",
		Expires: expires,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign GCS object: %w", err)
	}
	return &Location{URL: signed, ExpiresAt: expires}, nil
}

func (g *gcsObjects) Close() error { return g.client.Close() }

// probe writes and removes a small object to prove write access
func (g *gcsObjects) probe(ctx context.Context) error {
	obj := g.client.Bucket(g.bucket).Object(probeObject)
	w := obj.NewWriter(ctx)
	if _, err := w.Write([]byte("ok")); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return obj.Delete(ctx)
}

// videoDoc is the Firestore document shape of a VideoRecord
type videoDoc struct {
	ID        string    `firestore:"id"`
	Filename  string    `firestore:"filename"`
	Filepath  string    `firestore:"filepath"`
	Topic     string    `firestore:"topic"`
	Duration  float64   `firestore:"duration"`
	CreatedAt time.Time `firestore:"created_at"`
	Status    string    `firestore:"status"`
	FileSize  int64     `firestore:"file_size"`
	Playable  bool      `firestore:"playable"`
	URL       string    `firestore:"url"`
	YouTubeID string    `firestore:"youtube_id"`
}

func (d *videoDoc) record() *schemas.VideoRecord {
	r := schemas.VideoRecord(*d)
	r.CreatedAt = r.CreatedAt.UTC()
	return &r
}

type firestoreMetadata struct {
	client *firestore.Client
}

func (f *firestoreMetadata) col() *firestore.CollectionRef {
	return f.client.Collection(firestoreCollection)
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func (f *firestoreMetadata) Insert(ctx context.Context, rec *schemas.VideoRecord) error {
	doc := videoDoc(*rec)
	_, err := f.col().Doc(rec.ID).Create(ctx, &doc)
	return err
}

func (f *firestoreMetadata) Get(ctx context.Context, id string) (*schemas.VideoRecord, error) {
	snap, err := f.col().Doc(id).Get(ctx)
	if isNotFound(err) {
		return nil, ErrVideoNotFound
	}
	if err != nil {
		return nil, err
	}
	var doc videoDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, err
	}
	return doc.record(), nil
}

func (f *firestoreMetadata) List(ctx context.Context) ([]*schemas.VideoRecord, error) {
	iter := f.col().Documents(ctx)
	defer iter.Stop()

	var out []*schemas.VideoRecord
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		var doc videoDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.record())
	}
	return out, nil
}

func (f *firestoreMetadata) Update(ctx context.Context, id string, update schemas.VideoUpdate) (*schemas.VideoRecord, error) {
	var updates []firestore.Update
	for path, value := range update.Columns() {
		updates = append(updates, firestore.Update{Path: path, Value: value})
	}
	if _, err := f.col().Doc(id).Update(ctx, updates); err != nil {
		if isNotFound(err) {
			return nil, ErrVideoNotFound
		}
		return nil, err
	}
	return f.Get(ctx, id)
}

func (f *firestoreMetadata) Delete(ctx context.Context, id string) error {
	_, err := f.col().Doc(id).Delete(ctx, firestore.Exists)
	if isNotFound(err) {
		return ErrVideoNotFound
	}
	return err
}

func (f *firestoreMetadata) Close() error {
	return f.client.Close()
}

// NewFirebaseBackend stores files in Cloud Storage and metadata in the Firestore
// "videos" collection. A write probe runs before the backend is returned.
func NewFirebaseBackend(ctx context.Context, cfg FirebaseConfig, log *logger.Logger) (*Backend, error) {
	if cfg.Bucket == "" || cfg.ProjectID == "" {
		return nil, fmt.Errorf("firebase backend needs a bucket and a project id")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	stClient, err := gcs.NewClient(ctx, append(opts, option.WithScopes(gcs.ScopeReadWrite))...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	objects := &gcsObjects{client: stClient, bucket: cfg.Bucket, now: time.Now}
	if err := objects.probe(ctx); err != nil {
		stClient.Close()
		return nil, fmt.Errorf("bucket %s not writable: %w", cfg.Bucket, err)
	}

	fsClient, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		stClient.Close()
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return newBackend("firebase", objects, &firestoreMetadata{client: fsClient}, log), nil
}
