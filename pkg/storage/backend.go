package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/chicogong/ytagents/pkg/logger"
	"github.com/chicogong/ytagents/pkg/schemas"
)

// objectStore holds video bytes addressed by a backend specific key
type objectStore interface {
	// Put writes data and returns the path or key recorded as VideoRecord.Filepath
	Put(ctx context.Context, filename string, data []byte) (string, error)
	Delete(ctx context.Context, path string) error
	Locate(ctx context.Context, path string) (*Location, error)
}

// metadataStore holds VideoRecords. Get, Update and Delete return ErrVideoNotFound for unknown ids.
type metadataStore interface {
	Insert(ctx context.Context, rec *schemas.VideoRecord) error
	Get(ctx context.Context, id string) (*schemas.VideoRecord, error)
	List(ctx context.Context) ([]*schemas.VideoRecord, error)
	Update(ctx context.Context, id string, update schemas.VideoUpdate) (*schemas.VideoRecord, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// Backend pairs an object store with a metadata store and implements the
// VideoBackend contract once for all of them
type Backend struct {
	name    string
	objects objectStore
	meta    metadataStore
	ids     *IDGenerator
	log     *logger.Logger
}

func newBackend(name string, objects objectStore, meta metadataStore, log *logger.Logger) *Backend {
	return &Backend{
		name:    name,
		objects: objects,
		meta:    meta,
		ids:     defaultIDs,
		log:     log.With("backend", name),
	}
}

func (b *Backend) Name() string { return b.name }

func (b *Backend) SaveVideo(ctx context.Context, data []byte, topic string, duration float64) (*schemas.VideoRecord, error) {
	if duration < 0 {
		duration = 0
	}

	id, createdAt := b.ids.Next()
	filename := VideoFilename(topic, id)

	path, err := b.objects.Put(ctx, filename, data)
	if err != nil {
		return nil, &WriteError{Backend: b.name, Stage: "object", Err: err}
	}

	rec := &schemas.VideoRecord{
		ID:        id,
		Filename:  filename,
		Filepath:  path,
		Topic:     topic,
		Duration:  duration,
		CreatedAt: createdAt,
		Status:    schemas.VideoStatusCompleted,
		FileSize:  int64(len(data)),
		Playable:  IsPlayable(data),
		URL:       RouteURL(id),
	}

	if err := b.meta.Insert(ctx, rec); err != nil {
		if cleanupErr := b.objects.Delete(ctx, path); cleanupErr != nil {
			b.log.Error("orphan object left after metadata failure", "path", path, "error", cleanupErr)
		}
		return nil, &WriteError{Backend: b.name, Stage: "metadata", Err: err}
	}

	b.log.Info("video saved", "video_id", id, "filename", filename, "bytes", len(data))
	return rec, nil
}

func (b *Backend) GetVideoInfo(ctx context.Context, id string) (*schemas.VideoRecord, error) {
	return b.meta.Get(ctx, id)
}

func (b *Backend) GetAllVideos(ctx context.Context) ([]*schemas.VideoRecord, error) {
	recs, err := b.meta.List(ctx)
	if err != nil {
		return nil, err
	}
	SortNewestFirst(recs)
	return recs, nil
}

func (b *Backend) GetVideoFile(ctx context.Context, id string) (*Location, error) {
	rec, err := b.meta.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return b.objects.Locate(ctx, rec.Filepath)
}

func (b *Backend) DeleteVideo(ctx context.Context, id string) (bool, error) {
	rec, err := b.meta.Get(ctx, id)
	if errors.Is(err, ErrVideoNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	objErr := b.objects.Delete(ctx, rec.Filepath)
	if objErr != nil {
		objErr = fmt.Errorf("delete object %s: %w", rec.Filepath, objErr)
	}
	metaErr := b.meta.Delete(ctx, id)
	if metaErr != nil {
		metaErr = fmt.Errorf("delete metadata %s: %w", id, metaErr)
	}

	if err := errors.Join(objErr, metaErr); err != nil {
		b.log.Warn("video delete incomplete", "video_id", id, "error", err)
		return false, err
	}

	b.log.Info("video deleted", "video_id", id)
	return true, nil
}

func (b *Backend) UpdateMetadata(ctx context.Context, id string, update schemas.VideoUpdate) (*schemas.VideoRecord, error) {
	if update.IsEmpty() {
		return b.meta.Get(ctx, id)
	}
	return b.meta.Update(ctx, id, update)
}

func (b *Backend) CreateBlankVideo(topic string, duration float64) []byte {
	return BlankVideo()
}

func (b *Backend) Close() error {
	var objErr error
	if c, ok := b.objects.(io.Closer); ok {
		objErr = c.Close()
	}
	return errors.Join(objErr, b.meta.Close())
}

// SortNewestFirst orders by created_at descending; equal timestamps keep
// insertion order, which the monotonic ids encode
func SortNewestFirst(recs []*schemas.VideoRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.After(recs[j].CreatedAt)
		}
		return recs[i].ID < recs[j].ID
	})
}
