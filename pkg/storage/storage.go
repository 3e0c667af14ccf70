// Package storage persists produced videos and their metadata across
// interchangeable backends that all honour the same VideoBackend contract.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chicogong/ytagents/pkg/schemas"
)

// SignedURLExpiry is how long a signed retrieval URL stays valid
const SignedURLExpiry = time.Hour

var (
	// ErrVideoNotFound is returned for unknown video ids
	ErrVideoNotFound = errors.New("video not found")
)

// VideoBackend is implemented identically by every storage backend
type VideoBackend interface {
	// Name identifies the backend in logs
	Name() string

	// SaveVideo writes the bytes and then the metadata record. If the metadata
	// write fails the object is removed, so no record ever references missing bytes.
	SaveVideo(ctx context.Context, data []byte, topic string, duration float64) (*schemas.VideoRecord, error)

	// GetVideoInfo returns ErrVideoNotFound for unknown ids
	GetVideoInfo(ctx context.Context, id string) (*schemas.VideoRecord, error)

	// GetAllVideos lists records newest first, ties in insertion order
	GetAllVideos(ctx context.Context) ([]*schemas.VideoRecord, error)

	// GetVideoFile returns a local path or a signed URL that expires
	GetVideoFile(ctx context.Context, id string) (*Location, error)

	// DeleteVideo removes object and metadata. It reports false with no
	// mutation for unknown ids, and false plus the joined errors when either removal fails.
	DeleteVideo(ctx context.Context, id string) (bool, error)

	// UpdateMetadata applies a partial update; the stored bytes are never rewritten
	UpdateMetadata(ctx context.Context, id string, update schemas.VideoUpdate) (*schemas.VideoRecord, error)

	// CreateBlankVideo returns placeholder bytes in the system's container format
	CreateBlankVideo(topic string, duration float64) []byte

	Close() error
}

// Location is where a stored video can be read from
type Location struct {
	// Path is set for backends that keep files on local disk
	Path string `json:"path,omitempty"`

	// URL is a signed link for remote object stores
	URL       string    `json:"url,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// IsLocal reports whether the location is a filesystem path
func (l *Location) IsLocal() bool { return l.Path != "" }

// URI renders the location as file:// or the signed https URL
func (l *Location) URI() string {
	if l.IsLocal() {
		return "file://" + l.Path
	}
	return l.URL
}

// WriteError reports which half of SaveVideo failed
type WriteError struct {
	Backend string
	Stage   string // "object" or "metadata"
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s: %s write failed: %v", e.Backend, e.Stage, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
