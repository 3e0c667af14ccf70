package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/chicogong/ytagents/pkg/logger"
	"github.com/chicogong/ytagents/pkg/schemas"
)

const metadataFilename = "video_metadata.json"

// diskObjects keeps video files in a directory
type diskObjects struct {
	dir string
}

func newDiskObjects(dir string) (*diskObjects, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create video directory: %w", err)
	}
	return &diskObjects{dir: dir}, nil
}

// Put writes to a temp file and renames it so a partial file never carries the final name
func (d *diskObjects) Put(ctx context.Context, filename string, data []byte) (string, error) {
	path := filepath.Join(d.dir, filename)
	if err := writeFileAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

func (d *diskObjects) Delete(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (d *diskObjects) Locate(ctx context.Context, path string) (*Location, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrVideoNotFound
		}
		return nil, err
	}
	return &Location{Path: path}, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}

// jsonMetadata keeps every record in one JSON document keyed by id
type jsonMetadata struct {
	mu      sync.RWMutex
	path    string
	records map[string]*schemas.VideoRecord
}

func loadJSONMetadata(path string) (*jsonMetadata, error) {
	m := &jsonMetadata{path: path, records: map[string]*schemas.VideoRecord{}}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m.records); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return m, nil
}

// persist must be called with mu held for writing
func (m *jsonMetadata) persist() error {
	raw, err := json.MarshalIndent(m.records, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(m.path, raw)
}

func (m *jsonMetadata) Insert(ctx context.Context, rec *schemas.VideoRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *rec
	m.records[rec.ID] = &c
	if err := m.persist(); err != nil {
		delete(m.records, rec.ID)
		return err
	}
	return nil
}

func (m *jsonMetadata) Get(ctx context.Context, id string) (*schemas.VideoRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, ErrVideoNotFound
	}
	c := *rec
	return &c, nil
}

func (m *jsonMetadata) List(ctx context.Context) ([]*schemas.VideoRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*schemas.VideoRecord, 0, len(m.records))
	for _, rec := range m.records {
		c := *rec
		out = append(out, &c)
	}
	return out, nil
}

func (m *jsonMetadata) Update(ctx context.Context, id string, update schemas.VideoUpdate) (*schemas.VideoRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, ErrVideoNotFound
	}
	prev := *rec
	update.Apply(rec)
	if err := m.persist(); err != nil {
		*rec = prev
		return nil, err
	}
	c := *rec
	return &c, nil
}

func (m *jsonMetadata) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return ErrVideoNotFound
	}
	delete(m.records, id)
	if err := m.persist(); err != nil {
		m.records[id] = rec
		return err
	}
	return nil
}

func (m *jsonMetadata) Close() error { return nil }

// NewFilesystemBackend stores files in dir and metadata in dir/video_metadata.json.
// It is the last-resort backend and only fails when dir cannot be created.
func NewFilesystemBackend(dir string, log *logger.Logger) (*Backend, error) {
	objects, err := newDiskObjects(dir)
	if err != nil {
		return nil, err
	}
	meta, err := loadJSONMetadata(filepath.Join(dir, metadataFilename))
	if err != nil {
		return nil, err
	}
	return newBackend("filesystem", objects, meta, log), nil
}
