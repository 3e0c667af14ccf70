package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chicogong/ytagents/pkg/logger"
	"github.com/chicogong/ytagents/pkg/schemas"
)

// testBackendContract exercises the behaviour every VideoBackend must share
func testBackendContract(t *testing.T, newBackend func(t *testing.T) VideoBackend) {
	ctx := context.Background()

	t.Run("save and get", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()

		data := b.CreateBlankVideo("Cats", 30)
		rec, err := b.SaveVideo(ctx, data, "Cats", 30)
		require.NoError(t, err)
		defer b.DeleteVideo(ctx, rec.ID)

		assert.NotEmpty(t, rec.ID)
		assert.Equal(t, "Cats_"+rec.ID+".mp4", rec.Filename)
		assert.Equal(t, "/api/videos/"+rec.ID, rec.URL)
		assert.Equal(t, schemas.VideoStatusCompleted, rec.Status)
		assert.Equal(t, int64(len(data)), rec.FileSize)
		assert.True(t, rec.Playable)

		got, err := b.GetVideoInfo(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, rec.Filename, got.Filename)
		assert.Equal(t, "Cats", got.Topic)
		assert.Equal(t, 30.0, got.Duration)
		assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))

		loc, err := b.GetVideoFile(ctx, rec.ID)
		require.NoError(t, err)
		assert.True(t, loc.IsLocal() || loc.URL != "")
	})

	t.Run("unknown id", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()

		_, err := b.GetVideoInfo(ctx, "does-not-exist")
		assert.ErrorIs(t, err, ErrVideoNotFound)

		_, err = b.GetVideoFile(ctx, "does-not-exist")
		assert.ErrorIs(t, err, ErrVideoNotFound)

		_, err = b.UpdateMetadata(ctx, "does-not-exist", schemas.VideoUpdate{Topic: ptr("x")})
		assert.ErrorIs(t, err, ErrVideoNotFound)

		deleted, err := b.DeleteVideo(ctx, "does-not-exist")
		assert.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("list newest first", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()

		var ids []string
		for _, topic := range []string{"first", "second", "third"} {
			rec, err := b.SaveVideo(ctx, []byte("not a video"), topic, 1)
			require.NoError(t, err)
			assert.False(t, rec.Playable)
			ids = append(ids, rec.ID)
			defer b.DeleteVideo(ctx, rec.ID)
		}

		all, err := b.GetAllVideos(ctx)
		require.NoError(t, err)
		again, err := b.GetAllVideos(ctx)
		require.NoError(t, err)
		assert.Equal(t, all, again, "listing must be stable between calls")

		pos := map[string]int{}
		for i, rec := range all {
			pos[rec.ID] = i
		}
		for _, id := range ids {
			require.Contains(t, pos, id)
		}
		assert.Less(t, pos[ids[2]], pos[ids[1]])
		assert.Less(t, pos[ids[1]], pos[ids[0]])
	})

	t.Run("concurrent saves", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()

		const n = 8
		const topic = "A/B: Test?"

		stop := make(chan struct{})
		listed := make(chan error, 1)
		go func() {
			for {
				select {
				case <-stop:
					listed <- nil
					return
				default:
				}
				all, err := b.GetAllVideos(ctx)
				if err != nil {
					listed <- err
					return
				}
				for _, rec := range all {
					if rec.ID == "" || rec.Filename == "" || rec.FileSize == 0 || rec.CreatedAt.IsZero() {
						listed <- fmt.Errorf("incomplete record in listing: %+v", rec)
						return
					}
				}
			}
		}()

		recs := make([]*schemas.VideoRecord, n)
		errs := make([]error, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				recs[i], errs[i] = b.SaveVideo(ctx, b.CreateBlankVideo(topic, 3), topic, 3)
			}(i)
		}
		wg.Wait()
		close(stop)
		require.NoError(t, <-listed)

		ids := map[string]bool{}
		filenames := map[string]bool{}
		for i := range recs {
			require.NoError(t, errs[i])
			defer b.DeleteVideo(ctx, recs[i].ID)
			ids[recs[i].ID] = true
			filenames[recs[i].Filename] = true
			assert.Equal(t, "AB Test_"+recs[i].ID+".mp4", recs[i].Filename)
		}
		assert.Len(t, ids, n)
		assert.Len(t, filenames, n)

		all, err := b.GetAllVideos(ctx)
		require.NoError(t, err)
		found := 0
		for _, rec := range all {
			if ids[rec.ID] {
				found++
				assert.Equal(t, topic, rec.Topic)
			}
		}
		assert.Equal(t, n, found)
	})

	t.Run("update metadata", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()

		rec, err := b.SaveVideo(ctx, b.CreateBlankVideo("Dogs", 10), "Dogs", 10)
		require.NoError(t, err)
		defer b.DeleteVideo(ctx, rec.ID)

		updated, err := b.UpdateMetadata(ctx, rec.ID, schemas.VideoUpdate{
			Topic:     ptr("Puppies"),
			Duration:  ptr(42.5),
			YouTubeID: ptr("yt123"),
		})
		require.NoError(t, err)
		assert.Equal(t, "Puppies", updated.Topic)
		assert.Equal(t, 42.5, updated.Duration)
		assert.Equal(t, "yt123", updated.YouTubeID)
		assert.Equal(t, rec.Filename, updated.Filename)

		got, err := b.GetVideoInfo(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, "Puppies", got.Topic)

		same, err := b.UpdateMetadata(ctx, rec.ID, schemas.VideoUpdate{})
		require.NoError(t, err)
		assert.Equal(t, "Puppies", same.Topic)
	})

	t.Run("delete", func(t *testing.T) {
		b := newBackend(t)
		defer b.Close()

		rec, err := b.SaveVideo(ctx, b.CreateBlankVideo("", 5), "", 5)
		require.NoError(t, err)
		assert.Equal(t, "video_"+rec.ID+".mp4", rec.Filename)

		deleted, err := b.DeleteVideo(ctx, rec.ID)
		require.NoError(t, err)
		assert.True(t, deleted)

		_, err = b.GetVideoInfo(ctx, rec.ID)
		assert.ErrorIs(t, err, ErrVideoNotFound)

		deleted, err = b.DeleteVideo(ctx, rec.ID)
		assert.NoError(t, err)
		assert.False(t, deleted)
	})
}

func ptr[T any](v T) *T { return &v }

func TestFilesystemBackend(t *testing.T) {
	testBackendContract(t, func(t *testing.T) VideoBackend {
		b, err := NewFilesystemBackend(t.TempDir(), logger.Nop())
		require.NoError(t, err)
		return b
	})
}

func TestSQLiteBackend(t *testing.T) {
	testBackendContract(t, func(t *testing.T) VideoBackend {
		b, err := NewSQLiteBackend(t.TempDir(), logger.Nop())
		require.NoError(t, err)
		return b
	})
}

func TestFilesystemBackend_Persists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b, err := NewFilesystemBackend(dir, logger.Nop())
	require.NoError(t, err)
	rec, err := b.SaveVideo(ctx, BlankVideo(), "Space", 12)
	require.NoError(t, err)
	require.NoError(t, b.Close())

	assert.FileExists(t, filepath.Join(dir, metadataFilename))
	assert.FileExists(t, rec.Filepath)

	reopened, err := NewFilesystemBackend(dir, logger.Nop())
	require.NoError(t, err)
	got, err := reopened.GetVideoInfo(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Space", got.Topic)

	loc, err := reopened.GetVideoFile(ctx, rec.ID)
	require.NoError(t, err)
	data, err := ReadAll(ctx, loc, nil)
	require.NoError(t, err)
	assert.Equal(t, BlankVideo(), data)
}

func TestFilesystemBackend_MissingFile(t *testing.T) {
	ctx := context.Background()
	b, err := NewFilesystemBackend(t.TempDir(), logger.Nop())
	require.NoError(t, err)

	rec, err := b.SaveVideo(ctx, BlankVideo(), "gone", 1)
	require.NoError(t, err)
	require.NoError(t, os.Remove(rec.Filepath))

	_, err = b.GetVideoFile(ctx, rec.ID)
	assert.ErrorIs(t, err, ErrVideoNotFound)

	// metadata removal still succeeds when the object is already gone
	deleted, err := b.DeleteVideo(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
}

type failingMeta struct{ jsonMetadata }

func (*failingMeta) Insert(ctx context.Context, rec *schemas.VideoRecord) error {
	return errors.New("metadata store down")
}

func TestBackend_MetadataFailureRemovesObject(t *testing.T) {
	dir := t.TempDir()
	objects, err := newDiskObjects(dir)
	require.NoError(t, err)

	meta := &failingMeta{jsonMetadata{path: filepath.Join(dir, metadataFilename), records: map[string]*schemas.VideoRecord{}}}
	b := newBackend("test", objects, meta, logger.Nop())

	_, err = b.SaveVideo(context.Background(), BlankVideo(), "Cats", 1)
	require.Error(t, err)

	var werr *WriteError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "metadata", werr.Stage)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, ".mp4", filepath.Ext(e.Name()), "orphan object %s", e.Name())
	}
}
