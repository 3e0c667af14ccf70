package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chicogong/ytagents/pkg/logger"
	"github.com/chicogong/ytagents/pkg/schemas"
)

func TestMigrate_CopiesBytesAndYouTubeID(t *testing.T) {
	ctx := context.Background()
	log := logger.Nop()

	src, err := NewFilesystemBackend(t.TempDir(), log)
	require.NoError(t, err)
	defer src.Close()
	dst, err := NewSQLiteBackend(t.TempDir(), log)
	require.NoError(t, err)
	defer dst.Close()

	a, err := src.SaveVideo(ctx, src.CreateBlankVideo("owls", 2), "owls", 2)
	require.NoError(t, err)
	yt := "yt123"
	_, err = src.UpdateMetadata(ctx, a.ID, schemas.VideoUpdate{YouTubeID: &yt})
	require.NoError(t, err)

	b, err := src.SaveVideo(ctx, []byte("not a video"), "cats", 1)
	require.NoError(t, err)

	// the second record's bytes disappear
	loc, err := src.GetVideoFile(ctx, b.ID)
	require.NoError(t, err)
	require.NoError(t, os.Remove(loc.Path))

	stats, err := Migrate(ctx, src, dst, nil, log)
	require.NoError(t, err)
	assert.Equal(t, MigrateStats{Copied: 1, Skipped: 1}, stats)

	recs, err := dst.GetAllVideos(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "owls", recs[0].Topic)
	assert.Equal(t, "yt123", recs[0].YouTubeID)
	assert.Equal(t, a.FileSize, recs[0].FileSize)
}

func TestOpenKind(t *testing.T) {
	cfg := Config{OutputDir: t.TempDir()}

	b, err := OpenKind(context.Background(), cfg, KindFilesystem, logger.Nop())
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, KindFilesystem, b.Name())

	_, err = OpenKind(context.Background(), cfg, KindS3, logger.Nop())
	assert.Error(t, err)

	_, err = OpenKind(context.Background(), cfg, "ftp", logger.Nop())
	assert.Error(t, err)
}
