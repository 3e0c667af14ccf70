package storage

import (
	"context"
	"net/http"

	"github.com/chicogong/ytagents/pkg/logger"
	"github.com/chicogong/ytagents/pkg/schemas"
)

// MigrateStats counts the outcome of a Migrate call
type MigrateStats struct {
	Copied  int `json:"copied"`
	Skipped int `json:"skipped"`
}

// Migrate copies every video in src into dst. Records whose bytes cannot be
// read or written are logged and skipped. The YouTube id is carried over;
// dst assigns new ids and filenames.
func Migrate(ctx context.Context, src, dst VideoBackend, client *http.Client, log *logger.Logger) (MigrateStats, error) {
	var stats MigrateStats

	recs, err := src.GetAllVideos(ctx)
	if err != nil {
		return stats, err
	}

	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		l := log.With("video_id", rec.ID, "from", src.Name(), "to", dst.Name())
		loc, err := src.GetVideoFile(ctx, rec.ID)
		if err != nil {
			l.Warn("skipping video", "error", err)
			stats.Skipped++
			continue
		}
		data, err := ReadAll(ctx, loc, client)
		if err != nil {
			l.Warn("skipping unreadable video", "error", err)
			stats.Skipped++
			continue
		}

		saved, err := dst.SaveVideo(ctx, data, rec.Topic, rec.Duration)
		if err != nil {
			l.Warn("copy failed", "error", err)
			stats.Skipped++
			continue
		}
		if rec.YouTubeID != "" {
			yt := rec.YouTubeID
			if _, err := dst.UpdateMetadata(ctx, saved.ID, schemas.VideoUpdate{YouTubeID: &yt}); err != nil {
				l.Warn("youtube id not copied", "new_id", saved.ID, "error", err)
			}
		}

		l.Info("video copied", "new_id", saved.ID, "bytes", len(data))
		stats.Copied++
	}
	return stats, nil
}
