package stages

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/chicogong/ytagents/pkg/clients/youtube"
	"github.com/chicogong/ytagents/pkg/logger"
	"github.com/chicogong/ytagents/pkg/schemas"
	"github.com/chicogong/ytagents/pkg/storage"
)

// UploadStage publishes the stored video
type UploadStage struct {
	Publisher Publisher
	Storage   storage.VideoBackend

	// Privacy is public, unlisted or private
	Privacy string

	// ScheduleDelay > 0 schedules the publish that far in the future
	ScheduleDelay time.Duration
	PlaylistID    string

	HTTPClient *http.Client
	Log        *logger.Logger
	Now        func() time.Time
}

func (s *UploadStage) Describe() Descriptor {
	return Descriptor{
		Name:        schemas.StageUpload,
		Description: "publish the video with its metadata and thumbnail",
		DependsOn:   []schemas.StageName{schemas.StageAssembly, schemas.StageMetadata, schemas.StageThumbnail},
		Budget:      BudgetHTTP,
	}
}

func (s *UploadStage) Run(ctx context.Context, st *State) schemas.StageResult {
	video := st.Video()
	if video == nil {
		return missing(schemas.StageUpload, schemas.StageAssembly)
	}
	md := st.Metadata()
	if md == nil {
		return missing(schemas.StageUpload, schemas.StageMetadata)
	}

	privacy := s.Privacy
	if privacy == "" {
		privacy = "private"
	}
	if s.Publisher == nil {
		return schemas.Fallback(&schemas.UploadData{Privacy: privacy, Unauthorized: true}, youtube.ErrAuthorizationMissing.Error())
	}

	path, cleanup, err := s.localCopy(ctx, video.VideoID)
	if err != nil {
		return schemas.Failed(schemas.StageUpload, fmt.Sprintf("read stored video: %v", err))
	}
	defer cleanup()

	req := youtube.UploadRequest{
		VideoPath:   path,
		Title:       md.Title,
		Description: md.Description,
		Tags:        md.Tags,
		CategoryID:  youtube.CategoryEducation,
		Language:    md.Language,
		Privacy:     privacy,
		PlaylistID:  s.PlaylistID,
	}
	if th := st.Thumbnail(); th != nil {
		req.ThumbnailPath = th.Path
	}
	if s.ScheduleDelay > 0 {
		req.PublishAt = s.now().Add(s.ScheduleDelay)
	}

	res, err := s.Publisher.Upload(ctx, req)
	if errors.Is(err, youtube.ErrAuthorizationMissing) {
		s.Log.Warn("upload skipped", "workflow_id", st.WorkflowID, "reason", err)
		return schemas.Fallback(&schemas.UploadData{Privacy: privacy, Unauthorized: true}, err.Error())
	}
	if err != nil {
		return schemas.Failed(schemas.StageUpload, err.Error())
	}

	data := &schemas.UploadData{
		Published:   true,
		ExternalID:  res.VideoID,
		URL:         res.URL,
		Privacy:     res.Privacy,
		ScheduledAt: res.ScheduledAt,
	}
	if res.PlaylistAdded {
		data.PlaylistID = s.PlaylistID
	}

	if _, err := s.Storage.UpdateMetadata(ctx, video.VideoID, schemas.VideoUpdate{YouTubeID: &res.VideoID}); err != nil {
		s.Log.Warn("youtube id not recorded", "video_id", video.VideoID, "error", err)
	}
	s.Log.Info("video published", "workflow_id", st.WorkflowID, "external_id", res.VideoID, "privacy", res.Privacy)
	return schemas.Ok(data)
}

// localCopy returns a local path of the stored video, downloading signed URLs to a temp file
func (s *UploadStage) localCopy(ctx context.Context, videoID string) (string, func(), error) {
	loc, err := s.Storage.GetVideoFile(ctx, videoID)
	if err != nil {
		return "", nil, err
	}
	if loc.IsLocal() {
		return loc.Path, func() {}, nil
	}

	rc, err := storage.Open(ctx, loc, s.HTTPClient)
	if err != nil {
		return "", nil, err
	}
	defer rc.Close()

	f, err := os.CreateTemp("", "ytagents-upload-*.mp4")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { os.Remove(f.Name()) }
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		cleanup()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return f.Name(), cleanup, nil
}

func (s *UploadStage) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
