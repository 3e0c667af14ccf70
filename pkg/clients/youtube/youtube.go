// Package youtube publishes videos and reads their performance through the
// YouTube Data and Analytics APIs.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
	"google.golang.org/api/youtubeanalytics/v2"

	"github.com/chicogong/ytagents/pkg/logger"
	"github.com/chicogong/ytagents/pkg/schemas"
)

// ErrAuthorizationMissing is returned by operations that need OAuth
// credentials when none are configured. It is never a pipeline failure.
var ErrAuthorizationMissing = errors.New("youtube authorization missing: set YOUTUBE_CLIENT_ID, YOUTUBE_CLIENT_SECRET and YOUTUBE_REFRESH_TOKEN")

// ErrAPIKeyMissing is returned by read operations when no API key is configured
var ErrAPIKeyMissing = errors.New("youtube api key missing: set YOUTUBE_API_KEY")

// CategoryEducation is the YouTube category id for "Education"
const CategoryEducation = "27"

type Config struct {
	APIKey       string
	ClientID     string
	ClientSecret string
	RefreshToken string
	RegionCode   string

	// Endpoint overrides the API base URL, mainly for tests
	Endpoint string
}

type Client struct {
	cfg Config
	log *logger.Logger
}

func New(cfg Config, log *logger.Logger) *Client {
	if cfg.RegionCode == "" {
		cfg.RegionCode = "US"
	}
	return &Client{cfg: cfg, log: log.With("client", "youtube")}
}

// Authorized reports whether OAuth credentials for publishing are present
func (c *Client) Authorized() bool {
	return c.cfg.ClientID != "" && c.cfg.ClientSecret != "" && c.cfg.RefreshToken != ""
}

// CanRead reports whether public data can be queried
func (c *Client) CanRead() bool {
	return c.cfg.APIKey != "" || c.Authorized()
}

func (c *Client) tokenSource(ctx context.Context) oauth2.TokenSource {
	conf := &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeScope, youtubeanalytics.YtAnalyticsReadonlyScope},
	}
	// expired token forces a refresh on first use
	return conf.TokenSource(ctx, &oauth2.Token{
		RefreshToken: c.cfg.RefreshToken,
		Expiry:       time.Now().Add(-time.Hour),
	})
}

func (c *Client) options(ctx context.Context, needAuth bool) ([]option.ClientOption, error) {
	var opts []option.ClientOption
	if c.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.cfg.Endpoint))
	}
	switch {
	case needAuth || c.cfg.APIKey == "":
		if !c.Authorized() {
			if needAuth {
				return nil, ErrAuthorizationMissing
			}
			return nil, ErrAPIKeyMissing
		}
		opts = append(opts, option.WithTokenSource(c.tokenSource(ctx)))
	default:
		opts = append(opts, option.WithAPIKey(c.cfg.APIKey))
	}
	return opts, nil
}

func (c *Client) service(ctx context.Context, needAuth bool) (*youtube.Service, error) {
	opts, err := c.options(ctx, needAuth)
	if err != nil {
		return nil, err
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return svc, nil
}

// UploadRequest describes one publish
type UploadRequest struct {
	VideoPath     string
	ThumbnailPath string
	Title         string
	Description   string
	Tags          []string
	CategoryID    string
	Language      string
	Privacy       string
	PublishAt     time.Time
	PlaylistID    string
}

// UploadResult is what the platform returned
type UploadResult struct {
	VideoID       string
	URL           string
	Privacy       string
	ScheduledAt   *time.Time
	ThumbnailSet  bool
	PlaylistAdded bool
}

// Upload publishes the video. A non-zero PublishAt schedules it, which
// requires private status. Thumbnail and playlist steps are best effort.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if !c.Authorized() {
		return nil, ErrAuthorizationMissing
	}
	svc, err := c.service(ctx, true)
	if err != nil {
		return nil, err
	}

	privacy := req.Privacy
	if privacy == "" {
		privacy = "private"
	}
	category := req.CategoryID
	if category == "" {
		category = CategoryEducation
	}

	status := &youtube.VideoStatus{PrivacyStatus: privacy}
	var scheduled *time.Time
	if !req.PublishAt.IsZero() {
		at := req.PublishAt.UTC()
		scheduled = &at
		status.PrivacyStatus = "private"
		status.PublishAt = at.Format(time.RFC3339)
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:                req.Title,
			Description:          req.Description,
			Tags:                 req.Tags,
			CategoryId:           category,
			DefaultLanguage:      req.Language,
			DefaultAudioLanguage: req.Language,
		},
		Status: status,
	}

	f, err := os.Open(req.VideoPath)
	if err != nil {
		return nil, fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()

	uploaded, err := svc.Videos.Insert([]string{"snippet", "status"}, video).Media(f).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("youtube upload: %w", err)
	}

	result := &UploadResult{
		VideoID:     uploaded.Id,
		URL:         WatchURL(uploaded.Id),
		Privacy:     status.PrivacyStatus,
		ScheduledAt: scheduled,
	}
	c.log.Info("video uploaded", "external_id", uploaded.Id, "privacy", result.Privacy)

	if req.ThumbnailPath != "" {
		if err := c.setThumbnail(ctx, svc, uploaded.Id, req.ThumbnailPath); err != nil {
			c.log.Warn("thumbnail upload failed", "external_id", uploaded.Id, "error", err)
		} else {
			result.ThumbnailSet = true
		}
	}
	if req.PlaylistID != "" {
		if err := c.addToPlaylist(ctx, svc, uploaded.Id, req.PlaylistID); err != nil {
			c.log.Warn("playlist insert failed", "external_id", uploaded.Id, "playlist_id", req.PlaylistID, "error", err)
		} else {
			result.PlaylistAdded = true
		}
	}
	return result, nil
}

func (c *Client) setThumbnail(ctx context.Context, svc *youtube.Service, videoID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = svc.Thumbnails.Set(videoID).Media(f).Context(ctx).Do()
	return err
}

func (c *Client) addToPlaylist(ctx context.Context, svc *youtube.Service, videoID, playlistID string) error {
	item := &youtube.PlaylistItem{
		Snippet: &youtube.PlaylistItemSnippet{
			PlaylistId: playlistID,
			ResourceId: &youtube.ResourceId{Kind: "youtube#video", VideoId: videoID},
		},
	}
	_, err := svc.PlaylistItems.Insert([]string{"snippet"}, item).Context(ctx).Do()
	return err
}

// WatchURL is the public page of a video
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

// Stats returns views, likes and comments for the given video ids
func (c *Client) Stats(ctx context.Context, ids ...string) (map[string]*schemas.VideoMetrics, error) {
	svc, err := c.service(ctx, false)
	if err != nil {
		return nil, err
	}

	resp, err := svc.Videos.List([]string{"snippet", "statistics"}).Id(ids...).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("youtube stats: %w", err)
	}

	out := make(map[string]*schemas.VideoMetrics, len(resp.Items))
	for _, item := range resp.Items {
		m := &schemas.VideoMetrics{ExternalID: item.Id}
		if item.Snippet != nil {
			m.Topic = item.Snippet.Title
		}
		if item.Statistics != nil {
			m.Views = int64(item.Statistics.ViewCount)
			m.Likes = int64(item.Statistics.LikeCount)
			m.Comments = int64(item.Statistics.CommentCount)
		}
		out[item.Id] = m
	}
	return out, nil
}

// TrendingVideo is one entry of the most popular chart
type TrendingVideo struct {
	ID           string
	Title        string
	ChannelTitle string
	Views        int64
}

// Trending returns the most popular videos in the configured region
func (c *Client) Trending(ctx context.Context, max int64) ([]TrendingVideo, error) {
	svc, err := c.service(ctx, false)
	if err != nil {
		return nil, err
	}
	if max <= 0 {
		max = 10
	}

	resp, err := svc.Videos.List([]string{"snippet", "statistics"}).
		Chart("mostPopular").
		RegionCode(c.cfg.RegionCode).
		MaxResults(max).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("youtube trending: %w", err)
	}

	out := make([]TrendingVideo, 0, len(resp.Items))
	for _, item := range resp.Items {
		v := TrendingVideo{ID: item.Id}
		if item.Snippet != nil {
			v.Title = item.Snippet.Title
			v.ChannelTitle = item.Snippet.ChannelTitle
		}
		if item.Statistics != nil {
			v.Views = int64(item.Statistics.ViewCount)
		}
		out = append(out, v)
	}
	return out, nil
}

// Retention returns the audience watch ratio over the length of the video.
// Timestamps are fractions of the video length formatted with two decimals.
func (c *Client) Retention(ctx context.Context, videoID string, since time.Time) ([]schemas.RetentionPoint, error) {
	opts, err := c.options(ctx, true)
	if err != nil {
		return nil, err
	}
	svc, err := youtubeanalytics.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube analytics service: %w", err)
	}

	resp, err := svc.Reports.Query().
		Ids("channel==MINE").
		StartDate(since.Format("2006-01-02")).
		EndDate(time.Now().Format("2006-01-02")).
		Metrics("audienceWatchRatio").
		Dimensions("elapsedVideoTimeRatio").
		Filters("video==" + videoID).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("youtube retention: %w", err)
	}

	var points []schemas.RetentionPoint
	for _, row := range resp.Rows {
		if len(row) < 2 {
			continue
		}
		ratio, ok1 := row[0].(float64)
		watch, ok2 := row[1].(float64)
		if !ok1 || !ok2 {
			continue
		}
		points = append(points, schemas.RetentionPoint{
			Timestamp: fmt.Sprintf("%.2f", ratio),
			Retention: watch * 100,
		})
	}
	return points, nil
}
