package schemas

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// StageName identifies a pipeline stage
type StageName string

const (
	StageTrends    StageName = "trends"
	StageResearch  StageName = "research"
	StageScript    StageName = "script"
	StageVoiceover StageName = "voiceover"
	StageSubtitles StageName = "subtitles"
	StageVisuals   StageName = "visuals"
	StageAssembly  StageName = "assembly"
	StageMetadata  StageName = "metadata"
	StageThumbnail StageName = "thumbnail"
	StageUpload    StageName = "upload"
	StageAnalytics StageName = "analytics"
)

// Payload is the closed set of stage outputs. Each variant reports the stage that owns it.
type Payload interface {
	Stage() StageName
}

// Trend is one candidate topic from a trend source
type Trend struct {
	Topic          string  `json:"topic"`
	Source         string  `json:"source"`
	TweetVolume    int64   `json:"tweet_volume,omitempty"`
	ViewCount      int64   `json:"view_count,omitempty"`
	Subscribers    int64   `json:"subscribers,omitempty"`
	PotentialScore float64 `json:"potential_score"`
}

type TrendData struct {
	Trends   []Trend `json:"trends"`
	Selected string  `json:"selected"`
}

type TimelineEvent struct {
	Year  string `json:"year"`
	Event string `json:"event"`
}

type Fact struct {
	Fact         string `json:"fact"`
	Significance string `json:"significance"`
}

type ResearchData struct {
	Topic             string          `json:"topic"`
	KeyPoints         []string        `json:"key_points"`
	Timeline          []TimelineEvent `json:"timeline,omitempty"`
	ImportantFacts    []Fact          `json:"important_facts,omitempty"`
	Misconceptions    []string        `json:"misconceptions,omitempty"`
	InterestingAngles []string        `json:"interesting_angles,omitempty"`
	Statistics        []string        `json:"statistics,omitempty"`
}

type Scene struct {
	Number            int     `json:"number"`
	Title             string  `json:"title"`
	DurationSeconds   float64 `json:"duration_seconds"`
	Narration         string  `json:"narration"`
	VisualType        string  `json:"visual_type"`
	VisualDescription string  `json:"visual_description"`
}

type ScriptData struct {
	Topic  string  `json:"topic"`
	Style  string  `json:"style"`
	Hook   string  `json:"hook"`
	Body   string  `json:"body"`
	CTA    string  `json:"cta"`
	Scenes []Scene `json:"scenes"`
}

// Narration joins hook, body and call to action into the voiceover text
func (s *ScriptData) Narration() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{s.Hook, s.Body, s.CTA} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Summary returns at most n characters of the body
func (s *ScriptData) Summary(n int) string {
	r := []rune(s.Body)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}

type VoiceoverData struct {
	AudioPath       string  `json:"audio_path"`
	Voice           string  `json:"voice"`
	DurationSeconds float64 `json:"duration_seconds"`
}

type SubtitleCue struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type SubtitleData struct {
	Path string        `json:"path"`
	Cues []SubtitleCue `json:"cues"`
}

type SceneVisual struct {
	SceneNumber       int      `json:"scene_number"`
	VisualType        string   `json:"visual_type"`
	VisualDescription string   `json:"visual_description"`
	SearchKeywords    []string `json:"search_keywords"`
	MotionDescription string   `json:"motion_description,omitempty"`
	ColorScheme       string   `json:"color_scheme,omitempty"`
	Style             string   `json:"style,omitempty"`
	DurationSeconds   float64  `json:"duration_seconds"`
	AssetPath         string   `json:"asset_path,omitempty"`
}

type VisualPlan struct {
	Scenes []SceneVisual `json:"scenes"`
}

// VideoData references the assembled video persisted by the storage backend
type VideoData struct {
	VideoID         string  `json:"video_id"`
	Filename        string  `json:"filename"`
	URL             string  `json:"url"`
	DurationSeconds float64 `json:"duration_seconds"`
	FileSize        int64   `json:"file_size"`
	Placeholder     bool    `json:"placeholder"`
	SubtitlesPath   string  `json:"subtitles_path,omitempty"`
	ThumbnailPath   string  `json:"thumbnail_path,omitempty"`
}

type MetadataData struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Tags          []string `json:"tags"`
	Hashtags      []string `json:"hashtags"`
	Keywords      []string `json:"keywords"`
	ThumbnailText string   `json:"thumbnail_text"`
	Category      string   `json:"category"`
	Language      string   `json:"language"`
	License       string   `json:"license"`
}

type ThumbnailData struct {
	Path string `json:"path"`
	Text string `json:"text"`
}

// UploadData is the publish result stored on the upload step
type UploadData struct {
	Published   bool       `json:"published"`
	ExternalID  string     `json:"external_id,omitempty"`
	URL         string     `json:"url,omitempty"`
	Privacy     string     `json:"privacy"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	PlaylistID  string     `json:"playlist_id,omitempty"`

	// Unauthorized is set when publishing was skipped for missing credentials
	Unauthorized bool `json:"unauthorized,omitempty"`
}

type AnalyticsData struct {
	Metrics   *VideoMetrics     `json:"metrics,omitempty"`
	Insights  []string          `json:"insights"`
	TopTopics []string          `json:"top_topics,omitempty"`
	Retention RetentionAnalysis `json:"retention"`
}

func (*TrendData) Stage() StageName     { return StageTrends }
func (*ResearchData) Stage() StageName  { return StageResearch }
func (*ScriptData) Stage() StageName    { return StageScript }
func (*VoiceoverData) Stage() StageName { return StageVoiceover }
func (*SubtitleData) Stage() StageName  { return StageSubtitles }
func (*VisualPlan) Stage() StageName    { return StageVisuals }
func (*VideoData) Stage() StageName     { return StageAssembly }
func (*MetadataData) Stage() StageName  { return StageMetadata }
func (*ThumbnailData) Stage() StageName { return StageThumbnail }
func (*UploadData) Stage() StageName    { return StageUpload }
func (*AnalyticsData) Stage() StageName { return StageAnalytics }

// NewPayload returns an empty variant for the stage
func NewPayload(stage StageName) (Payload, error) {
	switch stage {
	case StageTrends:
		return &TrendData{}, nil
	case StageResearch:
		return &ResearchData{}, nil
	case StageScript:
		return &ScriptData{}, nil
	case StageVoiceover:
		return &VoiceoverData{}, nil
	case StageSubtitles:
		return &SubtitleData{}, nil
	case StageVisuals:
		return &VisualPlan{}, nil
	case StageAssembly:
		return &VideoData{}, nil
	case StageMetadata:
		return &MetadataData{}, nil
	case StageThumbnail:
		return &ThumbnailData{}, nil
	case StageUpload:
		return &UploadData{}, nil
	case StageAnalytics:
		return &AnalyticsData{}, nil
	}
	return nil, fmt.Errorf("unknown stage %q", stage)
}

// DecodePayload decodes raw JSON into the variant owned by stage
func DecodePayload(stage StageName, raw []byte) (Payload, error) {
	p, err := NewPayload(stage)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", stage, err)
	}
	return p, nil
}
