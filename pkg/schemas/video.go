package schemas

import "time"

// VideoStatusCompleted marks a record whose bytes are durably stored
const VideoStatusCompleted = "completed"

// VideoRecord is the metadata entry of one persisted video
type VideoRecord struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Filepath  string    `json:"filepath"`
	Topic     string    `json:"topic"`
	Duration  float64   `json:"duration"`
	CreatedAt time.Time `json:"created_at"`
	Status    string    `json:"status"`
	FileSize  int64     `json:"file_size"`
	Playable  bool      `json:"playable"`
	URL       string    `json:"url"`
	YouTubeID string    `json:"youtube_id,omitempty"`
}

// VideoUpdate is a partial metadata update; nil fields are left unchanged
type VideoUpdate struct {
	Topic     *string  `json:"topic,omitempty"`
	Duration  *float64 `json:"duration,omitempty"`
	Status    *string  `json:"status,omitempty"`
	Playable  *bool    `json:"playable,omitempty"`
	YouTubeID *string  `json:"youtube_id,omitempty"`
}

// Apply copies the set fields onto r
func (u VideoUpdate) Apply(r *VideoRecord) {
	if u.Topic != nil {
		r.Topic = *u.Topic
	}
	if u.Duration != nil && *u.Duration >= 0 {
		r.Duration = *u.Duration
	}
	if u.Status != nil {
		r.Status = *u.Status
	}
	if u.Playable != nil {
		r.Playable = *u.Playable
	}
	if u.YouTubeID != nil {
		r.YouTubeID = *u.YouTubeID
	}
}

// Columns returns the set fields keyed by column name
func (u VideoUpdate) Columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if u.Topic != nil {
		cols["topic"] = *u.Topic
	}
	if u.Duration != nil && *u.Duration >= 0 {
		cols["duration"] = *u.Duration
	}
	if u.Status != nil {
		cols["status"] = *u.Status
	}
	if u.Playable != nil {
		cols["playable"] = *u.Playable
	}
	if u.YouTubeID != nil {
		cols["youtube_id"] = *u.YouTubeID
	}
	return cols
}

// IsEmpty reports whether no field is set
func (u VideoUpdate) IsEmpty() bool { return len(u.Columns()) == 0 }

// VideoMetrics are the performance numbers of a published video
type VideoMetrics struct {
	ExternalID       string           `json:"external_id"`
	Topic            string           `json:"topic"`
	Views            int64            `json:"views"`
	Likes            int64            `json:"likes"`
	Comments         int64            `json:"comments"`
	CTR              float64          `json:"ctr"`
	WatchTimeMinutes float64          `json:"watch_time_minutes"`
	Retention        []RetentionPoint `json:"retention,omitempty"`
}

type RetentionPoint struct {
	Timestamp string  `json:"timestamp"`
	Retention float64 `json:"retention"`
}

type RetentionAnalysis struct {
	AverageRetention float64          `json:"avg_retention"`
	DropPoints       []RetentionDrop  `json:"drop_points"`
	BestSegments     []RetentionPoint `json:"best_segments"`
	Recommendations  []string         `json:"recommendations"`
}

type RetentionDrop struct {
	Timestamp      string  `json:"timestamp"`
	DropPercentage float64 `json:"drop_percentage"`
}
