package stages

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/chicogong/ytagents/pkg/logger"
	"github.com/chicogong/ytagents/pkg/schemas"
)

const (
	maxTrackedVideos = 50
	topTopicsCount   = 5
)

// VideoLister lists stored videos
type VideoLister interface {
	GetAllVideos(ctx context.Context) ([]*schemas.VideoRecord, error)
}

// AnalyticsStage measures published videos and derives insights for the next
// trend selection
type AnalyticsStage struct {
	Stats  StatsSource
	Videos VideoLister
	Log    *logger.Logger
}

func (s *AnalyticsStage) Describe() Descriptor {
	return Descriptor{
		Name:        schemas.StageAnalytics,
		Description: "collect video statistics and retention insights",
		DependsOn:   []schemas.StageName{schemas.StageUpload},
		Budget:      BudgetHTTP,
	}
}

func (s *AnalyticsStage) Run(ctx context.Context, st *State) schemas.StageResult {
	topics := map[string]string{}
	var ids []string
	var current string

	if up := st.Upload(); up != nil && up.ExternalID != "" {
		current = up.ExternalID
		ids = append(ids, current)
		topics[current] = st.Topic
	}
	if s.Videos != nil {
		recs, err := s.Videos.GetAllVideos(ctx)
		if err != nil {
			s.Log.Warn("video history unavailable", "error", err)
		}
		for _, r := range recs {
			if _, seen := topics[r.YouTubeID]; seen || r.YouTubeID == "" || len(ids) >= maxTrackedVideos {
				continue
			}
			ids = append(ids, r.YouTubeID)
			topics[r.YouTubeID] = r.Topic
		}
	}

	if len(ids) == 0 || s.Stats == nil {
		return schemas.Fallback(&schemas.AnalyticsData{}, "no published videos to measure")
	}

	stats, err := s.Stats.Stats(ctx, ids...)
	if err != nil {
		s.Log.Warn("analytics fallback", "workflow_id", st.WorkflowID, "error", err)
		return schemas.Fallback(&schemas.AnalyticsData{}, err.Error())
	}

	metrics := make([]*schemas.VideoMetrics, 0, len(stats))
	for _, id := range ids {
		if m, ok := stats[id]; ok {
			if t := topics[id]; t != "" {
				m.Topic = t
			}
			metrics = append(metrics, m)
		}
	}

	data := &schemas.AnalyticsData{
		Insights:  Insights(metrics),
		TopTopics: TopTopics(metrics, topTopicsCount),
	}
	if current != "" {
		data.Metrics = stats[current]
		points, err := s.Stats.Retention(ctx, current, time.Now().AddDate(0, 0, -28))
		if err != nil {
			s.Log.Debug("retention unavailable", "external_id", current, "error", err)
		} else if data.Metrics != nil {
			data.Metrics.Retention = points
		}
		data.Retention = AnalyzeRetention(points)
	}
	return schemas.Ok(data)
}

// TopTopics returns the topics of the n most viewed videos
func TopTopics(videos []*schemas.VideoMetrics, n int) []string {
	sorted := append([]*schemas.VideoMetrics(nil), videos...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Views > sorted[j].Views })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	out := make([]string, 0, len(sorted))
	for _, v := range sorted {
		out = append(out, v.Topic)
	}
	return out
}

// Insights summarizes performance for trend selection
func Insights(videos []*schemas.VideoMetrics) []string {
	if len(videos) == 0 {
		return nil
	}
	insights := []string{"Top performing topics: " + strings.Join(TopTopics(videos, topTopicsCount), ", ")}

	var ctr, watch float64
	for _, v := range videos {
		ctr += v.CTR
		watch += v.WatchTimeMinutes
	}
	n := float64(len(videos))
	switch avg := ctr / n; {
	case avg > 5:
		insights = append(insights, "CTR is excellent - thumbnails/titles are working well")
	case avg < 2:
		insights = append(insights, "CTR is low - improve titles and thumbnails")
	}
	insights = append(insights, fmt.Sprintf("Average watch time: %.1f minutes", watch/n))
	return insights
}

// AnalyzeRetention finds drop points and strong segments in a retention curve
func AnalyzeRetention(points []schemas.RetentionPoint) schemas.RetentionAnalysis {
	analysis := schemas.RetentionAnalysis{
		DropPoints:      []schemas.RetentionDrop{},
		BestSegments:    []schemas.RetentionPoint{},
		Recommendations: []string{},
	}
	if len(points) == 0 {
		return analysis
	}

	var sum float64
	for i, p := range points {
		sum += p.Retention
		if i > 0 {
			if drop := points[i-1].Retention - p.Retention; drop > 10 {
				analysis.DropPoints = append(analysis.DropPoints, schemas.RetentionDrop{Timestamp: p.Timestamp, DropPercentage: drop})
			}
		}
		if p.Retention > 70 {
			analysis.BestSegments = append(analysis.BestSegments, p)
		}
	}
	analysis.AverageRetention = sum / float64(len(points))

	if analysis.AverageRetention < 50 {
		analysis.Recommendations = append(analysis.Recommendations, "Hook viewers earlier - retention drops quickly")
	}
	if len(analysis.DropPoints) > 3 {
		analysis.Recommendations = append(analysis.Recommendations, "Tighten pacing - too many drop points")
	}
	if len(analysis.BestSegments) == 0 {
		analysis.Recommendations = append(analysis.Recommendations, "Review content - no strong retention segments")
	}
	return analysis
}
