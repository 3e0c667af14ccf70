package stages

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/chicogong/ytagents/pkg/clients/reddit"
	"github.com/chicogong/ytagents/pkg/clients/youtube"
	"github.com/chicogong/ytagents/pkg/logger"
	"github.com/chicogong/ytagents/pkg/schemas"
)

// TrendSource returns candidate topics
type TrendSource interface {
	Name() string
	Trends(ctx context.Context) ([]schemas.Trend, error)
}

// YouTubeTrends reads the most popular chart
type YouTubeTrends struct {
	Client *youtube.Client
	Max    int64
}

func (YouTubeTrends) Name() string { return "youtube" }

func (y YouTubeTrends) Trends(ctx context.Context) ([]schemas.Trend, error) {
	if !y.Client.CanRead() {
		return nil, youtube.ErrAPIKeyMissing
	}
	videos, err := y.Client.Trending(ctx, y.Max)
	if err != nil {
		return nil, err
	}
	out := make([]schemas.Trend, 0, len(videos))
	for _, v := range videos {
		out = append(out, schemas.Trend{Topic: v.Title, Source: "youtube", ViewCount: v.Views})
	}
	return out, nil
}

// RedditTrends reads hot posts of a fixed subreddit list
type RedditTrends struct {
	Client     *reddit.Client
	Subreddits []string
}

func (RedditTrends) Name() string { return "reddit" }

func (r RedditTrends) Trends(ctx context.Context) ([]schemas.Trend, error) {
	var out []schemas.Trend
	var lastErr error
	for _, sub := range r.Subreddits {
		posts, err := r.Client.HotPosts(ctx, sub)
		if err != nil {
			lastErr = err
			continue
		}
		for _, p := range posts {
			out = append(out, schemas.Trend{Topic: p.Title, Source: "reddit", Subscribers: int64(p.Subscribers)})
		}
	}
	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

// Score returns the potential score of a trend before feedback bias
func Score(t schemas.Trend) float64 {
	score := 5.0
	score += tier(t.TweetVolume, 100_000, 50_000)
	score += tier(t.ViewCount, 1_000_000, 100_000)
	score += tier(t.Subscribers, 1_000_000, 100_000)
	return min(score, 10)
}

func tier(v, high, low int64) float64 {
	switch {
	case v > high:
		return 2
	case v > low:
		return 1
	}
	return 0
}

// Rank dedupes trends by lower-cased topic, scores them and sorts them
// descending. Trends sharing a word with a top topic get one extra point.
func Rank(trends []schemas.Trend, topTopics []string) []schemas.Trend {
	boost := keywords(topTopics)
	seen := make(map[string]bool, len(trends))
	ranked := make([]schemas.Trend, 0, len(trends))

	for _, t := range trends {
		key := strings.ToLower(strings.TrimSpace(t.Topic))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		t.PotentialScore = Score(t)
		for w := range keywords([]string{t.Topic}) {
			if boost[w] {
				t.PotentialScore = min(t.PotentialScore+1, 10)
				break
			}
		}
		ranked = append(ranked, t)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].PotentialScore > ranked[j].PotentialScore
	})
	return ranked
}

// keywords returns the lower-cased words longer than three letters
func keywords(topics []string) map[string]bool {
	out := map[string]bool{}
	for _, t := range topics {
		for _, w := range strings.FieldsFunc(strings.ToLower(t), func(r rune) bool {
			return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
		}) {
			if len(w) > 3 {
				out[w] = true
			}
		}
	}
	return out
}

// TrendStage selects a topic when the caller gave none
type TrendStage struct {
	Sources []TrendSource
	Limit   int
	Log     *logger.Logger
}

func (s *TrendStage) Describe() Descriptor {
	return Descriptor{
		Name:        schemas.StageTrends,
		Description: "rank trending topics and select the best",
		Budget:      BudgetHTTP,
	}
}

func (s *TrendStage) Run(ctx context.Context, st *State) schemas.StageResult {
	var all []schemas.Trend
	var errs []string
	for _, src := range s.Sources {
		trends, err := src.Trends(ctx)
		if err != nil {
			s.Log.Warn("trend source failed", "source", src.Name(), "error", err)
			errs = append(errs, fmt.Sprintf("%s: %v", src.Name(), err))
			continue
		}
		all = append(all, trends...)
	}

	ranked := Rank(all, st.TopTopics)
	if len(ranked) == 0 {
		reason := "no trends found"
		if len(errs) > 0 {
			reason += ": " + strings.Join(errs, "; ")
		}
		return schemas.Failed(schemas.StageTrends, reason)
	}

	limit := s.Limit
	if limit <= 0 {
		limit = 5
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	data := &schemas.TrendData{Trends: ranked, Selected: ranked[0].Topic}
	s.Log.Info("topic selected", "topic", data.Selected, "score", ranked[0].PotentialScore)
	return schemas.Ok(data)
}
