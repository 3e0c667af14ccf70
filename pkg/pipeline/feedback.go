package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/chicogong/ytagents/pkg/schemas"
)

// Feedback is the latest analytics summary handed to trend detection
type Feedback struct {
	Insights   []string  `json:"insights"`
	TopTopics  []string  `json:"top_topics"`
	RecordedAt time.Time `json:"recorded_at"`
}

// FeedbackStore keeps analytics output between runs
type FeedbackStore interface {
	Record(ctx context.Context, data *schemas.AnalyticsData) error

	// Latest returns nil when nothing was recorded
	Latest(ctx context.Context) (*Feedback, error)
}

type MemoryFeedback struct {
	mu     sync.RWMutex
	latest *Feedback
}

func NewMemoryFeedback() *MemoryFeedback { return &MemoryFeedback{} }

func (m *MemoryFeedback) Record(_ context.Context, data *schemas.AnalyticsData) error {
	if data == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest = &Feedback{Insights: data.Insights, TopTopics: data.TopTopics, RecordedAt: time.Now().UTC()}
	return nil
}

func (m *MemoryFeedback) Latest(context.Context) (*Feedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.latest == nil {
		return nil, nil
	}
	cp := *m.latest
	return &cp, nil
}

const redisFeedbackKey = "feedback:latest"

// RedisFeedback shares feedback between processes under one key
type RedisFeedback struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisFeedback keeps feedback for ttl; zero keeps it forever
func NewRedisFeedback(client *redis.Client, ttl time.Duration) *RedisFeedback {
	return &RedisFeedback{client: client, ttl: ttl}
}

func (r *RedisFeedback) Record(ctx context.Context, data *schemas.AnalyticsData) error {
	if data == nil {
		return nil
	}
	b, err := json.Marshal(Feedback{Insights: data.Insights, TopTopics: data.TopTopics, RecordedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisFeedbackKey, b, r.ttl).Err()
}

func (r *RedisFeedback) Latest(ctx context.Context) (*Feedback, error) {
	b, err := r.client.Get(ctx, redisFeedbackKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var fb Feedback
	if err := json.Unmarshal(b, &fb); err != nil {
		return nil, err
	}
	return &fb, nil
}
