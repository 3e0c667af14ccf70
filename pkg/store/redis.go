package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/chicogong/ytagents/pkg/schemas"
)

const (
	redisIndexKey    = "workflows"
	redisMaxAttempts = 5
)

// RedisStore keeps workflows in Redis.
// Keys: workflow:<id> => JSON(Workflow); sorted set "workflows" scored by created_at.
type RedisStore struct {
	client *redis.Client
}

// NewRedisClient builds a client and validates the connection
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) key(id string) string { return "workflow:" + id }

func (r *RedisStore) CreateWorkflow(ctx context.Context, w *schemas.Workflow) error {
	if w.ID == "" {
		return ErrInvalidWorkflowID
	}
	b, err := json.Marshal(w)
	if err != nil {
		return err
	}

	// the record and its index entry are written in one MULTI, so a failure
	// never leaves a workflow that listing cannot see
	key := r.key(w.ID)
	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrWorkflowExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, 0)
			pipe.ZAdd(ctx, redisIndexKey, redis.Z{Score: float64(w.CreatedAt.UnixNano()), Member: w.ID})
			return nil
		})
		return err
	}

	err = r.client.Watch(ctx, txf, key)
	if errors.Is(err, redis.TxFailedErr) {
		// the key appeared between WATCH and EXEC
		return ErrWorkflowExists
	}
	return err
}

func (r *RedisStore) GetWorkflow(ctx context.Context, id string) (*schemas.Workflow, error) {
	if id == "" {
		return nil, ErrInvalidWorkflowID
	}
	return r.load(ctx, r.client, id)
}

type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisStore) load(ctx context.Context, c redisGetter, id string) (*schemas.Workflow, error) {
	val, err := c.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrWorkflowNotFound
	}
	if err != nil {
		return nil, err
	}
	var w schemas.Workflow
	if err := json.Unmarshal(val, &w); err != nil {
		return nil, fmt.Errorf("decode workflow %s: %w", id, err)
	}
	return &w, nil
}

// Mutate uses WATCH/MULTI so a concurrent writer forces a retry instead of a lost update
func (r *RedisStore) Mutate(ctx context.Context, id string, fn MutateFunc) (*schemas.Workflow, error) {
	if id == "" {
		return nil, ErrInvalidWorkflowID
	}

	key := r.key(id)
	var result *schemas.Workflow

	txf := func(tx *redis.Tx) error {
		w, err := r.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(w); err != nil {
			return err
		}
		b, err := json.Marshal(w)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, 0)
			return nil
		})
		if err == nil {
			result = w
		}
		return err
	}

	for attempt := 0; attempt < redisMaxAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, fmt.Errorf("workflow %s: too much write contention", id)
}

func (r *RedisStore) DeleteWorkflow(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidWorkflowID
	}
	pipe := r.client.TxPipeline()
	del := pipe.Del(ctx, r.key(id))
	pipe.ZRem(ctx, redisIndexKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if del.Val() == 0 {
		return ErrWorkflowNotFound
	}
	return nil
}

func (r *RedisStore) ListWorkflows(ctx context.Context, filter *ListFilter) ([]*schemas.Workflow, error) {
	ids, err := r.client.ZRevRange(ctx, redisIndexKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	all := make([]*schemas.Workflow, 0, len(ids))
	for _, id := range ids {
		w, err := r.load(ctx, r.client, id)
		if errors.Is(err, ErrWorkflowNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		all = append(all, w)
	}
	return applyFilter(all, filter), nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
