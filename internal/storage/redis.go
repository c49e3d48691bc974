package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "fleetopt"

// RedisRunStore keeps runs as JSON documents in Redis, indexed by a sorted set
// scored on creation time.
type RedisRunStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	limit  int
}

// RedisOptions configures a RedisRunStore.
type RedisOptions struct {
	Prefix string
	TTL    time.Duration
	Limit  int
}

// NewRedisRunStore wraps an existing client.
func NewRedisRunStore(rdb *redis.Client, opts RedisOptions) *RedisRunStore {
	if opts.Prefix == "" {
		opts.Prefix = defaultRedisPrefix
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultHistoryLimit
	}
	return &RedisRunStore{rdb: rdb, prefix: opts.Prefix, ttl: opts.TTL, limit: opts.Limit}
}

// OpenRedisRunStore connects to the Redis instance at url and checks it is reachable.
func OpenRedisRunStore(ctx context.Context, url string, opts RedisOptions) (*RedisRunStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisRunStore(rdb, opts), nil
}

// SaveRun stores run, then evicts the oldest runs beyond the configured
// limit together with their documents.
func (s *RedisRunStore) SaveRun(ctx context.Context, run Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.runKey(run.ID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(run.CreatedAt.UnixNano()), Member: run.ID})
	stale := pipe.ZRange(ctx, s.indexKey(), 0, int64(-s.limit-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}

	if err := s.evict(ctx, stale.Val()); err != nil {
		return fmt.Errorf("trim runs after %s: %w", run.ID, err)
	}
	return nil
}

// evict drops ids from the index and deletes their documents.
func (s *RedisRunStore) evict(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	keys := make([]string, len(ids))
	members := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = s.runKey(id)
		members[i] = id
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, s.indexKey(), members...)
	_, err := pipe.Exec(ctx)
	return err
}

// GetRun loads a run by ID.
func (s *RedisRunStore) GetRun(ctx context.Context, id string) (Run, error) {
	data, err := s.rdb.Get(ctx, s.runKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("load run %s: %w", id, err)
	}

	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return Run{}, fmt.Errorf("decode run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, most recent first. Runs whose documents
// expired are skipped.
func (s *RedisRunStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > s.limit {
		limit = s.limit
	}

	ids, err := s.rdb.ZRevRange(ctx, s.indexKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	if len(ids) == 0 {
		return []Run{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.runKey(id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load runs: %w", err)
	}

	out := make([]Run, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var run Run
		if err := json.Unmarshal([]byte(raw), &run); err != nil {
			return nil, fmt.Errorf("decode run %s: %w", ids[i], err)
		}
		out = append(out, run)
	}
	return out, nil
}

// Close closes the Redis client.
func (s *RedisRunStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisRunStore) runKey(id string) string {
	return s.prefix + ":run:" + id
}

func (s *RedisRunStore) indexKey() string {
	return s.prefix + ":runs"
}
