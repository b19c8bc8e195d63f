package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces finboard entries in Redis. The version segment is
// bumped whenever the entry encoding changes, which invalidates old data
// without an explicit migration.
const keyPrefix = "finboard:cache:v1:"

// RedisStore is a Store backed by Redis. Entries are JSON-marshalled and
// written with a physical TTL of entry TTL + StaleFor, so an expired entry
// stays servable as stale until Redis evicts it.
type RedisStore struct {
	redis    *redis.Client
	staleFor time.Duration
	clock    clock.Clock
}

// NewRedis creates a Redis-backed store on the wall clock.
// staleFor <= 0 falls back to DefaultStaleFor.
func NewRedis(redisClient *redis.Client, staleFor time.Duration) *RedisStore {
	return NewRedisWithClock(redisClient, staleFor, clock.New())
}

// NewRedisWithClock creates a Redis-backed store on an injected clock.
// The clock stamps and classifies entries; physical expiry stays with
// Redis's own TTL handling.
func NewRedisWithClock(redisClient *redis.Client, staleFor time.Duration, clk clock.Clock) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if staleFor <= 0 {
		staleFor = DefaultStaleFor
	}
	return &RedisStore{
		redis:    redisClient,
		staleFor: staleFor,
		clock:    clk,
	}
}

// Get retrieves the entry for key.
func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := s.redis.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.WithLabelValues("redis").Inc()
			return nil, ErrNotFound
		}
		CacheErrors.WithLabelValues("redis", "get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("redis", "get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	freshness := "stale"
	if entry.Fresh(s.clock.Now()) {
		freshness = "fresh"
	}
	CacheHits.WithLabelValues("redis", freshness).Inc()

	return &entry, nil
}

// Put atomically replaces the entry for key.
func (s *RedisStore) Put(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive (got %v)", ttl)
	}

	entry := Entry{
		Key:      key,
		Value:    value,
		CachedAt: s.clock.Now(),
		TTL:      ttl,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("redis", "put").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	// Redis keeps the entry past its logical TTL so readers can serve it
	// stale while the scheduler retries.
	if err := s.redis.Set(ctx, keyPrefix+key, data, ttl+s.staleFor).Err(); err != nil {
		CacheErrors.WithLabelValues("redis", "put").Inc()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	CacheWrites.WithLabelValues("redis").Inc()
	return nil
}

// Clear removes the entry for key.
func (s *RedisStore) Clear(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, keyPrefix+key).Err(); err != nil {
		CacheErrors.WithLabelValues("redis", "clear").Inc()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// ClearAll removes every finboard entry. Only keys under the finboard
// prefix are touched, the Redis database may be shared.
func (s *RedisStore) ClearAll(ctx context.Context) error {
	iter := s.redis.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		CacheErrors.WithLabelValues("redis", "clear").Inc()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		CacheErrors.WithLabelValues("redis", "clear").Inc()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Keys lists the logical keys that currently hold an entry.
func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	iter := s.redis.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), keyPrefix))
	}
	if err := iter.Err(); err != nil {
		CacheErrors.WithLabelValues("redis", "keys").Inc()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return keys, nil
}
