package guard

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const lockPrefix = "finboard:refresh-lock:"

// DefaultLease bounds how long a crashed holder can keep a key locked.
// A refresh that outlives its lease has already been cancelled by the
// scheduler's hard timeout, so losing the lock at that point is safe.
const DefaultLease = 30 * time.Second

// releaseScript deletes the lock only when the caller still owns it, so a
// slow holder cannot free a lock that has since expired and been re-taken.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisGuard is a distributed Guard for deployments where several
// processes share one cache store. Locks are SET NX with a lease and an
// owner token per key.
type RedisGuard struct {
	redis *redis.Client
	lease time.Duration

	mu     sync.Mutex
	tokens map[string]string
}

// NewRedisGuard creates a Redis-backed guard.
// lease <= 0 falls back to DefaultLease.
func NewRedisGuard(redisClient *redis.Client, lease time.Duration) *RedisGuard {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if lease <= 0 {
		lease = DefaultLease
	}
	return &RedisGuard{
		redis:  redisClient,
		lease:  lease,
		tokens: make(map[string]string),
	}
}

// TryAcquire claims the key across all processes sharing the Redis.
func (g *RedisGuard) TryAcquire(ctx context.Context, key string) error {
	token := newToken()

	ok, err := g.redis.SetNX(ctx, lockPrefix+key, token, g.lease).Result()
	if err != nil {
		return fmt.Errorf("acquire refresh lock: %w", err)
	}
	if !ok {
		return ErrHeld
	}

	g.mu.Lock()
	g.tokens[key] = token
	g.mu.Unlock()
	return nil
}

// Release frees the key if this guard still owns it.
func (g *RedisGuard) Release(ctx context.Context, key string) {
	g.mu.Lock()
	token, ok := g.tokens[key]
	delete(g.tokens, key)
	g.mu.Unlock()
	if !ok {
		return
	}

	// Best effort: an expired lock is already gone and a failed DEL is
	// bounded by the lease anyway.
	_ = releaseScript.Run(ctx, g.redis, []string{lockPrefix + key}, token).Err()
}

func newToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
