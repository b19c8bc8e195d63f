package guard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestKeyGuard_AcquireRelease(t *testing.T) {
	g := NewKeyGuard()
	ctx := context.Background()

	if err := g.TryAcquire(ctx, "k1"); err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}

	// Second acquire for the same key is rejected.
	if err := g.TryAcquire(ctx, "k1"); !errors.Is(err, ErrHeld) {
		t.Errorf("Expected ErrHeld, got %v", err)
	}

	// Unrelated key is unaffected.
	if err := g.TryAcquire(ctx, "k2"); err != nil {
		t.Errorf("TryAcquire on unrelated key failed: %v", err)
	}

	g.Release(ctx, "k1")
	if err := g.TryAcquire(ctx, "k1"); err != nil {
		t.Errorf("TryAcquire after Release failed: %v", err)
	}
}

func TestKeyGuard_ReleaseUnheldIsNoop(t *testing.T) {
	g := NewKeyGuard()
	g.Release(context.Background(), "never-acquired")
}

func TestKeyGuard_ContextCancelled(t *testing.T) {
	g := NewKeyGuard()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := g.TryAcquire(ctx, "k1"); err == nil {
		t.Error("TryAcquire with cancelled context should fail")
	}
}

func TestKeyGuard_ConcurrentAcquirers(t *testing.T) {
	g := NewKeyGuard()
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.TryAcquire(ctx, "k1"); err == nil {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if acquired != 1 {
		t.Errorf("Expected exactly 1 successful acquire, got %d", acquired)
	}
}

// setupTestRedis connects to a local Redis or skips the test.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return client
}

func TestRedisGuard_Exclusion(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	g1 := NewRedisGuard(client, time.Minute)
	g2 := NewRedisGuard(client, time.Minute)

	if err := g1.TryAcquire(ctx, "k1"); err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}

	// A second process (second guard) is locked out.
	if err := g2.TryAcquire(ctx, "k1"); !errors.Is(err, ErrHeld) {
		t.Errorf("Expected ErrHeld from second guard, got %v", err)
	}

	g1.Release(ctx, "k1")
	if err := g2.TryAcquire(ctx, "k1"); err != nil {
		t.Errorf("TryAcquire after Release failed: %v", err)
	}
	g2.Release(ctx, "k1")
}

func TestRedisGuard_ReleaseDoesNotStealNewOwner(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	// g1 holds an already expired lease; g2 takes the key over.
	g1 := NewRedisGuard(client, 50*time.Millisecond)
	g2 := NewRedisGuard(client, time.Minute)

	if err := g1.TryAcquire(ctx, "k1"); err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := g2.TryAcquire(ctx, "k1"); err != nil {
		t.Fatalf("TryAcquire after lease expiry failed: %v", err)
	}

	// The late release by the old holder must not free g2's lock.
	g1.Release(ctx, "k1")
	if err := g1.TryAcquire(ctx, "k1"); !errors.Is(err, ErrHeld) {
		t.Errorf("Expected ErrHeld, stale release stole the lock: %v", err)
	}
	g2.Release(ctx, "k1")
}
