package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestMemoryStore_PutAndGet(t *testing.T) {
	s := NewMemory(time.Minute)
	ctx := context.Background()

	value := json.RawMessage(`{"score":42}`)
	if err := s.Put(ctx, "market-cn:fear-greed", value, time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	entry, err := s.Get(ctx, "market-cn:fear-greed")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(entry.Value) != string(value) {
		t.Errorf("Value mismatch: got %s, want %s", entry.Value, value)
	}
	if entry.Key != "market-cn:fear-greed" {
		t.Errorf("Key mismatch: got %s", entry.Key)
	}
	if entry.TTL != time.Minute {
		t.Errorf("TTL mismatch: got %v", entry.TTL)
	}
}

func TestMemoryStore_Get_NotFound(t *testing.T) {
	s := NewMemory(time.Minute)

	_, err := s.Get(context.Background(), "never-written")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_Put_InvalidTTL(t *testing.T) {
	s := NewMemory(time.Minute)

	if err := s.Put(context.Background(), "k", json.RawMessage(`1`), 0); err == nil {
		t.Error("Put with zero TTL should return error")
	}
}

func TestMemoryStore_ExpiredEntryStillServed(t *testing.T) {
	clk := clock.NewMock()
	s := NewMemoryWithClock(5*time.Minute, clk)
	ctx := context.Background()

	if err := s.Put(ctx, "k1", json.RawMessage(`{"v":1}`), time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Past the TTL but within the stale retention window.
	clk.Add(90 * time.Second)

	entry, err := s.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if entry.Fresh(clk.Now()) {
		t.Error("Entry should be expired")
	}
	if string(entry.Value) != `{"v":1}` {
		t.Errorf("Stale entry value mismatch: got %s", entry.Value)
	}
}

func TestMemoryStore_RetentionWindowEviction(t *testing.T) {
	clk := clock.NewMock()
	s := NewMemoryWithClock(5*time.Minute, clk)
	ctx := context.Background()

	if err := s.Put(ctx, "k1", json.RawMessage(`{"v":1}`), time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Past TTL + staleFor, the entry is gone.
	clk.Add(time.Minute + 5*time.Minute + time.Second)

	_, err := s.Get(ctx, "k1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after retention window, got %v", err)
	}
}

// gateClock blocks one Now() call between entered and release, letting
// a test freeze a reader at its freshness decision.
type gateClock struct {
	clock.Clock
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func newGateClock(inner clock.Clock) *gateClock {
	return &gateClock{
		Clock:   inner,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (c *gateClock) Now() time.Time {
	if c.armed.CompareAndSwap(true, false) {
		close(c.entered)
		<-c.release
	}
	return c.Clock.Now()
}

func TestMemoryStore_LazyEvictionKeepsConcurrentPut(t *testing.T) {
	mock := clock.NewMock()
	clk := newGateClock(mock)
	s := NewMemoryWithClock(5*time.Minute, clk)
	ctx := context.Background()

	if err := s.Put(ctx, "k1", json.RawMessage(`{"v":"old"}`), time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Push the entry past its retention window, then freeze a reader
	// between its map read and its eviction.
	mock.Add(time.Minute + 5*time.Minute + time.Second)
	clk.armed.Store(true)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Get(ctx, "k1")
	}()
	<-clk.entered

	// A refresh lands while the reader is deciding to evict.
	if err := s.Put(ctx, "k1", json.RawMessage(`{"v":"new"}`), time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	close(clk.release)
	<-done

	// The stale reader must only evict the entry it saw, never the
	// refreshed one.
	entry, err := s.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Refreshed entry was evicted by the stale reader: %v", err)
	}
	if string(entry.Value) != `{"v":"new"}` {
		t.Errorf("Value = %s, want the refreshed value", entry.Value)
	}
}

func TestMemoryStore_PutReplaces(t *testing.T) {
	s := NewMemory(time.Minute)
	ctx := context.Background()

	if err := s.Put(ctx, "k1", json.RawMessage(`{"v":1}`), time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Put(ctx, "k1", json.RawMessage(`{"v":2}`), time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	entry, err := s.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(entry.Value) != `{"v":2}` {
		t.Errorf("Expected replaced value, got %s", entry.Value)
	}
}

func TestMemoryStore_ClearAndClearAll(t *testing.T) {
	s := NewMemory(time.Minute)
	ctx := context.Background()

	for _, key := range []string{"k1", "k2", "k3"} {
		if err := s.Put(ctx, key, json.RawMessage(`1`), time.Minute); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	if err := s.Clear(ctx, "k1"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, err := s.Get(ctx, "k1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after Clear, got %v", err)
	}
	if _, err := s.Get(ctx, "k2"); err != nil {
		t.Errorf("Clear should not touch other keys: %v", err)
	}

	// Clearing a missing key is a no-op.
	if err := s.Clear(ctx, "k1"); err != nil {
		t.Errorf("Clear of missing key should not fail: %v", err)
	}

	if err := s.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll failed: %v", err)
	}
	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("Expected no keys after ClearAll, got %v", keys)
	}
}

func TestMemoryStore_Keys(t *testing.T) {
	s := NewMemory(time.Minute)
	ctx := context.Background()

	want := []string{"macro:lpr", "market-cn:fear-greed", "metals:gold"}
	for _, key := range want {
		if err := s.Put(ctx, key, json.RawMessage(`1`), time.Minute); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != len(want) {
		t.Fatalf("Expected %d keys, got %d", len(want), len(keys))
	}
	for i, key := range want {
		if keys[i] != key {
			t.Errorf("Keys[%d] = %s, want %s", i, keys[i], key)
		}
	}
}

func TestMemoryStore_ContextCancelled(t *testing.T) {
	s := NewMemory(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Get(ctx, "k1"); err == nil {
		t.Error("Get with cancelled context should fail")
	}
	if err := s.Put(ctx, "k1", json.RawMessage(`1`), time.Minute); err == nil {
		t.Error("Put with cancelled context should fail")
	}
}
