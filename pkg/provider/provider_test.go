package provider

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

func TestFunc_Fetch(t *testing.T) {
	p := Func(func(ctx context.Context) (json.RawMessage, error) {
		return json.RawMessage(`{"v":1}`), nil
	})

	value, err := p.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(value) != `{"v":1}` {
		t.Errorf("Value mismatch: got %s", value)
	}
}

func TestStatic(t *testing.T) {
	p := Static(json.RawMessage(`{"fixed":true}`))

	value, err := p.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(value) != `{"fixed":true}` {
		t.Errorf("Value mismatch: got %s", value)
	}
}

func TestWithBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	failing := Func(func(ctx context.Context) (json.RawMessage, error) {
		calls++
		return nil, errors.New("upstream down")
	})

	p := WithBreaker(failing, "test-feed", BreakerConfig{
		ConsecutiveFailures: 3,
		OpenFor:             time.Minute,
	}, zerolog.Nop())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := p.Fetch(ctx); err == nil {
			t.Fatal("Expected fetch to fail")
		}
	}

	// Breaker is open now: the upstream is no longer touched.
	_, err := p.Fetch(ctx)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("Expected ErrOpenState, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 upstream calls, got %d", calls)
	}
}

func TestWithBreaker_PassesThroughSuccess(t *testing.T) {
	p := WithBreaker(Static(json.RawMessage(`{"v":7}`)), "ok-feed", DefaultBreakerConfig(), zerolog.Nop())

	value, err := p.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(value) != `{"v":7}` {
		t.Errorf("Value mismatch: got %s", value)
	}
}

func TestThrottler_AllowsUpToLimit(t *testing.T) {
	clk := clock.NewMock()
	th := NewThrottler(ThrottleConfig{MaxPerMinute: 3, Clock: clk})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := th.Wait(ctx); err != nil {
			t.Fatalf("Wait %d failed: %v", i, err)
		}
	}
}

func TestThrottler_BlocksOverLimit(t *testing.T) {
	clk := clock.NewMock()
	th := NewThrottler(ThrottleConfig{MaxPerMinute: 2, Clock: clk})
	ctx := context.Background()

	if err := th.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if err := th.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- th.Wait(ctx) }()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("Wait failed: %v", err)
			}
			return
		case <-deadline:
			t.Fatal("Wait did not return after the window elapsed")
		default:
			// Drive the mock clock until the oldest call ages out.
			clk.Add(10 * time.Second)
			time.Sleep(time.Millisecond)
		}
	}
}

func TestThrottler_ContextCancelled(t *testing.T) {
	clk := clock.NewMock()
	th := NewThrottler(ThrottleConfig{MaxPerMinute: 1, Clock: clk})

	if err := th.Wait(context.Background()); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- th.Wait(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not honor cancellation")
	}
}

func TestWithThrottle_WrapsFetch(t *testing.T) {
	clk := clock.NewMock()
	th := NewThrottler(ThrottleConfig{MaxPerMinute: 5, Clock: clk})
	p := WithThrottle(Static(json.RawMessage(`1`)), th)

	value, err := p.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(value) != `1` {
		t.Errorf("Value mismatch: got %s", value)
	}
}
