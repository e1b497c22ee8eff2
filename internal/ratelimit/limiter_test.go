package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWithRateLimitFirstCallRunsImmediately(t *testing.T) {
	l := NewLimiter(nil)
	defer l.Close()

	start := time.Now()
	result, err := l.WithRateLimit(context.Background(), "provider-a", Config{MinIntervalMs: 500}, func(ctx context.Context) (interface{}, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Fatalf("unexpected result: %v", result)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("expected first call to run immediately, took %v", elapsed)
	}
}

func TestWithRateLimitEnforcesMinInterval(t *testing.T) {
	l := NewLimiter(nil)
	defer l.Close()

	cfg := Config{MinIntervalMs: 150}
	ctx := context.Background()

	if _, err := l.WithRateLimit(ctx, "provider-b", cfg, func(ctx context.Context) (interface{}, error) {
		return nil, nil
	}); err != nil {
		t.Fatalf("first call failed: %v", err)
	}

	start := time.Now()
	if _, err := l.WithRateLimit(ctx, "provider-b", cfg, func(ctx context.Context) (interface{}, error) {
		return nil, nil
	}); err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 140*time.Millisecond {
		t.Errorf("expected second call to wait roughly %dms, waited %v", cfg.MinIntervalMs, elapsed)
	}
}

func TestWithRateLimitQueueFairnessFIFO(t *testing.T) {
	l := NewLimiter(nil)
	defer l.Close()

	const callers = 8
	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	var startBarrier sync.WaitGroup
	startBarrier.Add(1)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			_, _ = l.WithRateLimit(context.Background(), "fifo-key", Config{}, func(ctx context.Context) (interface{}, error) {
				startBarrier.Wait()
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				time.Sleep(2 * time.Millisecond)
				return nil, nil
			})
		}()
		// Stagger goroutine creation so the ticket order is
		// deterministic for this test's purposes: each submits in
		// sequence before any of them is released to run.
		time.Sleep(1 * time.Millisecond)
	}
	startBarrier.Done()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != callers {
		t.Fatalf("expected %d completions, got %d", callers, len(order))
	}
	for i, v := range order {
		if v != i {
			t.Errorf("expected FIFO order, position %d ran caller %d", i, v)
		}
	}
}

func TestWithRateLimitRetriesWithBackoffThenSucceeds(t *testing.T) {
	l := NewLimiter(nil)
	defer l.Close()

	var attempts int64
	cfg := Config{MaxRetries: 3, BackoffFactor: 1}
	result, err := l.WithRateLimit(context.Background(), "flaky", cfg, func(ctx context.Context) (interface{}, error) {
		n := atomic.AddInt64(&attempts, 1)
		if n < 3 {
			return nil, errors.New("transient failure")
		}
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got error: %v", err)
	}
	if result != "recovered" {
		t.Fatalf("unexpected result: %v", result)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestWithRateLimitRetriesExhausted(t *testing.T) {
	l := NewLimiter(nil)
	defer l.Close()

	var attempts int64
	cfg := Config{MaxRetries: 2, BackoffFactor: 1}
	_, err := l.WithRateLimit(context.Background(), "always-fails", cfg, func(ctx context.Context) (interface{}, error) {
		atomic.AddInt64(&attempts, 1)
		return nil, errors.New("permanent failure")
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != int64(cfg.MaxRetries+1) {
		t.Errorf("expected %d total invocations, got %d", cfg.MaxRetries+1, attempts)
	}
}

func TestWithRateLimitCancellationSurfacesTimeout(t *testing.T) {
	l := NewLimiter(nil)
	defer l.Close()

	_, err := l.WithRateLimit(context.Background(), "cancelled", Config{}, func(ctx context.Context) (interface{}, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error priming the queue: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.WithRateLimit(ctx, "cancelled", Config{MinIntervalMs: 5000}, func(ctx context.Context) (interface{}, error) {
		t.Fatal("action should not run once the spacing wait is cancelled")
		return nil, nil
	})
	if err == nil {
		t.Error("expected deadline-exceeded error waiting for min interval")
	}
}

func TestGetRateLimitStatusUnknownKey(t *testing.T) {
	l := NewLimiter(nil)
	defer l.Close()

	_, ok := l.GetRateLimitStatus("never-seen")
	if ok {
		t.Error("expected ok=false for a key that has never been submitted")
	}
}

func TestGetRateLimitStatusAfterCall(t *testing.T) {
	l := NewLimiter(nil)
	defer l.Close()

	_, err := l.WithRateLimit(context.Background(), "tracked", Config{}, func(ctx context.Context) (interface{}, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	status, ok := l.GetRateLimitStatus("tracked")
	if !ok {
		t.Fatal("expected status to exist after a call")
	}
	if !status.HasRequested {
		t.Error("expected HasRequested to be true after a successful call")
	}
	if status.LastRequestTime.IsZero() {
		t.Error("expected LastRequestTime to be set")
	}
}

func TestSweepIdleRemovesEmptyQueues(t *testing.T) {
	l := NewLimiter(nil)
	defer l.Close()
	l.idleTTL = 10 * time.Millisecond

	_, err := l.WithRateLimit(context.Background(), "idle-key", Config{}, func(ctx context.Context) (interface{}, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	time.Sleep(15 * time.Millisecond)
	l.sweepIdle()

	l.mu.Lock()
	_, exists := l.queues["idle-key"]
	l.mu.Unlock()
	if exists {
		t.Error("expected idle queue to be swept")
	}
}

func TestNewCorrelationIDShape(t *testing.T) {
	id := newCorrelationID()
	if len(id) < len("cortex_0_00000000") {
		t.Errorf("correlation id looks too short: %q", id)
	}
	if id[:7] != "cortex_" {
		t.Errorf("expected cortex_ prefix, got %q", id)
	}
}
