// Package ratelimit enforces per-key spacing and retry policy for
// side-effectful actions, typically outbound calls to third-party academic
// providers invoked from diagnostic probes.
package ratelimit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/bc-dunia/cortexdx/internal/events"
)

// Config is the per-call rate-limit policy.
type Config struct {
	MinIntervalMs int64
	MaxRetries    int
	BackoffFactor float64
}

// Status is a point-in-time snapshot of a key's queue.
type Status struct {
	QueueLength     int
	LastRequestTime time.Time
	HasRequested    bool
}

// Action is the opaque producer of a result or failure wrapped by
// WithRateLimit.
type Action func(ctx context.Context) (interface{}, error)

// Limiter enforces at most one inflight action per key, strict per-key FIFO
// ordering among callers, and a minimum spacing between successful actions.
// Different keys are fully independent.
type Limiter struct {
	mu      sync.Mutex
	queues  map[string]*keyQueue
	idleTTL time.Duration
	logger  *events.EventLogger

	stopSweep chan struct{}
	sweepOnce sync.Once
}

type keyQueue struct {
	mu           sync.Mutex
	cond         *sync.Cond
	ticketNext   uint64
	serving      uint64
	waiters      int
	lastRequest  time.Time
	hasRequested bool
	lastTouched  time.Time
}

func newKeyQueue() *keyQueue {
	q := &keyQueue{lastTouched: time.Now()}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// currentLen returns the queue's current waiter count under lock.
func (q *keyQueue) currentLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waiters
}

// DefaultIdleTTL is how long an idle, empty key queue survives before the
// background sweep destroys it.
const DefaultIdleTTL = 10 * time.Minute

// NewLimiter constructs a Limiter. A nil logger falls back to the package's
// shared no-op event logger.
func NewLimiter(logger *events.EventLogger) *Limiter {
	if logger == nil {
		logger = events.NoopEventLogger()
	}
	l := &Limiter{
		queues:    make(map[string]*keyQueue),
		idleTTL:   DefaultIdleTTL,
		logger:    logger,
		stopSweep: make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Close stops the background idle-queue sweep. Safe to call more than once.
func (l *Limiter) Close() {
	l.sweepOnce.Do(func() { close(l.stopSweep) })
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.idleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopSweep:
			return
		case <-ticker.C:
			l.sweepIdle()
		}
	}
}

func (l *Limiter) sweepIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-l.idleTTL)
	for key, q := range l.queues {
		q.mu.Lock()
		idle := q.waiters == 0 && q.lastTouched.Before(cutoff)
		q.mu.Unlock()
		if idle {
			delete(l.queues, key)
		}
	}
}

func (l *Limiter) queueFor(key string) *keyQueue {
	l.mu.Lock()
	defer l.mu.Unlock()
	q, ok := l.queues[key]
	if !ok {
		q = newKeyQueue()
		l.queues[key] = q
	}
	return q
}

// GetRateLimitStatus returns the current queue length and last-request time
// for key, or ok=false if the key has never been submitted.
func (l *Limiter) GetRateLimitStatus(key string) (Status, bool) {
	l.mu.Lock()
	q, ok := l.queues[key]
	l.mu.Unlock()
	if !ok {
		return Status{}, false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return Status{
		QueueLength:     q.waiters,
		LastRequestTime: q.lastRequest,
		HasRequested:    q.hasRequested,
	}, true
}

// WithRateLimit runs action under key's FIFO queue, waiting until the
// minimum interval since the last successful action on key has elapsed,
// then retrying on failure up to cfg.MaxRetries times with exponential
// backoff. Submissions on the same key execute strictly in arrival order;
// at most one action per key is inflight at any moment. Different keys
// never block one another.
func (l *Limiter) WithRateLimit(ctx context.Context, key string, cfg Config, action Action) (interface{}, error) {
	corr := newCorrelationID()
	q := l.queueFor(key)

	q.mu.Lock()
	ticket := q.ticketNext
	q.ticketNext++
	q.waiters++
	q.lastTouched = time.Now()
	queueLen := q.waiters
	q.mu.Unlock()

	l.logger.LogRateLimitTransition(corr, key, "accepted", queueLen, 0)

	q.mu.Lock()
	for q.serving != ticket {
		q.cond.Wait()
	}
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.waiters--
		q.serving++
		q.lastTouched = time.Now()
		q.cond.Broadcast()
		q.mu.Unlock()
	}()

	q.mu.Lock()
	wait := nextWait(q.lastRequest, q.hasRequested, cfg.MinIntervalMs)
	q.mu.Unlock()

	l.logger.LogRateLimitTransition(corr, key, "waiting", q.currentLen(), 0)
	if wait > 0 {
		if err := sleepOrCancel(ctx, wait); err != nil {
			l.logger.LogRateLimitTransition(corr, key, "failed", q.currentLen(), 0)
			return nil, err
		}
	}

	result, err := l.runWithRetry(ctx, corr, key, q, cfg, action)
	if err == nil {
		q.mu.Lock()
		q.lastRequest = time.Now()
		q.hasRequested = true
		q.mu.Unlock()
	}
	return result, err
}

func (l *Limiter) runWithRetry(ctx context.Context, corr, key string, q *keyQueue, cfg Config, action Action) (interface{}, error) {
	backoff := cfg.BackoffFactor
	if backoff < 1 {
		backoff = 1
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		l.logger.LogRateLimitTransition(corr, key, "running", q.currentLen(), attempt)
		result, err := action(ctx)
		if err == nil {
			l.logger.LogRateLimitTransition(corr, key, "succeeded", q.currentLen(), attempt)
			return result, nil
		}
		lastErr = err

		if attempt == cfg.MaxRetries {
			break
		}

		sleepSeconds := math.Pow(backoff, float64(attempt))
		l.logger.LogRateLimitTransition(corr, key, "retrying", q.currentLen(), attempt)
		if sleepErr := sleepOrCancel(ctx, time.Duration(sleepSeconds*float64(time.Second))); sleepErr != nil {
			lastErr = sleepErr
			break
		}
	}

	l.logger.LogRateLimitTransition(corr, key, "failed", q.currentLen(), cfg.MaxRetries)
	return nil, lastErr
}

// nextWait computes how long to sleep before the action may run so that
// consecutive successful actions on the same key are spaced by at least
// minIntervalMs.
func nextWait(lastRequest time.Time, hasRequested bool, minIntervalMs int64) time.Duration {
	if !hasRequested || minIntervalMs <= 0 {
		return 0
	}
	earliest := lastRequest.Add(time.Duration(minIntervalMs) * time.Millisecond)
	wait := time.Until(earliest)
	if wait < 0 {
		return 0
	}
	return wait
}

// sleepOrCancel sleeps for d unless ctx is cancelled first, in which case it
// returns ctx.Err().
func sleepOrCancel(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// newCorrelationID produces an id of the shape cortex_<epoch-ms>_<8-hex>.
func newCorrelationID() string {
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	return fmt.Sprintf("cortex_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(buf[:]))
}
