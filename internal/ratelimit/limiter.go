package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// sweepInterval is how often the background sweeper scans for idle buckets.
const sweepInterval = 5 * time.Minute

// Result is the outcome of a Check call.
type Result struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Remaining is the number of requests still permitted within the
	// current window, valid only when Allowed is true.
	Remaining int

	// RetryAfter is how long the caller should wait before retrying,
	// valid only when Allowed is false. Floored to 100ms.
	RetryAfter time.Duration
}

// bucketKey identifies one sliding-window bucket.
type bucketKey struct {
	policy Policy
	key    string
}

// MetricsReporter receives rate-limit denial observations. The production
// collector implements this; tests may supply a no-op.
type MetricsReporter interface {
	RecordRateLimitDenial(policy string)
}

type noopMetrics struct{}

func (noopMetrics) RecordRateLimitDenial(string) {}

// Limiter enforces the closed set of sliding-window policies defined in
// policy.go. Buckets are created lazily on first use and reaped by a
// background sweeper when idle.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[bucketKey]*bucket

	metrics MetricsReporter
	logger  *slog.Logger

	// now is overridable in tests; defaults to time.Now.
	now func() time.Time
}

// LimiterOption configures optional Limiter parameters.
type LimiterOption func(*Limiter)

// WithMetrics sets the MetricsReporter used to record denials. If mr is
// nil, a no-op reporter is used.
func WithMetrics(mr MetricsReporter) LimiterOption {
	return func(l *Limiter) {
		if mr != nil {
			l.metrics = mr
		}
	}
}

// New creates a Limiter with no buckets allocated.
func New(logger *slog.Logger, opts ...LimiterOption) *Limiter {
	l := &Limiter{
		buckets: make(map[bucketKey]*bucket),
		metrics: noopMetrics{},
		logger:  logger.With(slog.String("component", "ratelimit.limiter")),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check evaluates one request against the named policy's bucket for key,
// creating the bucket on first use. Returns ErrUnknownPolicy if policy is
// not one of the closed enum values.
func (l *Limiter) Check(policy Policy, key string) (Result, error) {
	max, window, ok := limitsFor(policy)
	if !ok {
		return Result{}, fmt.Errorf("check %s/%s: %w", policy, key, ErrUnknownPolicy)
	}

	b := l.bucketFor(policy, key, max, window)

	result := b.check(l.now())
	if !result.Allowed {
		l.metrics.RecordRateLimitDenial(string(policy))
	}

	return result, nil
}

// bucketFor returns the bucket for (policy, key), creating it under the
// write lock if absent.
func (l *Limiter) bucketFor(policy Policy, key string, max int, window time.Duration) *bucket {
	bk := bucketKey{policy: policy, key: key}

	l.mu.RLock()
	b, ok := l.buckets[bk]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[bk]; ok {
		return b
	}

	b = newBucket(max, window)
	l.buckets[bk] = b
	return b
}

// Run starts the background sweeper, removing buckets idle longer than
// 2x their configured window. Blocks until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

// sweep removes every bucket that has been idle for at least 2x its window.
func (l *Limiter) sweep() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for bk, b := range l.buckets {
		_, window, ok := limitsFor(bk.policy)
		if !ok {
			continue
		}
		if b.idleSince(now.Add(-2 * window)) {
			delete(l.buckets, bk)
			removed++
		}
	}

	if removed > 0 {
		l.logger.Debug("swept idle rate limit buckets", slog.Int("removed", removed))
	}
}

// ClearKey removes every bucket (across all policies) keyed on key. The
// hub calls this on connection teardown so a reconnecting client starts
// with a fresh quota rather than inheriting a stale connection handle's
// exhausted window.
func (l *Limiter) ClearKey(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for bk := range l.buckets {
		if bk.key == key {
			delete(l.buckets, bk)
		}
	}
}

// Len reports the current number of allocated buckets. Test/diagnostic use.
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.buckets)
}
