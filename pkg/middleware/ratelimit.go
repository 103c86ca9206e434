// Package middleware provides cross-cutting concerns -- throttling and
// structured logging -- shared by the parameter cache's administrative
// packages (invalidation, warming).
//
// Design Notes:
//   - Per-key throttling (e.g., per calling service, per pattern) plus a
//     global limit, both backed by golang.org/x/time/rate rather than a
//     hand-rolled token bucket: the distributed cache's own TokenBucket
//     was HTTP-request-shaped (net/http.Request key funcs, 429 status
//     codes); administrative reset/prewarm calls are plain Go method
//     calls, so rate.Limiter's Allow()/Wait() fit directly without an
//     HTTP layer in between.
//   - No cleanup of stale per-key limiters (recommend periodic eviction
//     via EvictStaleKeys for long-running processes with unbounded key
//     cardinality).
package middleware

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// OperationLimiter throttles administrative cache operations (parameter
// resets, prewarm passes) per calling service, plus a shared global cap,
// guarding against a misbehaving client issuing ResetPattern in a tight
// loop and starving the single-writer cache of its write lock.
type OperationLimiter struct {
	mu      sync.Mutex
	rate    rate.Limit
	burst   int
	global  *rate.Limiter
	perKey  map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// NewOperationLimiter creates a limiter allowing ratePerSec operations per
// second per key (and globally), with bursts up to burst.
func NewOperationLimiter(ratePerSec float64, burst int) *OperationLimiter {
	if ratePerSec <= 0 {
		panic("middleware: ratePerSec must be positive")
	}
	if burst <= 0 {
		panic("middleware: burst must be positive")
	}
	r := rate.Limit(ratePerSec)
	return &OperationLimiter{
		rate:   r,
		burst:  burst,
		global: rate.NewLimiter(r, burst),
		perKey: make(map[string]*limiterEntry),
	}
}

// Allow reports whether an operation keyed by key (e.g. the calling
// service name) is permitted right now, consuming a token from both the
// per-key and the global bucket if so. A request is allowed only if
// neither bucket is exhausted.
func (l *OperationLimiter) Allow(key string) bool {
	if !l.global.Allow() {
		return false
	}
	return l.bucketFor(key).Allow()
}

// AllowN reports whether n operations keyed by key may proceed at once
// (e.g. a ResetPattern expansion touching n parameters).
func (l *OperationLimiter) AllowN(key string, n int) bool {
	now := time.Now()
	if !l.global.AllowN(now, n) {
		return false
	}
	return l.bucketFor(key).AllowN(now, n)
}

func (l *OperationLimiter) bucketFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.perKey[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.perKey[key] = entry
	}
	entry.lastUsed = time.Now()
	return entry.limiter
}

// EvictStaleKeys removes per-key limiters untouched since before the
// staleness threshold. Call periodically to bound memory when the key
// space (e.g. distinct calling services) grows without limit.
func (l *OperationLimiter) EvictStaleKeys(staleDuration time.Duration) int {
	threshold := time.Now().Add(-staleDuration)
	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for k, entry := range l.perKey {
		if entry.lastUsed.Before(threshold) {
			delete(l.perKey, k)
			evicted++
		}
	}
	return evicted
}

// KeyCount returns the number of distinct keys currently tracked.
func (l *OperationLimiter) KeyCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.perKey)
}

// String returns a human-readable representation of the limiter config.
func (l *OperationLimiter) String() string {
	return fmt.Sprintf("OperationLimiter{rate=%.1f/s, burst=%d}", float64(l.rate), l.burst)
}
