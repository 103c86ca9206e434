// Package invalidation provides administrative reset operations against a
// live ParameterCache: resetting a single named parameter, or resetting
// every parameter whose name matches a wildcard/regex pattern (e.g.
// "SC001/*"). Every reset is rate-limited, published to the in-process
// event bus, and recorded in a bounded audit log for later inspection.
//
// Design Philosophy:
//   - The distributed cache this package is adapted from coordinated
//     invalidation across independently-deployed cache-manager instances
//     via a managed pub/sub broadcast and a PostgreSQL audit table. A
//     ParameterCache is one in-memory structure inside a single process
//     (spec §2), so there is no second instance to notify: Service calls
//     ParameterCache.Reset/ResetMatching directly and only then publishes
//     to pkg/pubsub.Bus, for monitoring and warming to observe.
//   - Audit logging is in-memory and bounded (see audit.go) rather than
//     durable: an audit trail that outlives the process is out of scope
//     for this package.
//   - Pattern matching reuses PatternMatcher unchanged from the
//     distributed cache: it already operates over plain string keys/names
//     and needed no domain-specific rewrite.
//
// Consistency Model:
//   - ResetParameter/ResetPattern are synchronous: the ParameterCache
//     mutation completes before the call returns. The bus publish and
//     audit write happen after, so a crash between the cache mutation and
//     the publish drops the notification but never leaves the cache
//     itself in a half-reset state (each individual parameter reset is
//     atomic, see ParameterCache.Reset).
package invalidation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/groundstation/telemetry-paramcache/paramcache"
	"github.com/groundstation/telemetry-paramcache/pkg/middleware"
	"github.com/groundstation/telemetry-paramcache/pkg/pubsub"
)

// Metrics tracks reset performance counters for a Service.
type Metrics struct {
	TotalResets     atomic.Int64
	ParameterResets atomic.Int64
	PatternResets   atomic.Int64
	AuditWrites     atomic.Int64
	BusPublishes    atomic.Int64
	RateLimited     atomic.Int64
	Errors          atomic.Int64
}

// MetricsSnapshot is a point-in-time, non-atomic copy of Metrics suitable
// for logging or serialization.
type MetricsSnapshot struct {
	TotalResets         int64   `json:"total_resets"`
	ParameterResets     int64   `json:"parameter_resets"`
	PatternResets       int64   `json:"pattern_resets"`
	AuditWrites         int64   `json:"audit_writes"`
	BusPublishes        int64   `json:"bus_publishes"`
	RateLimited         int64   `json:"rate_limited"`
	Errors              int64   `json:"errors"`
	PatternResetRatio   float64 `json:"pattern_reset_ratio"`
}

// Snapshot copies the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	total := m.TotalResets.Load()
	pattern := m.PatternResets.Load()
	ratio := 0.0
	if total > 0 {
		ratio = float64(pattern) / float64(total)
	}
	return MetricsSnapshot{
		TotalResets:       total,
		ParameterResets:   m.ParameterResets.Load(),
		PatternResets:     pattern,
		AuditWrites:       m.AuditWrites.Load(),
		BusPublishes:      m.BusPublishes.Load(),
		RateLimited:       m.RateLimited.Load(),
		Errors:            m.Errors.Load(),
		PatternResetRatio: ratio,
	}
}

// Service exposes administrative reset operations over a ParameterCache.
type Service struct {
	cache          *paramcache.ParameterCache
	patternMatcher *PatternMatcher
	auditLogger    *AuditLogger
	limiter        *middleware.OperationLimiter
	bus            *pubsub.Bus
	metrics        *Metrics
}

// ServiceConfig configures a Service. Cache is required; everything else
// has a sensible default.
type ServiceConfig struct {
	// Cache is the live ParameterCache this Service administers.
	Cache *paramcache.ParameterCache
	// Bus receives ResetEvent publications. Defaults to a private Bus if
	// nil (still functional, just unobserved by other packages).
	Bus *pubsub.Bus
	// AuditCapacity bounds the in-memory audit log. Defaults to 1000.
	AuditCapacity int
	// RatePerSec and Burst bound administrative reset throughput.
	// Defaults to 50/sec with a burst of 20.
	RatePerSec float64
	Burst      int
}

// NewService constructs a Service. It errors if cfg.Cache is nil.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Cache == nil {
		return nil, errors.New("invalidation: ServiceConfig.Cache is required")
	}
	if cfg.Bus == nil {
		cfg.Bus = pubsub.NewBus()
	}
	capacity := cfg.AuditCapacity
	if capacity <= 0 {
		capacity = 1000
	}
	ratePerSec := cfg.RatePerSec
	if ratePerSec <= 0 {
		ratePerSec = 50
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 20
	}

	auditLogger, err := NewAuditLogger(capacity)
	if err != nil {
		return nil, fmt.Errorf("invalidation: failed to initialize audit logger: %w", err)
	}

	return &Service{
		cache:          cfg.Cache,
		patternMatcher: NewPatternMatcher(),
		auditLogger:    auditLogger,
		limiter:        middleware.NewOperationLimiter(ratePerSec, burst),
		bus:            cfg.Bus,
		metrics:        &Metrics{},
	}, nil
}

// ResetResult reports what a reset operation affected.
type ResetResult struct {
	Parameters []string
	RequestID  string
	Latency    time.Duration
}

// ErrRateLimited is returned when an administrative reset is throttled.
var ErrRateLimited = errors.New("invalidation: reset rate limit exceeded")

// ResetParameter resets a single named parameter. triggeredBy identifies
// the caller (e.g. "ops-console", "warming") for audit and metrics
// purposes. Resetting a parameter not currently cached is not an error;
// it simply affects nothing.
func (s *Service) ResetParameter(ctx context.Context, name string, triggeredBy string) (*ResetResult, error) {
	return s.reset(ctx, name, func(n string) bool { return n == name }, triggeredBy, false)
}

// ResetPattern resets every cached parameter whose name matches pattern
// (exact, prefix/suffix/contains wildcard, or regex -- see PatternMatcher).
func (s *Service) ResetPattern(ctx context.Context, pattern string, triggeredBy string) (*ResetResult, error) {
	if err := s.patternMatcher.ValidatePattern(pattern); err != nil {
		return nil, fmt.Errorf("invalidation: invalid pattern: %w", err)
	}
	return s.reset(ctx, pattern, func(n string) bool {
		return len(s.patternMatcher.Match(pattern, []string{n})) > 0
	}, triggeredBy, true)
}

func (s *Service) reset(ctx context.Context, pattern string, match func(string) bool, triggeredBy string, isPattern bool) (*ResetResult, error) {
	start := time.Now()

	if triggeredBy == "" {
		triggeredBy = "unknown"
	}
	requestID := middleware.CorrelationIDFromCtx(ctx)
	if requestID == "" {
		requestID = middleware.NewCorrelationID()
	}

	if !s.limiter.Allow(triggeredBy) {
		s.metrics.RateLimited.Add(1)
		return nil, ErrRateLimited
	}

	reset := s.cache.ResetMatching(match)
	names := make([]string, len(reset))
	for i, pid := range reset {
		names[i] = pid.Name()
	}

	event := &pubsub.ResetEvent{
		Version:     pubsub.EventVersion1,
		Service:     triggeredBy,
		TriggeredAt: s.cache.Now(),
		RequestID:   requestID,
	}
	if isPattern {
		event.Pattern = pattern
	} else {
		event.Parameters = names
	}
	s.bus.Publish(pubsub.TopicParameterReset, event)
	s.metrics.BusPublishes.Add(1)

	latency := time.Since(start)
	auditLog := AuditLog{
		Pattern:     pattern,
		Parameters:  names,
		TriggeredBy: triggeredBy,
		Timestamp:   event.TriggeredAt,
		RequestID:   requestID,
		Latency:     latency.Milliseconds(),
	}
	if err := s.auditLogger.Insert(ctx, auditLog); err != nil {
		s.metrics.Errors.Add(1)
		middleware.LogError(ctx, "reset", err, map[string]any{"pattern": pattern})
	} else {
		s.metrics.AuditWrites.Add(1)
	}

	s.metrics.TotalResets.Add(1)
	if isPattern {
		s.metrics.PatternResets.Add(1)
	} else {
		s.metrics.ParameterResets.Add(1)
	}

	middleware.LogOperation(ctx, "reset", map[string]any{
		"pattern":     pattern,
		"affected":    len(names),
		"triggeredBy": triggeredBy,
	})

	return &ResetResult{Parameters: names, RequestID: requestID, Latency: latency}, nil
}

// GetAuditLogs retrieves recent reset audit history with pagination,
// optionally filtered to entries whose pattern contains patternFilter.
func (s *Service) GetAuditLogs(ctx context.Context, limit, offset int, patternFilter string) ([]AuditLog, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}

	logs, err := s.auditLogger.GetRecent(ctx, limit, offset, patternFilter)
	if err != nil {
		s.metrics.Errors.Add(1)
		return nil, 0, fmt.Errorf("invalidation: failed to fetch audit logs: %w", err)
	}
	total, err := s.auditLogger.GetCount(ctx, patternFilter)
	if err != nil {
		total = len(logs)
	}
	return logs, total, nil
}

// MetricsSnapshot returns a snapshot of the service's reset counters.
func (s *Service) MetricsSnapshot() MetricsSnapshot {
	return s.metrics.Snapshot()
}
