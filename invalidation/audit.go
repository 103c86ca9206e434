package invalidation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// AuditLog represents a reset event for audit trail and debugging.
type AuditLog struct {
	ID          int64     `json:"id"`
	Pattern     string    `json:"pattern"`      // Pattern or parameter name(s) reset
	Parameters  []string  `json:"parameters"`   // Actual parameter names reset, if known
	TriggeredBy string    `json:"triggered_by"` // Source: invalidation, ops-console, warming
	Timestamp   time.Time `json:"timestamp"`    // When the reset occurred
	RequestID   string    `json:"request_id"`   // Correlation ID for tracing
	Latency     int64     `json:"latency"`      // Reset latency in milliseconds
}

// AuditLogger keeps an in-memory, bounded history of reset events.
//
// Design decisions:
//   - Persistence is explicitly out of scope (the cache itself is
//     in-memory only; an audit trail that outlives the process would
//     need a separate durable store this package does not own), so this
//     keeps a bounded ring of the most recent entries rather than the
//     PostgreSQL-backed append-only log the distributed cache used.
//   - Append-only within the ring: entries are never mutated, only
//     overwritten once the ring wraps, mirroring paramcache's own
//     CacheEntry retention policy.
//   - Indexed by RequestID: the index gives the entry ids for a request,
//     and GetByRequestID then scans the retained ring for those ids.
type AuditLogger struct {
	mu       sync.RWMutex
	entries  []AuditLog
	capacity int
	head     int // next write position
	size     int // number of valid entries
	nextID   int64
	byReqID  map[string][]int64 // requestID -> entry IDs
}

// NewAuditLogger creates an audit logger retaining at most capacity
// entries.
func NewAuditLogger(capacity int) (*AuditLogger, error) {
	if capacity <= 0 {
		return nil, errors.New("invalidation: audit log capacity must be positive")
	}
	return &AuditLogger{
		entries:  make([]AuditLog, capacity),
		capacity: capacity,
		byReqID:  make(map[string][]int64),
	}, nil
}

// Insert adds a new audit log entry, evicting the oldest entry if the
// ring is full.
func (al *AuditLogger) Insert(ctx context.Context, log AuditLog) error {
	al.mu.Lock()
	defer al.mu.Unlock()

	al.nextID++
	log.ID = al.nextID
	if log.Timestamp.IsZero() {
		log.Timestamp = time.Now()
	}

	al.entries[al.head] = log
	al.head = (al.head + 1) % al.capacity
	if al.size < al.capacity {
		al.size++
	}

	al.byReqID[log.RequestID] = append(al.byReqID[log.RequestID], log.ID)
	return nil
}

// snapshot returns all retained entries, newest first.
func (al *AuditLogger) snapshot() []AuditLog {
	out := make([]AuditLog, 0, al.size)
	for i := 0; i < al.size; i++ {
		idx := (al.head - 1 - i + al.capacity) % al.capacity
		out = append(out, al.entries[idx])
	}
	return out
}

// GetRecent retrieves recent audit logs with pagination, newest first,
// optionally filtered to patterns containing patternFilter as a
// substring.
func (al *AuditLogger) GetRecent(ctx context.Context, limit, offset int, patternFilter string) ([]AuditLog, error) {
	al.mu.RLock()
	defer al.mu.RUnlock()

	all := al.snapshot()
	if patternFilter != "" {
		filtered := all[:0:0]
		for _, e := range all {
			if strings.Contains(e.Pattern, patternFilter) {
				filtered = append(filtered, e)
			}
		}
		all = filtered
	}

	if offset >= len(all) {
		return []AuditLog{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return append([]AuditLog(nil), all[offset:end]...), nil
}

// GetCount returns the total number of retained audit logs, optionally
// filtered by pattern substring.
func (al *AuditLogger) GetCount(ctx context.Context, patternFilter string) (int, error) {
	al.mu.RLock()
	defer al.mu.RUnlock()

	if patternFilter == "" {
		return al.size, nil
	}
	count := 0
	for i := 0; i < al.size; i++ {
		idx := (al.head - 1 - i + al.capacity) % al.capacity
		if strings.Contains(al.entries[idx].Pattern, patternFilter) {
			count++
		}
	}
	return count, nil
}

// GetByRequestID retrieves audit logs correlated with requestID.
func (al *AuditLogger) GetByRequestID(ctx context.Context, requestID string) ([]AuditLog, error) {
	al.mu.RLock()
	defer al.mu.RUnlock()

	ids := al.byReqID[requestID]
	if len(ids) == 0 {
		return []AuditLog{}, nil
	}
	idSet := make(map[int64]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}

	var out []AuditLog
	for _, e := range al.snapshot() {
		if idSet[e.ID] {
			out = append(out, e)
		}
	}
	return out, nil
}

// GetByTimeRange retrieves audit logs whose Timestamp falls within
// [start, end], newest first, up to limit entries.
func (al *AuditLogger) GetByTimeRange(ctx context.Context, start, end time.Time, limit int) ([]AuditLog, error) {
	al.mu.RLock()
	defer al.mu.RUnlock()

	out := make([]AuditLog, 0, limit)
	for _, e := range al.snapshot() {
		if e.Timestamp.Before(start) || e.Timestamp.After(end) {
			continue
		}
		out = append(out, e)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// AuditStats summarizes reset activity since a point in time.
type AuditStats struct {
	TotalResets         int64            `json:"total_resets"`
	BySource            map[string]int64 `json:"by_source"`
	AvgLatency          float64          `json:"avg_latency_ms"`
	MostFrequentPattern string           `json:"most_frequent_pattern"`
}

// GetStats computes aggregate statistics over entries at or after since.
func (al *AuditLogger) GetStats(ctx context.Context, since time.Time) (*AuditStats, error) {
	al.mu.RLock()
	defer al.mu.RUnlock()

	stats := &AuditStats{BySource: make(map[string]int64)}
	patternFreq := make(map[string]int64)
	var totalLatency int64

	for _, e := range al.snapshot() {
		if e.Timestamp.Before(since) {
			continue
		}
		stats.TotalResets++
		stats.BySource[e.TriggeredBy]++
		totalLatency += e.Latency
		patternFreq[e.Pattern]++
	}

	if stats.TotalResets > 0 {
		stats.AvgLatency = float64(totalLatency) / float64(stats.TotalResets)
	}

	var best string
	var bestCount int64
	for pattern, count := range patternFreq {
		if count > bestCount {
			best, bestCount = pattern, count
		}
	}
	stats.MostFrequentPattern = best

	return stats, nil
}

// Cleanup is a no-op for the in-memory ring: entries age out naturally
// as new ones overwrite the oldest slot, there is nothing to delete on
// demand. Kept for interface parity with a durable audit store.
func (al *AuditLogger) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}
