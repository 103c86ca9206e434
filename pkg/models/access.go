// Package models provides shared data models used by the cache's
// ambient packages (monitoring, warming, invalidation) to describe
// parameter access patterns and metric snapshots, independent of the
// paramcache package's own hot-path types.
//
// Design Philosophy:
// - Minimal allocations on hot paths
// - Thread-safe counters using atomic primitives
// - Explicit, named fields over generic maps
package models

import (
	"sync/atomic"
	"time"
)

// AccessStats tracks how often and how recently a single parameter has
// been read, for package monitoring's hot-parameter reporting and
// package warming's prewarm-candidate selection. It does not duplicate
// paramcache's own value/expiration bookkeeping -- this is observation
// of access patterns, not the cached data itself.
//
// Thread Safety: ReadCount and WriteCount use atomic operations. Other
// fields should be protected by the caller if concurrent modification is
// needed (package monitoring guards them with its own collector lock).
type AccessStats struct {
	ParameterName string

	FirstSeen time.Time
	LastRead  time.Time
	LastWrite time.Time

	ReadCount  uint64
	WriteCount uint64
}

// NewAccessStats creates a stats record for a newly observed parameter.
func NewAccessStats(name string, now time.Time) *AccessStats {
	return &AccessStats{
		ParameterName: name,
		FirstSeen:     now,
	}
}

// TouchRead records a read access at now.
// Thread-safe: ReadCount uses atomic operations; LastRead is a plain
// write and is intended to be called under the collector's own lock.
func (s *AccessStats) TouchRead(now time.Time) {
	s.LastRead = now
	atomic.AddUint64(&s.ReadCount, 1)
}

// TouchWrite records a write (Update delivery) at now.
func (s *AccessStats) TouchWrite(now time.Time) {
	s.LastWrite = now
	atomic.AddUint64(&s.WriteCount, 1)
}

// GetReadCount returns the current read count (thread-safe).
func (s *AccessStats) GetReadCount() uint64 {
	return atomic.LoadUint64(&s.ReadCount)
}

// GetWriteCount returns the current write count (thread-safe).
func (s *AccessStats) GetWriteCount() uint64 {
	return atomic.LoadUint64(&s.WriteCount)
}

// Idle reports how long it has been since the parameter was last read,
// as of now. Used by package warming to decide which subscribed
// parameters are cold enough to be worth dropping.
func (s *AccessStats) Idle(now time.Time) time.Duration {
	if s.LastRead.IsZero() {
		return now.Sub(s.FirstSeen)
	}
	return now.Sub(s.LastRead)
}

// AccessFrequency returns reads per second since FirstSeen, as of now.
func (s *AccessStats) AccessFrequency(now time.Time) float64 {
	age := now.Sub(s.FirstSeen).Seconds()
	if age <= 0 {
		return 0
	}
	return float64(s.GetReadCount()) / age
}

// Clone returns a snapshot copy safe to hand to a caller outside the
// collector's lock.
func (s *AccessStats) Clone() AccessStats {
	return AccessStats{
		ParameterName: s.ParameterName,
		FirstSeen:     s.FirstSeen,
		LastRead:      s.LastRead,
		LastWrite:     s.LastWrite,
		ReadCount:     s.GetReadCount(),
		WriteCount:    s.GetWriteCount(),
	}
}
