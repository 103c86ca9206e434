package paramcache

import (
	"fmt"
	"time"

	"github.com/groundstation/telemetry-paramcache/pkg/shard"
)

// entryShards is the shard count for the internal entries/subscribed maps.
// Chosen to track typical CPU parallelism rather than data volume: shard
// count affects lock striping only, never correctness (see pkg/shard).
const entryShards = 64

// Config fixes a ParameterCache's policy at construction.
type Config struct {
	// CacheAll, if true, caches every parameter seen by Update. If false,
	// only parameters previously requested by a reader (or explicitly
	// Subscribed) are cached -- the lazy-subscription policy.
	CacheAll bool
	// MaxDurationMillis is the minimum history window retained per
	// parameter; the ring grows (up to MaxNumEntries) to guarantee it.
	MaxDurationMillis int64
	// MaxNumEntries is the hard upper bound on deliveries retained per
	// parameter. Rounded up internally to a power of two for masking.
	MaxNumEntries int
	// Recorder, if non-nil, observes cache lifecycle events. See the
	// Recorder doc comment for the non-blocking contract implementations
	// must honor.
	Recorder Recorder
	// Clock supplies wall-clock time for expiration checks. Defaults to
	// SystemClock if nil.
	Clock Clock
}

// DefaultConfig returns a Config matching Yamcs's historical defaults: cache
// everything, retain at least 10 seconds of history, cap at 1024 entries.
func DefaultConfig() Config {
	return Config{
		CacheAll:          true,
		MaxDurationMillis: 10_000,
		MaxNumEntries:     1024,
	}
}

// ParameterCache maps parameter identity to CacheEntry, applies the
// cache-all vs. lazy-subscription policy, and implements the three read
// operations (GetLast, GetAll, GetValues) plus the single write operation,
// Update.
type ParameterCache struct {
	cfg     Config
	clock   Clock
	entries *shard.Map[ParameterId, *CacheEntry]
	// subscribed is nil when cfg.CacheAll is true: it is only meaningful,
	// and only allocated, in lazy-subscription mode.
	subscribed *shard.Map[ParameterId, struct{}]
}

func idName(pid ParameterId) string { return pid.Name() }

// New constructs a ParameterCache. It panics if cfg.MaxNumEntries < 1,
// matching spec §7's "programmer errors fail fast at construction".
func New(cfg Config) *ParameterCache {
	if cfg.MaxNumEntries < 1 {
		panic(fmt.Sprintf("paramcache: MaxNumEntries must be >= 1, got %d", cfg.MaxNumEntries))
	}
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock{}
	}

	pc := &ParameterCache{
		cfg:     cfg,
		clock:   clock,
		entries: shard.New[ParameterId, *CacheEntry](entryShards, idName),
	}
	if !cfg.CacheAll {
		pc.subscribed = shard.New[ParameterId, struct{}](entryShards, idName)
	}
	return pc
}

// isSubscribed reports whether pid is eligible for caching under the
// current policy: always true when CacheAll, otherwise true only if a
// reader has previously asked for pid (or Subscribe was called directly).
func (pc *ParameterCache) isSubscribed(pid ParameterId) bool {
	if pc.cfg.CacheAll {
		return true
	}
	return pc.subscribed.Has(pid)
}

// Subscribe enrolls pid in the lazy-subscription set without requiring a
// read miss to trigger enrollment. A no-op when CacheAll is true. Used by
// package warming to prewarm a known watchlist ahead of the first reader
// call.
func (pc *ParameterCache) Subscribe(pid ParameterId) {
	if pc.cfg.CacheAll {
		return
	}
	if pc.subscribed.Has(pid) {
		return
	}
	pc.subscribed.Store(pid, struct{}{})
	recordSubscription(pc.cfg.Recorder, pid)
}

func (pc *ParameterCache) newEntry(pid ParameterId) *CacheEntry {
	return newCacheEntry(pid, pc.cfg.MaxDurationMillis, pc.cfg.MaxNumEntries, pc.cfg.Recorder)
}

// Update builds a single DeliveryList from values and inserts the shared
// reference into every CacheEntry whose parameter appears in the
// delivery, creating entries lazily per the cache-all/subscription policy.
// An empty or nil values slice is a legal no-op.
func (pc *ParameterCache) Update(values []*ParameterValue) {
	if len(values) == 0 {
		return
	}
	delivery := NewDeliveryList(values)

	for _, pid := range delivery.ParameterIds() {
		entry, existed := pc.entries.Get(pid)
		if !existed {
			if !pc.isSubscribed(pid) {
				continue
			}
			entry, _ = pc.entries.GetOrCreate(pid, func() *CacheEntry {
				return pc.newEntry(pid)
			})
		}
		entry.Add(delivery)
	}
}

// checkExpiration applies the §4.3.1 expiration check to pv and reports an
// expiration event if this call performed the ACQUIRED->EXPIRED
// transition. It returns pv unchanged otherwise (or if pv is nil).
func (pc *ParameterCache) checkExpiration(pid ParameterId, pv *ParameterValue) *ParameterValue {
	if pv == nil {
		return nil
	}
	if pv.expireIfDue(pc.clock.Now()) {
		recordExpiration(pc.cfg.Recorder, pid)
	}
	return pv
}

// GetLast returns the latest ParameterValue for pid, or nil if nothing is
// cached. In lazy-subscription mode, a miss enrolls pid for future
// updates.
func (pc *ParameterCache) GetLast(pid ParameterId) *ParameterValue {
	entry, ok := pc.entries.Get(pid)
	if !ok {
		pc.Subscribe(pid)
		return nil
	}
	last := entry.GetLast()
	if last == nil {
		return nil
	}
	return pc.checkExpiration(pid, last.LastInserted(pid))
}

// GetAll returns every retained ParameterValue for pid, newest first, or
// nil if nothing is cached. In lazy-subscription mode, a miss enrolls pid
// for future updates. Only the newest value (index 0) is subject to the
// expiration check, matching GetLast's behavior; older retained values are
// historical record and are returned as originally acquired.
func (pc *ParameterCache) GetAll(pid ParameterId) []*ParameterValue {
	entry, ok := pc.entries.Get(pid)
	if !ok {
		pc.Subscribe(pid)
		return nil
	}
	all := entry.GetAll()
	if len(all) == 0 {
		return nil
	}
	all[0] = pc.checkExpiration(pid, all[0])
	return all
}

// GetValues returns one ParameterValue per found pid in pids, grouping
// parameters that were acquired in the same delivery consecutively in the
// result. pids with no cached entry are skipped (and, in lazy-subscription
// mode, enrolled for future updates). The result's length is therefore
// <= len(pids).
func (pc *ParameterCache) GetValues(pids []ParameterId) []*ParameterValue {
	remaining := make([]bool, len(pids))
	for i := range remaining {
		remaining[i] = true
	}
	result := make([]*ParameterValue, 0, len(pids))

	for i := 0; i < len(pids); i++ {
		if !remaining[i] {
			continue
		}
		remaining[i] = false
		pid := pids[i]

		entry, ok := pc.entries.Get(pid)
		if !ok {
			pc.Subscribe(pid)
			continue
		}
		last := entry.GetLast()
		if last == nil {
			continue
		}
		pv := last.LastInserted(pid)
		if pv == nil {
			continue
		}
		result = append(result, pc.checkExpiration(pid, pv))

		for j := i + 1; j < len(pids); j++ {
			if !remaining[j] {
				continue
			}
			otherPid := pids[j]
			otherPv := last.LastInserted(otherPid)
			if otherPv == nil {
				continue
			}
			remaining[j] = false
			result = append(result, pc.checkExpiration(otherPid, otherPv))
		}
	}

	return result
}

// Reset replaces pid's CacheEntry with a fresh, empty one (same
// configuration), discarding retained history without deleting the map
// entry itself -- used by package invalidation for administrative resets.
// A no-op if pid has no entry.
func (pc *ParameterCache) Reset(pid ParameterId) bool {
	_, ok := pc.entries.Get(pid)
	if !ok {
		return false
	}
	pc.entries.Store(pid, pc.newEntry(pid))
	return true
}

// ResetMatching resets every cached parameter whose name satisfies match,
// returning the ParameterIds affected. Used by package invalidation to
// implement pattern-based bulk resets (e.g. "SC001/*"). match is evaluated
// against a snapshot of currently-cached parameters; a parameter that is
// first cached by a concurrent Update after the snapshot is taken is not
// included.
func (pc *ParameterCache) ResetMatching(match func(name string) bool) []ParameterId {
	var matched []ParameterId
	pc.entries.Range(func(pid ParameterId, _ *CacheEntry) bool {
		if match(pid.Name()) {
			matched = append(matched, pid)
		}
		return true
	})
	for _, pid := range matched {
		pc.Reset(pid)
	}
	return matched
}

// Now returns the cache's configured wall-clock time. Exposed so
// administrative/observability packages can timestamp consistently with
// the cache's own expiration checks.
func (pc *ParameterCache) Now() time.Time {
	return pc.clock.Now()
}
