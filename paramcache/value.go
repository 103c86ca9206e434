// Package paramcache implements an in-memory, concurrent, time-bounded,
// delivery-preserving cache of the most recent values of named telemetry
// parameters. It serves display clients and on-demand consumers (algorithms,
// command verifiers) the last known value, the retained history, or a
// co-delivered batch of values for a set of parameters.
//
// The cache is designed for one writer (the telemetry processing pipeline,
// via Update) and many readers (GetLast, GetAll, GetValues). Multiple
// writers are correct but serialize on the per-parameter write lock.
package paramcache

import (
	"sync/atomic"
	"time"
)

// ParameterId is an opaque handle uniquely identifying a parameter
// definition. It must be comparable (usable as a map key) and its lifetime
// must exceed the cache's.
type ParameterId interface {
	// Name returns a human-readable identifier, used for pattern-based
	// administrative operations (see package invalidation) and logging.
	// Name is not required to be unique across all ParameterId values from
	// the caller's perspective, but the cache treats ParameterId equality
	// (not Name equality) as parameter identity.
	Name() string
}

// ParameterName is a minimal ParameterId for callers whose parameter
// identity is just its name (e.g. a prewarm watchlist in package warming,
// or an administrative tool resetting by name). Systems that distinguish
// parameters sharing a name from different subsystems/instances should
// define their own richer ParameterId instead.
type ParameterName string

// Name implements ParameterId.
func (n ParameterName) Name() string { return string(n) }

// AcquisitionStatus classifies the freshness of a ParameterValue.
type AcquisitionStatus int32

const (
	// NotReceived means no value has ever been received for the parameter.
	NotReceived AcquisitionStatus = iota
	// Acquired means the value is fresh.
	Acquired
	// Expired means the value was Acquired but its expire_millis has
	// elapsed relative to wall-clock time as of the last read.
	Expired
	// Invalid means the value failed a validity check upstream.
	Invalid
)

func (s AcquisitionStatus) String() string {
	switch s {
	case Acquired:
		return "ACQUIRED"
	case Expired:
		return "EXPIRED"
	case Invalid:
		return "INVALID"
	default:
		return "NOT_RECEIVED"
	}
}

// ParameterValue carries one reading of one parameter. RawValue/EngValue are
// opaque to the cache. Status is stored behind atomic load/store so the sole
// sanctioned mutation -- the ACQUIRED to EXPIRED transition on read (see
// ParameterCache.checkExpiration) -- is race-free without a per-value lock.
// Every other field is set at construction and never mutated.
type ParameterValue struct {
	Parameter ParameterId
	RawValue  any
	EngValue  any

	status int32

	GenerationTime  time.Time
	AcquisitionTime time.Time

	// ExpireMillis is the time-to-live, in milliseconds, of an ACQUIRED
	// value relative to AcquisitionTime. A negative value means "never
	// expires".
	ExpireMillis int64
}

// NewParameterValue constructs a ParameterValue with the given initial
// status. Use this rather than a struct literal so Status is always
// initialized through the atomic accessor.
func NewParameterValue(pid ParameterId, raw, eng any, status AcquisitionStatus, genTime, acqTime time.Time, expireMillis int64) *ParameterValue {
	pv := &ParameterValue{
		Parameter:       pid,
		RawValue:        raw,
		EngValue:        eng,
		GenerationTime:  genTime,
		AcquisitionTime: acqTime,
		ExpireMillis:    expireMillis,
	}
	atomic.StoreInt32(&pv.status, int32(status))
	return pv
}

// Status returns the current acquisition status.
func (pv *ParameterValue) Status() AcquisitionStatus {
	return AcquisitionStatus(atomic.LoadInt32(&pv.status))
}

// expireIfDue transitions ACQUIRED to EXPIRED if the value is due to expire
// as of now. It is idempotent and safe for concurrent callers: only the
// ACQUIRED->EXPIRED edge is taken, via CompareAndSwap, so a monotone
// transition is guaranteed even if two readers race. Returns true if this
// call performed the transition (i.e. the value was freshly observed as
// expired by this caller).
func (pv *ParameterValue) expireIfDue(now time.Time) bool {
	if pv.ExpireMillis < 0 {
		return false
	}
	if AcquisitionStatus(atomic.LoadInt32(&pv.status)) != Acquired {
		return false
	}
	deadline := pv.AcquisitionTime.Add(time.Duration(pv.ExpireMillis) * time.Millisecond)
	if now.Before(deadline) {
		return false
	}
	return atomic.CompareAndSwapInt32(&pv.status, int32(Acquired), int32(Expired))
}
