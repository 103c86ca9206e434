package paramcache

// Recorder receives best-effort, non-blocking notifications of cache
// lifecycle events for one parameter. Implementations (see package
// monitoring) must not block the caller beyond an atomic increment or a
// buffered channel send with a default case; a nil Recorder is the zero
// value and valid -- ParameterCache checks for nil before every call, so
// paramcache itself carries no observability dependency.
type Recorder interface {
	// RecordWrite is called once per parameter considered by
	// CacheEntry.Add: accepted is false for drops (out-of-order or
	// corrupt-delivery, see spec §4.2/§7).
	RecordWrite(pid ParameterId, accepted bool)
	// RecordGrow is called when a CacheEntry's ring doubles capacity.
	RecordGrow(pid ParameterId, oldCapacity, newCapacity int)
	// RecordExpiration is called when a read transitions a value from
	// ACQUIRED to EXPIRED.
	RecordExpiration(pid ParameterId)
	// RecordSubscription is called when a parameter is newly enrolled in
	// the lazy-subscription set.
	RecordSubscription(pid ParameterId)
}

func recordWrite(r Recorder, pid ParameterId, accepted bool) {
	if r != nil {
		r.RecordWrite(pid, accepted)
	}
}

func recordGrow(r Recorder, pid ParameterId, oldCap, newCap int) {
	if r != nil {
		r.RecordGrow(pid, oldCap, newCap)
	}
}

func recordExpiration(r Recorder, pid ParameterId) {
	if r != nil {
		r.RecordExpiration(pid)
	}
}

func recordSubscription(r Recorder, pid ParameterId) {
	if r != nil {
		r.RecordSubscription(pid)
	}
}
