package paramcache

import "testing"

func singleValueDelivery(pid ParameterId, genMillis int64) *DeliveryList {
	return NewDeliveryList([]*ParameterValue{mkpv(pid, genMillis, Acquired)})
}

// Scenario 3 (spec.md §8): window growth. max_duration_ms=1000, initial
// capacity 4. newCacheEntry with maxNumEntries=16 starts at capacity 16
// (min(128, 16)), so the test shrinks the fresh, empty ring to 4 by hand.
func TestCacheEntry_WindowGrowth(t *testing.T) {
	pid := testParam("A")
	// max_num_entries=16 is the hard cap the ring may grow into; the
	// capacity and buffer are then cut to 4 to match the scenario's
	// "initial capacity 4".
	ce := newCacheEntry(pid, 1000, 16, nil)
	ce.capacity = 4
	ce.buffer = ce.buffer[:4]
	if got := ce.Capacity(); got != 4 {
		t.Fatalf("initial capacity = %d, want 4", got)
	}

	for _, gen := range []int64{0, 100, 200, 300, 400} {
		ce.Add(singleValueDelivery(pid, gen))
	}

	// Span of the 5 deliveries (400ms) is less than max_duration_ms
	// (1000ms), so capacity must have grown past 4 before any slot was
	// overwritten, and all 5 values must still be retained.
	if got := ce.Capacity(); got < 5 {
		t.Errorf("capacity = %d, want >= 5 (ring must have grown)", got)
	}
	all := ce.GetAll()
	if len(all) != 5 {
		t.Fatalf("GetAll() len = %d, want 5; values=%v", len(all), all)
	}
	for i, want := range []int64{400, 300, 200, 100, 0} {
		if all[i].GenerationTime.UnixMilli() != want {
			t.Errorf("all[%d] generation = %d, want %d", i, all[i].GenerationTime.UnixMilli(), want)
		}
	}
}

// Scenario 4: capacity cap. max_num_entries=4. Insert 6 deliveries;
// GetAll returns exactly 4, newest first, oldest two dropped.
func TestCacheEntry_CapacityCap(t *testing.T) {
	pid := testParam("A")
	// Use a time-to-cache of 0 so growth is never triggered by the window
	// rule; only the hard cap governs retention.
	ce := newCacheEntry(pid, 0, 4, nil)

	for _, gen := range []int64{0, 100, 200, 300, 400, 500} {
		ce.Add(singleValueDelivery(pid, gen))
	}

	if got := ce.Capacity(); got != 4 {
		t.Fatalf("capacity = %d, want 4 (must not exceed max_num_entries)", got)
	}
	all := ce.GetAll()
	if len(all) != 4 {
		t.Fatalf("GetAll() len = %d, want 4", len(all))
	}
	for i, want := range []int64{500, 400, 300, 200} {
		if all[i].GenerationTime.UnixMilli() != want {
			t.Errorf("all[%d] generation = %d, want %d", i, all[i].GenerationTime.UnixMilli(), want)
		}
	}
}

// P4: a delivery whose newest generation_time for pid is strictly less
// than the previously recorded newest is dropped and never observable.
//
// The out-of-order check only runs once the ring has wrapped onto an
// already-written slot (spec §4.2 step 2: "If slot is non-nil"), so the
// ring must first be filled to capacity before a stale write can be
// detected and dropped.
func TestCacheEntry_OutOfOrderDrop(t *testing.T) {
	pid := testParam("A")
	ce := newCacheEntry(pid, 0, 4, nil)

	for _, gen := range []int64{1000, 2000, 3000, 4000} {
		ce.Add(singleValueDelivery(pid, gen))
	}
	// Out of order: older than the current newest (4000).
	ce.Add(singleValueDelivery(pid, 500))

	all := ce.GetAll()
	if len(all) != 4 {
		t.Fatalf("GetAll() len = %d, want 4 (out-of-order write must be dropped)", len(all))
	}
	for i, want := range []int64{4000, 3000, 2000, 1000} {
		if all[i].GenerationTime.UnixMilli() != want {
			t.Errorf("all[%d] generation = %d, want %d", i, all[i].GenerationTime.UnixMilli(), want)
		}
	}
}

// P1: ring integrity -- capacity never exceeds max_num_entries (rounded up
// to a power of two) regardless of how many deliveries are written.
func TestCacheEntry_RingIntegrity(t *testing.T) {
	pid := testParam("A")
	ce := newCacheEntry(pid, 0, 10, nil) // rounds up to 16

	for i := int64(0); i < 100; i++ {
		ce.Add(singleValueDelivery(pid, i*10))
	}

	if got := ce.Capacity(); got != 16 {
		t.Errorf("capacity = %d, want 16 (10 rounded up to pow2)", got)
	}
	if got := len(ce.GetAll()); got > 16 {
		t.Errorf("retained count = %d, want <= 16", got)
	}
}

func TestCacheEntry_GetLastEmpty(t *testing.T) {
	ce := newCacheEntry(testParam("A"), 0, 4, nil)
	if got := ce.GetLast(); got != nil {
		t.Errorf("GetLast() on empty entry = %v, want nil", got)
	}
	if got := ce.GetAll(); got != nil {
		t.Errorf("GetAll() on empty entry = %v, want nil", got)
	}
}

// Repeated pid within one delivery: GetAll must include every occurrence.
func TestCacheEntry_RepeatedPidInDelivery(t *testing.T) {
	pid := testParam("A")
	ce := newCacheEntry(pid, 0, 4, nil)

	dl := NewDeliveryList([]*ParameterValue{
		mkpv(pid, 100, Acquired),
		mkpv(pid, 100, Invalid), // same generation time, second occurrence
	})
	ce.Add(dl)

	all := ce.GetAll()
	if len(all) != 2 {
		t.Fatalf("GetAll() len = %d, want 2 (both occurrences in the delivery)", len(all))
	}
}

func TestNextPow2(t *testing.T) {
	cases := map[int]int{1: 1, 2: 2, 3: 4, 4: 4, 5: 8, 16: 16, 17: 32, 1024: 1024, 1025: 2048}
	for in, want := range cases {
		if got := nextPow2(in); got != want {
			t.Errorf("nextPow2(%d) = %d, want %d", in, got, want)
		}
	}
}
