package shard

import (
	"strconv"
	"sync"
	"testing"
)

func keyFn(k string) string { return k }

func TestMap_StoreGet(t *testing.T) {
	m := New[string, int](4, keyFn)
	if _, ok := m.Get("a"); ok {
		t.Fatal("Get on empty map found a value")
	}
	m.Store("a", 1)
	v, ok := m.Get("a")
	if !ok || v != 1 {
		t.Fatalf("Get(a) = (%d, %v), want (1, true)", v, ok)
	}
	if !m.Has("a") {
		t.Error("Has(a) = false, want true")
	}
	if m.Has("b") {
		t.Error("Has(b) = true, want false")
	}
}

func TestMap_GetOrCreate(t *testing.T) {
	m := New[string, int](4, keyFn)
	calls := 0
	create := func() int { calls++; return 42 }

	v, created := m.GetOrCreate("a", create)
	if !created || v != 42 {
		t.Fatalf("first GetOrCreate = (%d, %v), want (42, true)", v, created)
	}
	v, created = m.GetOrCreate("a", create)
	if created || v != 42 {
		t.Fatalf("second GetOrCreate = (%d, %v), want (42, false)", v, created)
	}
	if calls != 1 {
		t.Errorf("create called %d times, want 1", calls)
	}
}

// Concurrent GetOrCreate calls for the same key must construct exactly one
// value, matching ParameterCache's single-CacheEntry-per-pid guarantee.
func TestMap_GetOrCreate_ConcurrentSameKey(t *testing.T) {
	m := New[string, int](8, keyFn)
	var calls int32Counter
	var wg sync.WaitGroup
	const n = 100
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			m.GetOrCreate("shared", func() int {
				calls.inc()
				return 7
			})
		}()
	}
	wg.Wait()
	if calls.get() != 1 {
		t.Errorf("create invoked %d times under concurrency, want 1", calls.get())
	}
}

type int32Counter struct {
	mu sync.Mutex
	n  int
}

func (c *int32Counter) inc() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
}

func (c *int32Counter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func TestMap_Delete(t *testing.T) {
	m := New[string, int](4, keyFn)
	m.Store("a", 1)
	m.Delete("a")
	if m.Has("a") {
		t.Error("Has(a) after Delete = true, want false")
	}
	m.Delete("never-stored") // no-op, must not panic
}

func TestMap_RangeAndLen(t *testing.T) {
	m := New[string, int](4, keyFn)
	for i := 0; i < 20; i++ {
		m.Store("k"+strconv.Itoa(i), i)
	}
	if got := m.Len(); got != 20 {
		t.Fatalf("Len() = %d, want 20", got)
	}
	seen := 0
	m.Range(func(k string, v int) bool {
		seen++
		return true
	})
	if seen != 20 {
		t.Errorf("Range visited %d entries, want 20", seen)
	}
}

func TestMap_Range_EarlyStop(t *testing.T) {
	m := New[string, int](1, keyFn)
	for i := 0; i < 10; i++ {
		m.Store("k"+strconv.Itoa(i), i)
	}
	seen := 0
	m.Range(func(k string, v int) bool {
		seen++
		return seen < 3
	})
	if seen != 3 {
		t.Errorf("Range visited %d entries, want early stop at 3", seen)
	}
}

func TestNextPow2(t *testing.T) {
	cases := map[int]int{0: 1, 1: 1, 2: 2, 3: 4, 5: 8, 64: 64, 65: 128}
	for in, want := range cases {
		if got := nextPow2(in); got != want {
			t.Errorf("nextPow2(%d) = %d, want %d", in, got, want)
		}
	}
}
