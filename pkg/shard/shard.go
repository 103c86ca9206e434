// Package shard provides a lock-striped concurrent map keyed by an
// arbitrary comparable identity.
//
// Design Notes:
//   - Uses FNV-1a 64-bit hash (stdlib, fast, good distribution) to pick a
//     shard, the same hashing technique the distributed cache's consistent
//     hash ring used to pick a physical node -- here repurposed to pick a
//     lock instead of a network destination.
//   - Each shard holds its own sync.RWMutex and map, so unrelated keys
//     never contend with each other.
//   - GetOrCreate is the one operation that needs more than a map access:
//     it must construct at most one value per key under concurrent first
//     access ("atomic compare-and-insert"), so it takes the shard's write
//     lock directly rather than layering a second synchronization
//     primitive on top.
//
// Production extensions:
//   - Shard count is fixed at construction; a live-resizable table would
//     need consistent hashing across shards, which is not needed here
//     since shard count tracks CPU parallelism, not cluster membership.
package shard

import (
	"hash/fnv"
	"sync"
)

// Map is a concurrent map sharded by hash(key) to reduce lock contention
// across unrelated keys. The zero value is not usable; use New.
type Map[K comparable, V any] struct {
	shards []*shardEntry[K, V]
	mask   uint64
	keyFn  func(K) string
}

type shardEntry[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

// New creates a Map with numShards shards (rounded up to a power of two,
// minimum 1). keyFn converts a key to the string hashed to pick a shard;
// for ParameterId this is typically Name(), but any stable, sufficiently
// distinct projection works since shard choice only affects lock
// striping, never correctness.
func New[K comparable, V any](numShards int, keyFn func(K) string) *Map[K, V] {
	n := nextPow2(numShards)
	shards := make([]*shardEntry[K, V], n)
	for i := range shards {
		shards[i] = &shardEntry[K, V]{m: make(map[K]V)}
	}
	return &Map[K, V]{shards: shards, mask: uint64(n - 1), keyFn: keyFn}
}

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (m *Map[K, V]) shardFor(k K) *shardEntry[K, V] {
	h := fnv.New64a()
	_, _ = h.Write([]byte(m.keyFn(k)))
	return m.shards[h.Sum64()&m.mask]
}

// Get returns the value for k and whether it was present.
func (m *Map[K, V]) Get(k K) (V, bool) {
	s := m.shardFor(k)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[k]
	return v, ok
}

// Has reports whether k is present.
func (m *Map[K, V]) Has(k K) bool {
	s := m.shardFor(k)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.m[k]
	return ok
}

// Store unconditionally sets the value for k.
func (m *Map[K, V]) Store(k K, v V) {
	s := m.shardFor(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[k] = v
}

// GetOrCreate returns the existing value for k, or atomically constructs
// one via create and stores it if none existed. create is called at most
// once per key even under concurrent callers for the same key, which is
// what guarantees a single CacheEntry instance per ParameterId (spec §5).
// The second return value reports whether this call performed the
// creation.
func (m *Map[K, V]) GetOrCreate(k K, create func() V) (V, bool) {
	s := m.shardFor(k)

	s.mu.RLock()
	if v, ok := s.m[k]; ok {
		s.mu.RUnlock()
		return v, false
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.m[k]; ok {
		return v, false
	}
	v := create()
	s.m[k] = v
	return v, true
}

// Delete removes k, if present.
func (m *Map[K, V]) Delete(k K) {
	s := m.shardFor(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, k)
}

// Range calls f for every key/value pair. f must not call back into the
// same Map from within the callback (it is invoked while the owning
// shard's lock is held).
func (m *Map[K, V]) Range(f func(K, V) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		for k, v := range s.m {
			if !f(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Len returns the total number of entries across all shards.
func (m *Map[K, V]) Len() int {
	total := 0
	for _, s := range m.shards {
		s.mu.RLock()
		total += len(s.m)
		s.mu.RUnlock()
	}
	return total
}
