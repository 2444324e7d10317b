// Package striped provides a concurrent map split into independently
// locked shards.
package striped

import (
	"hash/maphash"
	"sync"
)

// DefaultShards is the shard count used when New is given n < 1.
const DefaultShards = 16

type shard[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

// Map is a hash map whose keys are spread over a fixed number of shards,
// each behind its own RWMutex. Operations on keys in different shards never
// contend.
type Map[K comparable, V any] struct {
	seed   maphash.Seed
	shards []shard[K, V]
}

// New returns an empty Map with n shards.
func New[K comparable, V any](n int) *Map[K, V] {
	if n < 1 {
		n = DefaultShards
	}
	m := &Map[K, V]{
		seed:   maphash.MakeSeed(),
		shards: make([]shard[K, V], n),
	}
	for i := range m.shards {
		m.shards[i].m = make(map[K]V)
	}
	return m
}

func (m *Map[K, V]) shardFor(key K) *shard[K, V] {
	h := maphash.Comparable(m.seed, key)
	return &m.shards[h%uint64(len(m.shards))]
}

// Load returns the value stored for key.
func (m *Map[K, V]) Load(key K) (V, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	v, ok := s.m[key]
	s.mu.RUnlock()
	return v, ok
}

// Store sets the value for key and returns the previous one, if any.
func (m *Map[K, V]) Store(key K, value V) (V, bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	prev, ok := s.m[key]
	s.m[key] = value
	s.mu.Unlock()
	return prev, ok
}

// Update calls fn with the current value for key while holding the shard
// lock and stores the result. fn must not call back into the Map.
func (m *Map[K, V]) Update(key K, fn func(v V, ok bool) V) V {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	v = fn(v, ok)
	s.m[key] = v
	return v
}

// Delete removes key.
func (m *Map[K, V]) Delete(key K) {
	s := m.shardFor(key)
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
}

// Range calls fn for every entry, one shard at a time, until fn returns
// false. Entries added or removed concurrently may or may not be visited.
func (m *Map[K, V]) Range(fn func(key K, value V) bool) {
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		for k, v := range s.m {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Len returns the number of entries. It locks each shard in turn, so the
// result is only a snapshot under concurrent writes.
func (m *Map[K, V]) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		n += len(s.m)
		s.mu.RUnlock()
	}
	return n
}
