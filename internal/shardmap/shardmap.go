// Package shardmap provides keyed containers split across independently
// locked shards so that operations on unrelated keys do not contend.
package shardmap

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// ShardCount is the number of shards used by every container in this package.
const ShardCount = 64

func shardIndex(key string) uint64 {
	return xxhash.Sum64String(key) % ShardCount
}

// Map is a concurrency-safe string-keyed map.
type Map[V any] struct {
	shards [ShardCount]mapShard[V]
}

type mapShard[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// NewMap creates an empty Map.
func NewMap[V any]() *Map[V] {
	m := &Map[V]{}
	for i := range m.shards {
		m.shards[i].items = make(map[string]V)
	}
	return m
}

// Load returns the value stored under key.
func (m *Map[V]) Load(key string) (V, bool) {
	s := &m.shards[shardIndex(key)]
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// Store sets the value for key, replacing any previous value.
func (m *Map[V]) Store(key string, value V) {
	s := &m.shards[shardIndex(key)]
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
}

// Delete removes key and reports whether it was present.
func (m *Map[V]) Delete(key string) bool {
	s := &m.shards[shardIndex(key)]
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; !ok {
		return false
	}
	delete(s.items, key)
	return true
}

// Values returns a snapshot of all values. Shards are visited one at a time,
// so the snapshot is not atomic across shards.
func (m *Map[V]) Values() []V {
	var out []V
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		for _, v := range s.items {
			out = append(out, v)
		}
		s.mu.RUnlock()
	}
	return out
}

// Len returns the number of stored keys.
func (m *Map[V]) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}
