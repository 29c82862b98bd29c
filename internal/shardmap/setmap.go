package shardmap

import (
	"sync"

	"github.com/samber/lo"
)

// SetMap maps a key to a set of string members. A key exists only while its
// set is non-empty: removing the last member drops the key.
type SetMap struct {
	shards [ShardCount]setShard
}

type setShard struct {
	mu   sync.Mutex
	sets map[string]map[string]struct{}
}

// NewSetMap creates an empty SetMap.
func NewSetMap() *SetMap {
	m := &SetMap{}
	for i := range m.shards {
		m.shards[i].sets = make(map[string]map[string]struct{})
	}
	return m
}

// Add inserts member into the set of key. It reports whether the member was
// newly added and whether it is now the only member of the set.
func (m *SetMap) Add(key, member string) (added, first bool) {
	s := &m.shards[shardIndex(key)]
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	if _, exists := set[member]; exists {
		return false, false
	}
	set[member] = struct{}{}
	return true, len(set) == 1
}

// Remove deletes member from the set of key. It reports whether the member
// was present and whether the set became empty as a result.
func (m *SetMap) Remove(key, member string) (removed, emptied bool) {
	s := &m.shards[shardIndex(key)]
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sets[key]
	if !ok {
		return false, false
	}
	if _, exists := set[member]; !exists {
		return false, false
	}
	delete(set, member)
	if len(set) == 0 {
		delete(s.sets, key)
		return true, true
	}
	return true, false
}

// RemoveKey drops key and returns the members it held.
func (m *SetMap) RemoveKey(key string) []string {
	s := &m.shards[shardIndex(key)]
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sets[key]
	if !ok {
		return nil
	}
	delete(s.sets, key)
	return lo.Keys(set)
}

// Members returns a snapshot of the set of key, or nil if key is absent.
func (m *SetMap) Members(key string) []string {
	s := &m.shards[shardIndex(key)]
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		return nil
	}
	return lo.Keys(set)
}

// Contains reports whether member belongs to the set of key.
func (m *SetMap) Contains(key, member string) bool {
	s := &m.shards[shardIndex(key)]
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sets[key][member]
	return ok
}

// Size returns the number of members under key.
func (m *SetMap) Size(key string) int {
	s := &m.shards[shardIndex(key)]
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sets[key])
}

// Keys returns a snapshot of all keys that currently hold members.
func (m *SetMap) Keys() []string {
	var out []string
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		out = append(out, lo.Keys(s.sets)...)
		s.mu.Unlock()
	}
	return out
}
