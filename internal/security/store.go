package security

import (
	"sync"
	"time"
)

type storeEntry[V any] struct {
	value   V
	resetAt time.Time
}

// Store is a keyed map where each entry carries an expiry instant. Reads
// past the expiry treat the entry as absent; physical removal happens in
// Sweep. Every stateful guard in the pipeline is built on one of these.
type Store[V any] struct {
	mu      sync.Mutex
	entries map[string]storeEntry[V]
}

// NewStore constructs an empty store.
func NewStore[V any]() *Store[V] {
	return &Store[V]{entries: make(map[string]storeEntry[V])}
}

// Get returns the live value for key. Expired entries read as absent.
func (s *Store[V]) Get(key string, now time.Time) (V, bool) {
	var zero V
	if s == nil {
		return zero, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok || !now.Before(entry.resetAt) {
		return zero, false
	}
	return entry.value, true
}

// Set stores value under key until resetAt, overwriting unconditionally.
func (s *Store[V]) Set(key string, value V, resetAt time.Time) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		s.entries = make(map[string]storeEntry[V])
	}
	s.entries[key] = storeEntry[V]{value: value, resetAt: resetAt}
}

// Mutate applies fn to the live value for key under the store lock. fn
// receives the current value (zero if absent or expired) and reports the
// replacement value and its expiry. The replacement is stored and returned.
func (s *Store[V]) Mutate(key string, now time.Time, fn func(value V, live bool) (V, time.Time)) V {
	var zero V
	if s == nil || fn == nil {
		return zero
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		s.entries = make(map[string]storeEntry[V])
	}
	entry, ok := s.entries[key]
	live := ok && now.Before(entry.resetAt)
	current := zero
	if live {
		current = entry.value
	}
	next, resetAt := fn(current, live)
	s.entries[key] = storeEntry[V]{value: next, resetAt: resetAt}
	return next
}

// Sweep removes every entry whose expiry instant is at or before now and
// reports how many were removed.
func (s *Store[V]) Sweep(now time.Time) int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, entry := range s.entries {
		if !now.Before(entry.resetAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of physical entries, expired ones included.
func (s *Store[V]) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Range calls fn for every live entry. Used by the admin snapshots.
func (s *Store[V]) Range(now time.Time, fn func(key string, value V) bool) {
	if s == nil || fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.entries {
		if !now.Before(entry.resetAt) {
			continue
		}
		if !fn(key, entry.value) {
			return
		}
	}
}
