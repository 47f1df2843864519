// Package cachestore is a bounded read-through cache keyed by structured
// tuples. The invalidation router marks keys stale; consumers refetch lazily
// on the next read. The store itself never fetches.
package cachestore

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Key is a structured cache key tuple, e.g. {Kind: "identity", Scope: "user-1"}.
type Key struct {
	Kind  string
	Scope string
}

// String renders the key for logs and diagnostics.
func (k Key) String() string {
	return k.Kind + "/" + k.Scope
}

type entry struct {
	value      any
	fetchedAt  time.Time
	staleAfter time.Duration
}

// Store is a bounded LRU cache with per-entry staleness windows.
// It is safe for concurrent use.
type Store struct {
	entries *lru.Cache[Key, entry]
	clock   clock.Clock
}

// New creates a store holding at most capacity entries.
func New(capacity int, clk clock.Clock) (*Store, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", capacity)
	}
	if clk == nil {
		clk = clock.New()
	}
	entries, err := lru.New[Key, entry](capacity)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &Store{entries: entries, clock: clk}, nil
}

// Get returns the cached value for key. A missing or stale entry reports
// ok=false; stale entries are evicted on read.
func (s *Store) Get(key Key) (any, bool) {
	cached, ok := s.entries.Get(key)
	if !ok {
		return nil, false
	}
	if cached.staleAfter > 0 && s.clock.Now().Sub(cached.fetchedAt) >= cached.staleAfter {
		s.entries.Remove(key)
		return nil, false
	}
	return cached.value, true
}

// Put stores value under key. A non-positive staleAfter means the entry never
// expires on its own and is only removed by Invalidate or LRU pressure.
func (s *Store) Put(key Key, value any, staleAfter time.Duration) {
	s.entries.Add(key, entry{
		value:      value,
		fetchedAt:  s.clock.Now(),
		staleAfter: staleAfter,
	})
}

// Invalidate discards the entry for key. Missing keys are a no-op.
func (s *Store) Invalidate(key Key) {
	s.entries.Remove(key)
}

// Len reports the number of live entries, including ones past their
// staleness window that have not been read since.
func (s *Store) Len() int {
	return s.entries.Len()
}
