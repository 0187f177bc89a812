// Package memory implements an in-memory cachestore.Store.
package memory

import (
	"sync"

	"github.com/marmos91/storage-gateway/pkg/cachestore"
)

// Store is a cachestore.Store backed by a map guarded by a single mutex.
//
// Characteristics:
//   - Very fast, no I/O overhead.
//   - Limited by available RAM; no eviction — the gateway relies on
//     EdgeCache's TTL/expire check to bound how long stale entries survive.
//   - Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[string]cachestore.CachedEntry
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{entries: make(map[string]cachestore.CachedEntry)}
}

// Get implements cachestore.Store.
func (s *Store) Get(key string) (cachestore.CachedEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	return entry, ok
}

// Put implements cachestore.Store.
func (s *Store) Put(key string, entry cachestore.CachedEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = entry
	return nil
}

// Delete implements cachestore.Store.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Len returns the number of entries currently held. Used by the admin
// diagnostics surface (/debug/cache/stats), not by the data path.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}
