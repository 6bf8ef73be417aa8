// Package cache provides the in-memory TTL cache and the request coordinator
// that layers read-through caching, de-duplication, and timeouts over
// arbitrary fetch operations.
package cache

import (
	"sync"
	"time"

	"github.com/mkohlmann/cadence/internal/logger"
)

// entry is a cached value with its expiry bounds. Entries never leave the
// store; Get hands out the stored value only.
type entry struct {
	value     any
	createdAt time.Time
	expiresAt time.Time
}

// Store is an in-memory key/value cache with per-entry TTL. Expired entries
// are evicted lazily on read; an optional background sweep reclaims entries
// that are never read again. There is no size bound: the store holds bounded
// per-session metadata, not arbitrary growth.
type Store struct {
	entries   map[string]entry
	mu        sync.RWMutex
	sweeper   *time.Ticker
	stopChan  chan struct{}
	sweepDone chan struct{}
	started   bool
}

// NewStore creates an empty cache store
func NewStore() *Store {
	return &Store{
		entries: make(map[string]entry),
	}
}

// Set stores a value under key with the given TTL, overwriting any previous
// entry unconditionally. Non-positive TTLs are rejected as a no-op since the
// entry would be born expired.
func (s *Store) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{
		value:     value,
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
}

// Get returns the value for key. A missing or expired entry returns
// (nil, false); expired entries are evicted on the spot.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	ent, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if time.Now().After(ent.expiresAt) {
		s.mu.Lock()
		// Re-check under the write lock: a concurrent Set may have replaced
		// the entry since the read lock was dropped.
		if cur, ok := s.entries[key]; ok && cur.expiresAt.Equal(ent.expiresAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, false
	}

	return ent.value, true
}

// Remove deletes the entry for key. Removing a missing key is a no-op.
func (s *Store) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Clear removes all entries
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]entry)
}

// Len returns the number of entries currently held, including entries that
// have expired but not yet been evicted.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// StartSweeper starts a background loop that evicts expired entries every
// interval. Calling it twice is a no-op.
func (s *Store) StartSweeper(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.started = true
	s.sweeper = time.NewTicker(interval)
	s.stopChan = make(chan struct{})
	s.sweepDone = make(chan struct{})

	go s.runSweepLoop()
}

// StopSweeper stops the background sweep loop and waits for it to finish
func (s *Store) StopSweeper() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	close(s.stopChan)
	<-s.sweepDone
	s.sweeper.Stop()
}

// runSweepLoop evicts expired entries on each tick until stopped
func (s *Store) runSweepLoop() {
	defer close(s.sweepDone)

	for {
		select {
		case <-s.stopChan:
			return
		case <-s.sweeper.C:
			s.sweep()
		}
	}
}

// sweep removes every expired entry
func (s *Store) sweep() {
	now := time.Now()

	s.mu.Lock()
	evicted := 0
	for key, ent := range s.entries {
		if now.After(ent.expiresAt) {
			delete(s.entries, key)
			evicted++
		}
	}
	remaining := len(s.entries)
	s.mu.Unlock()

	if evicted > 0 {
		logger.Log.Debug().
			Int("evicted", evicted).
			Int("remaining", remaining).
			Msg("Cache sweep completed")
	}
}
