/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"sync"
	"time"
)

// windowStore tracks recent request timestamps for each client key.
// It behaves as a monitor: every read-modify-write cycle happens under a single mutex,
// so no caller can observe a partially updated window.
type windowStore struct {
	mu      sync.Mutex
	clients map[string][]time.Time
}

func newWindowStore() *windowStore {
	return &windowStore{clients: make(map[string][]time.Time)}
}

// check records a request attempt for the given key at the given moment
// and reports whether it fits into the limit for the trailing window.
//
// The window is re-filtered and the current timestamp is appended on every call,
// including denied ones. A client that is being rate-limited is still active,
// and its last-seen time must keep reflecting contact so that cleanup
// does not evict it prematurely. Do not "optimize" the append away:
// it changes eviction timing.
func (s *windowStore) check(key string, now time.Time, limit int, window time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-window)
	prev := s.clients[key]
	recent := make([]time.Time, 0, len(prev)+1)
	for _, ts := range prev {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}
	allowed := len(recent) < limit
	s.clients[key] = append(recent, now)
	return allowed
}

// cleanup removes clients whose most recent request is older than ttl.
// Entries with no timestamps at all are removed too.
// Windows of retained clients are left untouched, they are pruned on the next check.
// Returns the number of evicted clients.
func (s *windowStore) cleanup(now time.Time, ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for key, timestamps := range s.clients {
		if len(timestamps) == 0 {
			delete(s.clients, key)
			evicted++
			continue
		}
		if now.Sub(timestamps[len(timestamps)-1]) > ttl {
			delete(s.clients, key)
			evicted++
		}
	}
	return evicted
}

// size returns the number of tracked clients.
func (s *windowStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
