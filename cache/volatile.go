package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// VolatileStore is the fast in-memory cache tier. It is size-bounded
// and evicts by (priority ascending, last access ascending), protecting
// critical entries and pinned routes.
//
// Must be safe for concurrent use.
type VolatileStore struct {
	mu       sync.Mutex
	maxBytes int64
	weights  Weights
	entries  map[string]*Entry
	bytes    int64
	pinned   map[string]struct{}
	stats    Stats
	log      zerolog.Logger
}

// NewVolatileStore creates an empty volatile tier with the given byte
// budget and priority weights.
func NewVolatileStore(maxBytes int64, weights Weights, logger zerolog.Logger) *VolatileStore {
	return &VolatileStore{
		maxBytes: maxBytes,
		weights:  weights,
		entries:  make(map[string]*Entry),
		pinned:   make(map[string]struct{}),
		log:      logger.With().Str("component", "volatile-store").Logger(),
	}
}

// Get returns the entry for key, or nil on a miss. An expired entry
// counts as a miss unless ignoreExpiry is set, but is kept in the store
// so it can still be served in offline mode. A hit updates the entry's
// access bookkeeping and recomputes its priority.
func (s *VolatileStore) Get(key string, ignoreExpiry bool) *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	e, ok := s.entries[key]
	if !ok {
		s.stats.Misses++
		return nil
	}
	if !ignoreExpiry && e.Expired(now) {
		// expired entries are retained for offline fallback
		s.stats.Misses++
		return nil
	}
	e.Touch(now, s.weights)
	e.Metadata.Source = SourceVolatile
	s.stats.Hits++
	return e
}

// Contains reports key presence regardless of expiry, without counting
// a lookup or touching the entry.
func (s *VolatileStore) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

// Set stores the entry under key, replacing any previous entry. If the
// running byte total exceeds the budget, cleanup runs immediately.
func (s *VolatileStore) Set(key string, e *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.SizeBytes == 0 {
		e.SizeBytes = int64(len(e.Data))
	}
	if old, ok := s.entries[key]; ok {
		s.bytes -= old.SizeBytes
	}
	s.entries[key] = e
	s.bytes += e.SizeBytes
	s.stats.Sets++

	if s.bytes > s.maxBytes {
		s.cleanupLocked(int64(float64(s.maxBytes) * cleanupTarget))
	}
}

// Delete removes the entry for key, reporting whether it existed.
func (s *VolatileStore) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(key)
}

// Clear drops every entry and resets the byte total.
func (s *VolatileStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*Entry)
	s.bytes = 0
}

// InvalidateByTags removes every entry carrying at least one of the
// given tags and returns the removed keys.
func (s *VolatileStore) InvalidateByTags(tags []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for key, e := range s.entries {
		for _, tag := range tags {
			if e.HasTag(tag) {
				removed = append(removed, key)
				break
			}
		}
	}
	for _, key := range removed {
		s.deleteLocked(key)
	}
	return removed
}

// Cleanup evicts entries until memory use is at or below 80% of the
// budget. Returns the number of evicted entries.
func (s *VolatileStore) Cleanup() int {
	return s.CleanupTo(int64(float64(s.maxBytes) * cleanupTarget))
}

// CleanupTo evicts entries until memory use is at or below target
// bytes. Eviction order is priority ascending, ties broken by older
// last access. Entries with priority above the critical threshold,
// entries holding unsaved changes, and pinned keys are never evicted.
func (s *VolatileStore) CleanupTo(target int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanupLocked(target)
}

func (s *VolatileStore) cleanupLocked(target int64) int {
	if s.bytes <= target {
		return 0
	}

	type candidate struct {
		key   string
		entry *Entry
	}
	candidates := make([]candidate, 0, len(s.entries))
	for key, e := range s.entries {
		if e.Priority > criticalPriority || e.Metadata.HasUnsavedChanges {
			continue
		}
		if _, ok := s.pinned[key]; ok {
			continue
		}
		candidates = append(candidates, candidate{key, e})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].entry.Priority != candidates[j].entry.Priority {
			return candidates[i].entry.Priority < candidates[j].entry.Priority
		}
		return candidates[i].entry.Metadata.LastAccessedAt.Before(candidates[j].entry.Metadata.LastAccessedAt)
	})

	evicted := 0
	for _, c := range candidates {
		if s.bytes <= target {
			break
		}
		s.deleteLocked(c.key)
		s.stats.Evictions++
		evicted++
	}
	if evicted > 0 {
		s.log.Debug().Int("evicted", evicted).Int64("bytes", s.bytes).Msg("Cleanup evicted entries")
	}
	return evicted
}

// MarkStaleEntries flags entries whose last access is older than
// olderThan as stale and returns their keys.
func (s *VolatileStore) MarkStaleEntries(olderThan time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var marked []string
	for key, e := range s.entries {
		if e.Stale {
			continue
		}
		if now.Sub(e.Metadata.LastAccessedAt) > olderThan {
			e.Stale = true
			marked = append(marked, key)
		}
	}
	return marked
}

// CleanupExpired removes entries whose expiry has passed and returns
// the number removed. Unlike Get, this is an explicit purge for
// callers that know offline fallback is not needed.
func (s *VolatileStore) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, e := range s.entries {
		if e.Expired(now) {
			s.deleteLocked(key)
			removed++
		}
	}
	return removed
}

// Pin replaces the set of keys protected from eviction.
func (s *VolatileStore) Pin(keys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pinned = make(map[string]struct{}, len(keys))
	for _, key := range keys {
		s.pinned[key] = struct{}{}
	}
}

// Keys returns the stored keys in unspecified order.
func (s *VolatileStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	return keys
}

// MemoryBytes returns the running byte total.
func (s *VolatileStore) MemoryBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}

// Len returns the number of stored entries.
func (s *VolatileStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stats returns a snapshot of the store's counters.
func (s *VolatileStore) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Entries = len(s.entries)
	st.MemoryBytes = s.bytes
	return st
}

func (s *VolatileStore) deleteLocked(key string) bool {
	e, ok := s.entries[key]
	if !ok {
		return false
	}
	s.bytes -= e.SizeBytes
	delete(s.entries, key)
	return true
}
