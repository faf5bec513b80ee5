package cache

import (
	"context"
	"sort"
	"sync"
)

// DurableStore is the slower, larger-capacity second-chance tier. It
// survives process restarts and serves volatile misses. Entries are
// stored as opaque serialized blobs; expired entries are retained so
// they can still be served in offline mode.
//
// Implementations must be thread-safe.
type DurableStore interface {
	// Init prepares the backing engine (schema creation etc).
	Init(ctx context.Context) error
	// Get returns the entry for the given key, if it exists. The
	// boolean indicates whether the key was found; expiry is left for
	// the caller to judge.
	Get(ctx context.Context, key string) (*Entry, bool, error)
	// Set stores the entry under the given key, replacing any previous
	// entry, and trims the store to its byte budget.
	Set(ctx context.Context, key string, e *Entry) error
	// Delete removes the entry for the given key, if present.
	Delete(ctx context.Context, key string) error
	// Clear removes every entry.
	Clear(ctx context.Context) error
	// InvalidateByTags removes every entry carrying any of the tags.
	InvalidateByTags(ctx context.Context, tags []string) error
	// Keys calls the callback for each stored key.
	Keys(ctx context.Context, cb func(key string)) error
	// SizeBytes returns the sum of stored entry sizes.
	SizeBytes(ctx context.Context) (int64, error)
	// Close releases the backing engine.
	Close() error
}

// MemStore is an in-memory DurableStore. It does not actually survive
// restarts; it exists for tests and for running without a database
// file while keeping the two-tier code path intact.
type MemStore struct {
	mutex    sync.RWMutex
	maxBytes int64
	db       map[string]*Entry
}

// NewMemStore creates an empty MemStore with the given byte budget.
func NewMemStore(maxBytes int64) *MemStore {
	return &MemStore{
		maxBytes: maxBytes,
		db:       make(map[string]*Entry),
	}
}

func (m *MemStore) Init(ctx context.Context) error { return nil }

func (m *MemStore) Get(ctx context.Context, key string) (*Entry, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	e, ok := m.db[key]
	if !ok {
		return nil, false, nil
	}
	cp := *e
	return &cp, true, nil
}

func (m *MemStore) Set(ctx context.Context, key string, e *Entry) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	cp := *e
	m.db[key] = &cp
	m.trim()
	return nil
}

func (m *MemStore) Delete(ctx context.Context, key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.db, key)
	return nil
}

func (m *MemStore) Clear(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.db = make(map[string]*Entry)
	return nil
}

func (m *MemStore) InvalidateByTags(ctx context.Context, tags []string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for key, e := range m.db {
		for _, tag := range tags {
			if e.HasTag(tag) {
				delete(m.db, key)
				break
			}
		}
	}
	return nil
}

func (m *MemStore) Keys(ctx context.Context, cb func(key string)) error {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for key := range m.db {
		cb(key)
	}
	return nil
}

func (m *MemStore) SizeBytes(ctx context.Context) (int64, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.size(), nil
}

func (m *MemStore) Close() error { return nil }

// Estimate implements QuotaEstimator against the configured budget.
func (m *MemStore) Estimate() (usage, quota int64, err error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.size(), m.maxBytes, nil
}

func (m *MemStore) size() int64 {
	var total int64
	for _, e := range m.db {
		total += e.SizeBytes
	}
	return total
}

// trim evicts lowest-priority, least-recently-accessed entries until
// under budget. Entries holding unsaved changes are skipped.
func (m *MemStore) trim() {
	if m.maxBytes <= 0 || m.size() <= m.maxBytes {
		return
	}
	type candidate struct {
		key   string
		entry *Entry
	}
	candidates := make([]candidate, 0, len(m.db))
	for key, e := range m.db {
		if e.Metadata.HasUnsavedChanges {
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
	for _, c := range candidates {
		if m.size() <= m.maxBytes {
			break
		}
		delete(m.db, c.key)
	}
}
