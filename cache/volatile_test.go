package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testEntry(size int64, priority float64, lastAccess time.Time) *Entry {
	return &Entry{
		Data:      make([]byte, size),
		Timestamp: lastAccess,
		ExpiresAt: time.Now().Add(time.Hour),
		Priority:  priority,
		SizeBytes: size,
		Metadata: Metadata{
			CreatedAt:      lastAccess,
			LastAccessedAt: lastAccess,
		},
	}
}

func testWeights() Weights {
	return Weights{Frequency: DefaultFrequencyWeight, Recency: DefaultRecencyWeight}
}

func TestEvictionUnderBudget(t *testing.T) {
	s := NewVolatileStore(1000, testWeights(), zerolog.Nop())
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 20; i++ {
		// equal priority, later keys accessed later
		s.Set(fmt.Sprintf("key%d", i), testEntry(100, 50, base.Add(time.Duration(i)*time.Minute)))
	}

	if got := s.MemoryBytes(); got > 1000 {
		t.Errorf("memory = %d bytes, want at most 1000", got)
	}
	if s.Get("key0", false) != nil {
		t.Error("earliest key should have been evicted")
	}
	if s.Get("key19", false) == nil {
		t.Error("most recent key should have survived")
	}
	if s.Stats().Evictions == 0 {
		t.Error("expected evictions to be counted")
	}
}

func TestUnsavedChangesNeverEvicted(t *testing.T) {
	s := NewVolatileStore(1000, testWeights(), zerolog.Nop())
	dirty := testEntry(100, 1, time.Now().Add(-24*time.Hour))
	dirty.Metadata.HasUnsavedChanges = true
	s.Set("dirty", dirty)

	for i := 0; i < 50; i++ {
		s.Set(fmt.Sprintf("key%d", i), testEntry(100, 60, time.Now()))
	}
	if s.Get("dirty", false) == nil {
		t.Error("entry with unsaved changes must survive eviction")
	}
}

func TestCriticalPriorityProtected(t *testing.T) {
	s := NewVolatileStore(1000, testWeights(), zerolog.Nop())
	s.Set("critical", testEntry(100, 95, time.Now().Add(-24*time.Hour)))
	for i := 0; i < 50; i++ {
		s.Set(fmt.Sprintf("key%d", i), testEntry(100, 60, time.Now()))
	}
	if s.Get("critical", false) == nil {
		t.Error("critical entry must survive eviction")
	}
}

func TestEvictionTieBreakOlderFirst(t *testing.T) {
	s := NewVolatileStore(250, testWeights(), zerolog.Nop())
	now := time.Now()
	s.Set("older", testEntry(100, 50, now.Add(-time.Hour)))
	s.Set("newer", testEntry(100, 50, now))
	// overflow forces a cleanup to 200 bytes; exactly one must go
	s.Set("filler", testEntry(100, 70, now))

	if s.Get("older", false) != nil {
		t.Error("older entry should have been evicted first")
	}
	if s.Get("newer", false) == nil {
		t.Error("newer entry should have survived the tie-break")
	}
}

func TestExpiredEntryRetainedForOffline(t *testing.T) {
	s := NewVolatileStore(1000, testWeights(), zerolog.Nop())
	e := testEntry(10, 50, time.Now())
	e.ExpiresAt = time.Now().Add(-time.Minute)
	s.Set("page:/dash", e)

	if s.Get("page:/dash", false) != nil {
		t.Error("expired entry should be a miss")
	}
	// not deleted on lookup
	if !s.Contains("page:/dash") {
		t.Error("expired entry should be retained")
	}
	if s.Get("page:/dash", true) == nil {
		t.Error("ignoreExpiry should serve the expired entry")
	}
}

func TestGetUpdatesAccessBookkeeping(t *testing.T) {
	s := NewVolatileStore(1000, testWeights(), zerolog.Nop())
	s.Set("k", testEntry(10, 50, time.Now().Add(-time.Minute)))

	e := s.Get("k", false)
	if e == nil {
		t.Fatal("expected hit")
	}
	if e.Metadata.AccessCount != 1 {
		t.Errorf("access count = %d, want 1", e.Metadata.AccessCount)
	}
	if e.Metadata.Source != SourceVolatile {
		t.Errorf("source = %s, want volatile", e.Metadata.Source)
	}

	st := s.Stats()
	if st.Hits != 1 {
		t.Errorf("hits = %d, want 1", st.Hits)
	}
	s.Get("missing", false)
	if got := s.Stats().HitRate(); got != 0.5 {
		t.Errorf("hit rate = %f, want 0.5", got)
	}
}

func TestInvalidateByTags(t *testing.T) {
	s := NewVolatileStore(1000, testWeights(), zerolog.Nop())
	a := testEntry(10, 50, time.Now())
	a.Tags = []string{"timetable"}
	b := testEntry(10, 50, time.Now())
	b.Tags = []string{"profile"}
	s.Set("a", a)
	s.Set("b", b)

	removed := s.InvalidateByTags([]string{"timetable"})
	if len(removed) != 1 || removed[0] != "a" {
		t.Errorf("removed = %v, want [a]", removed)
	}
	if s.Contains("a") || !s.Contains("b") {
		t.Error("wrong entries removed")
	}

	// unknown tag is a no-op
	if removed := s.InvalidateByTags([]string{"nope"}); len(removed) != 0 {
		t.Errorf("removed = %v, want none", removed)
	}
}

func TestMarkStaleEntries(t *testing.T) {
	s := NewVolatileStore(1000, testWeights(), zerolog.Nop())
	s.Set("old", testEntry(10, 50, time.Now().Add(-10*time.Minute)))
	s.Set("fresh", testEntry(10, 50, time.Now()))

	marked := s.MarkStaleEntries(5 * time.Minute)
	if len(marked) != 1 || marked[0] != "old" {
		t.Errorf("marked = %v, want [old]", marked)
	}
	if !s.Get("old", false).Stale {
		t.Error("old entry should be flagged stale")
	}
	if s.Get("fresh", false).Stale {
		t.Error("fresh entry should not be stale")
	}
	// already-stale entries are not re-reported
	if marked := s.MarkStaleEntries(5 * time.Minute); len(marked) != 0 {
		t.Errorf("second mark = %v, want none", marked)
	}
}

func TestCleanupExpired(t *testing.T) {
	s := NewVolatileStore(1000, testWeights(), zerolog.Nop())
	e := testEntry(10, 50, time.Now())
	e.ExpiresAt = time.Now().Add(-time.Minute)
	s.Set("gone", e)
	s.Set("kept", testEntry(10, 50, time.Now()))

	if removed := s.CleanupExpired(); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if s.Contains("gone") || !s.Contains("kept") {
		t.Error("wrong entries purged")
	}
}

func TestPinnedKeysSurviveCleanup(t *testing.T) {
	s := NewVolatileStore(1000, testWeights(), zerolog.Nop())
	s.Set("pinned", testEntry(100, 1, time.Now().Add(-24*time.Hour)))
	s.Pin([]string{"pinned"})
	for i := 0; i < 50; i++ {
		s.Set(fmt.Sprintf("key%d", i), testEntry(100, 60, time.Now()))
	}
	if !s.Contains("pinned") {
		t.Error("pinned key must survive eviction")
	}
}

func TestSetReplacesAndAdjustsBytes(t *testing.T) {
	s := NewVolatileStore(1000, testWeights(), zerolog.Nop())
	s.Set("k", testEntry(400, 50, time.Now()))
	s.Set("k", testEntry(100, 50, time.Now()))
	if got := s.MemoryBytes(); got != 100 {
		t.Errorf("memory = %d, want 100", got)
	}
	if s.Len() != 1 {
		t.Errorf("len = %d, want 1", s.Len())
	}
}

func TestClear(t *testing.T) {
	s := NewVolatileStore(1000, testWeights(), zerolog.Nop())
	s.Set("k", testEntry(10, 50, time.Now()))
	s.Clear()
	if s.Len() != 0 || s.MemoryBytes() != 0 {
		t.Error("clear should drop everything")
	}
}
