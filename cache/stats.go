package cache

// Stats is a snapshot of a store's counters. The hit rate derived here
// also feeds the external adaptation/monitoring collaborator together
// with MinHitRateForAdaptation and ThrashingThreshold.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Sets      uint64 `json:"sets"`
	Evictions uint64 `json:"evictions"`

	Entries     int   `json:"entries"`
	MemoryBytes int64 `json:"memoryBytes"`
}

// HitRate returns hits/(hits+misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
