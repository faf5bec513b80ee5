package cache

import "time"

// Defaults applied by Normalize when a field is unset or out of range.
const (
	DefaultMaxVolatileBytes = 10 << 20  // 10 MiB
	DefaultMaxDurableBytes  = 100 << 20 // 100 MiB
	DefaultTTL              = 5 * time.Minute
	DefaultStaleTTL         = 30 * time.Minute

	DefaultFrequencyWeight = 0.6
	DefaultRecencyWeight   = 0.4

	DefaultMinHitRateForAdaptation = 0.5
	DefaultThrashingThreshold      = 10

	// cleanupTarget is the fraction of the volatile budget cleanup aims
	// for; pressureTarget is used under explicit memory pressure.
	cleanupTarget  = 0.8
	pressureTarget = 0.5

	// criticalPriority marks entries that eviction must never touch.
	criticalPriority = 80
)

// Weights tune the access-pattern priority formula.
type Weights struct {
	Frequency float64 `yaml:"frequency"`
	Recency   float64 `yaml:"recency"`
}

// Config is the tuning surface for the whole cache subsystem.
type Config struct {
	MaxVolatileBytes        int64
	MaxDurableBytes         int64
	DefaultTTL              time.Duration
	StaleTTL                time.Duration
	EnablePersistence       bool
	PriorityWeights         Weights
	MinHitRateForAdaptation float64
	ThrashingThreshold      int
}

// DefaultConfig returns a config with every knob at its default.
func DefaultConfig() Config {
	return Config{
		MaxVolatileBytes:        DefaultMaxVolatileBytes,
		MaxDurableBytes:         DefaultMaxDurableBytes,
		DefaultTTL:              DefaultTTL,
		StaleTTL:                DefaultStaleTTL,
		EnablePersistence:       true,
		PriorityWeights:         Weights{Frequency: DefaultFrequencyWeight, Recency: DefaultRecencyWeight},
		MinHitRateForAdaptation: DefaultMinHitRateForAdaptation,
		ThrashingThreshold:      DefaultThrashingThreshold,
	}
}

// Normalize clamps or resets invalid values instead of returning an
// error. Invalid configuration must never take the cache down.
func (c Config) Normalize() Config {
	if c.MaxVolatileBytes <= 0 {
		c.MaxVolatileBytes = DefaultMaxVolatileBytes
	}
	if c.MaxDurableBytes <= 0 {
		c.MaxDurableBytes = DefaultMaxDurableBytes
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = DefaultTTL
	}
	if c.StaleTTL <= 0 {
		c.StaleTTL = DefaultStaleTTL
	}
	// stale window can never be shorter than the freshness window
	if c.StaleTTL < c.DefaultTTL {
		c.StaleTTL = c.DefaultTTL
	}
	c.PriorityWeights = c.PriorityWeights.normalize()
	if c.MinHitRateForAdaptation < 0 || c.MinHitRateForAdaptation > 1 {
		c.MinHitRateForAdaptation = DefaultMinHitRateForAdaptation
	}
	if c.ThrashingThreshold <= 0 {
		c.ThrashingThreshold = DefaultThrashingThreshold
	}
	return c
}

// normalize clamps each weight to [0,1] and the sum to (0,2]; a
// non-positive sum falls back to the defaults.
func (w Weights) normalize() Weights {
	w.Frequency = clamp01(w.Frequency)
	w.Recency = clamp01(w.Recency)
	if w.Frequency+w.Recency <= 0 {
		return Weights{Frequency: DefaultFrequencyWeight, Recency: DefaultRecencyWeight}
	}
	return w
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
