package pagecache

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aazib-Ai/UOLink-App-sub002/cache"
	"github.com/Aazib-Ai/UOLink-App-sub002/state"
)

// FileConfig is the yaml configuration file surface. Durations are
// strings in time.ParseDuration syntax. Zero values fall back to the
// defaults; out-of-range values are clamped, never rejected.
type FileConfig struct {
	MaxVolatileBytes  int64         `yaml:"maxVolatileBytes"`
	MaxDurableBytes   int64         `yaml:"maxDurableBytes"`
	DefaultTTL        string        `yaml:"defaultTTL"`
	StaleTTL          string        `yaml:"staleTTL"`
	EnablePersistence *bool         `yaml:"enablePersistence"`
	PriorityWeights   cache.Weights `yaml:"priorityWeights"`

	MinHitRateForAdaptation float64 `yaml:"minHitRateForAdaptation"`
	ThrashingThreshold      int     `yaml:"thrashingThreshold"`

	DBFile         string          `yaml:"dbFile"`
	MaxStates      int             `yaml:"maxStates"`
	StaleThreshold string          `yaml:"staleThreshold"`
	Selectors      state.Selectors `yaml:"selectors"`
}

// LoadOptions reads a yaml config file into Options.
func LoadOptions(filename string) (Options, error) {
	var fc FileConfig
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return Options{}, err
	}
	if err := yaml.Unmarshal(configBytes, &fc); err != nil {
		return Options{}, err
	}
	return fc.Options()
}

// Options converts the file surface into runtime options.
func (fc FileConfig) Options() (Options, error) {
	cfg := cache.DefaultConfig()
	if fc.MaxVolatileBytes != 0 {
		cfg.MaxVolatileBytes = fc.MaxVolatileBytes
	}
	if fc.MaxDurableBytes != 0 {
		cfg.MaxDurableBytes = fc.MaxDurableBytes
	}
	var err error
	if cfg.DefaultTTL, err = parseDuration(fc.DefaultTTL, cfg.DefaultTTL); err != nil {
		return Options{}, fmt.Errorf("defaultTTL: %w", err)
	}
	if cfg.StaleTTL, err = parseDuration(fc.StaleTTL, cfg.StaleTTL); err != nil {
		return Options{}, fmt.Errorf("staleTTL: %w", err)
	}
	if fc.EnablePersistence != nil {
		cfg.EnablePersistence = *fc.EnablePersistence
	}
	if fc.PriorityWeights != (cache.Weights{}) {
		cfg.PriorityWeights = fc.PriorityWeights
	}
	if fc.MinHitRateForAdaptation != 0 {
		cfg.MinHitRateForAdaptation = fc.MinHitRateForAdaptation
	}
	if fc.ThrashingThreshold != 0 {
		cfg.ThrashingThreshold = fc.ThrashingThreshold
	}

	opts := Options{
		Config:    cfg,
		DBFile:    fc.DBFile,
		MaxStates: fc.MaxStates,
		Selectors: fc.Selectors,
	}
	if opts.StaleThreshold, err = parseDuration(fc.StaleThreshold, 0); err != nil {
		return Options{}, fmt.Errorf("staleThreshold: %w", err)
	}
	return opts, nil
}

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	return time.ParseDuration(s)
}
