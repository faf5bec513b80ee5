// Package pagecache gives a single-page application instant navigation
// by keeping page content in a two-tier cache keyed by route, paired
// with per-route UI-state snapshots and background revalidation.
//
// Everything hangs off one explicit PageCache instance; there is no
// package-level mutable state.
package pagecache

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/Aazib-Ai/UOLink-App-sub002/cache"
	"github.com/Aazib-Ai/UOLink-App-sub002/navigation"
	"github.com/Aazib-Ai/UOLink-App-sub002/refresh"
	"github.com/Aazib-Ai/UOLink-App-sub002/state"
)

// DefaultDBFile is where the durable tier lives unless overridden.
const DefaultDBFile = "./pagecache.db"

// Options configure a PageCache instance.
type Options struct {
	// Config tunes the cache tiers; invalid values are clamped and a
	// zero Config means defaults. Custom configs should start from
	// cache.DefaultConfig().
	Config cache.Config
	// Logger is the root logger; components derive their own from it.
	Logger zerolog.Logger
	// Surface is the rendering environment for state capture/restore.
	// Defaults to the headless NoopSurface.
	Surface state.Surface
	// Selectors configure what the surface snapshots.
	Selectors state.Selectors
	// Durable overrides the sqlite store, mainly for tests. Ignored
	// when persistence is disabled.
	Durable cache.DurableStore
	// DBFile is the sqlite file for the durable tier.
	DBFile string
	// MaxStates bounds per-route state retention.
	MaxStates int
	// StaleThreshold is the entry age that triggers revalidation.
	StaleThreshold time.Duration
	// Refresh tunes retry/backoff and interaction deferral.
	Refresh refresh.Options
}

// PageCache is the assembled subsystem. Callers drive navigation
// through Guard and can reach into the other components for stats,
// warming and invalidation.
type PageCache struct {
	Cache   *cache.Orchestrator
	States  *state.Manager
	Refresh *refresh.Manager
	Guard   *navigation.Guard

	log zerolog.Logger
}

// New builds a PageCache from the options. The durable tier is opened
// (or created) here; Close releases it.
func New(opts Options) (*PageCache, error) {
	if opts.Config == (cache.Config{}) {
		opts.Config = cache.DefaultConfig()
	}
	cfg := opts.Config.Normalize()
	logger := opts.Logger

	durable := opts.Durable
	if durable == nil && cfg.EnablePersistence {
		dbFile := opts.DBFile
		if dbFile == "" {
			dbFile = DefaultDBFile
		}
		store, err := cache.NewSQLiteStore(dbFile, cfg.MaxDurableBytes)
		if err != nil {
			return nil, err
		}
		durable = store
	}
	var quota cache.QuotaEstimator
	if q, ok := durable.(cache.QuotaEstimator); ok {
		quota = q
	}

	orchestrator := cache.NewOrchestrator(cfg, durable, quota, logger)

	selectors := opts.Selectors
	if selectors == (state.Selectors{}) {
		selectors = state.DefaultSelectors()
	}
	states := state.NewManager(opts.Surface, selectors, opts.MaxStates, logger)

	refreshManager := refresh.NewManager(orchestrator, opts.Refresh, logger)

	guard := navigation.NewGuard(orchestrator, states, refreshManager, navigation.Options{
		StaleThreshold: opts.StaleThreshold,
	}, logger)

	return &PageCache{
		Cache:   orchestrator,
		States:  states,
		Refresh: refreshManager,
		Guard:   guard,
		log:     logger,
	}, nil
}

// Close cancels pending refresh work and releases the durable tier.
func (p *PageCache) Close() error {
	p.Refresh.Clear()
	return p.Cache.Close()
}
