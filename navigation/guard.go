// Package navigation implements the cache-first lookup protocol run on
// every route change.
package navigation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aazib-Ai/UOLink-App-sub002/cache"
	"github.com/Aazib-Ai/UOLink-App-sub002/refresh"
	"github.com/Aazib-Ai/UOLink-App-sub002/state"
)

// RefreshFunc fetches fresh page data for a route.
type RefreshFunc func(ctx context.Context, route string) ([]byte, error)

// UpdateListener is notified synchronously when a background refresh
// lands fresh data for a route.
type UpdateListener func(route string, data []byte)

// Options tune the guard.
type Options struct {
	// StaleThreshold is the entry age beyond which a cache hit also
	// schedules a background refresh. Default 5 minutes.
	StaleThreshold time.Duration
	// DisplayBudget is the wall-clock budget for a lookup to qualify
	// as "immediate"; exceeding it is logged. Default 50ms.
	DisplayBudget time.Duration
	// DisableBackgroundRefresh turns off refresh scheduling entirely.
	DisableBackgroundRefresh bool
}

func (o Options) withDefaults() Options {
	if o.StaleThreshold <= 0 {
		o.StaleThreshold = 5 * time.Minute
	}
	if o.DisplayBudget <= 0 {
		o.DisplayBudget = 50 * time.Millisecond
	}
	return o
}

// Result is what a navigation gets back: cached content if any, the
// restored UI state, and whether a refresh was queued behind it.
type Result struct {
	UsedCache                  bool
	PageData                   []byte
	PageState                  *state.PageState
	DisplayTime                time.Duration
	BackgroundRefreshScheduled bool
}

// Guard serves route changes cache-first: return whatever the cache
// holds immediately, restore the route's UI state, and revalidate
// stale content in the background. A miss returns empty-handed; the
// caller fetches and hands the data back via CacheFreshData.
type Guard struct {
	cache   *cache.Orchestrator
	states  *state.Manager
	refresh *refresh.Manager
	opts    Options
	log     zerolog.Logger

	mu        sync.Mutex
	callbacks map[string]RefreshFunc
	onUpdate  UpdateListener
	offline   bool
}

// NewGuard wires the guard to the cache, state and refresh components.
func NewGuard(orchestrator *cache.Orchestrator, states *state.Manager, refreshManager *refresh.Manager, opts Options, logger zerolog.Logger) *Guard {
	return &Guard{
		cache:     orchestrator,
		states:    states,
		refresh:   refreshManager,
		opts:      opts.withDefaults(),
		callbacks: make(map[string]RefreshFunc),
		log:       logger.With().Str("component", "navigation-guard").Logger(),
	}
}

// HandleNavigation runs the cache-first protocol for a route change.
// It never blocks on refresh work; a stale hit is served as-is with a
// refresh scheduled behind it.
func (g *Guard) HandleNavigation(ctx context.Context, to, from string, pageKind cache.PageKind, contentKind cache.ContentKind) Result {
	start := time.Now()

	if from != "" && from != to {
		if _, err := g.states.CaptureState(from); err != nil {
			g.log.Error().Err(err).Str("route", from).Msg("Could not capture page state")
		}
	}

	entry := g.cache.Get(ctx, to)
	if entry == nil {
		g.log.Trace().Str("route", to).Msg("Cache miss")
		return Result{DisplayTime: time.Since(start)}
	}

	res := Result{UsedCache: true, PageData: entry.Data}
	if st, ok := g.states.GetState(to); ok {
		if _, err := g.states.RestoreState(to, &st); err != nil {
			g.log.Error().Err(err).Str("route", to).Msg("Could not restore page state")
		}
		res.PageState = &st
	}

	if g.shouldRefresh(entry, start) {
		if g.scheduleRefresh(to, pageKind, contentKind) {
			res.BackgroundRefreshScheduled = true
		}
	}

	res.DisplayTime = time.Since(start)
	if res.DisplayTime > g.opts.DisplayBudget {
		g.log.Warn().Str("route", to).Dur("displayTime", res.DisplayTime).Msg("Navigation lookup exceeded display budget")
	} else {
		g.log.Trace().Str("route", to).Dur("displayTime", res.DisplayTime).Msg("Cache hit and serving")
	}
	return res
}

// RegisterRefreshCallback installs the data fetcher used when the
// route's cached content goes stale.
func (g *Guard) RegisterRefreshCallback(route string, fn RefreshFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.callbacks[route] = fn
}

// UnregisterRefreshCallback removes the route's data fetcher.
func (g *Guard) UnregisterRefreshCallback(route string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.callbacks, route)
}

// SetUpdateListener installs the listener notified when background
// refreshes complete.
func (g *Guard) SetUpdateListener(fn UpdateListener) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onUpdate = fn
}

// CacheFreshData writes freshly fetched page data for a route. Callers
// use this after a cache miss.
func (g *Guard) CacheFreshData(ctx context.Context, route string, data []byte, pageKind cache.PageKind, contentKind cache.ContentKind) {
	g.cache.Set(ctx, route, data, cache.SetOptions{PageKind: pageKind, ContentKind: contentKind})
}

// InvalidateRoute drops both the cached entry and the captured state
// for the route. Unknown routes are a no-op.
func (g *Guard) InvalidateRoute(ctx context.Context, route string) {
	g.cache.Invalidate(ctx, route)
	g.states.ClearState(route)
}

// HasCachedData reports whether either tier holds an entry for the
// route, expired or not.
func (g *Guard) HasCachedData(ctx context.Context, route string) bool {
	return g.cache.Has(ctx, route)
}

// SetOfflineMode switches the guard and the cache to offline serving.
// Takes effect for subsequent navigations only.
func (g *Guard) SetOfflineMode(offline bool) {
	g.mu.Lock()
	g.offline = offline
	g.mu.Unlock()
	g.cache.SetOfflineMode(offline)
}

// Clear cancels all scheduled refresh work.
func (g *Guard) Clear() {
	g.refresh.Clear()
}

func (g *Guard) shouldRefresh(entry *cache.Entry, now time.Time) bool {
	if g.opts.DisableBackgroundRefresh {
		return false
	}
	g.mu.Lock()
	offline := g.offline
	g.mu.Unlock()
	if offline {
		return false
	}
	return entry.Age(now) > g.opts.StaleThreshold
}

// scheduleRefresh hands the route to the refresh manager, if a fetcher
// is registered for it.
func (g *Guard) scheduleRefresh(route string, pageKind cache.PageKind, contentKind cache.ContentKind) bool {
	g.mu.Lock()
	fn, ok := g.callbacks[route]
	onUpdate := g.onUpdate
	g.mu.Unlock()
	if !ok {
		g.log.Debug().Str("route", route).Msg("Stale entry but no refresh callback registered")
		return false
	}

	cb := func(ctx context.Context) ([]byte, error) { return fn(ctx, route) }
	var update refresh.UpdateFunc
	if onUpdate != nil {
		update = func(data []byte) { onUpdate(route, data) }
	}
	g.refresh.ScheduleRefresh(route, cb, pageKind, contentKind, update)
	g.log.Trace().Str("route", route).Msg("Scheduled background refresh")
	return true
}
