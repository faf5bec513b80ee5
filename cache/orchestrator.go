package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// recentRouteCount is the number of most-recent routes pinned against
// eviction.
const recentRouteCount = 3

// Key returns the namespaced cache key for a route.
func Key(route string) string {
	return "page:" + route
}

// QuotaEstimator reports storage usage against the available quota.
// The durable store implementations double as estimators.
type QuotaEstimator interface {
	Estimate() (usage, quota int64, err error)
}

// QuotaInfo is the result of a storage quota check.
type QuotaInfo struct {
	Usage      int64   `json:"usage"`
	Quota      int64   `json:"quota"`
	Percentage float64 `json:"percentage"`
}

// SetOptions classifies a payload being written and carries optional
// overrides.
type SetOptions struct {
	PageKind          PageKind
	ContentKind       ContentKind
	TTL               time.Duration // 0 means the configured default
	Tags              []string
	HasUnsavedChanges bool
}

// Orchestrator is the single entry point to the two-tier cache. It
// merges the volatile and durable tiers, computes write priority from
// content classification, tracks recent routes, and owns offline mode
// and quota checks.
//
// Durable tier failures never propagate to callers; the orchestrator
// falls back to volatile-only operation and keeps the error observable
// via LastError.
type Orchestrator struct {
	cfg      Config
	volatile *VolatileStore
	durable  DurableStore // nil when persistence is disabled
	quota    QuotaEstimator
	bus      *Bus
	group    singleflight.Group
	log      zerolog.Logger

	mu      sync.Mutex
	recent  []string // most-recent-first, max recentRouteCount distinct
	offline bool
	lastErr error
}

// NewOrchestrator wires the volatile tier to an optional durable tier.
// The config is normalized before use. A nil durable store disables
// persistence regardless of config.
func NewOrchestrator(cfg Config, durable DurableStore, quota QuotaEstimator, logger zerolog.Logger) *Orchestrator {
	cfg = cfg.Normalize()
	if !cfg.EnablePersistence {
		durable = nil
	}
	return &Orchestrator{
		cfg:      cfg,
		volatile: NewVolatileStore(cfg.MaxVolatileBytes, cfg.PriorityWeights, logger),
		durable:  durable,
		quota:    quota,
		bus:      NewBus(),
		log:      logger.With().Str("component", "cache-orchestrator").Logger(),
	}
}

// Config returns the normalized configuration in effect.
func (o *Orchestrator) Config() Config { return o.cfg }

// Bus returns the notification channel for cache events.
func (o *Orchestrator) Bus() *Bus { return o.bus }

// Volatile exposes the fast tier for stats and direct inspection.
func (o *Orchestrator) Volatile() *VolatileStore { return o.volatile }

// Get returns the entry for the route, consulting the volatile tier
// first and falling back to the durable tier. A durable hit is
// promoted back into the volatile tier. In offline mode expired
// entries are served; online they count as misses but are retained.
func (o *Orchestrator) Get(ctx context.Context, route string) *Entry {
	key := Key(route)
	offline := o.OfflineMode()

	if e := o.volatile.Get(key, offline); e != nil {
		return e
	}
	if o.durable == nil {
		return nil
	}

	// concurrent volatile misses on the same key collapse into one
	// durable read; the promotion happens inside the collapsed call so
	// the shared entry is touched exactly once
	v, err, _ := o.group.Do(key, func() (interface{}, error) {
		e, ok, err := o.durable.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return (*Entry)(nil), nil
		}
		if e.Expired(time.Now()) && !o.OfflineMode() {
			return (*Entry)(nil), nil
		}
		e.Touch(time.Now(), o.cfg.PriorityWeights)
		e.Metadata.Source = SourceDurable
		o.volatile.Set(key, e)
		o.log.Trace().Str("key", key).Msg("Promoted durable entry to volatile tier")
		return e, nil
	})
	if err != nil {
		o.recordError(err, "Durable tier read failed")
		return nil
	}
	e := v.(*Entry)
	if e == nil {
		return nil
	}
	// collapsed callers share the result, so each gets its own copy
	out := *e
	return &out
}

// Set wraps the payload into an entry, computes its priority from the
// page/content classification, and writes it through both tiers. The
// route becomes the most recent route.
func (o *Orchestrator) Set(ctx context.Context, route string, data []byte, opts SetOptions) *Entry {
	now := time.Now()
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = o.cfg.DefaultTTL
	}
	e := &Entry{
		Data:      data,
		Timestamp: now,
		ExpiresAt: now.Add(ttl),
		Priority:  BasePriority(opts.PageKind, opts.ContentKind),
		SizeBytes: int64(len(data)),
		Tags:      opts.Tags,
		Metadata: Metadata{
			CreatedAt:         now,
			LastAccessedAt:    now,
			Source:            SourceNetwork,
			PageKind:          opts.PageKind,
			ContentKind:       opts.ContentKind,
			HasUnsavedChanges: opts.HasUnsavedChanges,
		},
	}

	key := Key(route)
	o.volatile.Set(key, e)
	o.touchRecent(route)

	if o.durable != nil && e.SizeBytes <= o.cfg.MaxDurableBytes {
		if err := o.durable.Set(ctx, key, e); err != nil {
			o.recordError(err, "Durable tier write failed")
		}
	}

	o.bus.Publish(Event{Type: EventSet, Route: route, Key: key, Tags: opts.Tags})
	return e
}

// Invalidate removes the route's entry from both tiers. Invalidating
// an absent route is a no-op.
func (o *Orchestrator) Invalidate(ctx context.Context, route string) {
	key := Key(route)
	o.volatile.Delete(key)
	if o.durable != nil {
		if err := o.durable.Delete(ctx, key); err != nil {
			o.recordError(err, "Durable tier delete failed")
		}
	}
	o.bus.Publish(Event{Type: EventInvalidate, Route: route, Key: key})
}

// InvalidateTags removes every entry carrying any of the tags from
// both tiers.
func (o *Orchestrator) InvalidateTags(ctx context.Context, tags []string) {
	o.volatile.InvalidateByTags(tags)
	if o.durable != nil {
		if err := o.durable.InvalidateByTags(ctx, tags); err != nil {
			o.recordError(err, "Durable tier tag invalidation failed")
		}
	}
	o.bus.Publish(Event{Type: EventInvalidate, Tags: tags})
}

// Warm promotes the given routes from the durable tier into the
// volatile tier without counting lookups.
func (o *Orchestrator) Warm(ctx context.Context, routes []string) {
	if o.durable == nil {
		return
	}
	for _, route := range routes {
		key := Key(route)
		if o.volatile.Contains(key) {
			continue
		}
		e, ok, err := o.durable.Get(ctx, key)
		if err != nil {
			o.recordError(err, "Durable tier read failed during warm")
			continue
		}
		if !ok {
			continue
		}
		e.Metadata.Source = SourceDurable
		o.volatile.Set(key, e)
		o.bus.Publish(Event{Type: EventWarm, Route: route, Key: key})
	}
}

// Has reports whether the route is present in either tier, expired or
// not, without touching access bookkeeping.
func (o *Orchestrator) Has(ctx context.Context, route string) bool {
	key := Key(route)
	if o.volatile.Contains(key) {
		return true
	}
	if o.durable == nil {
		return false
	}
	_, ok, err := o.durable.Get(ctx, key)
	if err != nil {
		o.recordError(err, "Durable tier read failed")
		return false
	}
	return ok
}

// RecentRoutes returns up to the last 3 distinct routes written,
// most-recent-first.
func (o *Orchestrator) RecentRoutes() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.recent))
	copy(out, o.recent)
	return out
}

// Cleanup trims the volatile tier to 80% of its budget, or to 50%
// under explicit memory pressure. Critical entries and the recent
// routes stay protected either way.
func (o *Orchestrator) Cleanup(ctx context.Context, underPressure bool) int {
	target := int64(float64(o.cfg.MaxVolatileBytes) * cleanupTarget)
	if underPressure {
		target = int64(float64(o.cfg.MaxVolatileBytes) * pressureTarget)
	}
	return o.volatile.CleanupTo(target)
}

// MarkStaleEntries flags volatile entries not accessed within the
// stale window and returns their keys.
func (o *Orchestrator) MarkStaleEntries() []string {
	return o.volatile.MarkStaleEntries(o.cfg.StaleTTL)
}

// SetOfflineMode controls whether expired entries are served. It
// affects subsequent lookups only.
func (o *Orchestrator) SetOfflineMode(offline bool) {
	o.mu.Lock()
	o.offline = offline
	o.mu.Unlock()
	o.log.Debug().Bool("offline", offline).Msg("Offline mode changed")
}

// OfflineMode reports whether offline mode is active.
func (o *Orchestrator) OfflineMode() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.offline
}

// CheckStorageQuota queries the storage-quota estimator. Returns nil
// when no estimator is available.
func (o *Orchestrator) CheckStorageQuota() *QuotaInfo {
	if o.quota == nil {
		return nil
	}
	usage, quota, err := o.quota.Estimate()
	if err != nil {
		o.recordError(err, "Quota estimate failed")
		return nil
	}
	info := &QuotaInfo{Usage: usage, Quota: quota}
	if quota > 0 {
		info.Percentage = float64(usage) / float64(quota) * 100
	}
	return info
}

// LastError returns the most recent durable-tier or quota error, or
// nil. Expected conditions (miss, stale) are never recorded here.
func (o *Orchestrator) LastError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// ClearError resets the observable last error.
func (o *Orchestrator) ClearError() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastErr = nil
}

// Stats returns the volatile tier's counters.
func (o *Orchestrator) Stats() Stats {
	return o.volatile.Stats()
}

// Close releases the durable tier, if any.
func (o *Orchestrator) Close() error {
	if o.durable == nil {
		return nil
	}
	return o.durable.Close()
}

func (o *Orchestrator) recordError(err error, msg string) {
	o.mu.Lock()
	o.lastErr = err
	o.mu.Unlock()
	o.log.Error().Err(err).Msg(msg)
}

// touchRecent moves the route to the front of the recent list and
// re-pins the volatile keys of all recent routes.
func (o *Orchestrator) touchRecent(route string) {
	o.mu.Lock()
	recent := make([]string, 0, recentRouteCount)
	recent = append(recent, route)
	for _, r := range o.recent {
		if r == route {
			continue
		}
		recent = append(recent, r)
		if len(recent) == recentRouteCount {
			break
		}
	}
	o.recent = recent
	keys := make([]string, len(recent))
	for i, r := range recent {
		keys[i] = Key(r)
	}
	o.mu.Unlock()
	o.volatile.Pin(keys)
}
