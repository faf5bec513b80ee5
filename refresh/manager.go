// Package refresh owns background revalidation of cached routes:
// per-route scheduling, exponential-backoff retries, and deferral
// while the user is interacting with the page.
package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aazib-Ai/UOLink-App-sub002/cache"
)

// Callback fetches fresh data for a route.
type Callback func(ctx context.Context) ([]byte, error)

// UpdateFunc is invoked synchronously with fresh data after a
// successful refresh, so subscribers can update their view without a
// reload.
type UpdateFunc func(data []byte)

// Options tune retry and deferral behavior.
type Options struct {
	InitialRetryDelay     time.Duration
	MaxRetryDelay         time.Duration
	InteractionDeferDelay time.Duration
	MaxRetries            int // total attempts, including the first
}

func (o Options) withDefaults() Options {
	if o.InitialRetryDelay <= 0 {
		o.InitialRetryDelay = 100 * time.Millisecond
	}
	if o.MaxRetryDelay <= 0 {
		o.MaxRetryDelay = 30 * time.Second
	}
	if o.InteractionDeferDelay <= 0 {
		o.InteractionDeferDelay = 200 * time.Millisecond
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	return o
}

// Stats is a snapshot of the manager's scheduling state.
type Stats struct {
	ScheduledRefreshes int  `json:"scheduledRefreshes"`
	DeferredRefreshes  int  `json:"deferredRefreshes"`
	IsUserInteracting  bool `json:"isUserInteracting"`
}

type task struct {
	route       string
	cb          Callback
	onUpdate    UpdateFunc
	pageKind    cache.PageKind
	contentKind cache.ContentKind
	attempt     int // failed attempts so far
	timer       *time.Timer
	ctx         context.Context
	cancel      context.CancelFunc
	cancelled   bool
}

// Manager schedules at most one active refresh per route. Failed
// refreshes retry with exponential backoff and are dropped silently
// after the final attempt; they never surface as navigation errors.
type Manager struct {
	opts  Options
	store *cache.Orchestrator
	log   zerolog.Logger

	mu            sync.Mutex
	tasks         map[string]*task
	deferred      map[string]*task
	deferredOrder []string
	interacting   bool
	releaseTimer  *time.Timer
}

// NewManager creates a manager writing refresh results through the
// given orchestrator.
func NewManager(store *cache.Orchestrator, opts Options, logger zerolog.Logger) *Manager {
	return &Manager{
		opts:     opts.withDefaults(),
		store:    store,
		tasks:    make(map[string]*task),
		deferred: make(map[string]*task),
		log:      logger.With().Str("component", "refresh-manager").Logger(),
	}
}

// ScheduleRefresh replaces any pending or in-flight schedule for the
// route. The refresh runs immediately unless the user is interacting,
// in which case it joins the deferred set and runs once interaction
// ends.
func (m *Manager) ScheduleRefresh(route string, cb Callback, pageKind cache.PageKind, contentKind cache.ContentKind, onUpdate UpdateFunc) {
	m.mu.Lock()
	m.cancelLocked(route)

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		route:       route,
		cb:          cb,
		onUpdate:    onUpdate,
		pageKind:    pageKind,
		contentKind: contentKind,
		ctx:         ctx,
		cancel:      cancel,
	}
	m.tasks[route] = t

	if m.interacting {
		m.deferred[route] = t
		m.deferredOrder = append(m.deferredOrder, route)
		m.mu.Unlock()
		m.log.Trace().Str("route", route).Msg("Refresh deferred, user interacting")
		return
	}
	m.mu.Unlock()
	go m.run(t)
}

// SetUserInteracting toggles interaction gating. Turning it off
// releases the deferred set after a short grace period; turning it
// back on within the grace period cancels the release.
func (m *Manager) SetUserInteracting(interacting bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interacting = interacting
	if m.releaseTimer != nil {
		m.releaseTimer.Stop()
		m.releaseTimer = nil
	}
	if !interacting && len(m.deferred) > 0 {
		m.releaseTimer = time.AfterFunc(m.opts.InteractionDeferDelay, m.releaseDeferred)
	}
}

// IsRefreshScheduled reports whether the route has an active schedule
// (deferred, pending retry, or in flight).
func (m *Manager) IsRefreshScheduled(route string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[route]
	return ok
}

// GetDeferredRefreshes returns the deferred routes in scheduling
// order.
func (m *Manager) GetDeferredRefreshes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.deferredOrder))
	copy(out, m.deferredOrder)
	return out
}

// GetRetryCount returns the number of failed attempts for the route's
// active schedule, or 0.
func (m *Manager) GetRetryCount(route string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[route]; ok {
		return t.attempt
	}
	return 0
}

// IsUserCurrentlyInteracting reports the interaction gate.
func (m *Manager) IsUserCurrentlyInteracting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interacting
}

// GetStats returns a snapshot of the scheduling state.
func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		ScheduledRefreshes: len(m.tasks),
		DeferredRefreshes:  len(m.deferred),
		IsUserInteracting:  m.interacting,
	}
}

// Clear cancels every pending timer and deferred entry.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for route := range m.tasks {
		m.cancelLocked(route)
	}
	if m.releaseTimer != nil {
		m.releaseTimer.Stop()
		m.releaseTimer = nil
	}
}

// releaseDeferred runs every deferred refresh, unless interaction
// resumed during the grace period.
func (m *Manager) releaseDeferred() {
	m.mu.Lock()
	if m.interacting {
		m.mu.Unlock()
		return
	}
	released := make([]*task, 0, len(m.deferredOrder))
	for _, route := range m.deferredOrder {
		if t, ok := m.deferred[route]; ok {
			released = append(released, t)
		}
	}
	m.deferred = make(map[string]*task)
	m.deferredOrder = nil
	m.mu.Unlock()

	for _, t := range released {
		go m.run(t)
	}
}

// run executes one refresh attempt and either completes the schedule
// or arms the next retry.
func (m *Manager) run(t *task) {
	data, err := t.cb(t.ctx)

	m.mu.Lock()
	if t.cancelled {
		m.mu.Unlock()
		return
	}
	if err != nil {
		t.attempt++
		if t.attempt >= m.opts.MaxRetries {
			delete(m.tasks, t.route)
			m.mu.Unlock()
			m.log.Warn().Err(err).Str("route", t.route).Int("attempts", t.attempt).Msg("Refresh failed, giving up")
			return
		}
		delay := m.backoff(t.attempt)
		t.timer = time.AfterFunc(delay, func() { m.run(t) })
		m.mu.Unlock()
		m.log.Debug().Err(err).Str("route", t.route).Dur("delay", delay).Msg("Refresh failed, retrying")
		return
	}
	m.mu.Unlock()

	// last-write-wins: a Set that raced us simply gets overwritten
	m.store.Set(t.ctx, t.route, data, cache.SetOptions{
		PageKind:    t.pageKind,
		ContentKind: t.contentKind,
	})
	if t.onUpdate != nil {
		t.onUpdate(data)
	}
	m.store.Bus().Publish(cache.Event{Type: cache.EventUpdated, Route: t.route, Key: cache.Key(t.route)})
	m.log.Trace().Str("route", t.route).Msg("Background refresh completed")

	// the schedule stays visible until the result has landed; only
	// drop it if it was not replaced meanwhile
	m.mu.Lock()
	if m.tasks[t.route] == t {
		delete(m.tasks, t.route)
	}
	m.mu.Unlock()
}

// backoff returns min(initial * 2^failedAttempts-1, max). The first
// retry after one failure waits the initial delay.
func (m *Manager) backoff(failedAttempts int) time.Duration {
	delay := m.opts.InitialRetryDelay << uint(failedAttempts-1)
	if delay > m.opts.MaxRetryDelay || delay <= 0 {
		delay = m.opts.MaxRetryDelay
	}
	return delay
}

// cancelLocked drops the route's schedule: stops its retry timer,
// cancels its context, and removes it from the deferred set.
func (m *Manager) cancelLocked(route string) {
	t, ok := m.tasks[route]
	if !ok {
		return
	}
	t.cancelled = true
	t.cancel()
	if t.timer != nil {
		t.timer.Stop()
	}
	delete(m.tasks, route)
	if _, ok := m.deferred[route]; ok {
		delete(m.deferred, route)
		for i, r := range m.deferredOrder {
			if r == route {
				m.deferredOrder = append(m.deferredOrder[:i], m.deferredOrder[i+1:]...)
				break
			}
		}
	}
}
