package state

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultMaxStates bounds how many routes keep a snapshot.
const DefaultMaxStates = 50

type record struct {
	state      PageState
	lastAccess time.Time
}

// Manager stores one PageState per route with LRU-bounded retention,
// and moves snapshots between the store and the rendering surface.
type Manager struct {
	mu        sync.Mutex
	surface   Surface
	selectors Selectors
	maxStates int
	states    map[string]*record
	log       zerolog.Logger
}

// NewManager creates a manager bound to the given surface. A zero or
// negative maxStates falls back to DefaultMaxStates.
func NewManager(surface Surface, selectors Selectors, maxStates int, logger zerolog.Logger) *Manager {
	if surface == nil {
		surface = NoopSurface{}
	}
	if maxStates <= 0 {
		maxStates = DefaultMaxStates
	}
	return &Manager{
		surface:   surface,
		selectors: selectors,
		maxStates: maxStates,
		states:    make(map[string]*record),
		log:       logger.With().Str("component", "state-manager").Logger(),
	}
}

// CaptureState snapshots the surface and stores the result under the
// route, evicting the least-recently-used route if over the bound.
func (m *Manager) CaptureState(route string) (PageState, error) {
	st, err := m.surface.Capture(m.selectors)
	if err != nil {
		return NewPageState(), err
	}
	m.SetState(route, st)
	return st, nil
}

// RestoreState applies the route's stored snapshot (or the override,
// if given) to the surface. Returns false when no state exists for the
// route.
func (m *Manager) RestoreState(route string, override *PageState) (bool, error) {
	var st PageState
	if override != nil {
		st = override.normalized()
	} else {
		stored, ok := m.GetState(route)
		if !ok {
			return false, nil
		}
		st = stored
	}
	if err := m.surface.Restore(st); err != nil {
		return false, err
	}
	m.log.Trace().Str("route", route).Msg("Restored page state")
	return true, nil
}

// GetState returns a copy of the route's snapshot. A hit counts as an
// access for LRU purposes.
func (m *Manager) GetState(route string) (PageState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.states[route]
	if !ok {
		return PageState{}, false
	}
	rec.lastAccess = time.Now()
	return rec.state.Clone(), true
}

// SetState stores (or overwrites) the route's snapshot.
func (m *Manager) SetState(route string, st PageState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[route] = &record{state: st.Clone(), lastAccess: time.Now()}
	m.evictLocked()
}

// ClearState drops the route's snapshot, if any.
func (m *Manager) ClearState(route string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, route)
}

// ClearAllStates drops every snapshot.
func (m *Manager) ClearAllStates() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = make(map[string]*record)
}

// Len returns the number of retained routes.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.states)
}

// evictLocked drops least-recently-used routes until within the bound.
// Linear scan; the bound is small.
func (m *Manager) evictLocked() {
	for len(m.states) > m.maxStates {
		var oldestRoute string
		var oldestTime time.Time
		for route, rec := range m.states {
			if oldestRoute == "" || rec.lastAccess.Before(oldestTime) {
				oldestRoute = route
				oldestTime = rec.lastAccess
			}
		}
		delete(m.states, oldestRoute)
		m.log.Trace().Str("route", oldestRoute).Msg("Evicted least recently used page state")
	}
}
