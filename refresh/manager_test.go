package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aazib-Ai/UOLink-App-sub002/cache"
)

func newTestManager(opts Options) (*Manager, *cache.Orchestrator) {
	cfg := cache.DefaultConfig()
	cfg.EnablePersistence = false
	orchestrator := cache.NewOrchestrator(cfg, nil, nil, zerolog.Nop())
	return NewManager(orchestrator, opts, zerolog.Nop()), orchestrator
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestRefreshSuccessWritesThrough(t *testing.T) {
	m, orchestrator := newTestManager(Options{})

	var updated atomic.Value
	var events int32
	orchestrator.Bus().Subscribe(func(ev cache.Event) {
		if ev.Type == cache.EventUpdated {
			atomic.AddInt32(&events, 1)
		}
	})

	m.ScheduleRefresh("/dash", func(ctx context.Context) ([]byte, error) {
		return []byte(`{"fresh":true}`), nil
	}, cache.PageDashboard, cache.ContentPersonalized, func(data []byte) {
		updated.Store(string(data))
	})

	waitFor(t, time.Second, func() bool { return !m.IsRefreshScheduled("/dash") })

	e := orchestrator.Get(context.Background(), "/dash")
	if e == nil || string(e.Data) != `{"fresh":true}` {
		t.Fatal("refresh result not written to cache")
	}
	if got, _ := updated.Load().(string); got != `{"fresh":true}` {
		t.Errorf("onUpdate got %q", got)
	}
	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&events) == 1 })
}

func TestRetryWithExponentialBackoff(t *testing.T) {
	m, _ := newTestManager(Options{InitialRetryDelay: 100 * time.Millisecond})

	var mu sync.Mutex
	var attempts []time.Time
	m.ScheduleRefresh("/dash", func(ctx context.Context) ([]byte, error) {
		mu.Lock()
		attempts = append(attempts, time.Now())
		mu.Unlock()
		return nil, errors.New("origin down")
	}, cache.PageOther, cache.ContentGeneric, nil)

	// 3 attempts total: immediate, +100ms, +200ms
	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(attempts) == 3 && !m.IsRefreshScheduled("/dash")
	})

	mu.Lock()
	defer mu.Unlock()
	if len(attempts) != 3 {
		t.Fatalf("attempts = %d, want exactly 3", len(attempts))
	}
	first := attempts[1].Sub(attempts[0])
	second := attempts[2].Sub(attempts[1])
	if float64(second) < 1.5*float64(first) {
		t.Errorf("backoff did not grow: %s then %s", first, second)
	}
}

func TestRetryCountObservable(t *testing.T) {
	m, _ := newTestManager(Options{InitialRetryDelay: 200 * time.Millisecond})

	m.ScheduleRefresh("/dash", func(ctx context.Context) ([]byte, error) {
		return nil, errors.New("nope")
	}, cache.PageOther, cache.ContentGeneric, nil)

	waitFor(t, time.Second, func() bool { return m.GetRetryCount("/dash") == 1 })
	if !m.IsRefreshScheduled("/dash") {
		t.Error("retrying route should still count as scheduled")
	}
	m.Clear()
}

func TestInteractionDeferral(t *testing.T) {
	m, _ := newTestManager(Options{InteractionDeferDelay: 100 * time.Millisecond})

	var calls int32
	m.SetUserInteracting(true)
	if !m.IsUserCurrentlyInteracting() {
		t.Fatal("interaction flag not set")
	}

	m.ScheduleRefresh("/dash", func(ctx context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte(`{}`), nil
	}, cache.PageOther, cache.ContentGeneric, nil)

	deferred := m.GetDeferredRefreshes()
	if len(deferred) != 1 || deferred[0] != "/dash" {
		t.Fatalf("deferred = %v, want [/dash]", deferred)
	}

	// interaction persists: nothing runs
	time.Sleep(150 * time.Millisecond)
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatal("deferred refresh ran while interacting")
	}

	m.SetUserInteracting(false)
	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&calls) == 1 })

	if len(m.GetDeferredRefreshes()) != 0 {
		t.Error("executed route still listed as deferred")
	}
}

func TestInteractionResumeCancelsRelease(t *testing.T) {
	m, _ := newTestManager(Options{InteractionDeferDelay: 100 * time.Millisecond})

	var calls int32
	m.SetUserInteracting(true)
	m.ScheduleRefresh("/dash", func(ctx context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte(`{}`), nil
	}, cache.PageOther, cache.ContentGeneric, nil)

	// toggle off and back on within the grace period
	m.SetUserInteracting(false)
	time.Sleep(20 * time.Millisecond)
	m.SetUserInteracting(true)

	time.Sleep(200 * time.Millisecond)
	if atomic.LoadInt32(&calls) != 0 {
		t.Error("release should have been cancelled by resumed interaction")
	}
	if len(m.GetDeferredRefreshes()) != 1 {
		t.Error("route should still be deferred")
	}
	m.Clear()
}

func TestRescheduleCancelsPrior(t *testing.T) {
	m, orchestrator := newTestManager(Options{})

	first := make(chan struct{})
	m.ScheduleRefresh("/dash", func(ctx context.Context) ([]byte, error) {
		<-first
		return []byte(`{"version":1}`), nil
	}, cache.PageOther, cache.ContentGeneric, nil)

	// replaces the in-flight schedule before it completes
	m.ScheduleRefresh("/dash", func(ctx context.Context) ([]byte, error) {
		return []byte(`{"version":2}`), nil
	}, cache.PageOther, cache.ContentGeneric, nil)
	close(first)

	waitFor(t, time.Second, func() bool { return !m.IsRefreshScheduled("/dash") })
	time.Sleep(50 * time.Millisecond) // let the cancelled attempt finish

	e := orchestrator.Get(context.Background(), "/dash")
	if e == nil || string(e.Data) != `{"version":2}` {
		t.Fatalf("cache holds %s, want version 2", e.Data)
	}
}

func TestClearCancelsEverything(t *testing.T) {
	m, _ := newTestManager(Options{InitialRetryDelay: 50 * time.Millisecond})

	var calls int32
	m.SetUserInteracting(true)
	m.ScheduleRefresh("/deferred", func(ctx context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte(`{}`), nil
	}, cache.PageOther, cache.ContentGeneric, nil)

	m.Clear()
	m.SetUserInteracting(false)
	time.Sleep(150 * time.Millisecond)

	if atomic.LoadInt32(&calls) != 0 {
		t.Error("cleared refresh still ran")
	}
	stats := m.GetStats()
	if stats.ScheduledRefreshes != 0 || stats.DeferredRefreshes != 0 {
		t.Errorf("stats = %+v, want empty", stats)
	}
}

func TestStatsSnapshot(t *testing.T) {
	m, _ := newTestManager(Options{})

	m.SetUserInteracting(true)
	m.ScheduleRefresh("/a", func(ctx context.Context) ([]byte, error) {
		return []byte(`{}`), nil
	}, cache.PageOther, cache.ContentGeneric, nil)

	stats := m.GetStats()
	if stats.ScheduledRefreshes != 1 || stats.DeferredRefreshes != 1 || !stats.IsUserInteracting {
		t.Errorf("stats = %+v", stats)
	}
	m.Clear()
}
