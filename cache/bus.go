package cache

import "sync"

// EventType names the notifications emitted on the sync channel to
// other contexts (background worker, other tabs, monitoring).
type EventType string

const (
	EventSet        EventType = "CACHE_SET"
	EventInvalidate EventType = "CACHE_INVALIDATE"
	EventWarm       EventType = "CACHE_WARM"
	EventUpdated    EventType = "CACHE_UPDATED"
)

// Event is a single cache notification.
type Event struct {
	Type  EventType
	Route string
	Key   string
	Tags  []string
}

// Bus is a minimal in-process pub/sub channel standing in for the
// cross-context message bridge. Handlers run synchronously on the
// publishing goroutine, so subscribers refresh their view before the
// publishing operation returns.
type Bus struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Event)
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(Event))}
}

// Subscribe registers a handler and returns its unsubscribe function.
func (b *Bus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.subs[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Publish delivers the event to every subscriber.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	handlers := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		handlers = append(handlers, fn)
	}
	b.mu.Unlock()
	for _, fn := range handlers {
		fn(ev)
	}
}
