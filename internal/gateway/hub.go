package gateway

import (
	"sort"
	"sync"
)

// Hub fans change events out to subscribers.
//
// Publish invokes matching callbacks synchronously, in subscription order,
// outside the hub lock. Callbacks must not block; the engine's callback
// only enqueues.
//
// Thread-safety: all methods are safe for concurrent use.
type Hub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]subscriber
}

type subscriber struct {
	filter Filter
	fn     func(Change)
}

// NewHub creates a hub with no subscribers.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]subscriber)}
}

// Subscribe registers fn for changes matching f.
// The returned function removes the subscription and is safe to call more
// than once.
func (h *Hub) Subscribe(f Filter, fn func(Change)) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = subscriber{filter: f, fn: fn}
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Publish delivers c to every matching subscriber.
func (h *Hub) Publish(c Change) {
	h.mu.RLock()
	ids := make([]int, 0, len(h.subs))
	for id, s := range h.subs {
		if s.filter.Matches(c) {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	fns := make([]func(Change), len(ids))
	for i, id := range ids {
		fns[i] = h.subs[id].fn
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}

// Len returns the number of active subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
