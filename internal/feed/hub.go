// Package feed fans out "this user's collection changed" signals to live
// subscriptions within one process.
package feed

import "sync"

// Hub is safe for concurrent use. The zero value is not usable; call NewHub.
type Hub struct {
	mu        sync.Mutex
	nextID    uint64
	listeners map[string]map[uint64]chan struct{}
}

func NewHub() *Hub {
	return &Hub{listeners: make(map[string]map[uint64]chan struct{})}
}

// Listen registers a listener for userID. Signals carry no payload and
// coalesce: a listener that has not drained its channel sees one pending
// signal no matter how many changes happened. The returned stop function
// is idempotent and closes the channel.
func (h *Hub) Listen(userID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.listeners[userID] == nil {
		h.listeners[userID] = make(map[uint64]chan struct{})
	}
	h.listeners[userID][id] = ch
	h.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			set := h.listeners[userID]
			delete(set, id)
			if len(set) == 0 {
				delete(h.listeners, userID)
			}
			close(ch)
		})
	}
	return ch, stop
}

// Notify signals every listener of userID. It never blocks.
func (h *Hub) Notify(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.listeners[userID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Listeners reports how many listeners userID currently has.
func (h *Hub) Listeners(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners[userID])
}
