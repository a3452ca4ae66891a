package broadcast

import (
	"context"
	"sync"
)

// Hub is an in-process pub/sub for room events, keyed by room id.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe returns a channel that receives events for the room.
// The caller must invoke the returned cancel function to avoid leaks.
func (h *Hub) Subscribe(roomID string) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	h.mu.Lock()
	if h.subs[roomID] == nil {
		h.subs[roomID] = make(map[chan Event]struct{})
	}
	h.subs[roomID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[roomID][ch]; !ok {
			return
		}
		delete(h.subs[roomID], ch)
		if len(h.subs[roomID]) == 0 {
			delete(h.subs, roomID)
		}
		close(ch)
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber of its room. A subscriber
// whose buffer is full loses its oldest pending event.
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[event.RoomID] {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- event
		}
	}
	return nil
}

// Subscribers reports how many subscribers a room has.
func (h *Hub) Subscribers(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[roomID])
}
