package session

import (
	"context"
	"sync"
)

// hub fan-outs snapshots to all active subscribers. Slow subscribers drop
// updates instead of blocking the manager.
type hub struct {
	mu   sync.RWMutex
	subs map[int]chan Snapshot
	next int
}

func newHub() *hub {
	return &hub{subs: make(map[int]chan Snapshot)}
}

// subscribe registers a subscriber and returns its channel. The channel is
// closed when the provided context ends.
func (h *hub) subscribe(ctx context.Context) <-chan Snapshot {
	ch := make(chan Snapshot, 16)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

func (h *hub) publish(snap Snapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- snap:
		default:
			// Drop when the subscriber is slow to avoid blocking.
		}
	}
}
