package hub

import (
	"context"
	"time"
)

// Run publishes liveness pings until ctx is cancelled. Observers that
// have stopped draining accumulate strikes on each ping and are
// unregistered, so an idle but healthy client only has to keep reading.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case <-ticker.C:
			h.Publish(Event{Type: EventPing})
		}
	}
}

// closeAll evicts every observer at shutdown.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for o := range h.observers {
		delete(h.observers, o)
		o.close()
	}
}
