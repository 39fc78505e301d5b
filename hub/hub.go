// Package hub implements the event broadcast hub: a process-wide
// registry of connected observers that state-change events fan out to.
// Delivery is best-effort and at-most-once; observers that stop
// draining are unregistered rather than allowed to stall the rest.
package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Event is a typed real-time event broadcast to observers.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Common event type tags published by the orchestration core.
const (
	EventTaskCreated         = "task.created"
	EventTaskUpdated         = "task.updated"
	EventTaskDeleted         = "task.deleted"
	EventTaskUnblocked       = "task.unblocked"
	EventDependencyAdded     = "dependency.added"
	EventDependencyRemoved   = "dependency.removed"
	EventAgentUpdated        = "agent.updated"
	EventAssignmentSuggested = "assignment.suggested"
	EventPing                = "ping"
)

// maxStrikes is how many consecutive undeliverable sends an observer
// survives before it is evicted.
const maxStrikes = 2

// Observer is one live delivery target. Create with NewObserver, read
// events from Events, and stop when Done is closed.
type Observer struct {
	ch      chan []byte
	done    chan struct{}
	once    sync.Once
	strikes int // guarded by the hub mutex
}

// NewObserver creates an observer with the given event buffer size.
// Sizes <= 0 default to 64.
func NewObserver(bufSize int) *Observer {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Observer{
		ch:   make(chan []byte, bufSize),
		done: make(chan struct{}),
	}
}

// Events returns the channel event payloads arrive on.
func (o *Observer) Events() <-chan []byte { return o.ch }

// Done is closed when the hub evicts the observer.
func (o *Observer) Done() <-chan struct{} { return o.done }

func (o *Observer) close() {
	o.once.Do(func() { close(o.done) })
}

// Hub manages the observer registry and broadcasts events.
type Hub struct {
	mu        sync.Mutex
	observers map[*Observer]struct{}
	logger    *slog.Logger

	pingInterval time.Duration
}

// New creates a Hub ready to accept observers.
func New(logger *slog.Logger) *Hub {
	return &Hub{
		observers:    make(map[*Observer]struct{}),
		logger:       logger,
		pingInterval: 30 * time.Second,
	}
}

// SetPingInterval overrides the liveness ping cadence. Call before Run.
func (h *Hub) SetPingInterval(d time.Duration) {
	if d > 0 {
		h.pingInterval = d
	}
}

// Register adds an observer to the registry. Registering an already
// registered observer is a no-op.
func (h *Hub) Register(o *Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observers[o] = struct{}{}
}

// Unregister removes an observer. Unknown observers are ignored:
// disconnects race with delivery, so double unregistration is normal.
func (h *Hub) Unregister(o *Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.observers[o]; ok {
		delete(h.observers, o)
		o.close()
	}
}

// ObserverCount returns the current registry size.
func (h *Hub) ObserverCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// Publish delivers the event to every currently registered observer.
// A full observer buffer never blocks delivery to others; observers
// that stay full across consecutive sends are evicted.
func (h *Hub) Publish(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("hub publish marshal", slog.Any("err", err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for o := range h.observers {
		select {
		case o.ch <- data:
			o.strikes = 0
		default:
			o.strikes++
			if o.strikes >= maxStrikes {
				delete(h.observers, o)
				o.close()
				h.logger.Warn("hub evicted unresponsive observer")
			}
		}
	}
}
