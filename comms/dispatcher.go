package comms

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// InMemoryDispatcher routes task payloads to in-process session
// handlers. It keeps a bounded history of sent messages for debugging.
type InMemoryDispatcher struct {
	mu       sync.RWMutex
	sessions map[string]Handler
	history  []sentMessage
	maxHist  int
}

type sentMessage struct {
	session string
	msg     *TaskMessage
}

// NewInMemoryDispatcher creates an InMemoryDispatcher with a
// 1000-message history cap.
func NewInMemoryDispatcher() *InMemoryDispatcher {
	return &InMemoryDispatcher{
		sessions: make(map[string]Handler),
		maxHist:  1000,
	}
}

// Attach registers a handler for the given session reference. The
// returned function detaches it.
func (d *InMemoryDispatcher) Attach(session string, handler Handler) (detach func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions[session] = handler

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.sessions, session)
	}
}

// Send delivers msg to the session's handler. The handler runs outside
// the registry lock so a slow session cannot stall attach/detach.
func (d *InMemoryDispatcher) Send(ctx context.Context, session string, msg *TaskMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	d.mu.Lock()
	handler, ok := d.sessions[session]
	if ok {
		d.history = append(d.history, sentMessage{session: session, msg: msg})
		if len(d.history) > d.maxHist {
			d.history = d.history[len(d.history)-d.maxHist:]
		}
	}
	d.mu.Unlock()

	if !ok {
		return fmt.Errorf("no active session %q", session)
	}
	if err := handler(ctx, msg); err != nil {
		return fmt.Errorf("dispatch to %q: %w", session, err)
	}
	return nil
}

// ListActiveSessions returns attached session references, sorted.
func (d *InMemoryDispatcher) ListActiveSessions() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	sessions := make([]string, 0, len(d.sessions))
	for s := range d.sessions {
		sessions = append(sessions, s)
	}
	sort.Strings(sessions)
	return sessions
}

// History returns the most recent limit messages sent to the session.
// A limit of 0 returns everything.
func (d *InMemoryDispatcher) History(session string, limit int) []*TaskMessage {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []*TaskMessage
	for i := len(d.history) - 1; i >= 0; i-- {
		m := d.history[i]
		if m.session == session || session == "" {
			result = append(result, m.msg)
			if limit > 0 && len(result) >= limit {
				break
			}
		}
	}
	// Reverse to chronological order
	for l, r := 0, len(result)-1; l < r; l, r = l+1, r-1 {
		result[l], result[r] = result[r], result[l]
	}
	return result
}
