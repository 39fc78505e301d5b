// Package comms provides the outbound dispatch channel that hands task
// payloads to agent execution sessions. Dispatch is best-effort: a
// failed send is surfaced to the orchestrator as a warning, never as a
// transition failure.
package comms

import (
	"context"
	"time"
)

// TaskMessage is the payload handed to an agent's execution session
// when a task becomes actionable for it.
type TaskMessage struct {
	ID          string    `json:"id"`
	TaskID      string    `json:"task_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Priority    string    `json:"priority"`
	OutputPath  string    `json:"output_path,omitempty"`
	AgentID     string    `json:"agent_id"`
	SentAt      time.Time `json:"sent_at"`
}

// Handler processes dispatched messages for one session.
type Handler func(ctx context.Context, msg *TaskMessage) error

// Dispatcher is the worker-messaging channel the orchestrator hands
// task payloads to.
type Dispatcher interface {
	// Send delivers msg to the given session reference.
	Send(ctx context.Context, session string, msg *TaskMessage) error

	// ListActiveSessions returns the currently attached session references.
	ListActiveSessions() []string
}
