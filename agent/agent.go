// Package agent defines the agent model. Agents execute tasks; the
// orchestrator assigns work to them and hands payloads to their
// execution sessions through the dispatch channel.
package agent

import "time"

// Status represents an agent's operational state.
type Status string

const (
	StatusStandby Status = "standby"
	StatusWorking Status = "working"
	StatusOffline Status = "offline"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusStandby, StatusWorking, StatusOffline:
		return true
	}
	return false
}

// Agent is an executor, human-operated or autonomous.
type Agent struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role,omitempty"` // specialization tag, e.g. "backend"
	Status    Status    `json:"status"`
	Approver  bool      `json:"approver"`             // may approve review -> done
	Model     string    `json:"model,omitempty"`      // optional model/routing override
	SessionID string    `json:"session_id,omitempty"` // external execution session
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
