// Package task defines the task model and status lifecycle for orchestrated work items.
package task

import "time"

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusInbox      Status = "inbox"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusTesting    Status = "testing"
	StatusReview     Status = "review"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusInbox, StatusAssigned, StatusInProgress, StatusTesting,
		StatusReview, StatusDone, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Active reports whether a task in this status counts toward an
// agent's current load.
func (s Status) Active() bool {
	switch s {
	case StatusAssigned, StatusInProgress, StatusTesting, StatusReview:
		return true
	}
	return false
}

// Terminal reports whether no further work happens in this status.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusCancelled
}

// Priority determines task scheduling order.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// NotifyPrefs holds optional notification delivery preferences for a
// task. Delivery itself is handled outside the orchestration core.
type NotifyPrefs struct {
	Phone  string   `json:"phone,omitempty" yaml:"phone"`
	Email  string   `json:"email,omitempty" yaml:"email"`
	Events []string `json:"events,omitempty" yaml:"events"` // status names that trigger a notification
}

// Task is a unit of orchestrated work.
type Task struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Status      Status       `json:"status"`
	Priority    Priority     `json:"priority"`
	AssignedTo  string       `json:"assigned_to,omitempty"` // agent ID
	OutputPath  string       `json:"output_path,omitempty"`
	Retries     int          `json:"retries"`
	Notify      *NotifyPrefs `json:"notify,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// Filter controls which tasks are returned by a store list.
type Filter struct {
	Status     *Status   `json:"status,omitempty"`
	AssignedTo string    `json:"assigned_to,omitempty"`
	Priority   *Priority `json:"priority,omitempty"`
	Search     string    `json:"search,omitempty"` // substring match on title/description
	Limit      int       `json:"limit,omitempty"`
	Offset     int       `json:"offset,omitempty"`
}
