package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditEvent is an append-only record of a mutation in the
// orchestration core.
type AuditEvent struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Type      string    `json:"type"`
	Actor     string    `json:"actor,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Activity is a human-readable log line scoped to a task.
type Activity struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// AppendEvent writes an audit event row inside the transaction.
func (t *Tx) AppendEvent(ctx context.Context, taskID, eventType, actor, detail string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO task_events (id, task_id, type, actor, detail, created_at)
		VALUES (?,?,?,?,?,?)`,
		uuid.NewString(), taskID, eventType, actor, detail, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// AppendActivity writes a task-scoped activity log row inside the
// transaction.
func (t *Tx) AppendActivity(ctx context.Context, taskID, message string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO activity_log (id, task_id, message, created_at)
		VALUES (?,?,?,?)`,
		uuid.NewString(), taskID, message, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

// TaskEvents returns the audit trail for a task, oldest first.
func (s *Store) TaskEvents(ctx context.Context, taskID string, limit int) ([]AuditEvent, error) {
	q := `SELECT id, task_id, type, actor, detail, created_at
		FROM task_events WHERE task_id = ? ORDER BY created_at ASC`
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, q, taskID)
	if err != nil {
		return nil, fmt.Errorf("task events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Type, &e.Actor, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// TaskActivity returns the activity log for a task, oldest first.
func (s *Store) TaskActivity(ctx context.Context, taskID string, limit int) ([]Activity, error) {
	q := `SELECT id, task_id, message, created_at
		FROM activity_log WHERE task_id = ? ORDER BY created_at ASC`
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, q, taskID)
	if err != nil {
		return nil, fmt.Errorf("task activity: %w", err)
	}
	defer rows.Close()

	var entries []Activity
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.TaskID, &a.Message, &a.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, a)
	}
	return entries, rows.Err()
}
