package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/GoCodeAlone/overseer/task"
)

const taskColumns = `id, title, description, status, priority, assigned_to, output_path,
	retries, notify, created_at, updated_at, started_at, completed_at`

// CreateTask persists a new task and sets its ID, CreatedAt, and UpdatedAt.
func (s *Store) CreateTask(ctx context.Context, t *task.Task) (string, error) {
	return createTask(ctx, s.db, t)
}

// CreateTask persists a new task inside the transaction.
func (t *Tx) CreateTask(ctx context.Context, tk *task.Task) (string, error) {
	return createTask(ctx, t.tx, tk)
}

func createTask(ctx context.Context, q querier, t *task.Task) (string, error) {
	t.ID = uuid.NewString()
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = task.StatusInbox
	}
	if t.Priority == "" {
		t.Priority = task.PriorityNormal
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, t.Description, string(t.Status), string(t.Priority),
		t.AssignedTo, t.OutputPath, t.Retries, marshalNotify(t.Notify),
		t.CreatedAt, t.UpdatedAt, nullTime(t.StartedAt), nullTime(t.CompletedAt),
	)
	if err != nil {
		return "", fmt.Errorf("insert task: %w", err)
	}
	return t.ID, nil
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	return getTask(ctx, s.db, id)
}

// GetTask retrieves a task by ID inside the transaction.
func (t *Tx) GetTask(ctx context.Context, id string) (*task.Task, error) {
	return getTask(ctx, t.tx, id)
}

func getTask(ctx context.Context, q querier, id string) (*task.Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	tk, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return tk, err
}

// UpdateTask saves changes to an existing task, updating UpdatedAt
// automatically.
func (t *Tx) UpdateTask(ctx context.Context, tk *task.Task) error {
	return updateTask(ctx, t.tx, tk)
}

func updateTask(ctx context.Context, q querier, tk *task.Task) error {
	tk.UpdatedAt = time.Now().UTC()
	res, err := q.ExecContext(ctx, `
		UPDATE tasks SET
			title=?, description=?, status=?, priority=?, assigned_to=?, output_path=?,
			retries=?, notify=?, updated_at=?, started_at=?, completed_at=?
		WHERE id=?`,
		tk.Title, tk.Description, string(tk.Status), string(tk.Priority),
		tk.AssignedTo, tk.OutputPath, tk.Retries, marshalNotify(tk.Notify),
		tk.UpdatedAt, nullTime(tk.StartedAt), nullTime(tk.CompletedAt),
		tk.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("task %s: %w", tk.ID, ErrNotFound)
	}
	return nil
}

// ListTasks returns tasks matching the filter, ordered by priority then age.
func (s *Store) ListTasks(ctx context.Context, filter task.Filter) ([]*task.Task, error) {
	q := strings.Builder{}
	q.WriteString(`SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`)
	args := []any{}

	if filter.Status != nil {
		q.WriteString(" AND status=?")
		args = append(args, string(*filter.Status))
	}
	if filter.AssignedTo != "" {
		q.WriteString(" AND assigned_to=?")
		args = append(args, filter.AssignedTo)
	}
	if filter.Priority != nil {
		q.WriteString(" AND priority=?")
		args = append(args, string(*filter.Priority))
	}
	if filter.Search != "" {
		q.WriteString(" AND (title LIKE ? OR description LIKE ?)")
		pat := "%" + filter.Search + "%"
		args = append(args, pat, pat)
	}
	q.WriteString(` ORDER BY CASE priority
		WHEN 'urgent' THEN 0 WHEN 'high' THEN 1 WHEN 'normal' THEN 2 ELSE 3
	END, created_at ASC`)
	if filter.Limit > 0 {
		q.WriteString(fmt.Sprintf(" LIMIT %d", filter.Limit))
		if filter.Offset > 0 {
			q.WriteString(fmt.Sprintf(" OFFSET %d", filter.Offset))
		}
	}

	rows, err := s.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// DeleteTask removes a task by ID. Dependency edges referencing the
// task in either direction are removed by the schema's ON DELETE CASCADE.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id=?", id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

// CountOpenTasks returns the number of active-status tasks assigned to
// the agent, visible inside the transaction.
func (t *Tx) CountOpenTasks(ctx context.Context, agentID string) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tasks
		WHERE assigned_to = ? AND status IN ('assigned','in_progress','testing','review')`,
		agentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count open tasks: %w", err)
	}
	return n, nil
}

func scanTask(s scanner) (*task.Task, error) {
	var t task.Task
	var status, priority, notifyJSON string
	var startedAt, completedAt sql.NullTime

	err := s.Scan(
		&t.ID, &t.Title, &t.Description, &status, &priority,
		&t.AssignedTo, &t.OutputPath, &t.Retries, &notifyJSON,
		&t.CreatedAt, &t.UpdatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Status = task.Status(status)
	t.Priority = task.Priority(priority)
	if notifyJSON != "" {
		var prefs task.NotifyPrefs
		if err := json.Unmarshal([]byte(notifyJSON), &prefs); err == nil {
			t.Notify = &prefs
		}
	}
	if startedAt.Valid {
		t.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return &t, nil
}

func marshalNotify(p *task.NotifyPrefs) string {
	if p == nil {
		return ""
	}
	b, _ := json.Marshal(p)
	return string(b)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
