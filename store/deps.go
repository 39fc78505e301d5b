package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/GoCodeAlone/overseer/task"
)

// Edge is a directed dependency: the dependent task must wait for the
// prerequisite task.
type Edge struct {
	DependentID    string    `json:"dependent_id"`
	PrerequisiteID string    `json:"prerequisite_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Link annotates one side of an edge with the other task's current state.
type Link struct {
	TaskID string      `json:"task_id"`
	Title  string      `json:"title"`
	Status task.Status `json:"status"`
}

// EdgeExists reports whether the edge is already present.
func (s *Store) EdgeExists(ctx context.Context, dependent, prerequisite string) (bool, error) {
	return edgeExists(ctx, s.db, dependent, prerequisite)
}

// EdgeExists reports whether the edge is already present, reading
// inside the transaction.
func (t *Tx) EdgeExists(ctx context.Context, dependent, prerequisite string) (bool, error) {
	return edgeExists(ctx, t.tx, dependent, prerequisite)
}

func edgeExists(ctx context.Context, q querier, dependent, prerequisite string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM task_dependencies
		WHERE dependent_id = ? AND prerequisite_id = ?`, dependent, prerequisite).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("edge exists: %w", err)
	}
	return n > 0, nil
}

// InsertEdge adds a dependency edge. Uniqueness is enforced by the
// primary key; callers check EdgeExists first for a clean error.
func (s *Store) InsertEdge(ctx context.Context, dependent, prerequisite string) error {
	return insertEdge(ctx, s.db, dependent, prerequisite)
}

// InsertEdge adds a dependency edge inside the transaction.
func (t *Tx) InsertEdge(ctx context.Context, dependent, prerequisite string) error {
	return insertEdge(ctx, t.tx, dependent, prerequisite)
}

func insertEdge(ctx context.Context, q querier, dependent, prerequisite string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO task_dependencies (dependent_id, prerequisite_id, created_at)
		VALUES (?,?,?)`, dependent, prerequisite, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert edge: %w", err)
	}
	return nil
}

// DeleteEdge removes a dependency edge, returning ErrNotFound when the
// edge does not exist.
func (s *Store) DeleteEdge(ctx context.Context, dependent, prerequisite string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM task_dependencies
		WHERE dependent_id = ? AND prerequisite_id = ?`, dependent, prerequisite)
	if err != nil {
		return fmt.Errorf("delete edge: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("edge %s -> %s: %w", dependent, prerequisite, ErrNotFound)
	}
	return nil
}

// ListEdges returns every dependency edge. Used to build the in-memory
// adjacency view for cycle checks; fetched once per check.
func (s *Store) ListEdges(ctx context.Context) ([]Edge, error) {
	return listEdges(ctx, s.db)
}

// ListEdges returns every dependency edge, reading inside the
// transaction so the cycle check and the insert see one snapshot.
func (t *Tx) ListEdges(ctx context.Context) ([]Edge, error) {
	return listEdges(ctx, t.tx)
}

func listEdges(ctx context.Context, q querier) ([]Edge, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT dependent_id, prerequisite_id, created_at FROM task_dependencies`)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.DependentID, &e.PrerequisiteID, &e.CreatedAt); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// Prerequisites returns the tasks the given task depends on, annotated
// with their current status.
func (s *Store) Prerequisites(ctx context.Context, taskID string) ([]Link, error) {
	return s.queryLinks(ctx, `
		SELECT t.id, t.title, t.status
		FROM task_dependencies d JOIN tasks t ON t.id = d.prerequisite_id
		WHERE d.dependent_id = ?
		ORDER BY d.created_at`, taskID)
}

// Dependents returns the tasks that list the given task as a
// prerequisite, annotated with their current status.
func (s *Store) Dependents(ctx context.Context, taskID string) ([]Link, error) {
	return s.queryLinks(ctx, `
		SELECT t.id, t.title, t.status
		FROM task_dependencies d JOIN tasks t ON t.id = d.dependent_id
		WHERE d.prerequisite_id = ?
		ORDER BY d.created_at`, taskID)
}

func (s *Store) queryLinks(ctx context.Context, query, taskID string) ([]Link, error) {
	rows, err := s.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		var l Link
		var status string
		if err := rows.Scan(&l.TaskID, &l.Title, &status); err != nil {
			return nil, err
		}
		l.Status = task.Status(status)
		links = append(links, l)
	}
	return links, rows.Err()
}

// BlockingCount returns how many of the task's prerequisites are not done.
func (s *Store) BlockingCount(ctx context.Context, taskID string) (int, error) {
	return blockingCount(ctx, s.db, taskID)
}

// BlockingCount returns how many of the task's prerequisites are not
// done, reading inside the transaction.
func (t *Tx) BlockingCount(ctx context.Context, taskID string) (int, error) {
	return blockingCount(ctx, t.tx, taskID)
}

func blockingCount(ctx context.Context, q querier, taskID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM task_dependencies d JOIN tasks t ON t.id = d.prerequisite_id
		WHERE d.dependent_id = ? AND t.status != 'done'`, taskID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("blocking count: %w", err)
	}
	return n, nil
}

// EdgeCounts holds per-task aggregate edge counts for list views.
type EdgeCounts struct {
	DependsOn  int `json:"depends_on"`
	Blocking   int `json:"blocking"` // prerequisites not yet done
	Dependents int `json:"dependents"`
}

// SummarizeEdges returns aggregate dependency counts for a set of
// tasks in two grouped queries, independent of the set size.
func (s *Store) SummarizeEdges(ctx context.Context, taskIDs []string) (map[string]EdgeCounts, error) {
	out := make(map[string]EdgeCounts, len(taskIDs))
	if len(taskIDs) == 0 {
		return out, nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(taskIDs)), ",")
	args := make([]any, len(taskIDs))
	for i, id := range taskIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.dependent_id, COUNT(*),
		       SUM(CASE WHEN t.status != 'done' THEN 1 ELSE 0 END)
		FROM task_dependencies d JOIN tasks t ON t.id = d.prerequisite_id
		WHERE d.dependent_id IN (`+placeholders+`)
		GROUP BY d.dependent_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("summarize depends-on: %w", err)
	}
	for rows.Next() {
		var id string
		var total, blocking int
		if err := rows.Scan(&id, &total, &blocking); err != nil {
			rows.Close()
			return nil, err
		}
		c := out[id]
		c.DependsOn = total
		c.Blocking = blocking
		out[id] = c
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `
		SELECT prerequisite_id, COUNT(*) FROM task_dependencies
		WHERE prerequisite_id IN (`+placeholders+`)
		GROUP BY prerequisite_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("summarize dependents: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		c := out[id]
		c.Dependents = n
		out[id] = c
	}
	return out, rows.Err()
}
