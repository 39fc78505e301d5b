package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/GoCodeAlone/overseer/agent"
)

const agentColumns = `id, name, role, status, approver, model, session_id, created_at, updated_at`

// UpsertAgent inserts the agent or, if the ID exists, refreshes its
// profile fields. Used at startup to seed agents from config.
func (s *Store) UpsertAgent(ctx context.Context, a *agent.Agent) error {
	now := time.Now().UTC()
	if a.Status == "" {
		a.Status = agent.StatusStandby
	}
	a.UpdatedAt = now
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (`+agentColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, role=excluded.role, approver=excluded.approver,
			model=excluded.model, session_id=excluded.session_id, updated_at=excluded.updated_at`,
		a.ID, a.Name, a.Role, string(a.Status), boolInt(a.Approver),
		a.Model, a.SessionID, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert agent: %w", err)
	}
	return nil
}

// GetAgent retrieves an agent by ID.
func (s *Store) GetAgent(ctx context.Context, id string) (*agent.Agent, error) {
	return getAgent(ctx, s.db, id)
}

// GetAgent retrieves an agent by ID inside the transaction.
func (t *Tx) GetAgent(ctx context.Context, id string) (*agent.Agent, error) {
	return getAgent(ctx, t.tx, id)
}

func getAgent(ctx context.Context, q querier, id string) (*agent.Agent, error) {
	row := q.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	return a, err
}

// ListAgents returns all agents ordered by ID.
func (s *Store) ListAgents(ctx context.Context) ([]*agent.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []*agent.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// UpdateAgentStatus sets an agent's operational status.
func (s *Store) UpdateAgentStatus(ctx context.Context, id string, status agent.Status) error {
	return updateAgentStatus(ctx, s.db, id, status)
}

// UpdateAgentStatus sets an agent's operational status inside the transaction.
func (t *Tx) UpdateAgentStatus(ctx context.Context, id string, status agent.Status) error {
	return updateAgentStatus(ctx, t.tx, id, status)
}

func updateAgentStatus(ctx context.Context, q querier, id string, status agent.Status) error {
	res, err := q.ExecContext(ctx,
		`UPDATE agents SET status=?, updated_at=? WHERE id=?`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update agent status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	return nil
}

// CompletionStat summarizes an agent's recent completions.
type CompletionStat struct {
	Completed     int
	AvgCompletion time.Duration
}

// OpenLoad returns, per agent, the number of tasks currently in an
// active status. Agents with no open tasks are absent from the map.
func (s *Store) OpenLoad(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT assigned_to, COUNT(*) FROM tasks
		WHERE assigned_to != '' AND status IN ('assigned','in_progress','testing','review')
		GROUP BY assigned_to`)
	if err != nil {
		return nil, fmt.Errorf("open load: %w", err)
	}
	defer rows.Close()

	load := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		load[id] = n
	}
	return load, rows.Err()
}

// CompletionStats returns, per agent, the number of tasks completed
// since the given time and the average observed completion duration.
func (s *Store) CompletionStats(ctx context.Context, since time.Time) (map[string]CompletionStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT assigned_to, COUNT(*),
		       COALESCE(AVG(strftime('%s', completed_at) - strftime('%s', started_at)), 0)
		FROM tasks
		WHERE assigned_to != '' AND status = 'done'
		  AND completed_at IS NOT NULL AND completed_at >= ?
		GROUP BY assigned_to`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("completion stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]CompletionStat)
	for rows.Next() {
		var id string
		var n int
		var avgSec float64
		if err := rows.Scan(&id, &n, &avgSec); err != nil {
			return nil, err
		}
		stats[id] = CompletionStat{
			Completed:     n,
			AvgCompletion: time.Duration(avgSec * float64(time.Second)),
		}
	}
	return stats, rows.Err()
}

func scanAgent(s scanner) (*agent.Agent, error) {
	var a agent.Agent
	var status string
	var approver int
	err := s.Scan(&a.ID, &a.Name, &a.Role, &status, &approver,
		&a.Model, &a.SessionID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = agent.Status(status)
	a.Approver = approver != 0
	return &a, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
