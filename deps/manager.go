// Package deps maintains the directed acyclic dependency graph between
// tasks: guarded edge mutation with online cycle rejection, and the
// blocked-state queries that gate lifecycle transitions.
package deps

import (
	"context"
	"errors"
	"fmt"

	"github.com/gammazero/toposort"

	"github.com/GoCodeAlone/overseer/store"
)

var (
	// ErrSelfDependency rejects an edge from a task to itself.
	ErrSelfDependency = errors.New("task cannot depend on itself")

	// ErrDuplicateEdge rejects an edge that already exists.
	ErrDuplicateEdge = errors.New("dependency already exists")

	// ErrCycleDetected rejects an edge that would close a cycle.
	ErrCycleDetected = errors.New("dependency would create a cycle")
)

// Manager answers blocking queries and guards edge mutation against
// self-loops, duplicates, and cycles.
type Manager struct {
	store *store.Store
}

// NewManager creates a Manager over the given store.
func NewManager(st *store.Store) *Manager {
	return &Manager{store: st}
}

// AddEdge records that dependent must wait for prerequisite. The cycle
// check walks prerequisite edges outward from prerequisite over an
// adjacency view fetched once; reaching dependent means the new edge
// would close a cycle. O(V+E) per call. The check and the insert run
// in one transaction so concurrent mutation cannot close a cycle
// between them.
func (m *Manager) AddEdge(ctx context.Context, dependent, prerequisite string) error {
	if dependent == prerequisite {
		return ErrSelfDependency
	}
	return m.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.GetTask(ctx, dependent); err != nil {
			return err
		}
		if _, err := tx.GetTask(ctx, prerequisite); err != nil {
			return err
		}
		exists, err := tx.EdgeExists(ctx, dependent, prerequisite)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%s -> %s: %w", dependent, prerequisite, ErrDuplicateEdge)
		}

		edges, err := tx.ListEdges(ctx)
		if err != nil {
			return err
		}
		if NewGraph(edges).Reachable(prerequisite, dependent) {
			return fmt.Errorf("%s -> %s: %w", dependent, prerequisite, ErrCycleDetected)
		}

		return tx.InsertEdge(ctx, dependent, prerequisite)
	})
}

// RemoveEdge deletes the edge. A missing edge is an error, not a
// no-op, to surface caller bugs.
func (m *Manager) RemoveEdge(ctx context.Context, dependent, prerequisite string) error {
	return m.store.DeleteEdge(ctx, dependent, prerequisite)
}

// Dependencies lists both directions for a task, each side annotated
// with the other task's current status.
type Dependencies struct {
	DependsOn []store.Link `json:"depends_on"`
	Blocking  []store.Link `json:"blocking"` // tasks waiting on this one
}

// ListDependencies returns the task's prerequisites and dependents.
func (m *Manager) ListDependencies(ctx context.Context, taskID string) (*Dependencies, error) {
	if _, err := m.store.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	dependsOn, err := m.store.Prerequisites(ctx, taskID)
	if err != nil {
		return nil, err
	}
	blocking, err := m.store.Dependents(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return &Dependencies{DependsOn: dependsOn, Blocking: blocking}, nil
}

// IsBlocked reports whether the task has at least one prerequisite
// that is not done.
func (m *Manager) IsBlocked(ctx context.Context, taskID string) (bool, error) {
	n, err := m.store.BlockingCount(ctx, taskID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Summary holds the blocked state and edge counts for one task in a
// list view.
type Summary struct {
	Blocked    bool `json:"blocked"`
	DependsOn  int  `json:"depends_on"`
	Dependents int  `json:"dependents"`
}

// Summarize computes blocked state and edge counts for a set of tasks
// in a bounded number of queries, independent of the set size.
func (m *Manager) Summarize(ctx context.Context, taskIDs []string) (map[string]Summary, error) {
	counts, err := m.store.SummarizeEdges(ctx, taskIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Summary, len(taskIDs))
	for _, id := range taskIDs {
		c := counts[id]
		out[id] = Summary{
			Blocked:    c.Blocking > 0,
			DependsOn:  c.DependsOn,
			Dependents: c.Dependents,
		}
	}
	return out, nil
}

// Dependents returns the tasks that list taskID as a prerequisite.
// Used for the unblocked fan-out when a prerequisite completes.
func (m *Manager) Dependents(ctx context.Context, taskID string) ([]store.Link, error) {
	return m.store.Dependents(ctx, taskID)
}

// Order returns all tasks that participate in dependency edges in
// prerequisite-first topological order. The graph is kept acyclic by
// AddEdge, so a sort failure indicates store corruption.
func (m *Manager) Order(ctx context.Context) ([]string, error) {
	edges, err := m.store.ListEdges(ctx)
	if err != nil {
		return nil, err
	}
	tEdges := make([]toposort.Edge, 0, len(edges))
	for _, e := range edges {
		tEdges = append(tEdges, toposort.Edge{e.PrerequisiteID, e.DependentID})
	}
	sorted, err := toposort.Toposort(tEdges)
	if err != nil {
		return nil, fmt.Errorf("topological order: %w", err)
	}
	ids := make([]string, 0, len(sorted))
	for _, v := range sorted {
		ids = append(ids, v.(string))
	}
	return ids, nil
}
