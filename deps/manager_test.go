package deps

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/GoCodeAlone/overseer/store"
	"github.com/GoCodeAlone/overseer/task"
)

func newTestManager(t *testing.T) (*Manager, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "deps.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewManager(st), st
}

func createTask(t *testing.T, st *store.Store, title string) string {
	t.Helper()
	id, err := st.CreateTask(context.Background(), &task.Task{Title: title})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	return id
}

func TestAddEdgeSelfDependency(t *testing.T) {
	m, st := newTestManager(t)
	a := createTask(t, st, "a")
	if err := m.AddEdge(context.Background(), a, a); !errors.Is(err, ErrSelfDependency) {
		t.Fatalf("AddEdge self error = %v, want ErrSelfDependency", err)
	}
}

func TestAddEdgeMissingTask(t *testing.T) {
	m, st := newTestManager(t)
	a := createTask(t, st, "a")
	if err := m.AddEdge(context.Background(), a, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("AddEdge missing error = %v, want ErrNotFound", err)
	}
}

func TestAddEdgeDuplicate(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()
	a := createTask(t, st, "a")
	b := createTask(t, st, "b")
	if err := m.AddEdge(ctx, a, b); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if err := m.AddEdge(ctx, a, b); !errors.Is(err, ErrDuplicateEdge) {
		t.Fatalf("duplicate AddEdge error = %v, want ErrDuplicateEdge", err)
	}
}

func TestAddEdgeDirectCycle(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()
	a := createTask(t, st, "a")
	b := createTask(t, st, "b")
	if err := m.AddEdge(ctx, a, b); err != nil {
		t.Fatalf("AddEdge a->b: %v", err)
	}
	if err := m.AddEdge(ctx, b, a); !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("AddEdge b->a error = %v, want ErrCycleDetected", err)
	}
}

func TestAddEdgeTransitiveCycle(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()
	a := createTask(t, st, "a")
	b := createTask(t, st, "b")
	c := createTask(t, st, "c")
	if err := m.AddEdge(ctx, a, b); err != nil {
		t.Fatalf("AddEdge a->b: %v", err)
	}
	if err := m.AddEdge(ctx, b, c); err != nil {
		t.Fatalf("AddEdge b->c: %v", err)
	}
	if err := m.AddEdge(ctx, c, a); !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("AddEdge c->a error = %v, want ErrCycleDetected", err)
	}
}

func TestAddEdgeConcurrentReciprocal(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()

	// Reciprocal edges raced from two goroutines: the cycle check and
	// the insert share a transaction, so at most one direction commits.
	for round := 0; round < 8; round++ {
		a := createTask(t, st, "a")
		b := createTask(t, st, "b")

		var wg sync.WaitGroup
		errs := make([]error, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs[0] = m.AddEdge(ctx, a, b)
		}()
		go func() {
			defer wg.Done()
			errs[1] = m.AddEdge(ctx, b, a)
		}()
		wg.Wait()

		ab, err := st.EdgeExists(ctx, a, b)
		if err != nil {
			t.Fatalf("EdgeExists a->b: %v", err)
		}
		ba, err := st.EdgeExists(ctx, b, a)
		if err != nil {
			t.Fatalf("EdgeExists b->a: %v", err)
		}
		if ab && ba {
			t.Fatalf("round %d: both directions committed, errs = %v", round, errs)
		}
		if !ab && !ba {
			t.Fatalf("round %d: neither direction committed, errs = %v", round, errs)
		}
		for _, err := range errs {
			if err != nil && !errors.Is(err, ErrCycleDetected) {
				t.Fatalf("round %d: loser error = %v, want ErrCycleDetected", round, err)
			}
		}
		if _, err := m.Order(ctx); err != nil {
			t.Fatalf("round %d: Order after race: %v", round, err)
		}
	}
}

func TestRemoveEdgeMissing(t *testing.T) {
	m, st := newTestManager(t)
	a := createTask(t, st, "a")
	b := createTask(t, st, "b")
	if err := m.RemoveEdge(context.Background(), a, b); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("RemoveEdge missing error = %v, want ErrNotFound", err)
	}
}

func TestIsBlocked(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()
	x := createTask(t, st, "x")
	y := createTask(t, st, "y")
	zID, err := st.CreateTask(ctx, &task.Task{Title: "z", Status: task.StatusDone})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	// x depends on y (not done) and z (done)
	if err := m.AddEdge(ctx, x, y); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if err := m.AddEdge(ctx, x, zID); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	blocked, err := m.IsBlocked(ctx, x)
	if err != nil {
		t.Fatalf("IsBlocked: %v", err)
	}
	if !blocked {
		t.Fatal("x should be blocked while y is not done")
	}

	// Flip y to done; x unblocks.
	err = st.WithTx(ctx, func(tx *store.Tx) error {
		tk, err := tx.GetTask(ctx, y)
		if err != nil {
			return err
		}
		tk.Status = task.StatusDone
		return tx.UpdateTask(ctx, tk)
	})
	if err != nil {
		t.Fatalf("update y: %v", err)
	}

	blocked, err = m.IsBlocked(ctx, x)
	if err != nil {
		t.Fatalf("IsBlocked: %v", err)
	}
	if blocked {
		t.Fatal("x should be unblocked once all prerequisites are done")
	}
}

func TestListDependencies(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()
	a := createTask(t, st, "a")
	b := createTask(t, st, "b")
	c := createTask(t, st, "c")
	if err := m.AddEdge(ctx, b, a); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if err := m.AddEdge(ctx, c, b); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	got, err := m.ListDependencies(ctx, b)
	if err != nil {
		t.Fatalf("ListDependencies: %v", err)
	}
	if len(got.DependsOn) != 1 || got.DependsOn[0].TaskID != a {
		t.Errorf("DependsOn = %+v, want [a]", got.DependsOn)
	}
	if len(got.Blocking) != 1 || got.Blocking[0].TaskID != c {
		t.Errorf("Blocking = %+v, want [c]", got.Blocking)
	}
	if got.DependsOn[0].Status != task.StatusInbox {
		t.Errorf("link status = %q, want inbox annotation", got.DependsOn[0].Status)
	}
}

func TestSummarize(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()
	a := createTask(t, st, "a")
	b := createTask(t, st, "b")
	c := createTask(t, st, "c")
	if err := m.AddEdge(ctx, c, a); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if err := m.AddEdge(ctx, c, b); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	sum, err := m.Summarize(ctx, []string{a, b, c})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if !sum[c].Blocked || sum[c].DependsOn != 2 {
		t.Errorf("sum[c] = %+v, want blocked with 2 prerequisites", sum[c])
	}
	if sum[a].Blocked || sum[a].Dependents != 1 {
		t.Errorf("sum[a] = %+v, want unblocked with 1 dependent", sum[a])
	}
}

func TestOrder(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()
	a := createTask(t, st, "a")
	b := createTask(t, st, "b")
	c := createTask(t, st, "c")
	// c depends on b, b depends on a
	if err := m.AddEdge(ctx, b, a); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if err := m.AddEdge(ctx, c, b); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}

	order, err := m.Order(ctx)
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	if !(pos[a] < pos[b] && pos[b] < pos[c]) {
		t.Errorf("Order = %v, want a before b before c", order)
	}
}

func TestGraphReachable(t *testing.T) {
	edges := []store.Edge{
		{DependentID: "a", PrerequisiteID: "b"},
		{DependentID: "b", PrerequisiteID: "c"},
	}
	g := NewGraph(edges)
	if !g.Reachable("a", "c") {
		t.Error("a should reach c through b")
	}
	if g.Reachable("c", "a") {
		t.Error("c should not reach a")
	}
}
