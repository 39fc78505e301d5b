package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/GoCodeAlone/overseer/agent"
	"github.com/GoCodeAlone/overseer/task"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "overseer.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustCreateTask(t *testing.T, s *Store, tk *task.Task) string {
	t.Helper()
	id, err := s.CreateTask(context.Background(), tk)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	return id
}

func TestCreateAndGetTask(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tk := &task.Task{
		Title:       "Build the API",
		Description: "REST endpoints",
		Priority:    task.PriorityHigh,
		Notify:      &task.NotifyPrefs{Email: "ops@example.com", Events: []string{"done"}},
	}
	id := mustCreateTask(t, s, tk)
	if id == "" {
		t.Fatal("CreateTask returned empty ID")
	}

	got, err := s.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Title != tk.Title {
		t.Errorf("Title = %q, want %q", got.Title, tk.Title)
	}
	if got.Status != task.StatusInbox {
		t.Errorf("Status = %q, want inbox default", got.Status)
	}
	if got.Priority != task.PriorityHigh {
		t.Errorf("Priority = %q, want high", got.Priority)
	}
	if got.Notify == nil || got.Notify.Email != "ops@example.com" {
		t.Errorf("Notify = %+v, want email preserved", got.Notify)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetTask(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetTask error = %v, want ErrNotFound", err)
	}
}

func TestWithTxRollback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := mustCreateTask(t, s, &task.Task{Title: "atomic"})

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx *Tx) error {
		tk, err := tx.GetTask(ctx, id)
		if err != nil {
			return err
		}
		tk.Status = task.StatusAssigned
		if err := tx.UpdateTask(ctx, tk); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, id, "status_changed", "", ""); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx error = %v, want boom", err)
	}

	got, err := s.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != task.StatusInbox {
		t.Errorf("Status = %q after rollback, want inbox", got.Status)
	}
	events, err := s.TaskEvents(ctx, id, 0)
	if err != nil {
		t.Fatalf("TaskEvents: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d audit rows after rollback, want 0", len(events))
	}
}

func TestWithTxCommitIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := mustCreateTask(t, s, &task.Task{Title: "atomic"})

	err := s.WithTx(ctx, func(tx *Tx) error {
		tk, err := tx.GetTask(ctx, id)
		if err != nil {
			return err
		}
		tk.Status = task.StatusAssigned
		if err := tx.UpdateTask(ctx, tk); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, id, "status_changed", "agent-1", ""); err != nil {
			return err
		}
		return tx.AppendActivity(ctx, id, "moved to assigned")
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}

	got, _ := s.GetTask(ctx, id)
	if got.Status != task.StatusAssigned {
		t.Errorf("Status = %q, want assigned", got.Status)
	}
	events, _ := s.TaskEvents(ctx, id, 0)
	if len(events) != 1 || events[0].Type != "status_changed" {
		t.Errorf("events = %+v, want one status_changed row", events)
	}
	activity, _ := s.TaskActivity(ctx, id, 0)
	if len(activity) != 1 {
		t.Errorf("got %d activity rows, want 1", len(activity))
	}
}

func TestDeleteTaskCascadesEdges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := mustCreateTask(t, s, &task.Task{Title: "a"})
	b := mustCreateTask(t, s, &task.Task{Title: "b"})
	c := mustCreateTask(t, s, &task.Task{Title: "c"})

	// b depends on a, c depends on b
	if err := s.InsertEdge(ctx, b, a); err != nil {
		t.Fatalf("InsertEdge: %v", err)
	}
	if err := s.InsertEdge(ctx, c, b); err != nil {
		t.Fatalf("InsertEdge: %v", err)
	}

	if err := s.DeleteTask(ctx, b); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	edges, err := s.ListEdges(ctx)
	if err != nil {
		t.Fatalf("ListEdges: %v", err)
	}
	if len(edges) != 0 {
		t.Errorf("got %d edges after delete, want 0 (both directions cascade)", len(edges))
	}
}

func TestDeleteEdgeNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.DeleteEdge(context.Background(), "x", "y")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("DeleteEdge error = %v, want ErrNotFound", err)
	}
}

func TestSummarizeEdges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := mustCreateTask(t, s, &task.Task{Title: "a", Status: task.StatusDone})
	b := mustCreateTask(t, s, &task.Task{Title: "b"})
	c := mustCreateTask(t, s, &task.Task{Title: "c"})

	// c depends on a (done) and b (not done)
	if err := s.InsertEdge(ctx, c, a); err != nil {
		t.Fatalf("InsertEdge: %v", err)
	}
	if err := s.InsertEdge(ctx, c, b); err != nil {
		t.Fatalf("InsertEdge: %v", err)
	}

	counts, err := s.SummarizeEdges(ctx, []string{a, b, c})
	if err != nil {
		t.Fatalf("SummarizeEdges: %v", err)
	}
	if got := counts[c]; got.DependsOn != 2 || got.Blocking != 1 {
		t.Errorf("counts[c] = %+v, want DependsOn=2 Blocking=1", got)
	}
	if got := counts[b]; got.Dependents != 1 {
		t.Errorf("counts[b] = %+v, want Dependents=1", got)
	}
}

func TestAgentLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &agent.Agent{ID: "agent-1", Name: "Builder", Role: "backend", Approver: true}
	if err := s.UpsertAgent(ctx, a); err != nil {
		t.Fatalf("UpsertAgent: %v", err)
	}

	got, err := s.GetAgent(ctx, "agent-1")
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if got.Status != agent.StatusStandby {
		t.Errorf("Status = %q, want standby default", got.Status)
	}
	if !got.Approver {
		t.Error("Approver flag not persisted")
	}

	if err := s.UpdateAgentStatus(ctx, "agent-1", agent.StatusWorking); err != nil {
		t.Fatalf("UpdateAgentStatus: %v", err)
	}
	got, _ = s.GetAgent(ctx, "agent-1")
	if got.Status != agent.StatusWorking {
		t.Errorf("Status = %q, want working", got.Status)
	}

	// Upsert keeps status but refreshes profile fields.
	a.Name = "Builder II"
	if err := s.UpsertAgent(ctx, a); err != nil {
		t.Fatalf("UpsertAgent again: %v", err)
	}
	got, _ = s.GetAgent(ctx, "agent-1")
	if got.Name != "Builder II" {
		t.Errorf("Name = %q, want Builder II", got.Name)
	}
	if got.Status != agent.StatusWorking {
		t.Errorf("Status = %q after upsert, want working preserved", got.Status)
	}
}

func TestOpenLoadAndCompletionStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	started := time.Now().UTC().Add(-30 * time.Minute)
	completed := time.Now().UTC()
	mustCreateTask(t, s, &task.Task{Title: "open1", Status: task.StatusInProgress, AssignedTo: "a1"})
	mustCreateTask(t, s, &task.Task{Title: "open2", Status: task.StatusReview, AssignedTo: "a1"})
	mustCreateTask(t, s, &task.Task{
		Title: "finished", Status: task.StatusDone, AssignedTo: "a2",
		StartedAt: &started, CompletedAt: &completed,
	})

	load, err := s.OpenLoad(ctx)
	if err != nil {
		t.Fatalf("OpenLoad: %v", err)
	}
	if load["a1"] != 2 {
		t.Errorf("load[a1] = %d, want 2", load["a1"])
	}
	if load["a2"] != 0 {
		t.Errorf("load[a2] = %d, want 0", load["a2"])
	}

	stats, err := s.CompletionStats(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("CompletionStats: %v", err)
	}
	st := stats["a2"]
	if st.Completed != 1 {
		t.Errorf("stats[a2].Completed = %d, want 1", st.Completed)
	}
	if st.AvgCompletion < 25*time.Minute || st.AvgCompletion > 35*time.Minute {
		t.Errorf("stats[a2].AvgCompletion = %v, want ~30m", st.AvgCompletion)
	}
}

func TestListTasksFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustCreateTask(t, s, &task.Task{Title: "fix login bug", Priority: task.PriorityUrgent})
	mustCreateTask(t, s, &task.Task{Title: "write docs", Description: "user guide"})
	mustCreateTask(t, s, &task.Task{Title: "deploy", Status: task.StatusDone})

	st := task.StatusInbox
	tasks, err := s.ListTasks(ctx, task.Filter{Status: &st})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d inbox tasks, want 2", len(tasks))
	}
	if tasks[0].Priority != task.PriorityUrgent {
		t.Errorf("first task priority = %q, want urgent first", tasks[0].Priority)
	}

	tasks, err = s.ListTasks(ctx, task.Filter{Search: "guide"})
	if err != nil {
		t.Fatalf("ListTasks search: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Title != "write docs" {
		t.Errorf("search got %d tasks, want the docs task", len(tasks))
	}
}
