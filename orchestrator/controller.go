// Package orchestrator coordinates task lifecycle changes across the
// store, the dependency graph, the assignment scorer, the broadcast
// hub, and agent dispatch. All mutations to a task and its audit trail
// commit in a single transaction; broadcast and dispatch happen after
// commit and never roll a change back.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/GoCodeAlone/overseer/agent"
	"github.com/GoCodeAlone/overseer/assign"
	"github.com/GoCodeAlone/overseer/comms"
	"github.com/GoCodeAlone/overseer/deps"
	"github.com/GoCodeAlone/overseer/hub"
	"github.com/GoCodeAlone/overseer/store"
	"github.com/GoCodeAlone/overseer/task"
)

const (
	defaultDispatchTimeout = 5 * time.Second
	defaultStatsWindow     = 24 * time.Hour
)

// Controller is the single entry point for task mutations.
type Controller struct {
	store    *store.Store
	deps     *deps.Manager
	scorer   *assign.Scorer
	dispatch comms.Dispatcher
	hub      *hub.Hub
	logger   *slog.Logger

	dispatchTimeout time.Duration
	statsWindow     time.Duration
}

// New wires a controller over its collaborators.
func New(st *store.Store, dm *deps.Manager, sc *assign.Scorer, d comms.Dispatcher, h *hub.Hub, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:           st,
		deps:            dm,
		scorer:          sc,
		dispatch:        d,
		hub:             h,
		logger:          logger,
		dispatchTimeout: defaultDispatchTimeout,
		statsWindow:     defaultStatsWindow,
	}
}

// SetDispatchTimeout bounds the synchronous delivery attempt made after
// a transition commits.
func (c *Controller) SetDispatchTimeout(d time.Duration) {
	if d > 0 {
		c.dispatchTimeout = d
	}
}

// SetStatsWindow sets the lookback used when scoring agent velocity.
func (c *Controller) SetStatsWindow(d time.Duration) {
	if d > 0 {
		c.statsWindow = d
	}
}

// TransitionRequest describes a requested change to one task. Nil
// fields are left untouched.
type TransitionRequest struct {
	TaskID      string
	Status      *task.Status
	AssignedTo  *string
	Priority    *task.Priority
	Title       *string
	Description *string
	OutputPath  *string
	Notify      *task.NotifyPrefs

	// RequestingAgent identifies the actor for audit and approval
	// checks. Empty means an anonymous caller.
	RequestingAgent string
}

// Result is the committed outcome of a mutation. DispatchWarning is set
// when the task changed but delivery to its agent failed; the change
// itself stands.
type Result struct {
	Task            *task.Task `json:"task"`
	DispatchWarning string     `json:"dispatch_warning,omitempty"`
	Unblocked       []string   `json:"unblocked,omitempty"`
}

// AssignmentResult pairs a committed assignment with the scorer's
// placement breakdown when the agent was chosen automatically.
type AssignmentResult struct {
	Result
	Placement *assign.Result `json:"placement,omitempty"`
}

// RequestTransition validates and applies a task change: workflow
// guards, the blocked gate, approval rules, timestamp and retry
// bookkeeping, the audit trail, and agent status upkeep. The read, the
// guard checks, and the writes share one transaction so an edge added
// concurrently cannot let a blocked task slip through. After commit it
// broadcasts the update, attempts dispatch when the assignment calls
// for it, and announces dependents that the change unblocked.
func (c *Controller) RequestTransition(ctx context.Context, req TransitionRequest) (*Result, error) {
	var cur, next task.Task
	err := c.store.WithTx(ctx, func(tx *store.Tx) error {
		t, err := tx.GetTask(ctx, req.TaskID)
		if err != nil {
			return err
		}
		cur = *t
		next = cur
		if err := applyPatch(&next, req); err != nil {
			return err
		}

		if next.AssignedTo != cur.AssignedTo && next.AssignedTo != "" {
			if _, err := tx.GetAgent(ctx, next.AssignedTo); err != nil {
				return err
			}
		}

		if next.Status != cur.Status {
			if err := c.checkStatusChange(ctx, tx, &cur, next.Status, req.RequestingAgent); err != nil {
				return err
			}
			stampStatusChange(&cur, &next)
		}
		if next.Status == task.StatusAssigned && next.AssignedTo == "" {
			return errf(KindValidation, "task cannot be %s without an agent", task.StatusAssigned)
		}

		return c.writeChange(ctx, tx, &cur, &next, req.RequestingAgent)
	})
	if err != nil {
		return nil, classify(err, "transition did not commit")
	}

	statusChanging := next.Status != cur.Status

	committed, err := c.store.GetTask(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}
	res := &Result{Task: committed}

	c.hub.Publish(hub.Event{Type: hub.EventTaskUpdated, Payload: committed})

	if c.needsDispatch(&cur, committed) {
		if warn := c.dispatchTask(ctx, committed); warn != "" {
			res.DispatchWarning = warn
		}
	}

	if statusChanging && committed.Status == task.StatusDone {
		unblocked, err := c.announceUnblocked(ctx, committed)
		if err != nil {
			c.logger.Warn("unblocked scan failed", "task", committed.ID, "error", err)
		} else {
			res.Unblocked = unblocked
		}
	}
	return res, nil
}

// applyPatch copies the request's set fields onto next and validates
// field-level constraints. Status guards run separately.
func applyPatch(next *task.Task, req TransitionRequest) error {
	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			return errf(KindValidation, "title cannot be empty")
		}
		next.Title = *req.Title
	}
	if req.Description != nil {
		next.Description = *req.Description
	}
	if req.Priority != nil {
		if !req.Priority.Valid() {
			return errf(KindValidation, "unknown priority %q", *req.Priority)
		}
		next.Priority = *req.Priority
	}
	if req.AssignedTo != nil {
		next.AssignedTo = *req.AssignedTo
	}
	if req.OutputPath != nil {
		next.OutputPath = *req.OutputPath
	}
	if req.Notify != nil {
		next.Notify = req.Notify
	}
	if req.Status != nil {
		if !req.Status.Valid() {
			return errf(KindValidation, "unknown status %q", *req.Status)
		}
		next.Status = *req.Status
	}
	return nil
}

// classify passes through errors that already carry a kind or a store
// sentinel and wraps anything else as a persistence failure.
func classify(err error, msg string) error {
	var oe *Error
	if errors.As(err, &oe) {
		return err
	}
	if errors.Is(err, store.ErrNotFound) {
		return err
	}
	return &Error{Kind: KindPersistence, Msg: msg, Err: err}
}

// checkStatusChange enforces the workflow edge, the blocked gate, and
// the approval rules for a proposed status move. It reads through the
// caller's transaction so the gate and the write see one snapshot.
func (c *Controller) checkStatusChange(ctx context.Context, tx *store.Tx, cur *task.Task, to task.Status, requester string) error {
	if !task.CanTransition(cur.Status, to) {
		return errf(KindConflict, "task cannot move from %s to %s", cur.Status, to)
	}

	if task.Advances(cur.Status, to) {
		blocking, err := tx.BlockingCount(ctx, cur.ID)
		if err != nil {
			return fmt.Errorf("blocked check: %w", err)
		}
		if blocking > 0 {
			return errf(KindConflict, "task %s is blocked by unfinished prerequisites", cur.ID)
		}
	}

	if cur.Status == task.StatusReview && to == task.StatusDone {
		return requireApprover(ctx, tx, requester, KindApprovalRequired)
	}
	if task.Regresses(cur.Status, to) {
		return requireApprover(ctx, tx, requester, KindForbidden)
	}
	return nil
}

// requireApprover verifies the requester exists and carries approval
// rights. missingKind is returned when no requester was supplied.
func requireApprover(ctx context.Context, tx *store.Tx, requester string, missingKind Kind) error {
	if requester == "" {
		return errf(missingKind, "an approving agent is required")
	}
	ag, err := tx.GetAgent(ctx, requester)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errf(KindForbidden, "unknown agent %s cannot approve", requester)
		}
		return err
	}
	if !ag.Approver {
		return errf(KindForbidden, "agent %s lacks approval rights", requester)
	}
	return nil
}

// stampStatusChange maintains StartedAt, CompletedAt, and the retry
// counter across a status move.
func stampStatusChange(cur *task.Task, next *task.Task) {
	now := time.Now().UTC()
	switch {
	case next.Status == task.StatusInProgress:
		if next.StartedAt == nil {
			next.StartedAt = &now
		}
		if cur.Status == task.StatusFailed {
			next.Retries++
		}
	case next.Status == task.StatusDone:
		next.CompletedAt = &now
	}
	if cur.Status == task.StatusDone && next.Status != task.StatusDone {
		next.CompletedAt = nil
	}
}

// writeChange writes the task, its audit rows, and any agent status
// adjustment through the caller's transaction.
func (c *Controller) writeChange(ctx context.Context, tx *store.Tx, cur, next *task.Task, actor string) error {
	if err := tx.UpdateTask(ctx, next); err != nil {
		return err
	}

	detail, _ := json.Marshal(map[string]string{
		"from":        string(cur.Status),
		"to":          string(next.Status),
		"assigned_to": next.AssignedTo,
	})
	eventType := "updated"
	switch {
	case next.Status != cur.Status:
		eventType = "status_changed"
	case next.AssignedTo != cur.AssignedTo:
		eventType = "assigned"
	}
	if err := tx.AppendEvent(ctx, next.ID, eventType, actor, string(detail)); err != nil {
		return err
	}
	if err := tx.AppendActivity(ctx, next.ID, changeSummary(cur, next, actor)); err != nil {
		return err
	}

	if next.Status != cur.Status && next.AssignedTo != "" {
		if err := adjustAgentStatus(ctx, tx, next); err != nil {
			return err
		}
	}
	return nil
}

// adjustAgentStatus marks the assignee working while its task runs and
// returns it to standby once its last open task reaches a terminal
// status. A missing agent row is skipped rather than failing the
// transition.
func adjustAgentStatus(ctx context.Context, tx *store.Tx, next *task.Task) error {
	var err error
	switch {
	case next.Status == task.StatusInProgress || next.Status == task.StatusTesting:
		err = tx.UpdateAgentStatus(ctx, next.AssignedTo, agent.StatusWorking)
	case next.Status.Terminal():
		var open int
		open, err = tx.CountOpenTasks(ctx, next.AssignedTo)
		if err == nil && open == 0 {
			err = tx.UpdateAgentStatus(ctx, next.AssignedTo, agent.StatusStandby)
		}
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

func changeSummary(cur, next *task.Task, actor string) string {
	who := actor
	if who == "" {
		who = "system"
	}
	switch {
	case next.Status != cur.Status:
		return fmt.Sprintf("%s moved task from %s to %s", who, cur.Status, next.Status)
	case next.AssignedTo != cur.AssignedTo && next.AssignedTo != "":
		return fmt.Sprintf("%s assigned task to %s", who, next.AssignedTo)
	case next.AssignedTo != cur.AssignedTo:
		return fmt.Sprintf("%s unassigned task", who)
	}
	return fmt.Sprintf("%s updated task", who)
}

// needsDispatch reports whether the committed change hands work to an
// agent: a fresh assignment out of the inbox, or an assignee change
// while the task is live.
func (c *Controller) needsDispatch(cur, committed *task.Task) bool {
	if committed.AssignedTo == "" {
		return false
	}
	if cur.Status == task.StatusInbox && committed.Status == task.StatusAssigned {
		return true
	}
	if committed.AssignedTo != cur.AssignedTo && committed.Status.Active() {
		return true
	}
	return false
}

// dispatchTask makes one bounded delivery attempt to the assignee's
// session and returns a warning string on failure. The committed state
// is never rolled back for a delivery failure.
func (c *Controller) dispatchTask(ctx context.Context, t *task.Task) string {
	ag, err := c.store.GetAgent(ctx, t.AssignedTo)
	if err != nil {
		c.logger.Warn("dispatch skipped", "task", t.ID, "agent", t.AssignedTo, "error", err)
		return fmt.Sprintf("dispatch skipped: %v", err)
	}
	session := ag.SessionID
	if session == "" {
		session = ag.ID
	}

	dctx, cancel := context.WithTimeout(ctx, c.dispatchTimeout)
	defer cancel()

	msg := &comms.TaskMessage{
		TaskID:      t.ID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    string(t.Priority),
		OutputPath:  t.OutputPath,
		AgentID:     ag.ID,
		SentAt:      time.Now().UTC(),
	}
	if err := c.dispatch.Send(dctx, session, msg); err != nil {
		c.logger.Warn("dispatch failed", "task", t.ID, "agent", ag.ID, "session", session, "error", err)
		return fmt.Sprintf("dispatch failed: %v", err)
	}
	c.logger.Info("task dispatched", "task", t.ID, "agent", ag.ID, "session", session)
	return ""
}

// announceUnblocked publishes an event for each dependent of the
// finished task that no longer has unfinished prerequisites.
func (c *Controller) announceUnblocked(ctx context.Context, done *task.Task) ([]string, error) {
	dependents, err := c.deps.Dependents(ctx, done.ID)
	if err != nil {
		return nil, err
	}
	var unblocked []string
	for _, link := range dependents {
		blocked, err := c.deps.IsBlocked(ctx, link.TaskID)
		if err != nil {
			return unblocked, err
		}
		if blocked {
			continue
		}
		unblocked = append(unblocked, link.TaskID)
		c.hub.Publish(hub.Event{Type: hub.EventTaskUnblocked, Payload: map[string]string{
			"task_id":                link.TaskID,
			"title":                  link.Title,
			"completed_prerequisite": done.ID,
		}})
	}
	return unblocked, nil
}

// RequestAssignment places a task with an agent. An empty agentID asks
// the scorer to choose. Tasks that already sit with an agent outside
// the inbox are not silently re-routed.
func (c *Controller) RequestAssignment(ctx context.Context, taskID, agentID, requester string) (*AssignmentResult, error) {
	cur, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if cur.AssignedTo != "" && cur.Status != task.StatusInbox {
		return nil, errf(KindConflict, "task %s is already assigned to %s", cur.ID, cur.AssignedTo)
	}

	var placement *assign.Result
	if agentID == "" {
		placement, err = c.SuggestAgent(ctx, taskID)
		if err != nil {
			return nil, err
		}
		agentID = placement.AgentID
		c.hub.Publish(hub.Event{Type: hub.EventAssignmentSuggested, Payload: map[string]any{
			"task_id":   taskID,
			"placement": placement,
		}})
	} else {
		ag, err := c.store.GetAgent(ctx, agentID)
		if err != nil {
			return nil, err
		}
		if ag.Status == agent.StatusOffline {
			return nil, errf(KindValidation, "agent %s is offline", agentID)
		}
	}

	req := TransitionRequest{
		TaskID:          taskID,
		AssignedTo:      &agentID,
		RequestingAgent: requester,
	}
	if cur.Status == task.StatusInbox {
		assigned := task.StatusAssigned
		req.Status = &assigned
	}
	res, err := c.RequestTransition(ctx, req)
	if err != nil {
		return nil, err
	}
	return &AssignmentResult{Result: *res, Placement: placement}, nil
}

// SuggestAgent scores the roster for a task without committing
// anything.
func (c *Controller) SuggestAgent(ctx context.Context, taskID string) (*assign.Result, error) {
	tk, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	agents, err := c.store.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	load, err := c.store.OpenLoad(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := c.store.CompletionStats(ctx, time.Now().UTC().Add(-c.statsWindow))
	if err != nil {
		return nil, err
	}
	history := make(map[string]assign.History, len(stats))
	for id, st := range stats {
		history[id] = assign.History{Completed: st.Completed, AvgCompletion: st.AvgCompletion}
	}
	return c.scorer.Pick(tk, agents, load, history)
}

// CreateTask validates and persists a new task with its initial audit
// rows, then broadcasts it. Every task starts in the inbox; later
// statuses are reached only through RequestTransition and its guards.
func (c *Controller) CreateTask(ctx context.Context, t *task.Task) (*task.Task, error) {
	if strings.TrimSpace(t.Title) == "" {
		return nil, errf(KindValidation, "title is required")
	}
	if t.Status != "" && t.Status != task.StatusInbox {
		return nil, errf(KindValidation, "new tasks start in %s, not %q", task.StatusInbox, t.Status)
	}
	if t.Priority != "" && !t.Priority.Valid() {
		return nil, errf(KindValidation, "unknown priority %q", t.Priority)
	}
	if t.AssignedTo != "" {
		if _, err := c.store.GetAgent(ctx, t.AssignedTo); err != nil {
			return nil, err
		}
	}

	err := c.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.CreateTask(ctx, t); err != nil {
			return err
		}
		detail, _ := json.Marshal(map[string]string{
			"status":   string(t.Status),
			"priority": string(t.Priority),
		})
		if err := tx.AppendEvent(ctx, t.ID, "created", "", string(detail)); err != nil {
			return err
		}
		return tx.AppendActivity(ctx, t.ID, fmt.Sprintf("task created: %s", t.Title))
	})
	if err != nil {
		return nil, &Error{Kind: KindPersistence, Msg: "create did not commit", Err: err}
	}

	c.hub.Publish(hub.Event{Type: hub.EventTaskCreated, Payload: t})
	return t, nil
}

// DeleteTask removes a task and, via the schema, its dependency edges
// in both directions.
func (c *Controller) DeleteTask(ctx context.Context, id string) error {
	if _, err := c.store.GetTask(ctx, id); err != nil {
		return err
	}
	if err := c.store.DeleteTask(ctx, id); err != nil {
		return err
	}
	c.hub.Publish(hub.Event{Type: hub.EventTaskDeleted, Payload: map[string]string{"task_id": id}})
	return nil
}

// AddDependency records that dependent waits on prerequisite.
func (c *Controller) AddDependency(ctx context.Context, dependent, prerequisite, actor string) error {
	if err := c.deps.AddEdge(ctx, dependent, prerequisite); err != nil {
		return err
	}
	c.auditEdge(ctx, dependent, prerequisite, actor, "dependency_added")
	c.hub.Publish(hub.Event{Type: hub.EventDependencyAdded, Payload: map[string]string{
		"dependent_id":    dependent,
		"prerequisite_id": prerequisite,
	}})
	return nil
}

// RemoveDependency deletes an edge; removing the last unfinished
// prerequisite announces the dependent as unblocked. A dependent that
// was never blocked is not announced.
func (c *Controller) RemoveDependency(ctx context.Context, dependent, prerequisite, actor string) error {
	wasBlocked, err := c.deps.IsBlocked(ctx, dependent)
	if err != nil {
		return err
	}
	if err := c.deps.RemoveEdge(ctx, dependent, prerequisite); err != nil {
		return err
	}
	c.auditEdge(ctx, dependent, prerequisite, actor, "dependency_removed")
	c.hub.Publish(hub.Event{Type: hub.EventDependencyRemoved, Payload: map[string]string{
		"dependent_id":    dependent,
		"prerequisite_id": prerequisite,
	}})

	if !wasBlocked {
		return nil
	}
	blocked, err := c.deps.IsBlocked(ctx, dependent)
	if err != nil {
		c.logger.Warn("unblocked scan failed", "task", dependent, "error", err)
		return nil
	}
	if !blocked {
		c.hub.Publish(hub.Event{Type: hub.EventTaskUnblocked, Payload: map[string]string{
			"task_id": dependent,
		}})
	}
	return nil
}

// auditEdge records a dependency change against the dependent task.
// Audit failures here are logged, not surfaced: the edge change has
// already committed.
func (c *Controller) auditEdge(ctx context.Context, dependent, prerequisite, actor, eventType string) {
	err := c.store.WithTx(ctx, func(tx *store.Tx) error {
		detail, _ := json.Marshal(map[string]string{"prerequisite_id": prerequisite})
		if err := tx.AppendEvent(ctx, dependent, eventType, actor, string(detail)); err != nil {
			return err
		}
		verb := "now waits on"
		if eventType == "dependency_removed" {
			verb = "no longer waits on"
		}
		return tx.AppendActivity(ctx, dependent, fmt.Sprintf("task %s %s", verb, prerequisite))
	})
	if err != nil {
		c.logger.Warn("dependency audit failed", "task", dependent, "error", err)
	}
}

// UpsertAgent registers or refreshes an agent profile and broadcasts
// the change.
func (c *Controller) UpsertAgent(ctx context.Context, a *agent.Agent) (*agent.Agent, error) {
	if strings.TrimSpace(a.ID) == "" {
		return nil, errf(KindValidation, "agent id is required")
	}
	if a.Status != "" && !a.Status.Valid() {
		return nil, errf(KindValidation, "unknown agent status %q", a.Status)
	}
	if err := c.store.UpsertAgent(ctx, a); err != nil {
		return nil, &Error{Kind: KindPersistence, Msg: "agent upsert did not commit", Err: err}
	}
	saved, err := c.store.GetAgent(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	c.hub.Publish(hub.Event{Type: hub.EventAgentUpdated, Payload: saved})
	return saved, nil
}

// SetAgentStatus moves an agent between standby, working, and offline.
func (c *Controller) SetAgentStatus(ctx context.Context, id string, status agent.Status) (*agent.Agent, error) {
	if !status.Valid() {
		return nil, errf(KindValidation, "unknown agent status %q", status)
	}
	if err := c.store.UpdateAgentStatus(ctx, id, status); err != nil {
		return nil, err
	}
	saved, err := c.store.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	c.hub.Publish(hub.Event{Type: hub.EventAgentUpdated, Payload: saved})
	return saved, nil
}
