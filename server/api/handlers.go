// Package api implements the REST handlers over the orchestration
// core.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/GoCodeAlone/overseer/agent"
	"github.com/GoCodeAlone/overseer/comms"
	"github.com/GoCodeAlone/overseer/deps"
	"github.com/GoCodeAlone/overseer/orchestrator"
	"github.com/GoCodeAlone/overseer/store"
	"github.com/GoCodeAlone/overseer/task"
)

// MessageLog exposes the dispatcher's session registry and recent
// delivery history.
type MessageLog interface {
	ListActiveSessions() []string
	History(session string, limit int) []*comms.TaskMessage
}

// Handlers bundles all REST API handler dependencies.
type Handlers struct {
	Ctrl     *orchestrator.Controller
	Store    *store.Store
	Deps     *deps.Manager
	Messages MessageLog
	Logger   *slog.Logger
	Version  string
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/tasks", h.listTasks)
	mux.HandleFunc("POST /api/tasks", h.createTask)
	mux.HandleFunc("GET /api/tasks/order", h.taskOrder)
	mux.HandleFunc("GET /api/tasks/summary", h.taskSummary)
	mux.HandleFunc("GET /api/tasks/{id}", h.getTask)
	mux.HandleFunc("PATCH /api/tasks/{id}", h.updateTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", h.deleteTask)
	mux.HandleFunc("POST /api/tasks/{id}/assign", h.assignTask)
	mux.HandleFunc("GET /api/tasks/{id}/suggest", h.suggestAgent)
	mux.HandleFunc("GET /api/tasks/{id}/dependencies", h.listDependencies)
	mux.HandleFunc("POST /api/tasks/{id}/dependencies", h.addDependency)
	mux.HandleFunc("DELETE /api/tasks/{id}/dependencies/{prereq}", h.removeDependency)
	mux.HandleFunc("GET /api/tasks/{id}/events", h.taskEvents)
	mux.HandleFunc("GET /api/tasks/{id}/activity", h.taskActivity)

	mux.HandleFunc("GET /api/agents", h.listAgents)
	mux.HandleFunc("POST /api/agents", h.upsertAgent)
	mux.HandleFunc("GET /api/agents/{id}", h.getAgent)
	mux.HandleFunc("PATCH /api/agents/{id}/status", h.setAgentStatus)

	mux.HandleFunc("GET /api/sessions", h.listSessions)
	mux.HandleFunc("GET /api/messages", h.listMessages)

	mux.HandleFunc("GET /api/status", h.status)
	mux.HandleFunc("GET /api/version", h.version)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeKindError maps an orchestration error to an HTTP status.
func (h *Handlers) writeKindError(w http.ResponseWriter, err error) {
	kind := orchestrator.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case orchestrator.KindNotFound:
		status = http.StatusNotFound
	case orchestrator.KindValidation:
		status = http.StatusBadRequest
	case orchestrator.KindConflict, orchestrator.KindCycle, orchestrator.KindNoEligibleAgent:
		status = http.StatusConflict
	case orchestrator.KindApprovalRequired, orchestrator.KindForbidden:
		status = http.StatusForbidden
	}
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed", slog.Any("err", err))
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"kind":  string(kind),
	})
}

// --- Task handlers ---

// taskView is a task annotated with its dependency counts.
type taskView struct {
	*task.Task
	Blocked    bool `json:"blocked"`
	DependsOn  int  `json:"depends_on"`
	Dependents int  `json:"dependents"`
}

func (h *Handlers) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := task.Filter{}

	if s := q.Get("status"); s != "" {
		st := task.Status(s)
		if !st.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status "+s)
			return
		}
		filter.Status = &st
	}
	if a := q.Get("assigned_to"); a != "" {
		filter.AssignedTo = a
	}
	if p := q.Get("priority"); p != "" {
		pr := task.Priority(p)
		if !pr.Valid() {
			writeError(w, http.StatusBadRequest, "unknown priority "+p)
			return
		}
		filter.Priority = &pr
	}
	if s := q.Get("search"); s != "" {
		filter.Search = s
	}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			filter.Limit = n
		}
	}
	if o := q.Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil {
			filter.Offset = n
		}
	}

	tasks, err := h.Store.ListTasks(r.Context(), filter)
	if err != nil {
		h.writeKindError(w, err)
		return
	}

	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	summaries, err := h.Deps.Summarize(r.Context(), ids)
	if err != nil {
		h.writeKindError(w, err)
		return
	}

	views := make([]taskView, len(tasks))
	for i, t := range tasks {
		s := summaries[t.ID]
		views[i] = taskView{Task: t, Blocked: s.Blocked, DependsOn: s.DependsOn, Dependents: s.Dependents}
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handlers) createTask(w http.ResponseWriter, r *http.Request) {
	var t task.Task
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	created, err := h.Ctrl.CreateTask(r.Context(), &t)
	if err != nil {
		h.writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handlers) getTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, err := h.Store.GetTask(r.Context(), id)
	if err != nil {
		h.writeKindError(w, err)
		return
	}
	d, err := h.Deps.ListDependencies(r.Context(), id)
	if err != nil {
		h.writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"task":         t,
		"dependencies": d,
	})
}

// updateTaskRequest is the partial update accepted by PATCH. Absent
// fields stay untouched.
type updateTaskRequest struct {
	Status          *task.Status      `json:"status"`
	AssignedTo      *string           `json:"assigned_to"`
	Priority        *task.Priority    `json:"priority"`
	Title           *string           `json:"title"`
	Description     *string           `json:"description"`
	OutputPath      *string           `json:"output_path"`
	Notify          *task.NotifyPrefs `json:"notify"`
	RequestingAgent string            `json:"requesting_agent"`
}

func (h *Handlers) updateTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	res, err := h.Ctrl.RequestTransition(r.Context(), orchestrator.TransitionRequest{
		TaskID:          id,
		Status:          req.Status,
		AssignedTo:      req.AssignedTo,
		Priority:        req.Priority,
		Title:           req.Title,
		Description:     req.Description,
		OutputPath:      req.OutputPath,
		Notify:          req.Notify,
		RequestingAgent: req.RequestingAgent,
	})
	if err != nil {
		h.writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.Ctrl.DeleteTask(r.Context(), r.PathValue("id")); err != nil {
		h.writeKindError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignRequest struct {
	AgentID         string `json:"agent_id"`
	RequestingAgent string `json:"requesting_agent"`
}

func (h *Handlers) assignTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	res, err := h.Ctrl.RequestAssignment(r.Context(), id, req.AgentID, req.RequestingAgent)
	if err != nil {
		h.writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) suggestAgent(w http.ResponseWriter, r *http.Request) {
	res, err := h.Ctrl.SuggestAgent(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- Dependency handlers ---

type dependencyRequest struct {
	PrerequisiteID  string `json:"prerequisite_id"`
	RequestingAgent string `json:"requesting_agent"`
}

func (h *Handlers) addDependency(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req dependencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.PrerequisiteID == "" {
		writeError(w, http.StatusBadRequest, "prerequisite_id is required")
		return
	}
	if err := h.Ctrl.AddDependency(r.Context(), id, req.PrerequisiteID, req.RequestingAgent); err != nil {
		h.writeKindError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handlers) removeDependency(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	prereq := r.PathValue("prereq")
	if err := h.Ctrl.RemoveDependency(r.Context(), id, prereq, ""); err != nil {
		h.writeKindError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) listDependencies(w http.ResponseWriter, r *http.Request) {
	d, err := h.Deps.ListDependencies(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handlers) taskOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.Deps.Order(r.Context())
	if err != nil {
		h.writeKindError(w, err)
		return
	}
	if order == nil {
		order = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"order": order})
}

// taskSummary returns blocked/depends/dependents counts for a
// comma-separated id set without per-task round trips.
func (h *Handlers) taskSummary(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("ids")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "ids query parameter is required")
		return
	}
	summaries, err := h.Deps.Summarize(r.Context(), strings.Split(raw, ","))
	if err != nil {
		h.writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

// --- Audit handlers ---

func (h *Handlers) taskEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Store.TaskEvents(r.Context(), r.PathValue("id"), queryLimit(r, 50))
	if err != nil {
		h.writeKindError(w, err)
		return
	}
	if events == nil {
		events = []store.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handlers) taskActivity(w http.ResponseWriter, r *http.Request) {
	activity, err := h.Store.TaskActivity(r.Context(), r.PathValue("id"), queryLimit(r, 50))
	if err != nil {
		h.writeKindError(w, err)
		return
	}
	if activity == nil {
		activity = []store.Activity{}
	}
	writeJSON(w, http.StatusOK, activity)
}

func queryLimit(r *http.Request, fallback int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// --- Agent handlers ---

func (h *Handlers) listAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.Store.ListAgents(r.Context())
	if err != nil {
		h.writeKindError(w, err)
		return
	}
	if agents == nil {
		agents = []*agent.Agent{}
	}
	writeJSON(w, http.StatusOK, agents)
}

func (h *Handlers) upsertAgent(w http.ResponseWriter, r *http.Request) {
	var a agent.Agent
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	saved, err := h.Ctrl.UpsertAgent(r.Context(), &a)
	if err != nil {
		h.writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (h *Handlers) getAgent(w http.ResponseWriter, r *http.Request) {
	a, err := h.Store.GetAgent(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type agentStatusRequest struct {
	Status agent.Status `json:"status"`
}

func (h *Handlers) setAgentStatus(w http.ResponseWriter, r *http.Request) {
	var req agentStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	saved, err := h.Ctrl.SetAgentStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		h.writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// --- Session / message handlers ---

func (h *Handlers) listSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := h.Messages.ListActiveSessions()
	if sessions == nil {
		sessions = []string{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *Handlers) listMessages(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session")
	msgs := h.Messages.History(session, queryLimit(r, 50))
	if msgs == nil {
		msgs = []*comms.TaskMessage{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// --- Status / version ---

func (h *Handlers) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.Version,
	})
}

// StatusHandler returns the status handler function for external registration.
func (h *Handlers) StatusHandler() http.HandlerFunc {
	return h.status
}

func (h *Handlers) version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": h.Version,
	})
}
