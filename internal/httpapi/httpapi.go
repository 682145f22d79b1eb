// Package httpapi is the HTTP surface described in the design's
// external interfaces section: simulate, critical-path, status, the
// task/edge CRUD that drives the scheduler, and a small set of
// operator-facing endpoints (recalc re-enqueue, health, cascade
// stats). One *mux.Router and a single Handler struct serve every
// endpoint, JSON in and out.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/taskgraph/scheduler/internal/apierr"
	"github.com/taskgraph/scheduler/internal/cascade"
	"github.com/taskgraph/scheduler/internal/scheduler"
	"github.com/taskgraph/scheduler/internal/simulate"
	"github.com/taskgraph/scheduler/internal/store"
)

// Handler wires the scheduler service and the cascade dispatcher
// (for its /healthz and /internal/cascade/stats endpoints) into an
// http.Handler.
type Handler struct {
	Scheduler  *scheduler.Scheduler
	Dispatcher *cascade.Dispatcher
	StartedAt  time.Time
}

// NewHandler builds a Handler and registers its routes on a fresh
// *mux.Router.
func NewHandler(sched *scheduler.Scheduler, dispatcher *cascade.Dispatcher) http.Handler {
	h := &Handler{Scheduler: sched, Dispatcher: dispatcher, StartedAt: time.Now()}
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	return router
}

// RegisterRoutes attaches every scheduler endpoint to router.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	router.HandleFunc("/internal/cascade/stats", h.CascadeStats).Methods("GET")

	router.HandleFunc("/projects", h.CreateProject).Methods("POST")
	router.HandleFunc("/projects/{id}", h.DeleteProject).Methods("DELETE")
	router.HandleFunc("/projects/{id}/status", h.ProjectStatus).Methods("GET")
	router.HandleFunc("/projects/{id}/critical-path", h.CriticalPath).Methods("GET")
	router.HandleFunc("/projects/{id}/simulate", h.Simulate).Methods("POST")

	router.HandleFunc("/projects/{id}/tasks", h.CreateTask).Methods("POST")
	router.HandleFunc("/tasks/{taskId}", h.UpdateTask).Methods("PATCH")
	router.HandleFunc("/tasks/{taskId}", h.DeleteTask).Methods("DELETE")
	router.HandleFunc("/tasks/{taskId}/recalc", h.RequestRecalc).Methods("POST")

	router.HandleFunc("/projects/{id}/edges", h.CreateEdge).Methods("POST")
	router.HandleFunc("/projects/{id}/edges", h.DeleteEdge).Methods("DELETE")
}

// writeError renders an error as the {error, message, details?}
// envelope with the status apierr maps it to. An error that is not an
// *apierr.Error is treated as an unplanned internal_error.
func writeError(w http.ResponseWriter, err error) {
	apiErr, ok := apierr.As(err)
	if !ok {
		apiErr = apierr.Wrap(apierr.CodeInternalError, "internal error", err)
	}
	writeJSON(w, apiErr.HTTPStatus(), struct {
		Error   string         `json:"error"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	}{Error: string(apiErr.Code), Message: apiErr.Message, Details: apiErr.Details})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := mux.Vars(r)[name]
	return uuid.Parse(raw)
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

// HealthCheck reports that the process is serving, with the current
// time and uptime. It does not probe the queue or the database.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status    string    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
		Uptime    string    `json:"uptime"`
	}{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.StartedAt).String(),
	})
}

// CascadeStats exposes the worker pool's in-memory counters.
func (h *Handler) CascadeStats(w http.ResponseWriter, r *http.Request) {
	if h.Dispatcher == nil {
		writeJSON(w, http.StatusOK, cascade.Stats{})
		return
	}
	writeJSON(w, http.StatusOK, h.Dispatcher.StatsSnapshot())
}

type createProjectRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	OwnerID     string     `json:"owner_id"`
	Deadline    *time.Time `json:"deadline"`
}

func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apierr.Wrap(apierr.CodeValidationError, "malformed request body", err))
		return
	}
	p, err := h.Scheduler.CreateProject(r.Context(), req.Name, req.Description, req.OwnerID, req.Deadline)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, apierr.New(apierr.CodeValidationError, "invalid project id"))
		return
	}
	if err := h.Scheduler.DeleteProject(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ProjectStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, apierr.New(apierr.CodeValidationError, "invalid project id"))
		return
	}
	status, err := h.Scheduler.Status(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		ProjectedEndDate time.Time  `json:"projected_end_date"`
		Deadline         *time.Time `json:"deadline,omitempty"`
		IsOverDeadline   bool       `json:"is_over_deadline"`
		DaysOver         int        `json:"days_over"`
		TaskCount        int        `json:"task_count"`
	}{
		ProjectedEndDate: status.ProjectedEndDate,
		Deadline:         status.Deadline,
		IsOverDeadline:   status.IsOverDeadline,
		DaysOver:         status.DaysOver,
		TaskCount:        status.TaskCount,
	})
}

func (h *Handler) CriticalPath(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, apierr.New(apierr.CodeValidationError, "invalid project id"))
		return
	}
	result, err := h.Scheduler.Analyze(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type simulateChangeRequest struct {
	TaskID       uuid.UUID  `json:"taskId"`
	StartDate    *time.Time `json:"startDate"`
	DurationDays *int       `json:"durationDays"`
}

type simulateRequest struct {
	Changes []simulateChangeRequest `json:"changes"`
}

func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, apierr.New(apierr.CodeValidationError, "invalid project id"))
		return
	}
	var req simulateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apierr.Wrap(apierr.CodeValidationError, "malformed request body", err))
		return
	}

	changes := make([]simulate.Change, 0, len(req.Changes))
	for _, c := range req.Changes {
		changes = append(changes, simulate.Change{
			TaskID:       c.TaskID,
			StartDate:    c.StartDate,
			DurationDays: c.DurationDays,
		})
	}

	result, err := h.Scheduler.Simulate(r.Context(), id, changes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type createTaskRequest struct {
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	DurationDays int        `json:"duration_days"`
	StartDate    *time.Time `json:"start_date"`
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, apierr.New(apierr.CodeValidationError, "invalid project id"))
		return
	}
	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apierr.Wrap(apierr.CodeValidationError, "malformed request body", err))
		return
	}
	task, err := h.Scheduler.CreateTask(r.Context(), projectID, req.Title, req.Description, req.DurationDays, req.StartDate)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

type updateTaskRequest struct {
	Title        *string    `json:"title"`
	Description  *string    `json:"description"`
	DurationDays *int       `json:"duration_days"`
	StartDate    *time.Time `json:"start_date"`
}

func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathUUID(r, "taskId")
	if err != nil {
		writeError(w, apierr.New(apierr.CodeValidationError, "invalid task id"))
		return
	}
	var req updateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apierr.Wrap(apierr.CodeValidationError, "malformed request body", err))
		return
	}
	patch := store.TaskPatch{
		Title:        req.Title,
		Description:  req.Description,
		DurationDays: req.DurationDays,
		StartDate:    req.StartDate,
	}
	task, err := h.Scheduler.UpdateTask(r.Context(), taskID, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathUUID(r, "taskId")
	if err != nil {
		writeError(w, apierr.New(apierr.CodeValidationError, "invalid task id"))
		return
	}
	if err := h.Scheduler.DeleteTask(r.Context(), taskID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequestRecalc is the operator re-enqueue escape hatch described in
// the design's error-handling propagation notes.
func (h *Handler) RequestRecalc(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathUUID(r, "taskId")
	if err != nil {
		writeError(w, apierr.New(apierr.CodeValidationError, "invalid task id"))
		return
	}
	if err := h.Scheduler.RequestRecalc(r.Context(), taskID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type edgeRequest struct {
	PredecessorID uuid.UUID `json:"predecessor_id"`
	SuccessorID   uuid.UUID `json:"successor_id"`
}

func (h *Handler) CreateEdge(w http.ResponseWriter, r *http.Request) {
	if _, err := pathUUID(r, "id"); err != nil {
		writeError(w, apierr.New(apierr.CodeValidationError, "invalid project id"))
		return
	}
	var req edgeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apierr.Wrap(apierr.CodeValidationError, "malformed request body", err))
		return
	}
	edge, err := h.Scheduler.AdmitEdge(r.Context(), req.PredecessorID, req.SuccessorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, edge)
}

func (h *Handler) DeleteEdge(w http.ResponseWriter, r *http.Request) {
	if _, err := pathUUID(r, "id"); err != nil {
		writeError(w, apierr.New(apierr.CodeValidationError, "invalid project id"))
		return
	}
	var req edgeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apierr.Wrap(apierr.CodeValidationError, "malformed request body", err))
		return
	}
	if err := h.Scheduler.DeleteEdge(r.Context(), req.PredecessorID, req.SuccessorID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
