// Package scheduler implements edge admission and entity mutation
// orchestration: the task/edge create/update/delete flows described
// in the design, including the consistency of cascading deletes and
// the emission of recalc jobs on every mutation that can move a
// schedule. It is the seam between the pure graph/cpm/simulate
// packages, the store.Store persistence contract, and the cascade
// queue.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskgraph/scheduler/internal/apierr"
	"github.com/taskgraph/scheduler/internal/cascade"
	"github.com/taskgraph/scheduler/internal/cpm"
	"github.com/taskgraph/scheduler/internal/graph"
	"github.com/taskgraph/scheduler/internal/logger"
	"github.com/taskgraph/scheduler/internal/models"
	"github.com/taskgraph/scheduler/internal/simulate"
	"github.com/taskgraph/scheduler/internal/store"
)

// Scheduler is the entity mutation and read-model façade used by the
// HTTP surface. Every method either returns a typed *apierr.Error or
// wraps an unexpected failure as apierr.CodeInternalError.
type Scheduler struct {
	Store  store.Store
	Queue  cascade.Queue
	Locker ProjectLocker
}

// New builds a Scheduler over the given dependencies.
func New(s store.Store, q cascade.Queue, locker ProjectLocker) *Scheduler {
	return &Scheduler{Store: s, Queue: q, Locker: locker}
}

func (s *Scheduler) enqueueRecalc(ctx context.Context, taskID uuid.UUID, versionToken string) {
	job := cascade.Job{TaskID: taskID.String(), VersionToken: versionToken}
	if err := s.Queue.Enqueue(ctx, job); err != nil {
		logger.WithJob(job.TaskID, job.VersionToken).Error("failed to enqueue cascade job", zap.Error(err))
	}
}

// --- Projects ---

// CreateProject validates and writes a new, empty project.
func (s *Scheduler) CreateProject(ctx context.Context, name, description, ownerID string, deadline *time.Time) (*models.Project, error) {
	if name == "" {
		return nil, apierr.New(apierr.CodeValidationError, "project name is required")
	}
	if ownerID == "" {
		return nil, apierr.New(apierr.CodeValidationError, "owner id is required")
	}

	now := time.Now().UTC()
	p := &models.Project{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		OwnerID:     ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if deadline != nil {
		d := models.TruncateToDay(*deadline)
		p.Deadline = &d
	}

	if err := s.Store.CreateProject(ctx, p); err != nil {
		return nil, apierr.Wrap(apierr.CodeInternalError, "failed to create project", err)
	}
	return p, nil
}

// DeleteProject deletes a project and, transitively, its tasks and
// their edges. The delete is idempotent at the orchestration level:
// deleting an already-deleted project surfaces not_found rather than
// leaving any partially-applied state, since the store performs the
// cascade inside one transaction (postgres) or one critical section
// (memstore).
func (s *Scheduler) DeleteProject(ctx context.Context, projectID uuid.UUID) error {
	if err := s.Store.DeleteProject(ctx, projectID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apierr.NotFound("project", projectID.String())
		}
		return apierr.Wrap(apierr.CodeInternalError, "failed to delete project", err)
	}
	return nil
}

// --- Tasks ---

// CreateTask validates the owning project exists and writes a new
// task. No cascade is enqueued: a task with no edges cannot violate
// any precedence constraint.
func (s *Scheduler) CreateTask(ctx context.Context, projectID uuid.UUID, title, description string, durationDays int, startDate *time.Time) (*models.Task, error) {
	if title == "" {
		return nil, apierr.New(apierr.CodeValidationError, "task title is required")
	}
	if durationDays < 0 {
		return nil, apierr.New(apierr.CodeValidationError, "duration_days must be >= 0")
	}
	if _, err := s.Store.GetProject(ctx, projectID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apierr.NotFound("project", projectID.String())
		}
		return nil, apierr.Wrap(apierr.CodeInternalError, "failed to read project", err)
	}

	start := models.TruncateToDay(time.Now())
	if startDate != nil {
		start = models.TruncateToDay(*startDate)
	}

	now := time.Now().UTC()
	t := &models.Task{
		ID:           uuid.New(),
		ProjectID:    projectID,
		Title:        title,
		Description:  description,
		DurationDays: durationDays,
		StartDate:    start,
		VersionToken: models.NewVersionToken(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Store.CreateTask(ctx, t); err != nil {
		return nil, apierr.Wrap(apierr.CodeInternalError, "failed to create task", err)
	}
	return t, nil
}

// UpdateTask applies patch, bumps the task's version token, and
// enqueues a recalc job rooted at this task — editing a task's
// duration or anchor date is one of the two mutation kinds that
// propagates consequences downstream (the other is an edge edit).
func (s *Scheduler) UpdateTask(ctx context.Context, taskID uuid.UUID, patch store.TaskPatch) (*models.Task, error) {
	if patch.DurationDays != nil && *patch.DurationDays < 0 {
		return nil, apierr.New(apierr.CodeValidationError, "duration_days must be >= 0")
	}

	updated, err := s.Store.UpdateTask(ctx, taskID, patch)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apierr.NotFound("task", taskID.String())
		}
		return nil, apierr.Wrap(apierr.CodeInternalError, "failed to update task", err)
	}

	s.enqueueRecalc(ctx, taskID, updated.VersionToken)
	return updated, nil
}

// DeleteTask enumerates the task's direct successors before
// deleting, removes the task (and, transitively, every edge that
// touches it), and enqueues a recalc job for each former successor —
// those tasks may now be free to start earlier.
func (s *Scheduler) DeleteTask(ctx context.Context, taskID uuid.UUID) error {
	successors, err := s.Store.DirectSuccessors(ctx, taskID)
	if err != nil {
		return apierr.Wrap(apierr.CodeInternalError, "failed to list direct successors", err)
	}

	if err := s.Store.DeleteTask(ctx, taskID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apierr.NotFound("task", taskID.String())
		}
		return apierr.Wrap(apierr.CodeInternalError, "failed to delete task", err)
	}

	for _, succID := range successors {
		// Bumping the version with an empty patch is how this
		// orchestration mints a fresh mutation-ordering token without
		// touching any user-visible field, mirroring what the design
		// calls for on every flow that can move a successor's date.
		updated, err := s.Store.UpdateTask(ctx, succID, store.TaskPatch{})
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			logger.WithTask(succID.String()).Error("failed to bump successor version after task delete", zap.Error(err))
			continue
		}
		s.enqueueRecalc(ctx, succID, updated.VersionToken)
	}
	return nil
}

// --- Edges ---

// AdmitEdge validates a proposed (predecessorID, successorID) edge
// per the design's contract and, if admitted, writes it and enqueues
// a recalc job rooted at the successor. The admission check and the
// write are serialized per project via Locker, as the concurrency
// model requires.
func (s *Scheduler) AdmitEdge(ctx context.Context, predecessorID, successorID uuid.UUID) (*models.Edge, error) {
	pred, err := s.Store.GetTask(ctx, predecessorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apierr.NotFound("task", predecessorID.String())
		}
		return nil, apierr.Wrap(apierr.CodeInternalError, "failed to read predecessor task", err)
	}
	succ, err := s.Store.GetTask(ctx, successorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apierr.NotFound("task", successorID.String())
		}
		return nil, apierr.Wrap(apierr.CodeInternalError, "failed to read successor task", err)
	}

	if pred.ID == succ.ID {
		return nil, apierr.New(apierr.CodeSelfDependency, "a task cannot depend on itself")
	}
	if pred.ProjectID != succ.ProjectID {
		return nil, apierr.New(apierr.CodeCrossProjectDep, "predecessor and successor must belong to the same project")
	}

	unlock, err := s.Locker.Lock(ctx, pred.ProjectID)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInternalError, "failed to acquire project lock", err)
	}
	defer unlock()

	exists, err := s.Store.EdgeExists(ctx, predecessorID, successorID)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInternalError, "failed to check for duplicate edge", err)
	}
	if exists {
		return nil, apierr.New(apierr.CodeDuplicateDep, "this dependency already exists")
	}

	tasks, edges, err := s.Store.ListProjectTasksAndEdges(ctx, pred.ProjectID)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInternalError, "failed to load project graph", err)
	}
	g := graph.Build(tasks, edges)
	if g.WouldCreateCycle(predecessorID, successorID) {
		return nil, apierr.New(apierr.CodeCycleDetected, "this dependency would create a cycle")
	}

	edge, newToken, err := s.Store.InsertEdge(ctx, predecessorID, successorID)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEdge) {
			return nil, apierr.New(apierr.CodeDuplicateDep, "this dependency already exists")
		}
		return nil, apierr.Wrap(apierr.CodeInternalError, "failed to write edge", err)
	}

	s.enqueueRecalc(ctx, successorID, newToken)
	return edge, nil
}

// DeleteEdge removes a precedence edge and enqueues a recalc job
// rooted at the successor — it may now be free to start earlier,
// which is why recalc never unconditionally pushes forward.
func (s *Scheduler) DeleteEdge(ctx context.Context, predecessorID, successorID uuid.UUID) error {
	newToken, err := s.Store.DeleteEdge(ctx, predecessorID, successorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apierr.NotFound("edge", fmt.Sprintf("%s->%s", predecessorID, successorID))
		}
		return apierr.Wrap(apierr.CodeInternalError, "failed to delete edge", err)
	}
	s.enqueueRecalc(ctx, successorID, newToken)
	return nil
}

// RequestRecalc is the operator re-enqueue escape hatch: it re-reads
// a task's current version token and enqueues a fresh cascade job for
// it, the way the design says convergence can be regained "via the
// next triggering mutation or operator re-enqueue" without requiring
// an actual field mutation.
func (s *Scheduler) RequestRecalc(ctx context.Context, taskID uuid.UUID) error {
	t, err := s.Store.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apierr.NotFound("task", taskID.String())
		}
		return apierr.Wrap(apierr.CodeInternalError, "failed to read task", err)
	}
	s.enqueueRecalc(ctx, taskID, t.VersionToken)
	return nil
}

// --- Read-only analyses ---

// Analyze runs the CPM forward/backward pass over a project's
// current tasks and edges.
func (s *Scheduler) Analyze(ctx context.Context, projectID uuid.UUID) (*cpm.Result, error) {
	tasks, edges, err := s.Store.ListProjectTasksAndEdges(ctx, projectID)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInternalError, "failed to load project graph", err)
	}
	result, err := cpm.Analyze(tasks, edges)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeCycleDetected, "project edge set is not a DAG", err)
	}
	return result, nil
}

// Simulate loads a project's current tasks and edges and runs the
// read-only what-if simulator over them with the given changes. It
// never writes to the store.
func (s *Scheduler) Simulate(ctx context.Context, projectID uuid.UUID, changes []simulate.Change) (*simulate.Result, error) {
	tasks, edges, err := s.Store.ListProjectTasksAndEdges(ctx, projectID)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInternalError, "failed to load project graph", err)
	}
	result, err := simulate.Simulate(tasks, edges, changes)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeCycleDetected, "project edge set is not a DAG", err)
	}
	return result, nil
}

// Status is the read model behind GET /projects/{id}/status.
type Status struct {
	ProjectedEndDate time.Time
	Deadline         *time.Time
	IsOverDeadline   bool
	DaysOver         int
	TaskCount        int
}

// Status computes the project's current projected end date and
// compares it to the (purely informational) deadline. No scheduling
// decision is ever made from this comparison.
func (s *Scheduler) Status(ctx context.Context, projectID uuid.UUID) (*Status, error) {
	p, err := s.Store.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apierr.NotFound("project", projectID.String())
		}
		return nil, apierr.Wrap(apierr.CodeInternalError, "failed to read project", err)
	}

	tasks, _, err := s.Store.ListProjectTasksAndEdges(ctx, projectID)
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInternalError, "failed to load project tasks", err)
	}

	var projectedEnd time.Time
	for i, t := range tasks {
		end := t.EndDate()
		if i == 0 || end.After(projectedEnd) {
			projectedEnd = end
		}
	}

	st := &Status{
		ProjectedEndDate: projectedEnd,
		Deadline:         p.Deadline,
		TaskCount:        len(tasks),
	}
	if p.Deadline != nil && !projectedEnd.IsZero() && projectedEnd.After(*p.Deadline) {
		st.IsOverDeadline = true
		st.DaysOver = int(projectedEnd.Sub(*p.Deadline).Hours() / 24)
	}
	return st, nil
}
