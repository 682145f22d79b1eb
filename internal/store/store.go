// Package store defines the persistence contract the scheduler core
// depends on, and the shared error sentinel used across backends.
// Two implementations are provided: postgres (the production backend,
// on database/sql + lib/pq) and memstore (an in-memory backend used by
// tests and as a dependency-free development fallback).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/taskgraph/scheduler/internal/models"
)

// ErrNotFound is returned by Get-style methods when the entity does
// not exist. Callers translate it to apierr.CodeNotFound at the
// boundary that needs to report it to a client.
var ErrNotFound = errors.New("entity not found")

// ErrDuplicateEdge is returned by InsertEdge when the (predecessor,
// successor) pair already exists.
var ErrDuplicateEdge = errors.New("edge already exists")

// TaskDateUpdate is one row of a cascade bulk write: a task id paired
// with its new, already-computed start date.
type TaskDateUpdate struct {
	TaskID    uuid.UUID
	StartDate time.Time
}

// TaskPatch describes the mutable fields of a task update. A nil
// field means "leave unchanged".
type TaskPatch struct {
	Title        *string
	Description  *string
	DurationDays *int
	StartDate    *time.Time
}

// Store is the full persistence contract used by the scheduler and
// cascade packages.
type Store interface {
	// Projects

	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	DeleteProject(ctx context.Context, id uuid.UUID) error

	// Tasks

	CreateTask(ctx context.Context, t *models.Task) error
	GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error)
	// UpdateTask applies patch to the task, bumps its version token,
	// and returns the updated row.
	UpdateTask(ctx context.Context, id uuid.UUID, patch TaskPatch) (*models.Task, error)
	// DeleteTask removes the task and, transitively, every edge that
	// touches it.
	DeleteTask(ctx context.Context, id uuid.UUID) error
	// DirectSuccessors returns the ids of tasks that id is a direct
	// predecessor of.
	DirectSuccessors(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)
	// ListProjectTasksAndEdges returns every task and edge belonging
	// to a project — the data needed to build the project's full
	// graph.
	ListProjectTasksAndEdges(ctx context.Context, projectID uuid.UUID) ([]models.Task, []models.Edge, error)
	// BulkUpdateStartDates writes the recalculated start dates for a
	// batch of tasks in a single transaction, bumping updated_at but
	// not version_token. Returns no error and writes nothing for an
	// empty slice.
	BulkUpdateStartDates(ctx context.Context, updates []TaskDateUpdate) error

	// Edges

	EdgeExists(ctx context.Context, predecessorID, successorID uuid.UUID) (bool, error)
	// InsertEdge writes the edge and bumps the successor's version
	// token in one transaction, returning the edge and the new token.
	InsertEdge(ctx context.Context, predecessorID, successorID uuid.UUID) (*models.Edge, string, error)
	// DeleteEdge removes the edge and bumps the successor's version
	// token in one transaction, returning the new token.
	DeleteEdge(ctx context.Context, predecessorID, successorID uuid.UUID) (string, error)
}
