package memstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskgraph/scheduler/internal/models"
	"github.com/taskgraph/scheduler/internal/store"
	"github.com/taskgraph/scheduler/internal/store/memstore"
)

func TestInsertEdge_DuplicateRejected(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	projectID := uuid.New()
	a := &models.Task{ID: uuid.New(), ProjectID: projectID, VersionToken: models.NewVersionToken(), StartDate: time.Now()}
	b := &models.Task{ID: uuid.New(), ProjectID: projectID, VersionToken: models.NewVersionToken(), StartDate: time.Now()}
	require.NoError(t, s.CreateTask(ctx, a))
	require.NoError(t, s.CreateTask(ctx, b))

	_, _, err := s.InsertEdge(ctx, a.ID, b.ID)
	require.NoError(t, err)

	_, _, err = s.InsertEdge(ctx, a.ID, b.ID)
	require.ErrorIs(t, err, store.ErrDuplicateEdge)
}

func TestDeleteTask_CascadesEdges(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	projectID := uuid.New()
	a := &models.Task{ID: uuid.New(), ProjectID: projectID, VersionToken: models.NewVersionToken(), StartDate: time.Now()}
	b := &models.Task{ID: uuid.New(), ProjectID: projectID, VersionToken: models.NewVersionToken(), StartDate: time.Now()}
	require.NoError(t, s.CreateTask(ctx, a))
	require.NoError(t, s.CreateTask(ctx, b))
	_, _, err := s.InsertEdge(ctx, a.ID, b.ID)
	require.NoError(t, err)

	require.NoError(t, s.DeleteTask(ctx, a.ID))

	_, edges, _ := listHelper(t, s, projectID)
	assert.Empty(t, edges)
}

func listHelper(t *testing.T, s *memstore.Store, projectID uuid.UUID) ([]models.Task, []models.Edge, error) {
	t.Helper()
	tasks, edges, err := s.ListProjectTasksAndEdges(context.Background(), projectID)
	require.NoError(t, err)
	return tasks, edges, err
}

func TestBulkUpdateStartDates(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	projectID := uuid.New()
	a := &models.Task{ID: uuid.New(), ProjectID: projectID, VersionToken: models.NewVersionToken(), StartDate: time.Now()}
	require.NoError(t, s.CreateTask(ctx, a))

	newDate := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	err := s.BulkUpdateStartDates(ctx, []store.TaskDateUpdate{{TaskID: a.ID, StartDate: newDate}})
	require.NoError(t, err)

	got, err := s.GetTask(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, newDate, got.StartDate)
}
