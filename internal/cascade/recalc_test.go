package cascade_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskgraph/scheduler/internal/cascade"
	"github.com/taskgraph/scheduler/internal/models"
	"github.com/taskgraph/scheduler/internal/store"
	"github.com/taskgraph/scheduler/internal/store/memstore"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func mustTask(t *testing.T, s *memstore.Store, projectID uuid.UUID, title string, duration int, start time.Time) *models.Task {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	task := &models.Task{
		ID:           uuid.New(),
		ProjectID:    projectID,
		Title:        title,
		DurationDays: duration,
		StartDate:    start,
		VersionToken: models.NewVersionToken(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, s.CreateTask(ctx, task))
	return task
}

// S6 fixture: A(5, 2026-01-21) -> B(3, 2026-01-10). B's stored date
// violates the precedence constraint, so a correct recalc pushes it
// to 2026-01-26.
func newConstraintViolationChain(t *testing.T) (*memstore.Store, *models.Task, *models.Task, string) {
	t.Helper()
	ctx := context.Background()
	s := memstore.New()

	project := &models.Project{ID: uuid.New(), Name: "p", OwnerID: "owner-1", CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	require.NoError(t, s.CreateProject(ctx, project))

	a := mustTask(t, s, project.ID, "A", 5, day(2026, 1, 21))
	b := mustTask(t, s, project.ID, "B", 3, day(2026, 1, 10))

	_, newToken, err := s.InsertEdge(ctx, a.ID, b.ID)
	require.NoError(t, err)

	return s, a, b, newToken
}

// S7 — stale job: a job enqueued with one version token is discarded
// as a no-op once an intervening mutation has moved the task's
// version token on, and it must not write anything.
func TestRecalcFrom_StaleTokenIsDiscardedWithNoWrites(t *testing.T) {
	ctx := context.Background()
	s, _, b, staleToken := newConstraintViolationChain(t)

	// An intervening mutation bumps B's version token before the
	// stale job is processed — an empty patch is enough, as this is
	// exactly how the scheduler's own DeleteTask orchestration mints a
	// fresh token.
	_, err := s.UpdateTask(ctx, b.ID, store.TaskPatch{})
	require.NoError(t, err)

	recalc := cascade.NewRecalculator(s)
	outcome, err := recalc.RecalcFrom(ctx, b.ID, staleToken)
	require.NoError(t, err)
	assert.Equal(t, cascade.OutcomeStale, outcome)

	got, err := s.GetTask(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, got.StartDate.Equal(day(2026, 1, 10)), "stale job must not write B's date, got %s", got.StartDate)
}

// A job rooted at a task that no longer exists is also a silent,
// write-free no-op.
func TestRecalcFrom_MissingRootIsDiscarded(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	recalc := cascade.NewRecalculator(s)

	outcome, err := recalc.RecalcFrom(ctx, uuid.New(), models.NewVersionToken())
	require.NoError(t, err)
	assert.Equal(t, cascade.OutcomeMissing, outcome)
}

// Idempotence of cascade: running recalcFrom(root, currentToken)
// twice in a row with no intervening mutation yields zero writes on
// the second run, since BulkUpdateStartDates never bumps the version
// token.
func TestRecalcFrom_SecondRunWithSameTokenIsNoop(t *testing.T) {
	ctx := context.Background()
	s, _, b, token := newConstraintViolationChain(t)
	recalc := cascade.NewRecalculator(s)

	outcome, err := recalc.RecalcFrom(ctx, b.ID, token)
	require.NoError(t, err)
	assert.Equal(t, cascade.OutcomeApplied, outcome)

	pushed, err := s.GetTask(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, pushed.StartDate.Equal(day(2026, 1, 26)), "B.start = %s", pushed.StartDate)
	updatedAt := pushed.UpdatedAt

	outcome, err = recalc.RecalcFrom(ctx, b.ID, token)
	require.NoError(t, err)
	assert.Equal(t, cascade.OutcomeNoop, outcome)

	after, err := s.GetTask(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, after.StartDate.Equal(day(2026, 1, 26)), "second run must not move B again, got %s", after.StartDate)
	assert.Equal(t, updatedAt, after.UpdatedAt, "second run must write nothing at all")
}
