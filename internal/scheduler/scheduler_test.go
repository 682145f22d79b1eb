package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskgraph/scheduler/internal/apierr"
	"github.com/taskgraph/scheduler/internal/cascade"
	"github.com/taskgraph/scheduler/internal/models"
	"github.com/taskgraph/scheduler/internal/scheduler"
	"github.com/taskgraph/scheduler/internal/simulate"
	"github.com/taskgraph/scheduler/internal/store/memstore"
)

// syncQueue runs every enqueued job through the recalculator inline,
// synchronously, so tests can assert on post-cascade state without
// waiting on a goroutine.
type syncQueue struct {
	recalc *cascade.Recalculator
}

func (q *syncQueue) Enqueue(ctx context.Context, job cascade.Job) error {
	id, err := uuid.Parse(job.TaskID)
	if err != nil {
		return err
	}
	_, err = q.recalc.RecalcFrom(ctx, id, job.VersionToken)
	return err
}

func (q *syncQueue) Subscribe(context.Context, cascade.Handler) error { return nil }
func (q *syncQueue) Close() error                                    { return nil }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newHarness() (*scheduler.Scheduler, *memstore.Store) {
	s := memstore.New()
	q := &syncQueue{recalc: cascade.NewRecalculator(s)}
	return scheduler.New(s, q, scheduler.NewMemProjectLocker()), s
}

func mustCreateTask(t *testing.T, sch *scheduler.Scheduler, projectID uuid.UUID, title string, duration int, start time.Time) *models.Task {
	t.Helper()
	task, err := sch.CreateTask(context.Background(), projectID, title, "", duration, &start)
	require.NoError(t, err)
	return task
}

// S1 — simple chain: A->B->C.
func TestChain_CascadePropagatesDates(t *testing.T) {
	sch, s := newHarness()
	ctx := context.Background()

	proj, err := sch.CreateProject(ctx, "chain", "", "owner-1", nil)
	require.NoError(t, err)

	a := mustCreateTask(t, sch, proj.ID, "A", 3, day(2025, 12, 19))
	b := mustCreateTask(t, sch, proj.ID, "B", 2, day(2025, 12, 19))
	c := mustCreateTask(t, sch, proj.ID, "C", 1, day(2025, 12, 19))

	_, err = sch.AdmitEdge(ctx, a.ID, b.ID)
	require.NoError(t, err)
	_, err = sch.AdmitEdge(ctx, b.ID, c.ID)
	require.NoError(t, err)

	got, err := s.GetTask(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, got.StartDate.Equal(day(2025, 12, 22)), "B.start = %s", got.StartDate)

	got, err = s.GetTask(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.StartDate.Equal(day(2025, 12, 24)), "C.start = %s", got.StartDate)
}

// S2 — diamond: A->B, A->C, B->D, C->D; D waits on the longer path.
func TestDiamond_LongerPathWins(t *testing.T) {
	sch, s := newHarness()
	ctx := context.Background()

	proj, err := sch.CreateProject(ctx, "diamond", "", "owner-1", nil)
	require.NoError(t, err)

	a := mustCreateTask(t, sch, proj.ID, "A", 3, day(2025, 12, 19))
	b := mustCreateTask(t, sch, proj.ID, "B", 2, day(2025, 12, 19))
	c := mustCreateTask(t, sch, proj.ID, "C", 4, day(2025, 12, 19))
	d := mustCreateTask(t, sch, proj.ID, "D", 1, day(2025, 12, 19))

	for _, pair := range [][2]uuid.UUID{{a.ID, b.ID}, {a.ID, c.ID}, {b.ID, d.ID}, {c.ID, d.ID}} {
		_, err := sch.AdmitEdge(ctx, pair[0], pair[1])
		require.NoError(t, err)
	}

	got, err := s.GetTask(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, got.StartDate.Equal(day(2025, 12, 26)), "D.start = %s", got.StartDate)
}

// S3 — milestone: A(3)->M(0); M.start == M.end.
func TestMilestone_StartEqualsEnd(t *testing.T) {
	sch, s := newHarness()
	ctx := context.Background()

	proj, err := sch.CreateProject(ctx, "milestone", "", "owner-1", nil)
	require.NoError(t, err)

	a := mustCreateTask(t, sch, proj.ID, "A", 3, day(2025, 12, 19))
	m := mustCreateTask(t, sch, proj.ID, "M", 0, day(2025, 12, 19))

	_, err = sch.AdmitEdge(ctx, a.ID, m.ID)
	require.NoError(t, err)

	got, err := s.GetTask(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.StartDate.Equal(day(2025, 12, 22)))
	assert.True(t, got.EndDate().Equal(day(2025, 12, 22)))
}

// S5 — slack preserved: cascade from A writes nothing to B.
func TestSlackPreserved_NoWriteWhenAlreadyLate(t *testing.T) {
	sch, s := newHarness()
	ctx := context.Background()

	proj, err := sch.CreateProject(ctx, "slack", "", "owner-1", nil)
	require.NoError(t, err)

	a := mustCreateTask(t, sch, proj.ID, "A", 5, day(2026, 1, 1))
	b := mustCreateTask(t, sch, proj.ID, "B", 3, day(2026, 1, 20))

	before, err := s.GetTask(ctx, b.ID)
	require.NoError(t, err)

	_, err = sch.AdmitEdge(ctx, a.ID, b.ID)
	require.NoError(t, err)

	after, err := s.GetTask(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, after.StartDate.Equal(day(2026, 1, 20)))
	assert.Equal(t, before.StartDate, after.StartDate)
}

// S6 — constraint violation pushes B forward.
func TestConstraintViolation_PushesSuccessorForward(t *testing.T) {
	sch, s := newHarness()
	ctx := context.Background()

	proj, err := sch.CreateProject(ctx, "push", "", "owner-1", nil)
	require.NoError(t, err)

	a := mustCreateTask(t, sch, proj.ID, "A", 5, day(2026, 1, 21))
	b := mustCreateTask(t, sch, proj.ID, "B", 3, day(2026, 1, 10))

	_, err = sch.AdmitEdge(ctx, a.ID, b.ID)
	require.NoError(t, err)

	got, err := s.GetTask(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, got.StartDate.Equal(day(2026, 1, 26)), "B.start = %s", got.StartDate)
}

func TestAdmitEdge_RejectsSelfDependency(t *testing.T) {
	sch, _ := newHarness()
	ctx := context.Background()

	proj, err := sch.CreateProject(ctx, "p", "", "owner-1", nil)
	require.NoError(t, err)
	a := mustCreateTask(t, sch, proj.ID, "A", 1, day(2026, 1, 1))

	_, err = sch.AdmitEdge(ctx, a.ID, a.ID)
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.CodeSelfDependency, apiErr.Code)
}

func TestAdmitEdge_RejectsCycle(t *testing.T) {
	sch, _ := newHarness()
	ctx := context.Background()

	proj, err := sch.CreateProject(ctx, "p", "", "owner-1", nil)
	require.NoError(t, err)
	a := mustCreateTask(t, sch, proj.ID, "A", 1, day(2026, 1, 1))
	b := mustCreateTask(t, sch, proj.ID, "B", 1, day(2026, 1, 1))

	_, err = sch.AdmitEdge(ctx, a.ID, b.ID)
	require.NoError(t, err)

	_, err = sch.AdmitEdge(ctx, b.ID, a.ID)
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.CodeCycleDetected, apiErr.Code)
}

func TestAdmitEdge_RejectsDuplicate(t *testing.T) {
	sch, _ := newHarness()
	ctx := context.Background()

	proj, err := sch.CreateProject(ctx, "p", "", "owner-1", nil)
	require.NoError(t, err)
	a := mustCreateTask(t, sch, proj.ID, "A", 1, day(2026, 1, 1))
	b := mustCreateTask(t, sch, proj.ID, "B", 1, day(2026, 1, 1))

	_, err = sch.AdmitEdge(ctx, a.ID, b.ID)
	require.NoError(t, err)
	_, err = sch.AdmitEdge(ctx, a.ID, b.ID)
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.CodeDuplicateDep, apiErr.Code)
}

func TestDeleteTask_RecalculatesFormerSuccessors(t *testing.T) {
	sch, s := newHarness()
	ctx := context.Background()

	proj, err := sch.CreateProject(ctx, "p", "", "owner-1", nil)
	require.NoError(t, err)
	a := mustCreateTask(t, sch, proj.ID, "A", 10, day(2026, 1, 1))
	b := mustCreateTask(t, sch, proj.ID, "B", 1, day(2026, 1, 1))

	_, err = sch.AdmitEdge(ctx, a.ID, b.ID)
	require.NoError(t, err)

	pushed, err := s.GetTask(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, pushed.StartDate.After(day(2026, 1, 1)))

	require.NoError(t, sch.DeleteTask(ctx, a.ID))

	after, err := s.GetTask(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, after.StartDate.Equal(day(2026, 1, 11)), "B is now an anchor and keeps its stored date, got %s", after.StartDate)
}

func TestSimulate_DoesNotPersist(t *testing.T) {
	sch, s := newHarness()
	ctx := context.Background()

	proj, err := sch.CreateProject(ctx, "p", "", "owner-1", nil)
	require.NoError(t, err)
	a := mustCreateTask(t, sch, proj.ID, "A", 3, day(2025, 12, 19))
	b := mustCreateTask(t, sch, proj.ID, "B", 2, day(2025, 12, 19))
	_, err = sch.AdmitEdge(ctx, a.ID, b.ID)
	require.NoError(t, err)

	before, err := s.GetTask(ctx, a.ID)
	require.NoError(t, err)

	newDuration := 10
	result, err := sch.Simulate(ctx, proj.ID, []simulate.Change{{TaskID: a.ID, DurationDays: &newDuration}})
	require.NoError(t, err)
	assert.True(t, result.SimulatedEnd.After(result.OriginalEnd))

	after, err := s.GetTask(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, before.DurationDays, after.DurationDays, "simulation must not mutate persisted state")
}
