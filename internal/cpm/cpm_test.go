package cpm_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskgraph/scheduler/internal/cpm"
	"github.com/taskgraph/scheduler/internal/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAnalyze_Diamond(t *testing.T) {
	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	tasks := []models.Task{
		{ID: a, DurationDays: 3, StartDate: day(2025, 12, 19)},
		{ID: b, DurationDays: 2, StartDate: day(2025, 12, 19)},
		{ID: c, DurationDays: 4, StartDate: day(2025, 12, 19)},
		{ID: d, DurationDays: 1, StartDate: day(2025, 12, 19)},
	}
	edges := []models.Edge{
		{PredecessorID: a, SuccessorID: b},
		{PredecessorID: a, SuccessorID: c},
		{PredecessorID: b, SuccessorID: d},
		{PredecessorID: c, SuccessorID: d},
	}

	result, err := cpm.Analyze(tasks, edges)
	require.NoError(t, err)

	byID := map[uuid.UUID]cpm.TaskSchedule{}
	for _, s := range result.Schedules {
		byID[s.TaskID] = s
	}

	// A -> C (4 days) is the longer path into D.
	assert.True(t, byID[a].Critical)
	assert.True(t, byID[c].Critical)
	assert.True(t, byID[d].Critical)
	assert.False(t, byID[b].Critical)
	assert.Equal(t, 2, byID[b].SlackDays)

	assert.ElementsMatch(t, []uuid.UUID{a, c, d}, result.CriticalTaskIDs)
}

func TestAnalyze_SlackZeroMatchesCritical(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	tasks := []models.Task{
		{ID: a, DurationDays: 5, StartDate: day(2026, 1, 1)},
		{ID: b, DurationDays: 3, StartDate: day(2026, 1, 20)},
	}
	edges := []models.Edge{{PredecessorID: a, SuccessorID: b}}

	result, err := cpm.Analyze(tasks, edges)
	require.NoError(t, err)

	for _, s := range result.Schedules {
		assert.Equal(t, s.SlackDays == 0, s.Critical)
	}
	assert.NotEmpty(t, result.CriticalTaskIDs)
}
