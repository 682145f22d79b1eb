// Package cpm implements the Critical Path Method analysis described
// in the scheduling engine design: forward and backward passes over a
// project's task graph, producing per-task slack and the critical
// path set. It is read-only — it never touches persisted state.
package cpm

import (
	"time"

	"github.com/google/uuid"

	"github.com/taskgraph/scheduler/internal/graph"
	"github.com/taskgraph/scheduler/internal/models"
)

// TaskSchedule is one task's CPM figures.
type TaskSchedule struct {
	TaskID    uuid.UUID
	ES, EF    time.Time
	LS, LF    time.Time
	SlackDays int
	Critical  bool
}

// Result is the full CPM report for a project.
type Result struct {
	Schedules       []TaskSchedule
	CriticalTaskIDs []uuid.UUID
	ProjectEnd      time.Time
}

// Analyze runs the forward and backward CPM passes over the given
// tasks and edges (expected to all belong to one project) and returns
// per-task earliest/latest start/finish, slack, and the critical
// path.
func Analyze(tasks []models.Task, edges []models.Edge) (*Result, error) {
	g := graph.Build(tasks, edges)

	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	es := make(map[uuid.UUID]time.Time, len(order))
	ef := make(map[uuid.UUID]time.Time, len(order))

	for _, id := range order {
		t, _ := g.Task(id)
		preds := g.Predecessors(id)

		var start time.Time
		if len(preds) == 0 {
			start = models.TruncateToDay(t.StartDate)
		} else {
			var maxEF time.Time
			for i, p := range preds {
				pef := ef[p]
				if i == 0 || pef.After(maxEF) {
					maxEF = pef
				}
			}
			start = maxEF.AddDate(0, 0, 1)
		}

		es[id] = start
		if t.DurationDays <= 0 {
			ef[id] = start
		} else {
			ef[id] = start.AddDate(0, 0, t.DurationDays-1)
		}
	}

	var projectEnd time.Time
	for i, id := range order {
		if i == 0 || ef[id].After(projectEnd) {
			projectEnd = ef[id]
		}
	}

	ls := make(map[uuid.UUID]time.Time, len(order))
	lf := make(map[uuid.UUID]time.Time, len(order))

	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		t, _ := g.Task(id)
		succs := g.Successors(id)

		var finish time.Time
		if len(succs) == 0 {
			finish = projectEnd
		} else {
			var minLS time.Time
			for i, s := range succs {
				sls := ls[s]
				if i == 0 || sls.Before(minLS) {
					minLS = sls
				}
			}
			finish = minLS.AddDate(0, 0, -1)
		}

		lf[id] = finish
		if t.DurationDays <= 0 {
			ls[id] = finish
		} else {
			ls[id] = finish.AddDate(0, 0, -(t.DurationDays - 1))
		}
	}

	schedules := make([]TaskSchedule, 0, len(order))
	var critical []uuid.UUID
	for _, id := range order {
		slackDays := int(ls[id].Sub(es[id]).Hours() / 24)
		isCritical := slackDays == 0
		if isCritical {
			critical = append(critical, id)
		}
		schedules = append(schedules, TaskSchedule{
			TaskID:    id,
			ES:        es[id],
			EF:        ef[id],
			LS:        ls[id],
			LF:        lf[id],
			SlackDays: slackDays,
			Critical:  isCritical,
		})
	}

	return &Result{
		Schedules:       schedules,
		CriticalTaskIDs: critical,
		ProjectEnd:      projectEnd,
	}, nil
}
