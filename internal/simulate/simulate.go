// Package simulate implements the read-only what-if simulator: it
// applies a proposed set of task changes to a cloned in-memory graph
// and reports the resulting schedule deltas without ever persisting
// anything.
package simulate

import (
	"time"

	"github.com/google/uuid"

	"github.com/taskgraph/scheduler/internal/graph"
	"github.com/taskgraph/scheduler/internal/models"
)

// Change is a proposed edit to one task: an optional new start date
// and/or an optional new duration. A nil field means "leave as is".
type Change struct {
	TaskID       uuid.UUID
	StartDate    *time.Time
	DurationDays *int
}

// Impact describes how one task's end date moved under the
// simulation.
type Impact struct {
	TaskID        uuid.UUID
	OriginalStart time.Time
	OriginalEnd   time.Time
	SimulatedEnd  time.Time
	ImpactDays    int
}

// Result is the outcome of a simulation run.
type Result struct {
	OriginalEnd  time.Time
	SimulatedEnd time.Time
	ImpactDays   int
	Impacts      []Impact
}

// Simulate clones tasks/edges in memory, applies changes, and returns
// the original and simulated project end dates along with per-task
// impact records for every task whose end date moved. It never
// mutates the tasks slice passed in, nor anything persisted.
func Simulate(tasks []models.Task, edges []models.Edge, changes []Change) (*Result, error) {
	changeByID := make(map[uuid.UUID]Change, len(changes))
	for _, c := range changes {
		changeByID[c.TaskID] = c
	}

	original := make(map[uuid.UUID]models.Task, len(tasks))
	for _, t := range tasks {
		original[t.ID] = t
	}

	// Clone task data, applying the requested duration/start changes
	// before building the graph so that downstream adjacency and the
	// forward walk see the hypothetical values.
	cloned := make([]models.Task, len(tasks))
	for i, t := range tasks {
		nt := t
		if c, ok := changeByID[t.ID]; ok {
			if c.DurationDays != nil {
				nt.DurationDays = *c.DurationDays
			}
			if c.StartDate != nil {
				nt.StartDate = models.TruncateToDay(*c.StartDate)
			}
		}
		cloned[i] = nt
	}

	g := graph.Build(cloned, edges)
	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	simStart := make(map[uuid.UUID]time.Time, len(order))
	simEnd := make(map[uuid.UUID]time.Time, len(order))

	for _, id := range order {
		t, _ := g.Task(id)
		preds := g.Predecessors(id)

		var start time.Time
		if len(preds) == 0 {
			start = t.StartDate
		} else {
			var earliest time.Time
			for i, p := range preds {
				pEnd := simEnd[p]
				if i == 0 || pEnd.After(earliest) {
					earliest = pEnd
				}
			}
			earliest = earliest.AddDate(0, 0, 1)

			if c, ok := changeByID[id]; ok && c.StartDate != nil {
				requested := models.TruncateToDay(*c.StartDate)
				if requested.After(earliest) {
					start = requested
				} else {
					start = earliest
				}
			} else {
				if t.StartDate.After(earliest) {
					start = t.StartDate
				} else {
					start = earliest
				}
			}
		}

		simStart[id] = start
		if t.DurationDays <= 0 {
			simEnd[id] = start
		} else {
			simEnd[id] = start.AddDate(0, 0, t.DurationDays-1)
		}
	}

	var originalEnd, simulatedEnd time.Time
	for i, id := range order {
		origT := original[id]
		origEnd := origT.EndDate()
		if i == 0 || origEnd.After(originalEnd) {
			originalEnd = origEnd
		}
		if i == 0 || simEnd[id].After(simulatedEnd) {
			simulatedEnd = simEnd[id]
		}
	}

	var impacts []Impact
	for _, id := range order {
		origT := original[id]
		origEnd := origT.EndDate()
		if !simEnd[id].Equal(origEnd) {
			impacts = append(impacts, Impact{
				TaskID:        id,
				OriginalStart: origT.StartDate,
				OriginalEnd:   origEnd,
				SimulatedEnd:  simEnd[id],
				ImpactDays:    daysBetween(origEnd, simEnd[id]),
			})
		}
	}

	return &Result{
		OriginalEnd:  originalEnd,
		SimulatedEnd: simulatedEnd,
		ImpactDays:   daysBetween(originalEnd, simulatedEnd),
		Impacts:      impacts,
	}, nil
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
