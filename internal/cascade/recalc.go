package cascade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskgraph/scheduler/internal/graph"
	"github.com/taskgraph/scheduler/internal/logger"
	"github.com/taskgraph/scheduler/internal/models"
	"github.com/taskgraph/scheduler/internal/store"
)

// Outcome classifies what a RecalcFrom call actually did, so the
// worker pool can distinguish real work from the no-ops the design
// treats as expected, routine outcomes rather than failures.
type Outcome int

const (
	// OutcomeApplied means one or more task start dates were
	// recomputed and persisted.
	OutcomeApplied Outcome = iota
	// OutcomeNoop means the subgraph was walked but no start date
	// needed to change (idempotence of cascade, slack preservation).
	OutcomeNoop
	// OutcomeStale means the root's version token had already moved
	// on; a newer mutation's job supersedes this one.
	OutcomeStale
	// OutcomeMissing means the root task no longer exists.
	OutcomeMissing
)

// Recalculator implements the forward-pass recalculation described
// in the scheduling engine design: given a root task and the version
// token that was current when the cascade job was enqueued, it walks
// the root's downstream subgraph and persists only the tasks whose
// start date actually changed.
type Recalculator struct {
	Store store.Store
}

// NewRecalculator builds a Recalculator over the given store.
func NewRecalculator(s store.Store) *Recalculator {
	return &Recalculator{Store: s}
}

// RecalcFrom re-reads rootID, checks it against expectedVersionToken,
// and — if still current — recomputes downstream start dates. Every
// exit described as "return silently" in the design returns a nil
// error: a missing task, a stale token, and a zero-length update set
// are not failures, only distinguished from each other in the
// returned Outcome for the worker pool's stats.
func (r *Recalculator) RecalcFrom(ctx context.Context, rootID uuid.UUID, expectedVersionToken string) (Outcome, error) {
	log := logger.WithJob(rootID.String(), expectedVersionToken)

	root, err := r.Store.GetTask(ctx, rootID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Debug("root task no longer exists, skipping cascade")
			return OutcomeMissing, nil
		}
		return OutcomeMissing, fmt.Errorf("failed to read root task: %w", err)
	}

	if root.VersionToken != expectedVersionToken {
		log.Debug("root task version has moved on, discarding stale cascade job",
			zap.String("current_version_token", root.VersionToken))
		return OutcomeStale, nil
	}

	tasks, edges, err := r.Store.ListProjectTasksAndEdges(ctx, root.ProjectID)
	if err != nil {
		return OutcomeNoop, fmt.Errorf("failed to load project graph: %w", err)
	}

	g := graph.Build(tasks, edges)

	rewritable := g.Descendants(rootID)
	rewritable[rootID] = struct{}{}

	// The relevant subgraph also includes the direct predecessors of
	// every rewritable node — needed to compute correct start dates,
	// but never themselves rewritten here.
	subgraphIDs := make(map[uuid.UUID]struct{}, len(rewritable))
	for id := range rewritable {
		subgraphIDs[id] = struct{}{}
	}
	for id := range rewritable {
		for _, pred := range g.Predecessors(id) {
			subgraphIDs[pred] = struct{}{}
		}
	}

	subTasks := make([]models.Task, 0, len(subgraphIDs))
	originalStart := make(map[uuid.UUID]struct {
		start models.Task
	}, len(subgraphIDs))
	for id := range subgraphIDs {
		t, ok := g.Task(id)
		if !ok {
			continue
		}
		subTasks = append(subTasks, t)
		originalStart[id] = struct{ start models.Task }{t}
	}

	var subEdges []models.Edge
	for id := range subgraphIDs {
		for _, succ := range g.Successors(id) {
			if _, ok := subgraphIDs[succ]; ok {
				subEdges = append(subEdges, models.Edge{PredecessorID: id, SuccessorID: succ})
			}
		}
	}

	subgraph := graph.Build(subTasks, subEdges)
	order, err := subgraph.TopologicalOrder()
	if err != nil {
		log.Error("cycle detected while walking cascade subgraph, aborting with no writes", zap.Error(err))
		return OutcomeNoop, nil
	}

	endDates := make(map[uuid.UUID]models.Task, len(order))
	var updates []store.TaskDateUpdate

	for _, id := range order {
		t, _ := subgraph.Task(id)
		preds := subgraph.Predecessors(id)

		if len(preds) == 0 {
			endDates[id] = t
			continue
		}

		_, isRewritable := rewritable[id]
		if !isRewritable {
			// Context-only predecessor: use its stored dates as-is,
			// never rewrite it here.
			endDates[id] = t
			continue
		}

		var earliestEnd time.Time
		for i, p := range preds {
			pe := endDates[p].EndDate()
			if i == 0 || pe.After(earliestEnd) {
				earliestEnd = pe
			}
		}

		requiredStart := earliestEnd.AddDate(0, 0, 1)
		newTask := t
		if t.StartDate.Before(requiredStart) {
			newTask.StartDate = requiredStart
		}
		endDates[id] = newTask

		if !newTask.StartDate.Equal(t.StartDate) {
			updates = append(updates, store.TaskDateUpdate{TaskID: id, StartDate: newTask.StartDate})
		}
	}

	if len(updates) == 0 {
		log.Debug("cascade produced no changes")
		return OutcomeNoop, nil
	}

	if err := r.Store.BulkUpdateStartDates(ctx, updates); err != nil {
		return OutcomeNoop, fmt.Errorf("failed to persist cascade updates: %w", err)
	}

	log.Info("cascade applied", zap.Int("updated_task_count", len(updates)))
	return OutcomeApplied, nil
}
