// Package memstore is an in-memory store.Store implementation, used
// by package tests and as the scheduler's dependency-free fallback
// when no database connection is available.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskgraph/scheduler/internal/models"
	"github.com/taskgraph/scheduler/internal/store"
)

// Store is a sync.RWMutex-guarded in-memory implementation of
// store.Store.
type Store struct {
	mu       sync.RWMutex
	projects map[uuid.UUID]*models.Project
	tasks    map[uuid.UUID]*models.Task
	// edges is keyed by predecessor then successor to make lookups
	// and deletions by either side cheap.
	edges map[uuid.UUID]map[uuid.UUID]models.Edge
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		projects: make(map[uuid.UUID]*models.Project),
		tasks:    make(map[uuid.UUID]*models.Task),
		edges:    make(map[uuid.UUID]map[uuid.UUID]models.Edge),
	}
}

var _ store.Store = (*Store)(nil)

func (s *Store) CreateProject(_ context.Context, p *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.projects[p.ID] = &cp
	return nil
}

func (s *Store) GetProject(_ context.Context, id uuid.UUID) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) DeleteProject(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.projects, id)

	for taskID, t := range s.tasks {
		if t.ProjectID == id {
			delete(s.tasks, taskID)
			delete(s.edges, taskID)
		}
	}
	for pred, succs := range s.edges {
		for succ := range succs {
			if _, ok := s.tasks[succ]; !ok {
				delete(s.edges[pred], succ)
			}
		}
	}
	return nil
}

func (s *Store) CreateTask(_ context.Context, t *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ct := *t
	s.tasks[t.ID] = &ct
	return nil
}

func (s *Store) GetTask(_ context.Context, id uuid.UUID) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	ct := *t
	return &ct, nil
}

func (s *Store) UpdateTask(_ context.Context, id uuid.UUID, patch store.TaskPatch) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.DurationDays != nil {
		t.DurationDays = *patch.DurationDays
	}
	if patch.StartDate != nil {
		t.StartDate = models.TruncateToDay(*patch.StartDate)
	}
	t.VersionToken = models.NewVersionToken()
	t.UpdatedAt = time.Now().UTC()

	ct := *t
	return &ct, nil
}

func (s *Store) DeleteTask(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.tasks, id)
	delete(s.edges, id)
	for pred := range s.edges {
		delete(s.edges[pred], id)
	}
	return nil
}

func (s *Store) DirectSuccessors(_ context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []uuid.UUID
	for succ := range s.edges[id] {
		out = append(out, succ)
	}
	return out, nil
}

func (s *Store) ListProjectTasksAndEdges(_ context.Context, projectID uuid.UUID) ([]models.Task, []models.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tasks []models.Task
	inProject := make(map[uuid.UUID]struct{})
	for id, t := range s.tasks {
		if t.ProjectID == projectID {
			tasks = append(tasks, *t)
			inProject[id] = struct{}{}
		}
	}

	var edges []models.Edge
	for pred, succs := range s.edges {
		if _, ok := inProject[pred]; !ok {
			continue
		}
		for succ, e := range succs {
			if _, ok := inProject[succ]; !ok {
				continue
			}
			edges = append(edges, e)
		}
	}

	return tasks, edges, nil
}

func (s *Store) BulkUpdateStartDates(_ context.Context, updates []store.TaskDateUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, u := range updates {
		t, ok := s.tasks[u.TaskID]
		if !ok {
			continue
		}
		t.StartDate = models.TruncateToDay(u.StartDate)
		t.UpdatedAt = now
	}
	return nil
}

func (s *Store) EdgeExists(_ context.Context, predecessorID, successorID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.edges[predecessorID][successorID]
	return ok, nil
}

func (s *Store) InsertEdge(_ context.Context, predecessorID, successorID uuid.UUID) (*models.Edge, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.edges[predecessorID][successorID]; ok {
		return nil, "", store.ErrDuplicateEdge
	}
	succ, ok := s.tasks[successorID]
	if !ok {
		return nil, "", store.ErrNotFound
	}

	e := models.Edge{
		PredecessorID: predecessorID,
		SuccessorID:   successorID,
		CreatedAt:     time.Now().UTC(),
	}
	if s.edges[predecessorID] == nil {
		s.edges[predecessorID] = make(map[uuid.UUID]models.Edge)
	}
	s.edges[predecessorID][successorID] = e

	succ.VersionToken = models.NewVersionToken()
	succ.UpdatedAt = time.Now().UTC()

	return &e, succ.VersionToken, nil
}

func (s *Store) DeleteEdge(_ context.Context, predecessorID, successorID uuid.UUID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.edges[predecessorID][successorID]; !ok {
		return "", store.ErrNotFound
	}
	delete(s.edges[predecessorID], successorID)

	succ, ok := s.tasks[successorID]
	if !ok {
		return "", store.ErrNotFound
	}
	succ.VersionToken = models.NewVersionToken()
	succ.UpdatedAt = time.Now().UTC()

	return succ.VersionToken, nil
}
