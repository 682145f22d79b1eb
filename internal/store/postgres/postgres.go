// Package postgres is the production store.Store backend, built on
// database/sql and github.com/lib/pq: plain SQL strings, $N
// placeholders, explicit transactions around multi-statement writes.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/taskgraph/scheduler/internal/models"
	"github.com/taskgraph/scheduler/internal/store"
)

// Store is a *sql.DB-backed store.Store implementation.
type Store struct {
	db *sql.DB
}

// New wraps an already-opened *sql.DB (see internal/database.Connect).
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

var _ store.Store = (*Store)(nil)

func (s *Store) CreateProject(ctx context.Context, p *models.Project) error {
	const query = `
		INSERT INTO projects (id, name, description, deadline, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Name, p.Description, p.Deadline, p.OwnerID, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

func (s *Store) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	const query = `
		SELECT id, name, description, deadline, owner_id, created_at, updated_at
		FROM projects WHERE id = $1
	`
	row := s.db.QueryRowContext(ctx, query, id)

	var p models.Project
	var description sql.NullString
	var deadline sql.NullTime
	if err := row.Scan(&p.ID, &p.Name, &description, &deadline, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	p.Description = description.String
	if deadline.Valid {
		p.Deadline = &deadline.Time
	}
	return &p, nil
}

func (s *Store) DeleteProject(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateTask(ctx context.Context, t *models.Task) error {
	const query = `
		INSERT INTO tasks (id, project_id, title, description, duration_days, start_date, version_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		t.ID, t.ProjectID, t.Title, t.Description, t.DurationDays, t.StartDate, t.VersionToken, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

func scanTask(row interface{ Scan(...any) error }) (*models.Task, error) {
	var t models.Task
	var description sql.NullString
	if err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &description, &t.DurationDays, &t.StartDate, &t.VersionToken, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Description = description.String
	return &t, nil
}

const taskColumns = `id, project_id, title, description, duration_days, start_date, version_token, created_at, updated_at`

func (s *Store) GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	query := fmt.Sprintf(`SELECT %s FROM tasks WHERE id = $1`, taskColumns)
	row := s.db.QueryRowContext(ctx, query, id)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

func (s *Store) UpdateTask(ctx context.Context, id uuid.UUID, patch store.TaskPatch) (*models.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := scanTask(tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM tasks WHERE id = $1 FOR UPDATE`, taskColumns), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read task for update: %w", err)
	}

	if patch.Title != nil {
		current.Title = *patch.Title
	}
	if patch.Description != nil {
		current.Description = *patch.Description
	}
	if patch.DurationDays != nil {
		current.DurationDays = *patch.DurationDays
	}
	if patch.StartDate != nil {
		current.StartDate = models.TruncateToDay(*patch.StartDate)
	}
	current.VersionToken = models.NewVersionToken()
	current.UpdatedAt = time.Now().UTC()

	const update = `
		UPDATE tasks
		SET title = $2, description = $3, duration_days = $4, start_date = $5,
		    version_token = $6, updated_at = $7
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, update,
		current.ID, current.Title, current.Description, current.DurationDays,
		current.StartDate, current.VersionToken, current.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit task update: %w", err)
	}
	return current, nil
}

func (s *Store) DeleteTask(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DirectSuccessors(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT successor_id FROM edges WHERE predecessor_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list direct successors: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var succ uuid.UUID
		if err := rows.Scan(&succ); err != nil {
			return nil, fmt.Errorf("failed to scan successor id: %w", err)
		}
		out = append(out, succ)
	}
	return out, rows.Err()
}

func (s *Store) ListProjectTasksAndEdges(ctx context.Context, projectID uuid.UUID) ([]models.Task, []models.Edge, error) {
	taskQuery := fmt.Sprintf(`SELECT %s FROM tasks WHERE project_id = $1`, taskColumns)
	taskRows, err := s.db.QueryContext(ctx, taskQuery, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list project tasks: %w", err)
	}
	defer taskRows.Close()

	var tasks []models.Task
	for taskRows.Next() {
		t, err := scanTask(taskRows)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := taskRows.Err(); err != nil {
		return nil, nil, err
	}

	const edgeQuery = `
		SELECT e.predecessor_id, e.successor_id, e.created_at
		FROM edges e
		JOIN tasks t ON t.id = e.predecessor_id
		WHERE t.project_id = $1
	`
	edgeRows, err := s.db.QueryContext(ctx, edgeQuery, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list project edges: %w", err)
	}
	defer edgeRows.Close()

	var edges []models.Edge
	for edgeRows.Next() {
		var e models.Edge
		if err := edgeRows.Scan(&e.PredecessorID, &e.SuccessorID, &e.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	return tasks, edges, edgeRows.Err()
}

func (s *Store) BulkUpdateStartDates(ctx context.Context, updates []store.TaskDateUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	const update = `UPDATE tasks SET start_date = $2, updated_at = $3 WHERE id = $1`
	now := time.Now().UTC()
	for _, u := range updates {
		if _, err := tx.ExecContext(ctx, update, u.TaskID, models.TruncateToDay(u.StartDate), now); err != nil {
			return fmt.Errorf("failed to bulk update start date for task %s: %w", u.TaskID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bulk update: %w", err)
	}
	return nil
}

func (s *Store) EdgeExists(ctx context.Context, predecessorID, successorID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM edges WHERE predecessor_id = $1 AND successor_id = $2)`,
		predecessorID, successorID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check edge existence: %w", err)
	}
	return exists, nil
}

const pqUniqueViolation = "23505"

func (s *Store) InsertEdge(ctx context.Context, predecessorID, successorID uuid.UUID) (*models.Edge, string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO edges (predecessor_id, successor_id, created_at) VALUES ($1, $2, $3)`,
		predecessorID, successorID, now,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return nil, "", store.ErrDuplicateEdge
		}
		return nil, "", fmt.Errorf("failed to insert edge: %w", err)
	}

	newToken := models.NewVersionToken()
	res, err := tx.ExecContext(ctx,
		`UPDATE tasks SET version_token = $2, updated_at = $3 WHERE id = $1`,
		successorID, newToken, now,
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to bump successor version: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, "", store.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, "", fmt.Errorf("failed to commit edge insert: %w", err)
	}

	return &models.Edge{PredecessorID: predecessorID, SuccessorID: successorID, CreatedAt: now}, newToken, nil
}

func (s *Store) DeleteEdge(ctx context.Context, predecessorID, successorID uuid.UUID) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM edges WHERE predecessor_id = $1 AND successor_id = $2`,
		predecessorID, successorID,
	)
	if err != nil {
		return "", fmt.Errorf("failed to delete edge: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", store.ErrNotFound
	}

	newToken := models.NewVersionToken()
	if _, err := tx.ExecContext(ctx,
		`UPDATE tasks SET version_token = $2, updated_at = $3 WHERE id = $1`,
		successorID, newToken, time.Now().UTC(),
	); err != nil {
		return "", fmt.Errorf("failed to bump successor version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit edge delete: %w", err)
	}
	return newToken, nil
}
