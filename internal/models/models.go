// Package models holds the persisted entities of the scheduling engine:
// projects, tasks and the precedence edges between them.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Project is a container of tasks owned by a user.
type Project struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	OwnerID     string     `json:"owner_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Task is a work item belonging to exactly one project.
//
// StartDate and the derived EndDate are calendar dates truncated to
// whole days (day granularity only, see TruncateToDay) — there is no
// concept of a time-of-day or a calendar/workday arithmetic here.
type Task struct {
	ID           uuid.UUID `json:"id"`
	ProjectID    uuid.UUID `json:"project_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	DurationDays int       `json:"duration_days"`
	StartDate    time.Time `json:"start_date"`
	VersionToken string    `json:"version_token"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// EndDate returns the last inclusive day of work on the task.
// A milestone (DurationDays == 0) ends on the day it starts.
func (t Task) EndDate() time.Time {
	if t.DurationDays <= 0 {
		return t.StartDate
	}
	return t.StartDate.AddDate(0, 0, t.DurationDays-1)
}

// IsMilestone reports whether the task has zero duration.
func (t Task) IsMilestone() bool {
	return t.DurationDays <= 0
}

// Edge is a directed precedence relation: Predecessor must end
// strictly before Successor begins. The (PredecessorID, SuccessorID)
// pair is the composite identity.
type Edge struct {
	PredecessorID uuid.UUID `json:"predecessor_id"`
	SuccessorID   uuid.UUID `json:"successor_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// TruncateToDay strips the time-of-day component, keeping only the
// calendar date in UTC. All stored dates in this system pass through
// this function so that day-arithmetic (AddDate) stays exact.
func TruncateToDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// NewVersionToken mints a fresh opaque version token for a task
// mutation. Tokens are compared for equality only; their internal
// structure carries no meaning to callers.
func NewVersionToken() string {
	return uuid.NewString()
}
