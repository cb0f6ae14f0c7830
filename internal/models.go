package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Task statuses accepted by the tasks table.
const (
	StatusPending    = "Pending"
	StatusInProgress = "In Progress"
	StatusCompleted  = "Completed"
	StatusOnHold     = "On Hold"
)

// Task priorities accepted by the tasks table.
const (
	PriorityLow    = "Low"
	PriorityNormal = "Normal"
	PriorityHigh   = "High"
	PriorityUrgent = "Urgent"
)

const MaxTitleLength = 255

var ErrInvalidTask = errors.New("invalid task")

// Task represents the 'tasks' table in the database
type Task struct {
	ID        int64     `db:"id" json:"id,omitempty"`
	Title     string    `db:"title" json:"title"`
	Content   string    `db:"content" json:"content,omitempty"`
	Status    string    `db:"status" json:"status,omitempty"`
	Priority  string    `db:"priority" json:"priority,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at,omitempty"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// Normalize trims the title and fills in the column defaults.
func (t *Task) Normalize() {
	t.Title = strings.TrimSpace(t.Title)
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.Priority == "" {
		t.Priority = PriorityNormal
	}
}

// Validate checks a normalized task against the table constraints.
func (t Task) Validate() error {
	if t.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidTask)
	}
	if len(t.Title) > MaxTitleLength {
		return fmt.Errorf("%w: title must be at most %d characters", ErrInvalidTask, MaxTitleLength)
	}
	switch t.Status {
	case StatusPending, StatusInProgress, StatusCompleted, StatusOnHold:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTask, t.Status)
	}
	switch t.Priority {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
	default:
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidTask, t.Priority)
	}
	return nil
}

// User represents the 'users' table
type User struct {
	ID             uuid.UUID `db:"id"`
	Username       string    `db:"username"`
	HashedPassword string    `db:"hashed_password"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}
