package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	database "github.com/Armour007/fast-tasks/internal"
	"github.com/jmoiron/sqlx"
)

// ErrEmptyBatch is returned when a bulk create carries no tasks.
var ErrEmptyBatch = errors.New("no tasks to create")

// Store is the persistence collaborator behind the task topics.
type Store interface {
	CreateRecord(ctx context.Context, t database.Task) error
	BulkCreateRecords(ctx context.Context, ts []database.Task) error
	ListRecords(ctx context.Context) ([]database.Task, error)
}

// SQLStore keeps tasks in the Postgres 'tasks' table.
type SQLStore struct {
	db *sqlx.DB
}

func NewSQLStore(db *sqlx.DB) *SQLStore { return &SQLStore{db: db} }

const insertTaskColumns = "INSERT INTO tasks (title, content, status, priority) VALUES "

func (s *SQLStore) CreateRecord(ctx context.Context, t database.Task) error {
	return s.BulkCreateRecords(ctx, []database.Task{t})
}

// BulkCreateRecords inserts all tasks in one multi-row statement.
func (s *SQLStore) BulkCreateRecords(ctx context.Context, ts []database.Task) error {
	if len(ts) == 0 {
		return ErrEmptyBatch
	}
	var b strings.Builder
	b.WriteString(insertTaskColumns)
	args := make([]any, 0, len(ts)*4)
	for i, t := range ts {
		if i > 0 {
			b.WriteString(", ")
		}
		n := i * 4
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4)
		args = append(args, t.Title, t.Content, t.Status, t.Priority)
	}
	if _, err := s.db.ExecContext(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("insert tasks: %w", err)
	}
	return nil
}

const listTasksQuery = `SELECT id, title, COALESCE(content, '') AS content, status, priority, created_at, updated_at
FROM tasks ORDER BY id`

func (s *SQLStore) ListRecords(ctx context.Context) ([]database.Task, error) {
	out := []database.Task{}
	if err := s.db.SelectContext(ctx, &out, listTasksQuery); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return out, nil
}
