package tasks

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	database "github.com/Armour007/fast-tasks/internal"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(sqlx.NewDb(db, "pgx")), mock
}

func TestSQLStore_BulkCreateRecordsSingleStatement(t *testing.T) {
	s, mock := newMockStore(t)
	query := regexp.QuoteMeta(`INSERT INTO tasks (title, content, status, priority) VALUES ($1, $2, $3, $4), ($5, $6, $7, $8)`)
	mock.ExpectExec(query).
		WithArgs("a", "", "Pending", "Normal", "b", "body", "Completed", "High").
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := s.BulkCreateRecords(context.Background(), []database.Task{
		{Title: "a", Status: "Pending", Priority: "Normal"},
		{Title: "b", Content: "body", Status: "Completed", Priority: "High"},
	})
	if err != nil {
		t.Fatalf("bulk create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSQLStore_BulkCreateRecordsEmpty(t *testing.T) {
	s, mock := newMockStore(t)
	if err := s.BulkCreateRecords(context.Background(), nil); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no statement expected: %v", err)
	}
}

func TestSQLStore_CreateRecordWrapsError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(insertTaskColumns)).WillReturnError(errors.New("conn reset"))
	err := s.CreateRecord(context.Background(), database.Task{Title: "x", Status: "Pending", Priority: "Low"})
	if err == nil || err.Error() != "insert tasks: conn reset" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestSQLStore_ListRecords(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "title", "content", "status", "priority", "created_at", "updated_at"}).
		AddRow(int64(1), "x", "", "Pending", "Normal", now, now).
		AddRow(int64(2), "y", "notes", "On Hold", "Urgent", now, now)
	mock.ExpectQuery(regexp.QuoteMeta(listTasksQuery)).WillReturnRows(rows)

	got, err := s.ListRecords(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != 1 || got[0].Title != "x" || got[1].Status != "On Hold" || got[1].Content != "notes" {
		t.Fatalf("unexpected rows %+v", got)
	}
}

func TestSQLStore_ListRecordsEmptyIsNotNil(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(listTasksQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "content", "status", "priority", "created_at", "updated_at"}))
	got, err := s.ListRecords(context.Background())
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v %v", got, err)
	}
}
