package database

import (
	"errors"
	"strings"
	"testing"
)

func TestTask_NormalizeDefaults(t *testing.T) {
	task := Task{Title: "  write report  "}
	task.Normalize()
	if task.Title != "write report" || task.Status != StatusPending || task.Priority != PriorityNormal {
		t.Fatalf("unexpected normalized task %+v", task)
	}
	if err := task.Validate(); err != nil {
		t.Fatalf("valid task rejected: %v", err)
	}
}

func TestTask_Validate(t *testing.T) {
	cases := []struct {
		name string
		task Task
	}{
		{"missing title", Task{Status: StatusPending, Priority: PriorityNormal}},
		{"long title", Task{Title: strings.Repeat("a", MaxTitleLength+1), Status: StatusPending, Priority: PriorityNormal}},
		{"bad status", Task{Title: "x", Status: "Done", Priority: PriorityNormal}},
		{"bad priority", Task{Title: "x", Status: StatusOnHold, Priority: "Whenever"}},
	}
	for _, tc := range cases {
		if err := tc.task.Validate(); !errors.Is(err, ErrInvalidTask) {
			t.Fatalf("%s: expected ErrInvalidTask, got %v", tc.name, err)
		}
	}
	ok := Task{Title: strings.Repeat("a", MaxTitleLength), Status: StatusInProgress, Priority: PriorityUrgent}
	if err := ok.Validate(); err != nil {
		t.Fatalf("boundary title rejected: %v", err)
	}
}

func TestConfig_DSN(t *testing.T) {
	c := Config{Host: "db", Port: "5432", User: "u", Password: "p", Name: "tasks", SSLMode: "disable"}
	want := "host=db port=5432 user=u password=p dbname=tasks sslmode=disable"
	if got := c.DSN(); got != want {
		t.Fatalf("DSN = %q, want %q", got, want)
	}
	if _, err := Connect(Config{}); err == nil {
		t.Fatalf("expected error without password")
	}
}
