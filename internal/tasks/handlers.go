package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	database "github.com/Armour007/fast-tasks/internal"
	"github.com/Armour007/fast-tasks/internal/ipc"
	"github.com/Armour007/fast-tasks/internal/mesh"
)

var errEmptyPayload = errors.New("empty payload")

// Created is the reply payload of the create topics.
type Created struct {
	Created int `json:"created"`
}

// RegisterHandlers binds the task topics to store.
func RegisterHandlers(d *ipc.Dispatcher, store Store) {
	d.Register(mesh.TopicGetAllTasks, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return store.ListRecords(ctx)
	})

	d.Register(mesh.TopicCreateTask, func(ctx context.Context, payload json.RawMessage) (any, error) {
		if len(payload) == 0 {
			return nil, errEmptyPayload
		}
		var t database.Task
		if err := json.Unmarshal(payload, &t); err != nil {
			return nil, fmt.Errorf("decode task: %w", err)
		}
		if err := prepare(&t); err != nil {
			return nil, err
		}
		if err := store.CreateRecord(ctx, t); err != nil {
			return nil, err
		}
		return Created{Created: 1}, nil
	})

	d.Register(mesh.TopicBulkCreateTasks, func(ctx context.Context, payload json.RawMessage) (any, error) {
		var ts []database.Task
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &ts); err != nil {
				return nil, fmt.Errorf("decode tasks: %w", err)
			}
		}
		if len(ts) == 0 {
			return nil, ErrEmptyBatch
		}
		for i := range ts {
			if err := prepare(&ts[i]); err != nil {
				return nil, fmt.Errorf("task %d: %w", i, err)
			}
		}
		if err := store.BulkCreateRecords(ctx, ts); err != nil {
			return nil, err
		}
		return Created{Created: len(ts)}, nil
	})
}

func prepare(t *database.Task) error {
	t.Normalize()
	return t.Validate()
}
