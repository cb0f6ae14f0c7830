package api

import (
	"context"
	"time"

	database "github.com/Armour007/fast-tasks/internal"
	"github.com/Armour007/fast-tasks/internal/auth"
	"github.com/Armour007/fast-tasks/internal/ipc"
	"github.com/Armour007/fast-tasks/internal/mesh"
)

// Backend is what the HTTP handlers need from the task service.
type Backend interface {
	ListTasks(ctx context.Context) ([]database.Task, error)
	CreateTask(ctx context.Context, t database.Task) error
	BulkCreateTasks(ctx context.Context, ts []database.Task) error
	Login(ctx context.Context, c auth.Credentials) (string, error)
	Signin(ctx context.Context, c auth.Credentials) (string, error)
	Ready(ctx context.Context) error
}

// IPCBackend reaches the service process over the bus. Reads are
// correlated calls; writes are fire-and-forget.
type IPCBackend struct {
	client  *ipc.Client
	bus     mesh.Bus
	timeout time.Duration
	cb      *breakers
}

type BackendOption func(*IPCBackend)

// WithBreaker tunes the per-topic circuit breakers.
func WithBreaker(threshold int, openFor time.Duration) BackendOption {
	return func(b *IPCBackend) {
		b.cb.threshold = threshold
		b.cb.openFor = openFor
	}
}

func NewIPCBackend(client *ipc.Client, bus mesh.Bus, timeout time.Duration, opts ...BackendOption) *IPCBackend {
	if timeout <= 0 {
		timeout = ipc.DefaultCallTimeout
	}
	b := &IPCBackend{
		client:  client,
		bus:     bus,
		timeout: timeout,
		cb:      &breakers{byTopic: map[string]*CircuitBreaker{}},
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *IPCBackend) ListTasks(ctx context.Context) ([]database.Task, error) {
	out := []database.Task{}
	err := b.cb.guard(mesh.TopicGetAllTasks, func() error {
		return b.client.CallInto(ctx, mesh.TopicGetAllTasks, struct{}{}, b.timeout, &out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *IPCBackend) CreateTask(ctx context.Context, t database.Task) error {
	return b.cb.guard(mesh.TopicCreateTask, func() error {
		return b.client.FireAndForget(ctx, mesh.TopicCreateTask, t)
	})
}

func (b *IPCBackend) BulkCreateTasks(ctx context.Context, ts []database.Task) error {
	return b.cb.guard(mesh.TopicBulkCreateTasks, func() error {
		return b.client.FireAndForget(ctx, mesh.TopicBulkCreateTasks, ts)
	})
}

func (b *IPCBackend) Login(ctx context.Context, c auth.Credentials) (string, error) {
	return b.token(ctx, mesh.TopicLogin, c)
}

func (b *IPCBackend) Signin(ctx context.Context, c auth.Credentials) (string, error) {
	return b.token(ctx, mesh.TopicSignin, c)
}

func (b *IPCBackend) token(ctx context.Context, topic string, c auth.Credentials) (string, error) {
	var out auth.Token
	err := b.cb.guard(topic, func() error {
		return b.client.CallInto(ctx, topic, c, b.timeout, &out)
	})
	if err != nil {
		return "", err
	}
	return out.Token, nil
}

func (b *IPCBackend) Ready(ctx context.Context) error { return mesh.Ping(ctx, b.bus) }
