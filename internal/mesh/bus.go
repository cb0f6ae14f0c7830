package mesh

import (
	"context"
	"errors"
)

var ErrBusClosed = errors.New("mesh: bus closed")

// Handler receives every envelope published on the bus. Implementations
// filter by topic themselves; the bus does no addressing.
type Handler func(ctx context.Context, env Envelope)

// Bus is a broadcast publish/subscribe transport: every subscriber receives
// every published envelope, with no ordering or delivery guarantee.
type Bus interface {
	Publish(ctx context.Context, env Envelope) error
	Subscribe(h Handler) (unsubscribe func(), err error)
	Close() error
}

// Pinger is implemented by buses that can report transport health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks bus health when the backend supports it.
func Ping(ctx context.Context, b Bus) error {
	if b == nil {
		return errors.New("mesh: no bus configured")
	}
	if p, ok := b.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
