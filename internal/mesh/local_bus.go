package mesh

import (
	"context"
	"sync"
)

// LocalBus is an in-process broadcast bus. Publish fans every envelope out
// to all subscribers asynchronously, one goroutine per subscriber.
type LocalBus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
	closed   bool
}

func NewLocalBus() *LocalBus { return &LocalBus{handlers: map[int]Handler{}} }

func (b *LocalBus) Publish(ctx context.Context, e Envelope) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	hs := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		hs = append(hs, h)
	}
	b.mu.RUnlock()
	// delivery outlives the publisher's request
	dctx := context.WithoutCancel(ctx)
	for _, h := range hs {
		go h(dctx, e.clone())
	}
	return nil
}

func (b *LocalBus) Subscribe(h Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
	}, nil
}

func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = map[int]Handler{}
	return nil
}
