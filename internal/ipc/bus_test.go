package ipc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Armour007/fast-tasks/internal/mesh"
)

// recordingBus records publishes and delivers envelopes only when the test
// says so, which lets tests control reply order.
type recordingBus struct {
	mu        sync.Mutex
	published []mesh.Envelope
	handlers  []mesh.Handler
	failWith  error
}

func (b *recordingBus) Publish(ctx context.Context, e mesh.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failWith != nil {
		return b.failWith
	}
	b.published = append(b.published, e)
	return nil
}

func (b *recordingBus) Subscribe(h mesh.Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.handlers = nil
	}, nil
}

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) deliver(e mesh.Envelope) {
	b.mu.Lock()
	hs := append([]mesh.Handler(nil), b.handlers...)
	b.mu.Unlock()
	for _, h := range hs {
		h(context.Background(), e)
	}
}

func (b *recordingBus) snapshot() []mesh.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]mesh.Envelope(nil), b.published...)
}

// waitPublished polls until at least n envelopes were published.
func (b *recordingBus) waitPublished(t *testing.T, n int) []mesh.Envelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := b.snapshot(); len(got) >= n {
			return got
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("expected %d published envelopes, got %d", n, len(b.snapshot()))
	return nil
}
