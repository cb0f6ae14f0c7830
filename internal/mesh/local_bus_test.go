package mesh

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestLocalBus_BroadcastsToEverySubscriber(t *testing.T) {
	b := NewLocalBus()
	var wg sync.WaitGroup
	wg.Add(2)
	got := make(chan Envelope, 2)
	for i := 0; i < 2; i++ {
		if _, err := b.Subscribe(func(ctx context.Context, e Envelope) {
			got <- e
			wg.Done()
		}); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	}
	if err := b.Publish(context.Background(), Envelope{Topic: TopicGetAllTasks, Payload: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("not every subscriber received the envelope")
	}
	a, c := <-got, <-got
	a.Payload[0] = 'X'
	if c.Payload[0] == 'X' {
		t.Fatalf("subscribers must not share payload buffers")
	}
}

func TestLocalBus_UnsubscribeAndClose(t *testing.T) {
	b := NewLocalBus()
	calls := make(chan struct{}, 4)
	unsub, _ := b.Subscribe(func(ctx context.Context, e Envelope) { calls <- struct{}{} })
	unsub()
	_ = b.Publish(context.Background(), Envelope{Topic: "A/GET/x"})
	select {
	case <-calls:
		t.Fatalf("unsubscribed handler was called")
	case <-time.After(50 * time.Millisecond):
	}
	_ = b.Close()
	if err := b.Publish(context.Background(), Envelope{Topic: "A/GET/x"}); err != ErrBusClosed {
		t.Fatalf("expected ErrBusClosed, got %v", err)
	}
	if _, err := b.Subscribe(func(context.Context, Envelope) {}); err != ErrBusClosed {
		t.Fatalf("expected ErrBusClosed on subscribe, got %v", err)
	}
}

func TestLocalBus_DeliveryOutlivesPublisherContext(t *testing.T) {
	b := NewLocalBus()
	errs := make(chan error, 1)
	_, _ = b.Subscribe(func(ctx context.Context, e Envelope) {
		time.Sleep(10 * time.Millisecond)
		errs <- ctx.Err()
	})
	ctx, cancel := context.WithCancel(context.Background())
	_ = b.Publish(ctx, Envelope{Topic: "A/GET/x"})
	cancel()
	if err := <-errs; err != nil {
		t.Fatalf("delivery context cancelled with publisher: %v", err)
	}
}

func TestOpen(t *testing.T) {
	b, err := Open(Options{})
	if err != nil {
		t.Fatalf("open default: %v", err)
	}
	if _, ok := b.(*LocalBus); !ok {
		t.Fatalf("default backend should be local, got %T", b)
	}
	if err := Ping(context.Background(), b); err != nil {
		t.Fatalf("local ping: %v", err)
	}
	if _, err := Open(Options{Backend: "carrier-pigeon"}); err == nil {
		t.Fatalf("expected unknown backend error")
	}
	if _, err := Open(Options{Codec: "xml"}); err == nil {
		t.Fatalf("expected unknown codec error")
	}
	if err := Ping(context.Background(), nil); err == nil {
		t.Fatalf("expected error pinging nil bus")
	}
}
