package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Armour007/fast-tasks/internal/mesh"
)

func startDispatcher(t *testing.T, d *Dispatcher) *recordingBus {
	t.Helper()
	bus := &recordingBus{}
	if err := d.Start(bus); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(d.Stop)
	return bus
}

func TestDispatcher_SuccessReply(t *testing.T) {
	d := NewDispatcher()
	d.Register(mesh.TopicGetAllTasks, func(ctx context.Context, payload json.RawMessage) (any, error) {
		return []map[string]any{{"id": 1, "title": "x"}}, nil
	})
	bus := startDispatcher(t, d)

	bus.deliver(mesh.Envelope{Topic: mesh.TopicGetAllTasks, CorrelationID: "abc", Payload: json.RawMessage(`{}`)})
	replies := bus.waitPublished(t, 1)
	time.Sleep(20 * time.Millisecond)
	if n := len(bus.snapshot()); n != 1 {
		t.Fatalf("expected exactly one reply, got %d", n)
	}
	r := replies[0]
	if r.Topic != "API/GET/getAllTasks:response" || r.CorrelationID != "abc" || r.ResponseType != mesh.OutcomeSuccess || r.Error != nil {
		t.Fatalf("unexpected reply %+v", r)
	}
	if string(r.Payload) != `[{"id":1,"title":"x"}]` {
		t.Fatalf("unexpected payload %s", r.Payload)
	}
}

func TestDispatcher_HandlerErrorThenStaysAlive(t *testing.T) {
	d := NewDispatcher()
	d.Register("API/POST/explode", func(ctx context.Context, payload json.RawMessage) (any, error) {
		return nil, errors.New("boom")
	})
	d.Register("API/GET/ping", func(ctx context.Context, payload json.RawMessage) (any, error) {
		return "pong", nil
	})
	bus := startDispatcher(t, d)

	bus.deliver(mesh.Envelope{Topic: "API/POST/explode", CorrelationID: "c1"})
	first := bus.waitPublished(t, 1)[0]
	if first.ResponseType != mesh.OutcomeError || first.ErrorMessage() != "boom" || first.CorrelationID != "c1" || first.Topic != "API/POST/explode:response" {
		t.Fatalf("unexpected error reply %+v", first)
	}
	if first.Payload != nil {
		t.Fatalf("error reply must not carry a payload")
	}

	bus.deliver(mesh.Envelope{Topic: "API/GET/ping", CorrelationID: "c2"})
	second := bus.waitPublished(t, 2)[1]
	if second.ResponseType != mesh.OutcomeSuccess || string(second.Payload) != `"pong"` || second.CorrelationID != "c2" {
		t.Fatalf("dispatcher did not keep serving: %+v", second)
	}
}

func TestDispatcher_PanicBecomesErrorReply(t *testing.T) {
	d := NewDispatcher()
	d.Register("API/GET/panic", func(ctx context.Context, payload json.RawMessage) (any, error) {
		panic("kaboom")
	})
	bus := startDispatcher(t, d)
	bus.deliver(mesh.Envelope{Topic: "API/GET/panic", CorrelationID: "p1"})
	r := bus.waitPublished(t, 1)[0]
	if r.ResponseType != mesh.OutcomeError || r.ErrorMessage() != "handler panic: kaboom" {
		t.Fatalf("unexpected reply %+v", r)
	}
}

func TestDispatcher_UnroutableAndRepliesAreDropped(t *testing.T) {
	d := NewDispatcher()
	d.Register(mesh.TopicGetAllTasks, func(ctx context.Context, payload json.RawMessage) (any, error) { return nil, nil })
	bus := startDispatcher(t, d)

	bus.deliver(mesh.Envelope{Topic: "API/GET/unknown", CorrelationID: "u1"})
	bus.deliver(mesh.Envelope{Topic: "API/GET/getAllTasks:response", CorrelationID: "r1", ResponseType: mesh.OutcomeSuccess})
	time.Sleep(30 * time.Millisecond)
	if n := len(bus.snapshot()); n != 0 {
		t.Fatalf("expected no replies, got %d", n)
	}
}

func TestDispatcher_LastRegistrationWins(t *testing.T) {
	d := NewDispatcher()
	d.Register("API/GET/v", func(ctx context.Context, payload json.RawMessage) (any, error) { return 1, nil })
	d.Register("API/GET/v", func(ctx context.Context, payload json.RawMessage) (any, error) { return 2, nil })
	d.Register("API/GET/ignored", nil)
	if got := d.Topics(); len(got) != 1 || got[0] != "API/GET/v" {
		t.Fatalf("unexpected topics %v", got)
	}
	bus := startDispatcher(t, d)
	bus.deliver(mesh.Envelope{Topic: "API/GET/v", CorrelationID: "v"})
	if r := bus.waitPublished(t, 1)[0]; string(r.Payload) != "2" {
		t.Fatalf("expected replacement handler, got %s", r.Payload)
	}
}

func TestDispatcher_SlowHandlerDoesNotBlockOthers(t *testing.T) {
	d := NewDispatcher()
	release := make(chan struct{})
	d.Register("API/GET/slow", func(ctx context.Context, payload json.RawMessage) (any, error) {
		<-release
		return "slow", nil
	})
	d.Register("API/GET/fast", func(ctx context.Context, payload json.RawMessage) (any, error) {
		return "fast", nil
	})
	bus := startDispatcher(t, d)

	bus.deliver(mesh.Envelope{Topic: "API/GET/slow", CorrelationID: "s"})
	bus.deliver(mesh.Envelope{Topic: "API/GET/fast", CorrelationID: "f"})
	if r := bus.waitPublished(t, 1)[0]; r.CorrelationID != "f" {
		t.Fatalf("fast reply should come first, got %+v", r)
	}
	close(release)
	if r := bus.waitPublished(t, 2)[1]; r.CorrelationID != "s" {
		t.Fatalf("slow reply missing, got %+v", r)
	}
}

func TestDispatcher_MaxInFlight(t *testing.T) {
	d := NewDispatcher(WithMaxInFlight(1))
	var running, peak atomic.Int32
	d.Register("API/GET/work", func(ctx context.Context, payload json.RawMessage) (any, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return nil, nil
	})
	bus := startDispatcher(t, d)
	for i := 0; i < 5; i++ {
		bus.deliver(mesh.Envelope{Topic: "API/GET/work", CorrelationID: string(rune('a' + i))})
	}
	bus.waitPublished(t, 5)
	if peak.Load() != 1 {
		t.Fatalf("expected at most one handler in flight, peak=%d", peak.Load())
	}
}

func TestDispatcher_StartTwiceFails(t *testing.T) {
	d := NewDispatcher()
	startDispatcher(t, d)
	if err := d.Start(&recordingBus{}); err == nil {
		t.Fatalf("expected error on second start")
	}
	if err := NewDispatcher().Start(nil); err == nil {
		t.Fatalf("expected error for nil bus")
	}
}

func TestDispatcher_DispatchAfterStopIsDropped(t *testing.T) {
	d := NewDispatcher()
	var calls atomic.Int32
	d.Register(mesh.TopicGetAllTasks, func(ctx context.Context, payload json.RawMessage) (any, error) {
		calls.Add(1)
		return []any{}, nil
	})
	bus := startDispatcher(t, d)
	d.Stop()

	// a bus callback already in flight when the subscription is removed
	d.Dispatch(context.Background(), mesh.Envelope{Topic: mesh.TopicGetAllTasks, CorrelationID: "late"})
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != 0 || len(bus.snapshot()) != 0 {
		t.Fatalf("stopped dispatcher must not serve: calls=%d published=%d", calls.Load(), len(bus.snapshot()))
	}
}

func TestDispatcher_StopWaitsForEveryAcceptedRequest(t *testing.T) {
	d := NewDispatcher()
	d.Register(mesh.TopicGetAllTasks, func(ctx context.Context, payload json.RawMessage) (any, error) {
		time.Sleep(time.Millisecond)
		return []any{}, nil
	})
	bus := startDispatcher(t, d)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				d.Dispatch(context.Background(), mesh.Envelope{Topic: mesh.TopicGetAllTasks, CorrelationID: "c"})
			}
		}()
	}
	time.Sleep(5 * time.Millisecond)
	d.Stop()
	after := len(bus.snapshot())
	wg.Wait()
	time.Sleep(20 * time.Millisecond)
	if got := len(bus.snapshot()); got != after {
		t.Fatalf("replies published after Stop returned: %d then %d", after, got)
	}
}
