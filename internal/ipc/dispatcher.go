package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Armour007/fast-tasks/internal/mesh"
)

// HandlerFunc serves one request topic. The returned value becomes the
// reply payload; a returned error becomes an error reply carrying its message.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) (any, error)

// Dispatcher is the responder side: it demultiplexes request envelopes by
// topic and publishes exactly one reply per handled request.
type Dispatcher struct {
	log *logrus.Entry
	sem chan struct{}

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	bus      mesh.Bus
	unsub    func()
	stopped  bool

	wg sync.WaitGroup
}

type DispatcherOption func(*Dispatcher)

// WithMaxInFlight bounds concurrently running handlers; n <= 0 means unbounded.
func WithMaxInFlight(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.sem = make(chan struct{}, n)
		}
	}
}

func WithDispatcherLogger(l *logrus.Entry) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		log:      logrus.WithField("component", "ipc-dispatcher"),
		handlers: map[string]HandlerFunc{},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Register associates topic with h. Registering a topic again replaces the
// previous handler.
func (d *Dispatcher) Register(topic string, h HandlerFunc) {
	if h == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.handlers[topic]; ok {
		d.log.WithField("topic", topic).Warn("replacing handler")
	}
	d.handlers[topic] = h
}

// Topics lists registered topics in sorted order.
func (d *Dispatcher) Topics() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.handlers))
	for t := range d.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Start subscribes the dispatcher to bus.
func (d *Dispatcher) Start(bus mesh.Bus) error {
	if bus == nil {
		return errors.New("ipc: nil bus")
	}
	d.mu.Lock()
	if d.bus != nil {
		d.mu.Unlock()
		return errors.New("ipc: dispatcher already started")
	}
	d.bus = bus
	d.mu.Unlock()

	unsub, err := bus.Subscribe(d.Dispatch)
	if err != nil {
		d.mu.Lock()
		d.bus = nil
		d.mu.Unlock()
		return fmt.Errorf("ipc: subscribe: %w", err)
	}
	d.mu.Lock()
	d.unsub = unsub
	d.mu.Unlock()
	d.log.WithField("topics", d.Topics()).Info("dispatcher listening")
	return nil
}

// Dispatch handles one inbound envelope. Replies and unknown topics are
// dropped; a registered topic runs its handler in a separate goroutine.
func (d *Dispatcher) Dispatch(ctx context.Context, env mesh.Envelope) {
	if mesh.IsResponse(env.Topic) {
		return
	}
	d.mu.RLock()
	h, ok := d.handlers[env.Topic]
	bus, stopped := d.bus, d.stopped
	if ok && bus != nil && !stopped {
		// Add under the lock so Stop cannot reach Wait in between.
		d.wg.Add(1)
	}
	d.mu.RUnlock()
	if !ok {
		unroutableTotal.WithLabelValues("responder").Inc()
		d.log.WithFields(logrus.Fields{
			"topic":          env.Topic,
			"correlation_id": env.CorrelationID,
			"err":            ErrUnroutable,
		}).Warn("no handler for topic")
		return
	}
	if bus == nil {
		d.log.WithField("topic", env.Topic).Error("dispatch before start, dropping request")
		return
	}
	if stopped {
		d.log.WithFields(logrus.Fields{"topic": env.Topic, "correlation_id": env.CorrelationID}).Warn("dispatcher stopped, dropping request")
		return
	}
	go func() {
		defer d.wg.Done()
		if d.sem != nil {
			d.sem <- struct{}{}
			defer func() { <-d.sem }()
		}
		d.serve(ctx, bus, h, env)
	}()
}

func (d *Dispatcher) serve(ctx context.Context, bus mesh.Bus, h HandlerFunc, env mesh.Envelope) {
	ctx, span := tracer.Start(ctx, "ipc.handle", trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("ipc.topic", env.Topic),
			attribute.String("ipc.correlation_id", env.CorrelationID),
		))
	defer span.End()

	start := time.Now()
	result, err := invoke(ctx, h, env.Payload)
	handlerDuration.WithLabelValues(env.Topic).Observe(time.Since(start).Seconds())

	var reply mesh.Envelope
	if err == nil {
		var body json.RawMessage
		if body, err = encodePayload(result); err == nil {
			reply = env.Reply(body)
		} else {
			err = fmt.Errorf("encode reply: %w", err)
		}
	}
	entry := d.log.WithFields(logrus.Fields{"topic": env.Topic, "correlation_id": env.CorrelationID})
	if err != nil {
		reply = env.ReplyError(err.Error())
		span.SetStatus(codes.Error, err.Error())
		entry.WithError(err).Warn("handler failed")
	}
	repliesTotal.WithLabelValues(env.Topic, string(reply.ResponseType)).Inc()
	if perr := bus.Publish(ctx, reply); perr != nil {
		entry.WithError(perr).Error("failed to publish reply")
	}
}

// invoke runs h, converting a panic into an error so every request still
// gets a reply.
func invoke(ctx context.Context, h HandlerFunc, payload json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, payload)
}

// Stop unsubscribes from the bus and waits for in-flight handlers. Requests
// delivered after Stop are dropped.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	unsub := d.unsub
	d.unsub = nil
	d.stopped = true
	d.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	d.wg.Wait()
}
