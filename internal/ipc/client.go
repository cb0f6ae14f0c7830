package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Armour007/fast-tasks/internal/mesh"
)

const (
	DefaultCallTimeout   = 5 * time.Second
	DefaultSweepInterval = time.Second
)

var tracer = otel.Tracer("github.com/Armour007/fast-tasks/internal/ipc")

type callResult struct {
	payload json.RawMessage
	err     error
}

// pendingCall is the bookkeeping for one outstanding call. done has room for
// exactly one result and is written only by whoever removed the entry from
// the pending table.
type pendingCall struct {
	id        string
	topic     string
	createdAt time.Time
	timeout   time.Duration
	done      chan callResult
}

// Stats is a point-in-time summary of a client's activity.
type Stats struct {
	Pending   int
	Calls     uint64
	Succeeded uint64
	Remote    uint64
	Timeouts  uint64
	Orphans   uint64
}

// Client turns the broadcast bus into request/response calls. It owns its
// pending-call table; replies are matched by correlation id only.
type Client struct {
	bus            mesh.Bus
	log            *logrus.Entry
	defaultTimeout time.Duration
	sweepEvery     time.Duration

	mu      sync.Mutex
	pending map[string]*pendingCall
	closed  bool

	unsubscribe func()
	sweeper     *sweeper
	closeOnce   sync.Once

	calls, succeeded, remote, timeouts, orphans atomic.Uint64
}

type ClientOption func(*Client)

// WithCallTimeout sets the timeout used when Call is given a non-positive one.
func WithCallTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

// WithSweepInterval sets how often expired calls are evicted.
func WithSweepInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.sweepEvery = d
		}
	}
}

func WithClientLogger(l *logrus.Entry) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient subscribes to bus and starts the timeout sweeper.
func NewClient(bus mesh.Bus, opts ...ClientOption) (*Client, error) {
	if bus == nil {
		return nil, errors.New("ipc: nil bus")
	}
	c := &Client{
		bus:            bus,
		log:            logrus.WithField("component", "ipc-client"),
		defaultTimeout: DefaultCallTimeout,
		sweepEvery:     DefaultSweepInterval,
		pending:        map[string]*pendingCall{},
	}
	for _, o := range opts {
		o(c)
	}
	unsub, err := bus.Subscribe(c.onEnvelope)
	if err != nil {
		return nil, fmt.Errorf("ipc: subscribe: %w", err)
	}
	c.unsubscribe = unsub
	c.sweeper = newSweeper(c.sweepEvery, c.expire)
	c.sweeper.start()
	return c, nil
}

// Call publishes a request on topic and waits for the matching reply, the
// timeout, or ctx cancellation, whichever comes first. A non-positive
// timeout selects the client default.
func (c *Client) Call(ctx context.Context, topic string, payload any, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	body, err := encodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("ipc: encode %s payload: %w", topic, err)
	}
	ctx, span := tracer.Start(ctx, "ipc.call", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("ipc.topic", topic)))
	defer span.End()

	start := time.Now()
	call := &pendingCall{
		id:        uuid.NewString(),
		topic:     topic,
		createdAt: start,
		timeout:   timeout,
		done:      make(chan callResult, 1),
	}
	span.SetAttributes(attribute.String("ipc.correlation_id", call.id))
	if err := c.track(call); err != nil {
		return nil, err
	}
	c.calls.Add(1)

	if err := c.bus.Publish(ctx, mesh.Envelope{Topic: topic, CorrelationID: call.id, Payload: body}); err != nil {
		c.take(call.id)
		observeCall(topic, outcomeTransport, start)
		span.SetStatus(codes.Error, "publish failed")
		return nil, &TransportError{Topic: topic, Err: err}
	}

	var res callResult
	select {
	case res = <-call.done:
	case <-ctx.Done():
		if _, ok := c.take(call.id); ok {
			observeCall(topic, outcomeCancelled, start)
			span.SetStatus(codes.Error, "cancelled")
			return nil, ctx.Err()
		}
		// settled concurrently with the cancellation
		res = <-call.done
	}
	outcome := outcomeOf(res.err)
	observeCall(topic, outcome, start)
	if res.err != nil {
		span.SetStatus(codes.Error, outcome)
	}
	return res.payload, res.err
}

// CallInto performs Call and decodes the reply payload into out.
func (c *Client) CallInto(ctx context.Context, topic string, payload any, timeout time.Duration, out any) error {
	raw, err := c.Call(ctx, topic, payload, timeout)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("ipc: decode %s reply: %w", topic, err)
	}
	return nil
}

// FireAndForget publishes a request without tracking a reply. Only local
// publish failures are reported.
func (c *Client) FireAndForget(ctx context.Context, topic string, payload any) error {
	body, err := encodePayload(payload)
	if err != nil {
		return fmt.Errorf("ipc: encode %s payload: %w", topic, err)
	}
	if err := c.bus.Publish(ctx, mesh.Envelope{Topic: topic, Payload: body}); err != nil {
		callsTotal.WithLabelValues(topic, outcomeTransport).Inc()
		return &TransportError{Topic: topic, Err: err}
	}
	return nil
}

func (c *Client) onEnvelope(_ context.Context, env mesh.Envelope) {
	if !mesh.IsResponse(env.Topic) {
		return
	}
	origin := mesh.RequestTopic(env.Topic)
	res := callResult{payload: env.Payload}
	if env.ResponseType != mesh.OutcomeSuccess {
		res = callResult{err: &RemoteError{Topic: origin, Message: env.ErrorMessage()}}
	}
	if !c.settle(env.CorrelationID, res) {
		c.orphans.Add(1)
		unroutableTotal.WithLabelValues("client").Inc()
		c.log.WithFields(logrus.Fields{
			"topic":          origin,
			"correlation_id": env.CorrelationID,
			"err":            ErrUnroutable,
		}).Debug("discarding reply with no pending call")
		return
	}
	if res.err != nil {
		c.remote.Add(1)
	} else {
		c.succeeded.Add(1)
	}
}

// expire evicts every call older than its timeout and fails it.
func (c *Client) expire(now time.Time) int {
	var expired []*pendingCall
	c.mu.Lock()
	for id, call := range c.pending {
		if now.Sub(call.createdAt) > call.timeout {
			delete(c.pending, id)
			expired = append(expired, call)
		}
	}
	c.mu.Unlock()
	pendingCalls.Sub(float64(len(expired)))
	for _, call := range expired {
		c.timeouts.Add(1)
		c.log.WithFields(logrus.Fields{"topic": call.topic, "correlation_id": call.id}).Warn("call timed out")
		call.done <- callResult{err: &TimeoutError{Topic: call.topic, CorrelationID: call.id, After: call.timeout}}
	}
	return len(expired)
}

func (c *Client) track(call *pendingCall) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	c.pending[call.id] = call
	pendingCalls.Inc()
	return nil
}

// take removes a pending call; only the caller that gets ok=true may
// complete it.
func (c *Client) take(id string) (*pendingCall, bool) {
	c.mu.Lock()
	call, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if ok {
		pendingCalls.Dec()
	}
	return call, ok
}

func (c *Client) settle(id string, res callResult) bool {
	if id == "" {
		return false
	}
	call, ok := c.take(id)
	if !ok {
		return false
	}
	call.done <- res
	return true
}

// Pending returns the number of outstanding calls.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Client) Stats() Stats {
	return Stats{
		Pending:   c.Pending(),
		Calls:     c.calls.Load(),
		Succeeded: c.succeeded.Load(),
		Remote:    c.remote.Load(),
		Timeouts:  c.timeouts.Load(),
		Orphans:   c.orphans.Load(),
	}
}

// Close unsubscribes from the bus, stops the sweeper and fails every
// outstanding call with ErrClientClosed.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		outstanding := c.pending
		c.pending = map[string]*pendingCall{}
		c.mu.Unlock()
		pendingCalls.Sub(float64(len(outstanding)))

		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		c.sweeper.halt()
		for _, call := range outstanding {
			call.done <- callResult{err: ErrClientClosed}
		}
	})
	return nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.Is(err, ErrTimeout):
		return outcomeTimeout
	case errors.Is(err, ErrRemote):
		return outcomeRemote
	case errors.Is(err, ErrClientClosed):
		return outcomeClosed
	default:
		return outcomeTransport
	}
}

// encodePayload turns an arbitrary value into the envelope payload. Raw JSON
// passes through untouched and nil means no payload.
func encodePayload(v any) (json.RawMessage, error) {
	switch p := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	default:
		return json.Marshal(v)
	}
}
