package api

import (
	"errors"
	"sync"
	"time"

	"github.com/Armour007/fast-tasks/internal/ipc"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrCircuitOpen is returned without touching the bus while a topic's
// breaker is open.
var ErrCircuitOpen = errors.New("backend unavailable: circuit open")

var breakerOpen = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{Namespace: "fasttasks", Name: "circuit_breaker_open", Help: "Circuit breaker state per topic: 1=open, 0=closed"},
	[]string{"topic"},
)

func init() {
	prometheus.MustRegister(breakerOpen)
}

// CircuitBreaker opens after threshold consecutive transport or timeout
// failures and rejects calls until openFor has passed. Remote errors mean
// the service is up and do not count.
type CircuitBreaker struct {
	name       string
	mu         sync.Mutex
	failures   int
	openedTill time.Time
	threshold  int
	openFor    time.Duration
	open       bool
	now        func() time.Time
}

func NewCircuitBreaker(name string, threshold int, openFor time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	breakerOpen.WithLabelValues(name).Set(0)
	return &CircuitBreaker{name: name, threshold: threshold, openFor: openFor, now: time.Now}
}

func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.now().Before(b.openedTill) {
		b.setOpen(true)
		return false
	}
	b.setOpen(false)
	return true
}

// Report records the outcome of a call that Allow let through.
func (b *CircuitBreaker) Report(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !errors.Is(err, ipc.ErrTransport) && !errors.Is(err, ipc.ErrTimeout) {
		b.failures = 0
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.openedTill = b.now().Add(b.openFor)
		b.failures = 0
		b.setOpen(true)
	}
}

func (b *CircuitBreaker) setOpen(open bool) {
	if b.open == open {
		return
	}
	b.open = open
	v := 0.0
	if open {
		v = 1
	}
	breakerOpen.WithLabelValues(b.name).Set(v)
}

// breakers hands out one breaker per topic.
type breakers struct {
	mu        sync.Mutex
	byTopic   map[string]*CircuitBreaker
	threshold int
	openFor   time.Duration
}

func (bs *breakers) get(topic string) *CircuitBreaker {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if b, ok := bs.byTopic[topic]; ok {
		return b
	}
	b := NewCircuitBreaker(topic, bs.threshold, bs.openFor)
	bs.byTopic[topic] = b
	return b
}

// guard runs fn behind the topic's breaker.
func (bs *breakers) guard(topic string, fn func() error) error {
	b := bs.get(topic)
	if !b.Allow() {
		return ErrCircuitOpen
	}
	err := fn()
	b.Report(err)
	return err
}
