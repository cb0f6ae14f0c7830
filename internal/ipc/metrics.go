package ipc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSuccess   = "success"
	outcomeRemote    = "remote_error"
	outcomeTimeout   = "timeout"
	outcomeTransport = "transport_error"
	outcomeCancelled = "cancelled"
	outcomeClosed    = "closed"
)

var (
	callsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "fasttasks", Name: "ipc_calls_total", Help: "Correlated calls by topic and outcome"},
		[]string{"topic", "outcome"},
	)
	callDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: "fasttasks", Name: "ipc_call_duration_seconds", Help: "Time from publish to settlement of a correlated call", Buckets: prometheus.DefBuckets},
		[]string{"topic", "outcome"},
	)
	pendingCalls = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "fasttasks", Name: "ipc_pending_calls", Help: "Outstanding correlated calls"},
	)
	unroutableTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "fasttasks", Name: "ipc_unroutable_total", Help: "Envelopes discarded because nothing was waiting for them"},
		[]string{"side"},
	)
	repliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "fasttasks", Name: "ipc_replies_total", Help: "Replies published by the responder"},
		[]string{"topic", "outcome"},
	)
	handlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: "fasttasks", Name: "ipc_handler_duration_seconds", Help: "Responder handler execution time"},
		[]string{"topic"},
	)
)

func init() {
	prometheus.MustRegister(callsTotal, callDuration, pendingCalls, unroutableTotal, repliesTotal, handlerDuration)
}

func observeCall(topic, outcome string, since time.Time) {
	callsTotal.WithLabelValues(topic, outcome).Inc()
	callDuration.WithLabelValues(topic, outcome).Observe(time.Since(since).Seconds())
}
