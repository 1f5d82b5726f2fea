package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DispatchTotal tracks send attempts by outcome (success, failure)
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaychat_dispatch_total",
			Help: "Total number of message dispatch attempts",
		},
		[]string{"outcome"},
	)

	// DispatchErrorsTotal tracks classified dispatch failures
	DispatchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaychat_dispatch_errors_total",
			Help: "Total number of failed dispatches by error type",
		},
		[]string{"error_type", "retryable"},
	)

	// DispatchLatency tracks relay round-trip latency
	DispatchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relaychat_dispatch_latency_seconds",
			Help:    "Relay request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	// RetriesTotal tracks retries scheduled by the widget
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaychat_retries_total",
			Help: "Total number of dispatch retries",
		},
		[]string{"error_type"},
	)

	// StreamChunksTotal tracks chunks received over streaming channels
	StreamChunksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relaychat_stream_chunks_total",
			Help: "Total number of streamed chunks received",
		},
	)

	// StreamReconnectsTotal tracks scheduled stream reconnects
	StreamReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relaychat_stream_reconnects_total",
			Help: "Total number of stream reconnect attempts",
		},
	)

	// StreamTransitionsTotal tracks channel state transitions
	StreamTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaychat_stream_transitions_total",
			Help: "Total number of streaming channel state transitions",
		},
		[]string{"from", "to"},
	)
)
