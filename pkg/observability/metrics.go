// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the sluice gateway.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// TTFTBuckets defines buckets for time-to-first-token, which is typically
// much shorter than full-response latency.
var TTFTBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}

var (
	// RequestsTotal counts all HTTP requests by method, status class, and model.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sluice_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "model"},
	)

	// RequestDuration records HTTP request duration in seconds by method and model.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sluice_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method", "model"},
	)

	// StreamingConnections tracks the number of active SSE streaming connections.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sluice_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// BackendRequestsTotal counts requests sent to upstream LLM backends.
	BackendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sluice_backend_requests_total",
			Help: "Backend requests",
		},
		[]string{"backend", "model", "status"},
	)

	// BackendLatency records upstream backend latency in seconds.
	BackendLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sluice_backend_latency_seconds",
			Help:    "Backend latency",
			Buckets: LLMBuckets,
		},
		[]string{"backend", "model"},
	)

	// BackendTokensTotal counts tokens processed by direction (input/output).
	BackendTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sluice_backend_tokens_total",
			Help: "Token count",
		},
		[]string{"backend", "model", "direction"},
	)

	// StreamErrorsTotal counts stream failures by error kind.
	StreamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sluice_stream_errors_total",
			Help: "Stream errors by kind",
		},
		[]string{"backend", "kind"},
	)

	// RetriesTotal counts backend retry attempts.
	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sluice_retries_total",
			Help: "Backend retries",
		},
		[]string{"backend"},
	)

	// TimeToFirstToken records the delay between accepting a streaming
	// request and writing its first outward chunk.
	TimeToFirstToken = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sluice_time_to_first_token_seconds",
			Help:    "Time to first streamed token",
			Buckets: TTFTBuckets,
		},
		[]string{"backend", "model"},
	)

	// AuthRejectedTotal counts requests rejected by authentication.
	AuthRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sluice_auth_rejected_total",
			Help: "Authentication rejections",
		},
		[]string{"strategy"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		BackendRequestsTotal,
		BackendLatency,
		BackendTokensTotal,
		StreamErrorsTotal,
		RetriesTotal,
		TimeToFirstToken,
		AuthRejectedTotal,
	)
}
