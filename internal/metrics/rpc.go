// Copyright (c) 2026 lpsprint
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rpcRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sprint_rpc_requests_total",
		Help: "Total number of JSON-RPC requests by endpoint, method and outcome",
	}, []string{"endpoint", "method", "outcome"})

	rpcRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sprint_rpc_request_duration_seconds",
		Help:    "JSON-RPC request latency by endpoint and method",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint", "method"})

	rpcErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sprint_rpc_errors_total",
		Help: "Total number of JSON-RPC failures by endpoint and classification",
	}, []string{"endpoint", "kind"})

	retryAttempts = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sprint_rpc_retry_attempts",
		Help:    "Number of attempts consumed per retried operation",
		Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
	}, []string{"operation"})

	retriesExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sprint_rpc_retries_exhausted_total",
		Help: "Total number of operations that failed after exhausting all retry attempts",
	}, []string{"operation"})
)

// RecordRPCRequest records the outcome and latency of a single RPC round trip.
func RecordRPCRequest(endpoint, method, outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	rpcRequestsTotal.WithLabelValues(endpoint, method, outcome).Inc()
	rpcRequestDuration.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// IncRPCError records a failed RPC call with its classification (transient or terminal).
func IncRPCError(endpoint, kind string) {
	if kind == "" {
		kind = "unknown"
	}
	rpcErrorsTotal.WithLabelValues(endpoint, kind).Inc()
}

// ObserveRetryAttempts records how many attempts an operation consumed before settling.
func ObserveRetryAttempts(operation string, attempts int) {
	retryAttempts.WithLabelValues(operation).Observe(float64(attempts))
}

// IncRetriesExhausted records an operation that ran out of retry budget.
func IncRetriesExhausted(operation string) {
	retriesExhaustedTotal.WithLabelValues(operation).Inc()
}
