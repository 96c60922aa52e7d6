// Copyright (c) 2026 lpsprint
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	poolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sprint_pool_connections",
		Help: "Number of pooled RPC connections by status",
	}, []string{"status"})

	poolAcquiresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sprint_pool_acquires_total",
		Help: "Total number of pool acquire calls by outcome",
	}, []string{"outcome"})

	poolReleasesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sprint_pool_releases_total",
		Help: "Total number of connections returned to the pool",
	})

	poolProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sprint_pool_health_probes_total",
		Help: "Total number of health probes by result",
	}, []string{"result"})

	poolRecoveriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sprint_pool_recoveries_total",
		Help: "Total number of connections that recovered from the reconnecting state",
	})

	poolSweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sprint_pool_sweep_duration_seconds",
		Help:    "Duration of a full health sweep across the pool",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})
)

var poolStatuses = []string{"healthy", "in_use", "reconnecting", "failed"}

// SetPoolConnections publishes the per-status connection counts as gauges.
// Statuses absent from counts are reset to zero so stale values never linger.
func SetPoolConnections(counts map[string]int) {
	for _, s := range poolStatuses {
		poolConnections.WithLabelValues(s).Set(float64(counts[s]))
	}
}

// IncPoolAcquire records an acquire call outcome (healthy, reuse, dial, exhausted).
func IncPoolAcquire(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	poolAcquiresTotal.WithLabelValues(outcome).Inc()
}

// IncPoolRelease records a connection being handed back to the pool.
func IncPoolRelease() {
	poolReleasesTotal.Inc()
}

// IncHealthProbe records a single probe result (ok or failed).
func IncHealthProbe(result string) {
	poolProbesTotal.WithLabelValues(result).Inc()
}

// IncPoolRecovery records a connection transitioning back to healthy.
func IncPoolRecovery() {
	poolRecoveriesTotal.Inc()
}

// ObserveSweepDuration records the wall time of one health sweep.
func ObserveSweepDuration(duration time.Duration) {
	poolSweepDuration.Observe(duration.Seconds())
}
