package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	monitorActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sprint_monitor_active",
		Help: "Whether a monitoring session is currently running (1) or not (0)",
	}, []string{"monitor"})

	monitorEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sprint_monitor_events_total",
		Help: "Total number of discovery events emitted by monitor",
	}, []string{"monitor"})

	monitorDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sprint_monitor_events_dropped_total",
		Help: "Total number of discovery events dropped because the sink was full",
	}, []string{"monitor"})

	monitorNotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sprint_monitor_notifications_total",
		Help: "Total number of raw upstream notifications received by monitor",
	}, []string{"monitor"})

	monitorParseSkipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sprint_monitor_parse_skips_total",
		Help: "Total number of log batches that yielded no event, by reason",
	}, []string{"reason"})

	monitorStopsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sprint_monitor_stops_total",
		Help: "Total number of monitor stop requests by result",
	}, []string{"monitor", "result"})
)

// SetMonitorActive flips the active gauge for the named monitor.
func SetMonitorActive(monitor string, active bool) {
	value := 0.0
	if active {
		value = 1.0
	}
	monitorActive.WithLabelValues(monitor).Set(value)
}

// IncMonitorEvent records a discovery event delivered to the sink.
func IncMonitorEvent(monitor string) {
	monitorEventsTotal.WithLabelValues(monitor).Inc()
}

// IncMonitorEventDropped records a discovery event discarded due to backpressure.
func IncMonitorEventDropped(monitor string) {
	monitorDroppedTotal.WithLabelValues(monitor).Inc()
}

// IncMonitorNotification records one raw notification received from upstream.
func IncMonitorNotification(monitor string) {
	monitorNotificationsTotal.WithLabelValues(monitor).Inc()
}

// IncMonitorParseSkip records a log batch discarded during extraction.
func IncMonitorParseSkip(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	monitorParseSkipsTotal.WithLabelValues(reason).Inc()
}

// IncMonitorStop records the outcome of a stop request (clean or timeout).
func IncMonitorStop(monitor, result string) {
	monitorStopsTotal.WithLabelValues(monitor, result).Inc()
}
