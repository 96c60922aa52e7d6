package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var storeOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sprint_store_ops_total",
	Help: "Total number of persistence operations by operation and result",
}, []string{"op", "result"})

// RecordStoreOp counts one persistence operation.
func RecordStoreOp(op string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	storeOpsTotal.WithLabelValues(op, result).Inc()
}
