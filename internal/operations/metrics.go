package operations

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransitionsTotal counts status changes.
	// Labels: status (pending, in_progress, completed, error, recovered)
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "prismata",
			Subsystem: "operations",
			Name:      "transitions_total",
			Help:      "Total operation status transitions by target status",
		},
		[]string{"status"},
	)

	// RecoveriesTotal counts explicit recovery attempts.
	// Labels: kind (strategy, retry), result (success, error)
	RecoveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "prismata",
			Subsystem: "operations",
			Name:      "recoveries_total",
			Help:      "Total recovery and retry attempts",
		},
		[]string{"kind", "result"},
	)

	// PersistDuration tracks how long snapshot writes take.
	PersistDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "prismata",
			Subsystem: "operations",
			Name:      "persist_duration_seconds",
			Help:      "Duration of operation store snapshot writes in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// PersistFailures counts snapshot writes that did not reach disk.
	PersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "prismata",
			Subsystem: "operations",
			Name:      "persist_failures_total",
			Help:      "Total operation store snapshot writes that failed",
		},
	)
)

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
