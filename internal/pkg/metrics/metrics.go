// Package metrics provides Prometheus metrics definitions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric exported by the service.
const Namespace = "uptimegarden"

var (
	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route", "status_code"},
	)

	// DBPoolConnections tracks database connection pool state.
	DBPoolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "db",
			Name:      "pool_connections",
			Help:      "Number of database connections by state",
		},
		[]string{"state"},
	)

	// DBPoolAcquireWaits is the cumulative number of acquires that had to
	// wait for a free connection.
	DBPoolAcquireWaits = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "db",
			Name:      "pool_empty_acquires",
			Help:      "Cumulative count of connection acquires that waited because the pool was empty",
		},
	)

	// DBPoolAcquireWaitSeconds is the cumulative time spent acquiring connections.
	DBPoolAcquireWaitSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "db",
			Name:      "pool_acquire_seconds",
			Help:      "Cumulative time spent acquiring connections from the pool",
		},
	)

	// StatusTransitions counts applied service status changes.
	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "derivation",
			Name:      "status_transitions_total",
			Help:      "Total service status transitions written to the status log",
		},
		[]string{"from", "to"},
	)

	// StatusConflicts counts compare-and-set retries caused by concurrent writers.
	StatusConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "derivation",
			Name:      "status_conflicts_total",
			Help:      "Status transitions retried because the live status changed concurrently",
		},
	)

	// RecomputeFailures counts per-service failures during bulk recalculation.
	RecomputeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "derivation",
			Name:      "recompute_failures_total",
			Help:      "Total services whose status recomputation failed",
		},
	)

	// UptimeCalculationDuration tracks the time spent replaying the status log.
	UptimeCalculationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "uptime",
			Name:      "calculation_duration_seconds",
			Help:      "Time to calculate uptime for one service and window",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)
)

// RecordStatusTransition increments the transition counter.
func RecordStatusTransition(from, to string) {
	StatusTransitions.WithLabelValues(from, to).Inc()
}
