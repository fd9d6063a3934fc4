package metrics

import "time"

// PoolStats is the subset of *pgxpool.Stat read by RecordDBPoolMetrics.
type PoolStats interface {
	AcquiredConns() int32
	IdleConns() int32
	ConstructingConns() int32
	MaxConns() int32
	EmptyAcquireCount() int64
	AcquireDuration() time.Duration
}

// RecordDBPoolMetrics copies a snapshot of the pool statistics into the
// pool gauges.
func RecordDBPoolMetrics(stats PoolStats) {
	DBPoolConnections.WithLabelValues("in_use").Set(float64(stats.AcquiredConns()))
	DBPoolConnections.WithLabelValues("idle").Set(float64(stats.IdleConns()))
	DBPoolConnections.WithLabelValues("constructing").Set(float64(stats.ConstructingConns()))
	DBPoolConnections.WithLabelValues("max").Set(float64(stats.MaxConns()))

	DBPoolAcquireWaits.Set(float64(stats.EmptyAcquireCount()))
	DBPoolAcquireWaitSeconds.Set(stats.AcquireDuration().Seconds())
}
