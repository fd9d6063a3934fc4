package notifications

import (
	"time"

	"github.com/bissquit/uptime-garden/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "notifications",
			Name:      "queue_depth",
			Help:      "Number of notifications waiting in the queue",
		},
	)

	notificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "notifications",
			Name:      "sent_total",
			Help:      "Total notifications processed",
		},
		[]string{"channel_type", "status"},
	)

	notificationSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "notifications",
			Name:      "send_duration_seconds",
			Help:      "Time to send notification",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"channel_type"},
	)

	notificationsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "notifications",
			Name:      "dropped_total",
			Help:      "Notifications dropped because the queue was full",
		},
	)
)

func recordNotificationSent(channelType ChannelType, status string) {
	notificationsSent.WithLabelValues(string(channelType), status).Inc()
}

func recordNotificationDuration(channelType ChannelType, duration time.Duration) {
	notificationSendDuration.WithLabelValues(string(channelType)).Observe(duration.Seconds())
}
