// Package notifications fans service status changes out to webhooks and
// live WebSocket clients through an asynchronous delivery queue.
package notifications

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/pkg/ctxlog"
	"github.com/google/uuid"
)

// Enqueuer accepts queue items for delivery.
type Enqueuer interface {
	Enqueue(item *QueueItem) error
}

// Notifier turns status changes into queued notifications, one per channel.
// It never blocks the caller on delivery.
type Notifier struct {
	queue    Enqueuer
	channels []Channel
	baseURL  string
	now      func() time.Time
}

// NewNotifier creates a new Notifier. baseURL, when set, is used to link
// each notification to the service's status page.
func NewNotifier(queue Enqueuer, channels []Channel, baseURL string) *Notifier {
	return &Notifier{
		queue:    queue,
		channels: channels,
		baseURL:  strings.TrimRight(baseURL, "/"),
		now:      time.Now,
	}
}

// Publish enqueues change for every configured channel. Queue overflow is
// logged and counted, never returned.
func (n *Notifier) Publish(ctx context.Context, change domain.StatusChange) {
	if len(n.channels) == 0 {
		return
	}

	logger := ctxlog.FromContext(ctx)
	payload := NewPayload(change, n.serviceURL(change.ServiceID), n.now())

	for _, ch := range n.channels {
		item := &QueueItem{
			ID:        uuid.New().String(),
			Channel:   ch,
			Payload:   payload,
			CreatedAt: n.now().UTC(),
		}
		if err := n.queue.Enqueue(item); err != nil {
			logger.Warn("failed to enqueue notification",
				"service_id", change.ServiceID,
				"channel_type", ch.Type,
				"error", err,
			)
		}
	}

	slog.Debug("status change queued for notification",
		"service_id", change.ServiceID,
		"from", change.From,
		"to", change.To,
		"channels", len(n.channels),
	)
}

func (n *Notifier) serviceURL(serviceID string) string {
	if n.baseURL == "" {
		return ""
	}
	return n.baseURL + "/services/" + serviceID
}
