package notifications

import (
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
)

// MessageType defines the kind of status change being announced.
type MessageType string

// Message types.
const (
	MessageTypeOutage   MessageType = "outage"   // status got worse
	MessageTypeRecovery MessageType = "recovery" // back to operational
	MessageTypeChange   MessageType = "change"   // improved but not recovered
)

// Payload contains data for rendering a notification.
type Payload struct {
	MessageType MessageType         `json:"message_type"`
	Change      domain.StatusChange `json:"change"`
	ServiceURL  string              `json:"service_url,omitempty"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// NewPayload builds the payload announcing change.
func NewPayload(change domain.StatusChange, serviceURL string, now time.Time) Payload {
	return Payload{
		MessageType: messageTypeFor(change),
		Change:      change,
		ServiceURL:  serviceURL,
		GeneratedAt: now.UTC(),
	}
}

func messageTypeFor(change domain.StatusChange) MessageType {
	switch {
	case change.To.IsOperational():
		return MessageTypeRecovery
	case change.To.IsWorseThan(change.From):
		return MessageTypeOutage
	default:
		return MessageTypeChange
	}
}

// ServiceLabel returns the service name, or its ID when the name is unknown.
func (p Payload) ServiceLabel() string {
	if p.Change.ServiceName != "" {
		return p.Change.ServiceName
	}
	return p.Change.ServiceID
}
