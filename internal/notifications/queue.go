package notifications

import "time"

// ChannelType identifies how a notification is delivered.
type ChannelType string

// Channel types.
const (
	ChannelTypeWebhook   ChannelType = "webhook"
	ChannelTypeWebSocket ChannelType = "websocket"
)

// Channel is a configured delivery destination.
type Channel struct {
	Type ChannelType
	// Target is the channel-specific address, e.g. a webhook URL.
	// WebSocket channels have none.
	Target string
}

// QueueItem represents a notification waiting for delivery.
type QueueItem struct {
	ID          string
	Channel     Channel
	Payload     Payload
	Attempts    int
	MaxAttempts int
	LastError   string
	CreatedAt   time.Time
}
