package notifications

import (
	"context"
	"fmt"
)

// Notification is a rendered message ready to be sent.
type Notification struct {
	To      string
	Subject string
	Body    string
	Payload Payload
}

// Sender delivers notifications over one channel type.
type Sender interface {
	Type() ChannelType
	Send(ctx context.Context, notification Notification) error
}

// Dispatcher routes notifications to the sender of their channel type.
type Dispatcher struct {
	senders map[ChannelType]Sender
}

// NewDispatcher creates a new notification dispatcher.
func NewDispatcher(senders ...Sender) *Dispatcher {
	senderMap := make(map[ChannelType]Sender)
	for _, s := range senders {
		senderMap[s.Type()] = s
	}
	return &Dispatcher{senders: senderMap}
}

// HasSender reports whether a sender is registered for the channel type.
func (d *Dispatcher) HasSender(channelType ChannelType) bool {
	_, ok := d.senders[channelType]
	return ok
}

// SendToChannel sends a notification using the sender registered for channelType.
func (d *Dispatcher) SendToChannel(ctx context.Context, channelType ChannelType, notification Notification) error {
	sender, ok := d.senders[channelType]
	if !ok {
		return NewNonRetryableError(fmt.Errorf("%w: %s", ErrNoSender, channelType))
	}
	return sender.Send(ctx, notification)
}
