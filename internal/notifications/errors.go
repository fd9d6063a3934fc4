package notifications

import "errors"

// Notification errors.
var (
	ErrQueueFull     = errors.New("notification queue is full")
	ErrNoSender      = errors.New("no sender for channel type")
	ErrEmptyTarget   = errors.New("channel target is empty")
	ErrUnknownFormat = errors.New("unknown message type")
)
