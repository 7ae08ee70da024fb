package messaging

import (
	"context"
)

// Queue represents an abstract message queue for any payload type. The
// notification hub uses one queue per live subscriber as its mailbox.
type Queue[T any] interface {
	// Publish adds a new message to the queue, blocking until there is room
	// or the context is cancelled.
	Publish(ctx context.Context, t *T) error

	// TryPublish adds a new message without blocking and reports whether it
	// was accepted. A full mailbox drops the message so one slow consumer
	// cannot stall the publisher.
	TryPublish(t *T) bool

	// Consume retrieves a single message, blocking until one is available or
	// the context is cancelled.
	Consume(ctx context.Context) (*T, error)
}
