package memory

import (
	"context"
	"sync/atomic"

	"github.com/rotorstar/hitl-protocol/service/messaging"
)

// Config for memory queue implementation.
type Config struct {
	QueueBuffer int
}

// DefaultConfig returns a standard configuration for memory queue.
func DefaultConfig() Config {
	return Config{QueueBuffer: 64}
}

// Queue implements an in-memory messaging.Queue backed by a buffered channel.
type Queue[T any] struct {
	messages chan *T
	dropped  atomic.Uint64
}

// NewQueue creates a new in-memory queue.
func NewQueue[T any](config Config) *Queue[T] {
	if config.QueueBuffer <= 0 {
		config.QueueBuffer = DefaultConfig().QueueBuffer
	}
	return &Queue[T]{messages: make(chan *T, config.QueueBuffer)}
}

// Publish adds a new item to the queue.
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	select {
	case q.messages <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPublish adds a new item when buffer space is available; otherwise the
// item is counted as dropped and false is returned.
func (q *Queue[T]) TryPublish(t *T) bool {
	select {
	case q.messages <- t:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Consume retrieves a single item from the queue.
func (q *Queue[T]) Consume(ctx context.Context) (*T, error) {
	select {
	case msg := <-q.messages:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Size returns the current number of buffered messages.
func (q *Queue[T]) Size() int {
	return len(q.messages)
}

// Dropped returns how many messages were discarded by TryPublish.
func (q *Queue[T]) Dropped() uint64 {
	return q.dropped.Load()
}

// ensure Queue implements messaging.Queue interface
var _ messaging.Queue[any] = (*Queue[any])(nil)
