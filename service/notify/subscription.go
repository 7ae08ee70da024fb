package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	qmem "github.com/rotorstar/hitl-protocol/service/messaging/memory"
)

// Subscription is a live listener handle. The first event yielded is always
// the snapshot enqueued at subscribe time.
type Subscription struct {
	id        string
	caseID    string
	hub       *Hub
	heartbeat time.Duration
	mailbox   *qmem.Queue[Event]
	closeOnce sync.Once
}

// ID returns the globally unique subscription identifier, e.g. for resumption
// bookkeeping or diagnostics.
func (s *Subscription) ID() string { return s.id }

// CaseID returns the case this subscription is attached to.
func (s *Subscription) CaseID() string { return s.caseID }

// Next blocks until an event is published, the heartbeat interval elapses, or
// ctx is cancelled. Heartbeat markers are reported as events with Heartbeat
// set so transports can keep the connection alive.
func (s *Subscription) Next(ctx context.Context) (*Event, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.heartbeat)
	defer cancel()
	event, err := s.mailbox.Consume(waitCtx)
	if err == nil {
		return event, nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return &Event{CaseID: s.caseID, Heartbeat: true}, nil
	}
	return nil, ctx.Err()
}

// Close deregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() { s.hub.unsubscribe(s) })
}
