// Package schedule arms one-shot deferred actions per review case, typically
// the auto-expire attempt at the case deadline. Handles are cancellable so a
// case resolved early does not retain a dangling timer.
package schedule

import (
	"sync"
	"time"

	"github.com/rotorstar/hitl-protocol/internal/clock"
)

// Scheduler keeps at most one armed timer per case id.
type Scheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{timers: make(map[string]*time.Timer)}
}

// Arm schedules fire to run once at deadline, replacing any timer already
// armed for the case. A deadline in the past fires immediately.
func (s *Scheduler) Arm(caseID string, deadline time.Time, fire func()) {
	delay := deadline.Sub(clock.Now())
	if delay < 0 {
		delay = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if previous, ok := s.timers[caseID]; ok {
		previous.Stop()
	}
	s.timers[caseID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, caseID)
		s.mu.Unlock()
		fire()
	})
}

// Cancel stops and discards the case's timer, reporting whether one was
// armed. Cancelling after the timer fired is a no-op.
func (s *Scheduler) Cancel(caseID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	timer, ok := s.timers[caseID]
	if !ok {
		return false
	}
	timer.Stop()
	delete(s.timers, caseID)
	return true
}

// Len returns the number of armed timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
