package memory

import (
	"time"

	"github.com/rotorstar/hitl-protocol/service/dao"
	"github.com/rotorstar/hitl-protocol/service/notify"
	"github.com/rotorstar/hitl-protocol/service/ratelimit"
	"github.com/rotorstar/hitl-protocol/service/review"
	"github.com/rotorstar/hitl-protocol/service/schedule"
	"github.com/rotorstar/hitl-protocol/service/token"
)

type Option func(*Service)

// WithCaseDAO replaces the case registry backend.
func WithCaseDAO(d dao.Service[string, review.Case]) Option {
	return func(s *Service) { s.caseDAO = d }
}

// WithTokenAuthority replaces the capability-token authority.
func WithTokenAuthority(a *token.Authority) Option {
	return func(s *Service) { s.tokens = a }
}

// WithLimiter replaces the polling rate limiter.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(s *Service) { s.limiter = l }
}

// WithHub replaces the notification hub.
func WithHub(h *notify.Hub) Option {
	return func(s *Service) { s.hub = h }
}

// WithScheduler replaces the expiration scheduler.
func WithScheduler(sch *schedule.Scheduler) Option {
	return func(s *Service) { s.scheduler = sch }
}

// WithTimeout sets the default review deadline applied at creation.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Service) { s.timeout = timeout }
}

// WithDefaultAction sets the action reported when a case expires unresolved.
func WithDefaultAction(action string) Option {
	return func(s *Service) { s.defaultAction = action }
}

// WithRetention controls how long terminal cases are kept past their
// deadline before eviction. Zero disables the sweeper.
func WithRetention(retention time.Duration) Option {
	return func(s *Service) { s.retention = retention }
}

// WithSweepInterval tunes how often the retention sweeper runs.
func WithSweepInterval(interval time.Duration) Option {
	return func(s *Service) { s.sweepInterval = interval }
}
