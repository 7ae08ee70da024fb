package hitl

import (
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/rotorstar/hitl-protocol/service/meta"
	"github.com/rotorstar/hitl-protocol/service/notify"
	"github.com/rotorstar/hitl-protocol/service/ratelimit"
	"github.com/rotorstar/hitl-protocol/service/review"
	rmemory "github.com/rotorstar/hitl-protocol/service/review/memory"
	"github.com/rotorstar/hitl-protocol/service/schedule"
	"github.com/rotorstar/hitl-protocol/service/token"
	"github.com/rotorstar/hitl-protocol/tracing"
)

// Option customises the Service façade.
type Option func(s *Service)

// WithConfig sets the configuration.
func WithConfig(config *Config) Option {
	return func(s *Service) { s.config = config }
}

// WithReviewService replaces the lifecycle engine with a custom
// implementation.
func WithReviewService(svc review.Service) Option {
	return func(s *Service) { s.reviews = svc }
}

// WithEngine supplies a pre-built in-memory engine.
func WithEngine(engine *rmemory.Service) Option {
	return func(s *Service) { s.engine = engine }
}

// WithTokenAuthority sets the capability-token authority.
func WithTokenAuthority(authority *token.Authority) Option {
	return func(s *Service) { s.tokens = authority }
}

// WithLimiter sets the polling rate limiter.
func WithLimiter(limiter *ratelimit.Limiter) Option {
	return func(s *Service) { s.limiter = limiter }
}

// WithHub sets the notification hub.
func WithHub(hub *notify.Hub) Option {
	return func(s *Service) { s.hub = hub }
}

// WithScheduler sets the expiration scheduler.
func WithScheduler(scheduler *schedule.Scheduler) Option {
	return func(s *Service) { s.scheduler = scheduler }
}

// WithMetaService sets the review-page template service.
func WithMetaService(service *meta.Service) Option {
	return func(s *Service) { s.metaService = service }
}

// WithTracingExporter configures OpenTelemetry tracing using a custom
// SpanExporter, enabling exporters other than the built-in stdout one, for
// example OTLP, Jaeger or Zipkin. Safe to call multiple times – the first
// successful initialisation wins.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		_ = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}
