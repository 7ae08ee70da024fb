package hitl

import (
	"net/http"

	"github.com/viant/afs"

	"github.com/rotorstar/hitl-protocol/service/endpoint"
	"github.com/rotorstar/hitl-protocol/service/meta"
	"github.com/rotorstar/hitl-protocol/service/notify"
	"github.com/rotorstar/hitl-protocol/service/ratelimit"
	"github.com/rotorstar/hitl-protocol/service/review"
	rmemory "github.com/rotorstar/hitl-protocol/service/review/memory"
	"github.com/rotorstar/hitl-protocol/service/schedule"
	"github.com/rotorstar/hitl-protocol/service/token"
	"github.com/rotorstar/hitl-protocol/tracing"
)

// Service is the embeddable façade wiring the lifecycle engine, its
// collaborators and the HTTP surface together.
type Service struct {
	config      *Config
	reviews     review.Service
	engine      *rmemory.Service
	hub         *notify.Hub
	limiter     *ratelimit.Limiter
	scheduler   *schedule.Scheduler
	tokens      *token.Authority
	metaService *meta.Service
	handler     *endpoint.Handler
}

func (s *Service) init(options []Option) {
	for _, option := range options {
		option(s)
	}
	s.ensureBaseSetup()

	if s.engine == nil {
		s.engine = rmemory.New(
			rmemory.WithTokenAuthority(s.tokens),
			rmemory.WithLimiter(s.limiter),
			rmemory.WithHub(s.hub),
			rmemory.WithScheduler(s.scheduler),
			rmemory.WithTimeout(s.config.ReviewTimeout),
			rmemory.WithDefaultAction(s.config.DefaultAction),
			rmemory.WithRetention(s.config.Retention),
		)
	}
	if s.reviews == nil {
		s.reviews = s.engine
	}
	s.handler = endpoint.New(s.reviews, s.metaService, endpoint.Config{
		BaseURL:      s.config.ResolveBaseURL(),
		ServiceName:  s.config.ServiceName,
		PollInterval: s.config.PollInterval,
		RateLimit:    s.config.RateLimit.Limit,
		Timeout:      s.config.ReviewTimeout,
	})
	if s.config.TraceOutput != "off" {
		_ = tracing.Init(s.config.ServiceName, s.config.ServiceVersion, s.config.TraceOutput)
	}
}

func (s *Service) ensureBaseSetup() {
	if s.config == nil {
		s.config = DefaultConfig()
	}
	if s.tokens == nil {
		s.tokens = token.New()
	}
	if s.limiter == nil {
		s.limiter = ratelimit.New(s.config.RateLimit)
	}
	if s.hub == nil {
		s.hub = notify.New(notify.Config{Heartbeat: s.config.Heartbeat})
	}
	if s.scheduler == nil {
		s.scheduler = schedule.New()
	}
	if s.metaService == nil {
		s.metaService = meta.New(afs.New(), s.config.TemplatesURL)
	}
}

// Reviews exposes the lifecycle engine, e.g. for embedding processes that
// create and cancel cases in-process.
func (s *Service) Reviews() review.Service { return s.reviews }

// Hub exposes the notification registry.
func (s *Service) Hub() *notify.Hub { return s.hub }

// Config returns the effective configuration.
func (s *Service) Config() *Config { return s.config }

// Handler returns the protocol HTTP surface, ready for mounting.
func (s *Service) Handler() http.Handler { return s.handler }

// Close releases background resources owned by the engine.
func (s *Service) Close() {
	if s.engine != nil {
		s.engine.Close()
	}
}

// New builds a Service from the supplied options.
func New(options ...Option) *Service {
	ret := &Service{}
	ret.init(options)
	return ret
}
