package hitl

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/rotorstar/hitl-protocol/service/ratelimit"
)

// Config is a serialisable representation of the service configuration. It
// can be populated from environment variables, YAML or JSON. The zero-value
// is useful – all nested fields inherit their package defaults.

type Config struct {
	ServiceName    string `json:"serviceName" yaml:"serviceName" env:"HITL_SERVICE_NAME"`
	ServiceVersion string `json:"serviceVersion" yaml:"serviceVersion" env:"HITL_SERVICE_VERSION"`

	Port    int    `json:"port" yaml:"port" env:"HITL_PORT"`
	BaseURL string `json:"baseURL" yaml:"baseURL" env:"HITL_BASE_URL"`

	// ReviewTimeout is the default deadline applied to new cases.
	ReviewTimeout time.Duration `json:"reviewTimeout" yaml:"reviewTimeout" env:"HITL_REVIEW_TIMEOUT"`
	// DefaultAction is reported when a case expires unresolved.
	DefaultAction string `json:"defaultAction" yaml:"defaultAction" env:"HITL_DEFAULT_ACTION"`
	// Retention keeps terminal cases around past their deadline before the
	// sweeper evicts them.
	Retention time.Duration `json:"retention" yaml:"retention" env:"HITL_RETENTION"`

	// PollInterval is the retry hint handed to polling clients.
	PollInterval time.Duration `json:"pollInterval" yaml:"pollInterval" env:"HITL_POLL_INTERVAL"`
	// Heartbeat bridges idle event streams.
	Heartbeat time.Duration `json:"heartbeat" yaml:"heartbeat" env:"HITL_HEARTBEAT"`

	RateLimit ratelimit.Config `json:"rateLimit" yaml:"rateLimit" envPrefix:"HITL_RATE_"`

	// TemplatesURL is the afs base URL the review-page templates are read
	// from.
	TemplatesURL string `json:"templatesURL" yaml:"templatesURL" env:"HITL_TEMPLATES_URL"`

	// TraceOutput directs the stdout trace exporter to a file; empty means
	// os.Stdout, "off" disables tracing setup entirely.
	TraceOutput string `json:"traceOutput" yaml:"traceOutput" env:"HITL_TRACE_OUTPUT"`
}

// DefaultConfig returns a Config populated with the protocol defaults.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "hitl-review-service",
		ServiceVersion: "0.5.0",
		Port:           3458,
		ReviewTimeout:  24 * time.Hour,
		DefaultAction:  "skip",
		Retention:      24 * time.Hour,
		PollInterval:   30 * time.Second,
		Heartbeat:      30 * time.Second,
		RateLimit:      ratelimit.DefaultConfig(),
		TemplatesURL:   "templates",
		TraceOutput:    "off",
	}
}

// ConfigFromEnv overlays environment variables onto the defaults.
func ConfigFromEnv() (*Config, error) {
	ret := DefaultConfig()
	if err := env.Parse(ret); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return ret, nil
}

// LoadConfig overlays a YAML document onto the supplied configuration.
func LoadConfig(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate returns an error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be in (0, 65535]")
	}
	if c.ReviewTimeout <= 0 {
		return fmt.Errorf("reviewTimeout must be > 0")
	}
	if c.RateLimit.Limit <= 0 {
		return fmt.Errorf("rateLimit.limit must be > 0")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rateLimit.window must be > 0")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("pollInterval must be > 0")
	}
	if c.Heartbeat <= 0 {
		return fmt.Errorf("heartbeat must be > 0")
	}
	return nil
}

// ResolveBaseURL computes the externally visible base URL when none was
// configured.
func (c *Config) ResolveBaseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return fmt.Sprintf("http://localhost:%d", c.Port)
}
