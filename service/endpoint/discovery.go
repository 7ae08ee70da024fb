package endpoint

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rotorstar/hitl-protocol/service/review"
)

type discoveryService struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type discoveryCapabilities struct {
	ReviewTypes       []review.Type `json:"review_types"`
	Transports        []string      `json:"transports"`
	DefaultTimeout    string        `json:"default_timeout"`
	SupportsReminders bool          `json:"supports_reminders"`
	SupportsMulti     bool          `json:"supports_multi_round"`
	SupportsSignature bool          `json:"supports_signatures"`
}

type discoveryEndpoints struct {
	ReviewsBase    string `json:"reviews_base"`
	ReviewPageBase string `json:"review_page_base"`
}

type discoveryRateLimits struct {
	PollIntervalSeconds  int `json:"poll_recommended_interval_seconds"`
	MaxRequestsPerMinute int `json:"max_requests_per_minute"`
}

type discoveryDocument struct {
	SpecVersion  string                `json:"spec_version"`
	Service      discoveryService      `json:"service"`
	Capabilities discoveryCapabilities `json:"capabilities"`
	Endpoints    discoveryEndpoints    `json:"endpoints"`
	RateLimits   discoveryRateLimits   `json:"rate_limits"`
}

// discovery serves the static protocol capability document.
func (h *Handler) discovery(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=86400")
	h.writeJSON(w, http.StatusOK, map[string]discoveryDocument{
		"hitl_protocol": {
			SpecVersion: h.config.SpecVersion,
			Service: discoveryService{
				Name: h.config.ServiceName,
				URL:  h.config.BaseURL,
			},
			Capabilities: discoveryCapabilities{
				ReviewTypes:    review.Types(),
				Transports:     []string{"polling", "sse"},
				DefaultTimeout: isoDuration(h.config.Timeout),
			},
			Endpoints: discoveryEndpoints{
				ReviewsBase:    h.config.BaseURL + "/api/reviews",
				ReviewPageBase: h.config.BaseURL + "/review",
			},
			RateLimits: discoveryRateLimits{
				PollIntervalSeconds:  int(h.config.PollInterval / time.Second),
				MaxRequestsPerMinute: h.config.RateLimit,
			},
		},
	})
}

// isoDuration renders a duration as an ISO-8601 period, hours when whole,
// seconds otherwise.
func isoDuration(d time.Duration) string {
	if d <= 0 {
		return "PT0S"
	}
	if d%time.Hour == 0 {
		return fmt.Sprintf("PT%dH", int(d.Hours()))
	}
	return fmt.Sprintf("PT%dS", int(d/time.Second))
}
