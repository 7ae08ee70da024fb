// Package endpoint exposes the review-case lifecycle over HTTP: creation for
// automated processes, the human-facing review page, response submission,
// polling with conditional reads, a server-sent event stream and the protocol
// discovery document.
package endpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rotorstar/hitl-protocol/service/meta"
	"github.com/rotorstar/hitl-protocol/service/review"
	"github.com/rotorstar/hitl-protocol/tracing"
)

// Config carries the values the HTTP surface needs to describe itself.
type Config struct {
	BaseURL      string
	SpecVersion  string
	ServiceName  string
	PollInterval time.Duration
	RateLimit    int
	Timeout      time.Duration
}

// Handler routes the protocol endpoints. All lifecycle decisions are
// delegated to the review service; the handler only translates between HTTP
// and the domain taxonomy.
type Handler struct {
	reviews   review.Service
	templates *meta.Service
	config    Config
	mux       *chi.Mux
}

// New builds the router.
func New(reviews review.Service, templates *meta.Service, config Config) *Handler {
	if config.SpecVersion == "" {
		config.SpecVersion = "0.5"
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 30 * time.Second
	}
	h := &Handler{reviews: reviews, templates: templates, config: config}

	r := chi.NewRouter()
	r.Post("/api/reviews", h.traced("create-case", h.create))
	r.Get("/review/{caseID}", h.traced("open-review", h.page))
	r.Post("/reviews/{caseID}/respond", h.traced("submit-response", h.respond))
	r.Get("/api/reviews/{caseID}/status", h.traced("poll-status", h.status))
	r.Get("/api/reviews/{caseID}/events", h.traced("subscribe-events", h.events))
	r.Get("/.well-known/hitl.json", h.traced("discovery", h.discovery))
	h.mux = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type createRequest struct {
	Type          review.Type            `json:"type"`
	Prompt        string                 `json:"prompt"`
	Context       map[string]interface{} `json:"context,omitempty"`
	DefaultAction string                 `json:"default_action,omitempty"`
	Timeout       string                 `json:"timeout,omitempty"`
}

type caseDescriptor struct {
	SpecVersion   string                 `json:"spec_version"`
	CaseID        string                 `json:"case_id"`
	ReviewURL     string                 `json:"review_url"`
	PollURL       string                 `json:"poll_url"`
	Type          review.Type            `json:"type"`
	Prompt        string                 `json:"prompt"`
	Timeout       string                 `json:"timeout"`
	DefaultAction string                 `json:"default_action"`
	CreatedAt     time.Time              `json:"created_at"`
	ExpiresAt     time.Time              `json:"expires_at"`
	Context       map[string]interface{} `json:"context,omitempty"`
}

type createResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	HITL    caseDescriptor `json:"hitl"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var body createRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, review.NewError(review.KindValidation, "invalid_body", "malformed JSON body"))
		return
	}
	req := &review.CreateRequest{
		Type:          body.Type,
		Prompt:        body.Prompt,
		Context:       body.Context,
		DefaultAction: body.DefaultAction,
	}
	if body.Timeout != "" {
		timeout, err := time.ParseDuration(body.Timeout)
		if err != nil || timeout <= 0 {
			h.writeError(w, review.NewError(review.KindValidation, "invalid_timeout",
				fmt.Sprintf("cannot parse timeout %q", body.Timeout)))
			return
		}
		req.Timeout = timeout
	}

	created, err := h.reviews.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	c := created.Case
	w.Header().Set("Retry-After", h.retryAfter())
	h.writeJSON(w, http.StatusAccepted, &createResponse{
		Status:  "human_input_required",
		Message: c.Prompt,
		HITL: caseDescriptor{
			SpecVersion:   h.config.SpecVersion,
			CaseID:        c.CaseID,
			ReviewURL:     fmt.Sprintf("%s/review/%s?token=%s", h.config.BaseURL, c.CaseID, created.Token),
			PollURL:       fmt.Sprintf("%s/api/reviews/%s/status", h.config.BaseURL, c.CaseID),
			Type:          c.Type,
			Prompt:        c.Prompt,
			Timeout:       timeoutLabel(c.ExpiresAt.Sub(c.CreatedAt)),
			DefaultAction: c.DefaultAction,
			CreatedAt:     c.CreatedAt,
			ExpiresAt:     c.ExpiresAt,
			Context:       c.Context,
		},
	})
}

type respondResponse struct {
	Status      string     `json:"status"`
	CaseID      string     `json:"case_id"`
	CompletedAt *time.Time `json:"completed_at"`
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")
	token := r.URL.Query().Get("token")
	var submission *review.Submission
	if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
		// Case and token are resolved before the body: a malformed payload
		// for an unknown case or a wrong token reports 404/401, not 400.
		if _, err := h.reviews.Respond(r.Context(), caseID, token, nil); review.KindOf(err) != review.KindValidation {
			h.writeError(w, err)
			return
		}
		h.writeError(w, review.NewError(review.KindValidation, "invalid_body", "malformed JSON body"))
		return
	}
	c, err := h.reviews.Respond(r.Context(), caseID, token, submission)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, &respondResponse{
		Status:      string(c.Status),
		CaseID:      c.CaseID,
		CompletedAt: c.CompletedAt,
	})
}

type pollResponse struct {
	Status        review.Status     `json:"status"`
	CaseID        string            `json:"case_id"`
	CreatedAt     time.Time         `json:"created_at"`
	ExpiresAt     time.Time         `json:"expires_at"`
	OpenedAt      *time.Time        `json:"opened_at,omitempty"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	ExpiredAt     *time.Time        `json:"expired_at,omitempty"`
	CancelledAt   *time.Time        `json:"cancelled_at,omitempty"`
	Result        *review.Result    `json:"result,omitempty"`
	RespondedBy   *review.Responder `json:"responded_by,omitempty"`
	DefaultAction string            `json:"default_action,omitempty"`
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")
	res, err := h.reviews.Poll(r.Context(), caseID, r.Header.Get("If-None-Match"))

	var limited *review.RateLimitError
	if errors.As(err, &limited) {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limited.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(limited.Remaining))
		w.Header().Set("Retry-After", h.retryAfter())
		h.writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"error":   "rate_limited",
			"message": fmt.Sprintf("wait %s before polling again", h.config.PollInterval),
		})
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("ETag", res.RevisionTag)
	if res.NotModified {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	c := res.Case
	body := &pollResponse{
		Status:      c.Status,
		CaseID:      c.CaseID,
		CreatedAt:   c.CreatedAt,
		ExpiresAt:   c.ExpiresAt,
		OpenedAt:    c.OpenedAt,
		CompletedAt: c.CompletedAt,
		ExpiredAt:   c.ExpiredAt,
		CancelledAt: c.CancelledAt,
		Result:      c.Result,
		RespondedBy: c.RespondedBy,
	}
	if c.Status == review.StatusExpired {
		body.DefaultAction = c.DefaultAction
	}
	w.Header().Set("Retry-After", h.retryAfter())
	h.writeJSON(w, http.StatusOK, body)
}

// traced wraps a handler in a SERVER span named after the protocol operation.
func (h *Handler) traced(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracing.StartSpan(r.Context(), name, "SERVER")
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(ww, r.WithContext(ctx))
		span.WithAttributes(map[string]string{
			"http.method":      r.Method,
			"http.route":       name,
			"http.status_code": strconv.Itoa(ww.status),
		})
		span.SetStatusFromHTTPCode(ww.status)
		span.OnDone()
	}
}

// statusWriter records the response code for tracing and passes Flush through
// so the event stream keeps working.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (h *Handler) retryAfter() string {
	return strconv.Itoa(int(h.config.PollInterval / time.Second))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the domain taxonomy onto wire status codes. Internal
// failures are reported without leaking detail.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	code, message := "internal_error", "unexpected failure"
	var coded *review.Error
	if errors.As(err, &coded) {
		code, message = coded.Code, coded.Message
	}

	status := http.StatusInternalServerError
	switch review.KindOf(err) {
	case review.KindValidation:
		status = http.StatusBadRequest
	case review.KindAuth:
		status = http.StatusUnauthorized
	case review.KindNotFound:
		status = http.StatusNotFound
	case review.KindStateConflict:
		status = http.StatusConflict
		if code == "case_expired" {
			status = http.StatusGone
		}
	case review.KindRateLimited:
		status = http.StatusTooManyRequests
		w.Header().Set("Retry-After", h.retryAfter())
	case review.KindInternal:
		message = "unexpected failure"
	}
	h.writeJSON(w, status, map[string]string{"error": code, "message": message})
}

// timeoutLabel renders a deadline the way clients expect it in descriptors,
// e.g. "24h".
func timeoutLabel(d time.Duration) string {
	if d > 0 && d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return d.String()
}
