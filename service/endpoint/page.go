package endpoint

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rotorstar/hitl-protocol/service/review"
)

// pageData is the contract between the server and the review page scripts,
// injected into the template as JSON.
type pageData struct {
	CaseID     string                 `json:"case_id"`
	Prompt     string                 `json:"prompt"`
	Type       review.Type            `json:"type"`
	Status     review.Status          `json:"status"`
	Token      string                 `json:"token"`
	RespondURL string                 `json:"respond_url"`
	ExpiresAt  time.Time              `json:"expires_at"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

// page verifies the capability token, records follow-through and renders the
// per-type review template.
func (h *Handler) page(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")
	token := r.URL.Query().Get("token")

	c, err := h.reviews.Open(r.Context(), caseID, token)
	if err != nil {
		h.writeError(w, err)
		return
	}

	template, err := h.templates.Template(r.Context(), c.Type)
	if err != nil {
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "template_error",
			"message": "review template is not available",
		})
		return
	}

	data, err := json.Marshal(&pageData{
		CaseID:     c.CaseID,
		Prompt:     c.Prompt,
		Type:       c.Type,
		Status:     c.Status,
		Token:      token,
		RespondURL: fmt.Sprintf("%s/reviews/%s/respond", h.config.BaseURL, c.CaseID),
		ExpiresAt:  c.ExpiresAt,
		Context:    c.Context,
	})
	if err != nil {
		h.writeError(w, review.WrapError(review.KindInternal, "render_error", "unable to encode page data", err))
		return
	}

	body := strings.ReplaceAll(string(template), "{{prompt}}", html.EscapeString(c.Prompt))
	body = strings.ReplaceAll(body, "{{hitl_data_json}}", string(data))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
