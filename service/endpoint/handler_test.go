package endpoint

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"

	"github.com/rotorstar/hitl-protocol/service/meta"
	"github.com/rotorstar/hitl-protocol/service/notify"
	"github.com/rotorstar/hitl-protocol/service/ratelimit"
	rmemory "github.com/rotorstar/hitl-protocol/service/review/memory"
)

const selectionTemplate = `<html><body><h1>{{prompt}}</h1><script>window.hitl = {{hitl_data_json}};</script></body></html>`

func newTestHandler(t *testing.T, engineOptions ...rmemory.Option) (*Handler, *rmemory.Service) {
	t.Helper()
	ctx := context.Background()
	fs := afs.New()
	baseURL := "mem://localhost/templates"
	err := fs.Upload(ctx, baseURL+"/selection.html", 0644, strings.NewReader(selectionTemplate))
	require.NoError(t, err)

	options := append([]rmemory.Option{rmemory.WithRetention(0)}, engineOptions...)
	engine := rmemory.New(options...)
	t.Cleanup(engine.Close)
	handler := New(engine, meta.New(fs, baseURL), Config{
		BaseURL:      "http://localhost:3458",
		ServiceName:  "hitl-review",
		PollInterval: 30 * time.Second,
		RateLimit:    60,
		Timeout:      24 * time.Hour,
	})
	return handler, engine
}

func createCase(t *testing.T, handler *Handler, body string) map[string]interface{} {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/reviews", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	return response
}

func descriptorOf(t *testing.T, response map[string]interface{}) map[string]interface{} {
	t.Helper()
	descriptor, ok := response["hitl"].(map[string]interface{})
	require.True(t, ok, "missing hitl descriptor")
	return descriptor
}

// tokenOf pulls the capability token back out of the review URL.
func tokenOf(t *testing.T, descriptor map[string]interface{}) string {
	t.Helper()
	reviewURL, _ := descriptor["review_url"].(string)
	i := strings.Index(reviewURL, "token=")
	require.NotEqual(t, -1, i, reviewURL)
	return reviewURL[i+len("token="):]
}

func TestCreateCase(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/reviews",
		strings.NewReader(`{"type":"selection","prompt":"Pick jobs","context":{"items":[]},"timeout":"2h"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "human_input_required", response["status"])
	assert.Equal(t, "Pick jobs", response["message"])

	descriptor := descriptorOf(t, response)
	assert.Equal(t, "0.5", descriptor["spec_version"])
	assert.Equal(t, "selection", descriptor["type"])
	assert.Equal(t, "2h", descriptor["timeout"])
	assert.Equal(t, "skip", descriptor["default_action"])
	caseID, _ := descriptor["case_id"].(string)
	assert.True(t, strings.HasPrefix(caseID, "review_"), caseID)
	assert.Equal(t, "http://localhost:3458/api/reviews/"+caseID+"/status", descriptor["poll_url"])
	assert.Contains(t, descriptor["review_url"], "http://localhost:3458/review/"+caseID+"?token=")
}

func TestCreateCaseRejected(t *testing.T) {
	handler, _ := newTestHandler(t)

	type testCase struct {
		name string
		body string
		code string
	}

	tests := []testCase{
		{name: "malformed JSON", body: `{`, code: "invalid_body"},
		{name: "unknown type", body: `{"type":"quiz","prompt":"p"}`, code: "invalid_type"},
		{name: "missing prompt", body: `{"type":"approval"}`, code: "missing_prompt"},
		{name: "bad timeout", body: `{"type":"approval","prompt":"p","timeout":"soon"}`, code: "invalid_timeout"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/reviews", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var response map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
			assert.Equal(t, tc.code, response["error"])
		})
	}
}

func TestReviewPage(t *testing.T) {
	handler, _ := newTestHandler(t)
	descriptor := descriptorOf(t, createCase(t, handler, `{"type":"selection","prompt":"Pick <b>jobs</b>"}`))
	caseID := descriptor["case_id"].(string)
	token := tokenOf(t, descriptor)

	req := httptest.NewRequest(http.MethodGet, "/review/"+caseID+"?token="+token, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "<h1>Pick &lt;b&gt;jobs&lt;/b&gt;</h1>")
	assert.Contains(t, body, `"case_id":"`+caseID+`"`)
	assert.Contains(t, body, `"token":"`+token+`"`)
	assert.Contains(t, body, `"respond_url":"http://localhost:3458/reviews/`+caseID+`/respond"`)
	assert.NotContains(t, body, "{{prompt}}")
	assert.NotContains(t, body, "{{hitl_data_json}}")

	// Opening the page moved the case along.
	status := httptest.NewRequest(http.MethodGet, "/api/reviews/"+caseID+"/status", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, status)
	var poll map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &poll))
	assert.Equal(t, "opened", poll["status"])
}

func TestReviewPageRejectsBadToken(t *testing.T) {
	handler, _ := newTestHandler(t)
	descriptor := descriptorOf(t, createCase(t, handler, `{"type":"selection","prompt":"p"}`))
	caseID := descriptor["case_id"].(string)

	req := httptest.NewRequest(http.MethodGet, "/review/"+caseID+"?token=forged", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestReviewPageTemplateMissing(t *testing.T) {
	handler, _ := newTestHandler(t)
	descriptor := descriptorOf(t, createCase(t, handler, `{"type":"x-signature","prompt":"Sign"}`))
	caseID := descriptor["case_id"].(string)
	token := tokenOf(t, descriptor)

	req := httptest.NewRequest(http.MethodGet, "/review/"+caseID+"?token="+token, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var response map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "template_error", response["error"])
}

func TestRespond(t *testing.T) {
	handler, _ := newTestHandler(t)
	descriptor := descriptorOf(t, createCase(t, handler, `{"type":"selection","prompt":"p"}`))
	caseID := descriptor["case_id"].(string)
	token := tokenOf(t, descriptor)

	submit := func(tok, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/reviews/"+caseID+"/respond?token="+tok, strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	rec := submit("forged", `{"action":"select"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = submit(token, `{"data":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = submit(token, `{"action":"select","data":{"selected":["job_001"]},"responded_by":{"name":"Ada"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "completed", response["status"])
	assert.Equal(t, caseID, response["case_id"])
	assert.NotEmpty(t, response["completed_at"])

	// Duplicate submission conflicts.
	rec = submit(token, `{"action":"select"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	var conflict map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conflict))
	assert.Equal(t, "duplicate_submission", conflict["error"])
}

func TestRespondUnknownCase(t *testing.T) {
	handler, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/reviews/review_missing/respond?token=x",
		strings.NewReader(`{"action":"approve"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusConditionalRead(t *testing.T) {
	handler, _ := newTestHandler(t)
	descriptor := descriptorOf(t, createCase(t, handler, `{"type":"approval","prompt":"Approve?"}`))
	caseID := descriptor["case_id"].(string)

	req := httptest.NewRequest(http.MethodGet, "/api/reviews/"+caseID+"/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	assert.Equal(t, `"v1-pending"`, etag)
	assert.Equal(t, "60", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "59", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	var poll map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &poll))
	assert.Equal(t, "pending", poll["status"])
	assert.Nil(t, poll["default_action"], "default action is only advertised once expired")

	req = httptest.NewRequest(http.MethodGet, "/api/reviews/"+caseID+"/status", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Equal(t, etag, rec.Header().Get("ETag"))
	assert.Empty(t, rec.Body.String())
}

func TestStatusRateLimited(t *testing.T) {
	handler, _ := newTestHandler(t,
		rmemory.WithLimiter(ratelimit.New(ratelimit.Config{Limit: 1, Window: time.Minute})))
	descriptor := descriptorOf(t, createCase(t, handler, `{"type":"approval","prompt":"p"}`))
	caseID := descriptor["case_id"].(string)

	req := httptest.NewRequest(http.MethodGet, "/api/reviews/"+caseID+"/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reviews/"+caseID+"/status", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	var response map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "rate_limited", response["error"])
}

func TestStatusExpiredAdvertisesDefaultAction(t *testing.T) {
	handler, _ := newTestHandler(t)
	body := `{"type":"approval","prompt":"p","timeout":"20ms","default_action":"escalate"}`
	descriptor := descriptorOf(t, createCase(t, handler, body))
	caseID := descriptor["case_id"].(string)

	assert.Eventually(t, func() bool {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reviews/"+caseID+"/status", nil))
		var poll map[string]interface{}
		if err := json.Unmarshal(rec.Body.Bytes(), &poll); err != nil {
			return false
		}
		return poll["status"] == "expired" && poll["default_action"] == "escalate"
	}, time.Second, 10*time.Millisecond)

	// Responding after expiry reports the case as gone.
	token := tokenOf(t, descriptor)
	req := httptest.NewRequest(http.MethodPost, "/reviews/"+caseID+"/respond?token="+token,
		strings.NewReader(`{"action":"approve"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusGone, rec.Code)
	var response map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "case_expired", response["error"])
}

func TestEventStream(t *testing.T) {
	handler, _ := newTestHandler(t,
		rmemory.WithHub(notify.New(notify.Config{Heartbeat: 20 * time.Millisecond})))
	descriptor := descriptorOf(t, createCase(t, handler, `{"type":"approval","prompt":"p"}`))
	caseID := descriptor["case_id"].(string)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/reviews/"+caseID+"/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: review.pending\n")
	assert.Contains(t, body, "id: evt_1\n")
	assert.Contains(t, body, `"case_id":"`+caseID+`"`)
	assert.Contains(t, body, `"status":"pending"`)
	assert.Contains(t, body, ": heartbeat\n\n")
}

func TestEventStreamUnknownCase(t *testing.T) {
	handler, _ := newTestHandler(t)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reviews/review_missing/events", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDiscovery(t *testing.T) {
	handler, _ := newTestHandler(t)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/hitl.json", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=86400", rec.Header().Get("Cache-Control"))

	var response map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	document, ok := response["hitl_protocol"]
	require.True(t, ok)
	assert.Equal(t, "0.5", document["spec_version"])

	capabilities := document["capabilities"].(map[string]interface{})
	assert.Equal(t, "PT24H", capabilities["default_timeout"])
	assert.ElementsMatch(t, []interface{}{"polling", "sse"}, capabilities["transports"])
	assert.Contains(t, capabilities["review_types"], "approval")

	limits := document["rate_limits"].(map[string]interface{})
	assert.EqualValues(t, 30, limits["poll_recommended_interval_seconds"])
	assert.EqualValues(t, 60, limits["max_requests_per_minute"])

	endpoints := document["endpoints"].(map[string]interface{})
	assert.Equal(t, "http://localhost:3458/api/reviews", endpoints["reviews_base"])
}

func TestTimeoutLabel(t *testing.T) {
	assert.Equal(t, "24h", timeoutLabel(24*time.Hour))
	assert.Equal(t, "2h", timeoutLabel(2*time.Hour))
	assert.Equal(t, "90m0s", timeoutLabel(90*time.Minute))
}

func TestIsoDuration(t *testing.T) {
	assert.Equal(t, "PT24H", isoDuration(24*time.Hour))
	assert.Equal(t, "PT90S", isoDuration(90*time.Second))
	assert.Equal(t, "PT0S", isoDuration(0))
}

// TestRespondMalformedBodyPrecedence: case and token resolution outrank body
// parsing, so a broken payload only reports 400 once both check out.
func TestRespondMalformedBodyPrecedence(t *testing.T) {
	handler, _ := newTestHandler(t)
	descriptor := descriptorOf(t, createCase(t, handler, `{"type":"selection","prompt":"p"}`))
	caseID := descriptor["case_id"].(string)
	token := tokenOf(t, descriptor)

	post := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{`))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	rec := post("/reviews/review_missing/respond?token=" + token)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = post("/reviews/" + caseID + "/respond?token=forged")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post("/reviews/" + caseID + "/respond?token=" + token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var response map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "invalid_body", response["error"])

	// A resolved case outranks the body too.
	respond := httptest.NewRequest(http.MethodPost, "/reviews/"+caseID+"/respond?token="+token,
		strings.NewReader(`{"action":"select"}`))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, respond)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = post("/reviews/" + caseID + "/respond?token=" + token)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
