package endpoint

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rotorstar/hitl-protocol/service/review"
)

// events streams lifecycle notifications for one case as server-sent events.
// The first frame is always a snapshot of the present status; idle periods
// are bridged with comment-only heartbeats so clients can detect a dead
// connection.
func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")

	subscription, err := h.reviews.Subscribe(r.Context(), caseID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer subscription.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, review.NewError(review.KindInternal, "streaming_unsupported", "response writer cannot stream"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		event, err := subscription.Next(ctx)
		if err != nil {
			// Client went away; the deferred Close prunes the subscriber.
			return
		}
		if event.Heartbeat {
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
			continue
		}
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\nid: %s\n\n", event.Name, payload, event.ID)
		flusher.Flush()
	}
}
