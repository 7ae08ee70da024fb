package review

import (
	"context"
	"time"

	"github.com/rotorstar/hitl-protocol/service/notify"
)

// CreateRequest describes a new review case requested by an automated
// process. Prompt and Context are opaque to the engine.
type CreateRequest struct {
	Type          Type                   `json:"type"`
	Prompt        string                 `json:"prompt"`
	Context       map[string]interface{} `json:"context,omitempty"`
	DefaultAction string                 `json:"default_action,omitempty"`
	Timeout       time.Duration          `json:"-"`
}

// Created pairs the freshly stored case with the one-time plaintext
// capability token. The token is never persisted; losing this value means
// minting a new case.
type Created struct {
	Case  *Case
	Token string
}

// Submission is a human response to a case.
type Submission struct {
	Action      string                 `json:"action"`
	Data        map[string]interface{} `json:"data,omitempty"`
	RespondedBy *Responder             `json:"responded_by,omitempty"`
}

// PollResult is a consistent snapshot taken under the case lock. When the
// client's validator matched, NotModified is set and Case is nil.
type PollResult struct {
	Case        *Case
	RevisionTag string
	NotModified bool
	Limit       int
	Remaining   int
}

// Service drives the review-case lifecycle. All operations on the same case
// are mutually excluded; operations on different cases proceed in parallel.
type Service interface {
	// Create allocates a case, mints its capability token and arms
	// auto-expiration.
	Create(ctx context.Context, req *CreateRequest) (*Created, error)

	// Open verifies the token and, when the case is still pending, records
	// human follow-through by moving it to opened.
	Open(ctx context.Context, caseID, token string) (*Case, error)

	// Respond verifies token and state, records the result and responder and
	// completes the case.
	Respond(ctx context.Context, caseID, token string, submission *Submission) (*Case, error)

	// Poll returns a rate-limited snapshot supporting conditional reads via
	// the revision tag.
	Poll(ctx context.Context, caseID, revisionTag string) (*PollResult, error)

	// Subscribe attaches a live listener primed with a snapshot event for the
	// case's present status.
	Subscribe(ctx context.Context, caseID string) (*notify.Subscription, error)

	// Cancel withdraws a case on behalf of the requesting process.
	Cancel(ctx context.Context, caseID string) (*Case, error)
}
