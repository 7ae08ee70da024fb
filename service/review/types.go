package review

import (
	"fmt"
	"strings"
	"time"
)

// Status represents a review-case lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusOpened     Status = "opened"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusExpired    Status = "expired"
	StatusCancelled  Status = "cancelled"
)

// transitions enumerates the permitted successors per state. Terminal states
// have no successors.
var transitions = map[Status][]Status{
	StatusPending:    {StatusOpened, StatusExpired, StatusCancelled},
	StatusOpened:     {StatusInProgress, StatusCompleted, StatusExpired, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusExpired, StatusCancelled},
	StatusCompleted:  {},
	StatusExpired:    {},
	StatusCancelled:  {},
}

// Statuses returns all lifecycle states.
func Statuses() []Status {
	return []Status{StatusPending, StatusOpened, StatusInProgress, StatusCompleted, StatusExpired, StatusCancelled}
}

// Terminal reports whether the state is a mutation sink.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is permitted.
func CanTransition(from, to Status) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Type tags the kind of human decision a case requests.
type Type string

const (
	TypeSelection    Type = "selection"
	TypeApproval     Type = "approval"
	TypeInput        Type = "input"
	TypeConfirmation Type = "confirmation"
	TypeEscalation   Type = "escalation"

	// ExtensionPrefix marks vendor review types outside the built-in set.
	ExtensionPrefix = "x-"
)

// Types returns the built-in review types.
func Types() []Type {
	return []Type{TypeApproval, TypeSelection, TypeInput, TypeConfirmation, TypeEscalation}
}

// Valid reports whether the type is built-in or carries the extension prefix.
func (t Type) Valid() bool {
	switch t {
	case TypeSelection, TypeApproval, TypeInput, TypeConfirmation, TypeEscalation:
		return true
	}
	return strings.HasPrefix(string(t), ExtensionPrefix)
}

// Result is the structured outcome recorded when a case completes.
type Result struct {
	Action string                 `json:"action"`
	Data   map[string]interface{} `json:"data,omitempty"`
}

// Responder identifies the human who resolved a case. It is supplied by the
// caller of the respond operation, never inferred.
type Responder struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Case is one requested human decision with its own lifecycle. All mutation
// goes through Apply; everything else is fixed at creation.
type Case struct {
	CaseID        string                 `json:"case_id"`
	Type          Type                   `json:"type"`
	Status        Status                 `json:"status"`
	Prompt        string                 `json:"prompt"`
	Context       map[string]interface{} `json:"context,omitempty"`
	TokenDigest   []byte                 `json:"-"`
	CreatedAt     time.Time              `json:"created_at"`
	ExpiresAt     time.Time              `json:"expires_at"`
	OpenedAt      *time.Time             `json:"opened_at,omitempty"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
	ExpiredAt     *time.Time             `json:"expired_at,omitempty"`
	CancelledAt   *time.Time             `json:"cancelled_at,omitempty"`
	DefaultAction string                 `json:"default_action"`
	Version       int                    `json:"version"`
	RevisionTag   string                 `json:"-"`
	Result        *Result                `json:"result,omitempty"`
	RespondedBy   *Responder             `json:"responded_by,omitempty"`
}

// NewRevisionTag derives the conditional-read validator from (version, status).
// The function is pure; two records with different inputs never share a tag.
func NewRevisionTag(version int, status Status) string {
	return fmt.Sprintf("%q", fmt.Sprintf("v%d-%s", version, status))
}

// Apply performs a single lifecycle transition at the given instant: status,
// the matching timestamp, version and revision tag move together. On a
// disallowed transition the case is left untouched and an
// *InvalidTransitionError is returned.
func (c *Case) Apply(target Status, at time.Time) error {
	if !CanTransition(c.Status, target) {
		return &InvalidTransitionError{From: c.Status, To: target}
	}
	c.Status = target
	switch target {
	case StatusOpened:
		c.OpenedAt = &at
	case StatusCompleted:
		c.CompletedAt = &at
	case StatusExpired:
		c.ExpiredAt = &at
	case StatusCancelled:
		c.CancelledAt = &at
	}
	c.Version++
	c.RevisionTag = NewRevisionTag(c.Version, target)
	return nil
}

// Clone returns a shallow copy safe to hand outside the engine's lock.
// Nested payloads (Context, Result.Data) are immutable once set, so sharing
// them is fine.
func (c *Case) Clone() *Case {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
