package review

import (
	"errors"
	"fmt"
)

// Kind buckets errors into the protocol taxonomy so transports can map them
// onto wire status codes without string matching.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindNotFound
	KindStateConflict
	KindRateLimited
)

// Error is a coded, client-visible failure. Code is a stable machine-readable
// identifier (e.g. "invalid_token"); Message is advisory.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// NewError creates a coded error.
func NewError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// WrapError attaches a cause to a coded error so errors.Is/As keep working
// across the taxonomy boundary.
func WrapError(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, cause: cause}
}

// KindOf classifies an arbitrary error. Unknown errors are internal failures.
func KindOf(err error) Kind {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Kind
	}
	var invalid *InvalidTransitionError
	if errors.As(err, &invalid) {
		return KindStateConflict
	}
	var limited *RateLimitError
	if errors.As(err, &limited) {
		return KindRateLimited
	}
	return KindInternal
}

// InvalidTransitionError identifies a rejected (from, to) transition attempt.
// Background callers treat it as an expected race; request handlers surface it
// as a state conflict.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}

// RateLimitError reports an over-limit poll along with the window arithmetic
// the transport needs for rate-limit headers.
type RateLimitError struct {
	Limit     int
	Remaining int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit of %d exceeded", e.Limit)
}
