package idgen

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// New returns a new globally unique identifier as string. It is implemented
// as a thin wrapper so tests can stub it.

var NewFunc = func() string { return uuid.New().String() }

func New() string { return NewFunc() }

// NewCaseIDFunc mints a review-case identifier backed by crypto/rand. The
// "review_" prefix keeps identifiers self-describing in URLs and logs.
// Override in tests for determinism.
var NewCaseIDFunc = func() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return "review_" + hex.EncodeToString(b[:])
}

// NewCaseID is a thin wrapper around NewCaseIDFunc.
func NewCaseID() string { return NewCaseIDFunc() }
