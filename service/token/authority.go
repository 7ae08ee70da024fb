package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// tokenBytes yields 256 bits of entropy per capability token.
const tokenBytes = 32

// Authority mints capability tokens and checks presented tokens against
// stored digests. It is stateless and safe for concurrent use.
type Authority struct{}

// New returns a token authority.
func New() *Authority { return &Authority{} }

// Issue produces an unguessable URL-safe capability token. The caller embeds
// it in the review URL exactly once; only the digest is ever stored.
func (a *Authority) Issue() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Digest returns the one-way digest stored in place of the token.
func (a *Authority) Digest(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}

// Verify compares the digest of the presented token against the stored
// digest in constant time. Malformed input yields false, never an error.
func (a *Authority) Verify(token string, digest []byte) bool {
	if token == "" || len(digest) != sha256.Size {
		return false
	}
	candidate := a.Digest(token)
	return subtle.ConstantTimeCompare(candidate, digest) == 1
}
