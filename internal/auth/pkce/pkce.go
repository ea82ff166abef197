// Package pkce implements the Proof Key for Code Exchange pair (RFC 7636).
// Only the S256 challenge method is supported; the plain method is a
// downgrade and is never emitted.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// ChallengeMethod is sent as code_challenge_method on every authorization request.
const ChallengeMethod = "S256"

// verifierBytes yields a 43-character base64url verifier, the RFC minimum.
const verifierBytes = 32

// GenerateVerifier returns a fresh high-entropy code verifier.
// Uses crypto/rand; a failure of the system random source is returned, not masked.
func GenerateVerifier() (string, error) {
	b := make([]byte, verifierBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("pkce: random verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DeriveChallenge returns the S256 challenge for verifier:
// base64url(sha256(verifier)) without padding.
func DeriveChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
