// Package state packs the CSRF nonce and the optional post-login destination
// into the opaque value round-tripped through the provider's state parameter.
package state

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
)

var (
	ErrMalformed      = errors.New("state: malformed value")
	ErrCSRFMismatch   = errors.New("state: csrf nonce mismatch")
	ErrUnsafeRedirect = errors.New("state: unsafe redirect target")
)

// Kind tags how a raw state value was decoded.
type Kind int

const (
	// KindStructured is the current format: base64url-encoded JSON.
	KindStructured Kind = iota
	// KindLegacy is a bare CSRF token from before the structured format.
	// Kept for flows started by an older deployment mid-rollout.
	KindLegacy
)

// Decoded is the result of decoding a raw state value.
type Decoded struct {
	Kind     Kind
	CSRF     string
	ReturnTo string
}

type payload struct {
	CSRF     string `json:"csrf"`
	ReturnTo string `json:"returnTo,omitempty"`
}

// Encode produces the transport-safe state value.
func Encode(csrfNonce, returnTo string) (string, error) {
	if csrfNonce == "" {
		return "", ErrMalformed
	}
	b, err := json.Marshal(payload{CSRF: csrfNonce, ReturnTo: returnTo})
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Decode parses a raw state value. Structured decode is attempted first; a
// value that is not structured is classified as a legacy bare CSRF token.
// Only an empty value is malformed.
func Decode(raw string) (Decoded, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Decoded{}, ErrMalformed
	}

	b, err := base64.RawURLEncoding.DecodeString(raw)
	if err == nil {
		var p payload
		if json.Unmarshal(b, &p) == nil && p.CSRF != "" {
			return Decoded{Kind: KindStructured, CSRF: p.CSRF, ReturnTo: p.ReturnTo}, nil
		}
	}

	return Decoded{Kind: KindLegacy, CSRF: raw}, nil
}

// Validate checks the decoded state against the server-held CSRF nonce and
// rejects non-relative redirect targets.
func Validate(d Decoded, storedCSRF string) error {
	if storedCSRF == "" || subtle.ConstantTimeCompare([]byte(d.CSRF), []byte(storedCSRF)) != 1 {
		return ErrCSRFMismatch
	}
	if d.ReturnTo != "" && !IsSafeReturnTo(d.ReturnTo) {
		return ErrUnsafeRedirect
	}
	return nil
}

// IsSafeReturnTo reports whether raw is a same-origin relative path.
// Absolute URLs, scheme-relative URLs and backslash tricks are rejected.
func IsSafeReturnTo(raw string) bool {
	if raw == "" || raw[0] != '/' {
		return false
	}
	if strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return false
	}
	if strings.ContainsAny(raw, "\\\r\n") {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" {
		return false
	}
	return true
}

// SanitizeReturnTo returns raw when it is safe, otherwise fallback.
func SanitizeReturnTo(raw, fallback string) string {
	if IsSafeReturnTo(raw) {
		return raw
	}
	return fallback
}
