// Package session owns the cookie-backed token custody for customer
// sessions. Every cookie read or write in the auth flow goes through Store,
// so flags and scoping are enforced in exactly one place.
package session

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lumeracommerce/storefront/internal/security/secretbox"
)

// Cookie names. The three session cookies outlive the login round-trip; the
// oauth_state cookie exists only between the login redirect and the callback.
const (
	CookieAccessToken  = "session_access_token"
	CookieRefreshToken = "session_refresh_token"
	CookieExpiresAt    = "session_expires_at"
	CookieOAuthState   = "oauth_state"
)

// OAuthStateTTL bounds a pending login attempt.
const OAuthStateTTL = 10 * time.Minute

// expirySkew treats tokens about to expire as already expired, so a token
// never dies mid-request.
const expirySkew = 30 * time.Second

// TokenPair is the session's token custody unit. Owned by Store; never
// exposed to downstream features.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired reports whether the access token needs a refresh.
func (p TokenPair) Expired(now time.Time) bool {
	return !now.Add(expirySkew).Before(p.ExpiresAt)
}

// OAuthState is the server-side half of one login attempt. Single-use:
// the callback consumes it on every terminal path, success or failure.
type OAuthState struct {
	CodeVerifier string `json:"v"`
	CSRFNonce    string `json:"n"`
}

// CookieConfig carries the deployment's cookie attributes.
type CookieConfig struct {
	Domain string
	// SameSite is "lax", "strict" or "none". Defaults to Lax.
	SameSite string
	Secure   bool
	// TTL is the session cookie lifetime (bounds the refresh token's use).
	TTL time.Duration
}

// Store seals tokens into HttpOnly cookies scoped to the site root.
type Store struct {
	sessionBox *secretbox.Box
	stateBox   *secretbox.Box
	cfg        CookieConfig
}

// NewStore derives the cookie sealing keys from master and returns a Store.
func NewStore(master []byte, cfg CookieConfig) (*Store, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * 24 * time.Hour
	}
	sessionBox, err := secretbox.New(master, "session-tokens")
	if err != nil {
		return nil, err
	}
	stateBox, err := secretbox.New(master, "oauth-state")
	if err != nil {
		return nil, err
	}
	return &Store{sessionBox: sessionBox, stateBox: stateBox, cfg: cfg}, nil
}

// Write persists pair into the session cookies.
func (s *Store) Write(w http.ResponseWriter, pair TokenPair) error {
	access, err := s.sessionBox.Seal(pair.AccessToken)
	if err != nil {
		return err
	}
	refresh, err := s.sessionBox.Seal(pair.RefreshToken)
	if err != nil {
		return err
	}
	http.SetCookie(w, s.cookie(CookieAccessToken, access, s.cfg.TTL))
	http.SetCookie(w, s.cookie(CookieRefreshToken, refresh, s.cfg.TTL))
	http.SetCookie(w, s.cookie(CookieExpiresAt, strconv.FormatInt(pair.ExpiresAt.Unix(), 10), s.cfg.TTL))
	return nil
}

// Read returns the stored TokenPair. Pure read: no refresh happens here.
// Unreadable or tampered cookies count as absent.
func (s *Store) Read(r *http.Request) (TokenPair, bool) {
	access, ok := s.openCookie(r, CookieAccessToken, s.sessionBox)
	if !ok || access == "" {
		return TokenPair{}, false
	}
	refresh, _ := s.openCookie(r, CookieRefreshToken, s.sessionBox)

	var expiresAt time.Time
	if c, err := r.Cookie(CookieExpiresAt); err == nil {
		if unix, err := strconv.ParseInt(c.Value, 10, 64); err == nil {
			expiresAt = time.Unix(unix, 0)
		}
	}
	if expiresAt.IsZero() {
		// A missing expiry forces a refresh on the next resolve.
		expiresAt = time.Unix(0, 0)
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: expiresAt}, true
}

// Clear deletes all session cookies. Used by logout and by every terminal
// auth failure.
func (s *Store) Clear(w http.ResponseWriter) {
	http.SetCookie(w, s.deletionCookie(CookieAccessToken))
	http.SetCookie(w, s.deletionCookie(CookieRefreshToken))
	http.SetCookie(w, s.deletionCookie(CookieExpiresAt))
}

// WriteOAuthState persists the pending login attempt.
func (s *Store) WriteOAuthState(w http.ResponseWriter, st OAuthState) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	sealed, err := s.stateBox.Seal(string(b))
	if err != nil {
		return err
	}
	http.SetCookie(w, s.cookie(CookieOAuthState, sealed, OAuthStateTTL))
	return nil
}

// ReadOAuthState loads the pending login attempt, if any.
func (s *Store) ReadOAuthState(r *http.Request) (OAuthState, bool) {
	plain, ok := s.openCookie(r, CookieOAuthState, s.stateBox)
	if !ok {
		return OAuthState{}, false
	}
	var st OAuthState
	if err := json.Unmarshal([]byte(plain), &st); err != nil || st.CSRFNonce == "" {
		return OAuthState{}, false
	}
	return st, true
}

// ClearOAuthState consumes the pending login attempt.
func (s *Store) ClearOAuthState(w http.ResponseWriter) {
	http.SetCookie(w, s.deletionCookie(CookieOAuthState))
}

func (s *Store) openCookie(r *http.Request, name string, box *secretbox.Box) (string, bool) {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	plain, err := box.Open(c.Value)
	if err != nil {
		return "", false
	}
	return plain, true
}

func (s *Store) cookie(name, value string, ttl time.Duration) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.Secure,
		SameSite: parseSameSite(s.cfg.SameSite),
	}
	if strings.TrimSpace(s.cfg.Domain) != "" {
		ck.Domain = s.cfg.Domain
	}
	if ttl > 0 {
		ck.Expires = time.Now().Add(ttl).UTC()
		ck.MaxAge = int(ttl.Seconds())
	}
	return ck
}

func (s *Store) deletionCookie(name string) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.Secure,
		SameSite: parseSameSite(s.cfg.SameSite),
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
	}
	if strings.TrimSpace(s.cfg.Domain) != "" {
		ck.Domain = s.cfg.Domain
	}
	return ck
}

func parseSameSite(v string) http.SameSite {
	switch strings.TrimSpace(strings.ToLower(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
