// Package auth holds the login flow services: building the authorization
// redirect, completing the provider callback, and tearing the session down.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/lumeracommerce/storefront/internal/auth/discovery"
	"github.com/lumeracommerce/storefront/internal/auth/pkce"
	"github.com/lumeracommerce/storefront/internal/auth/session"
	"github.com/lumeracommerce/storefront/internal/auth/state"
	"github.com/lumeracommerce/storefront/internal/observability/logger"
)

// DefaultReturnTo is where the customer lands when no returnTo was asked for
// or the one asked for is unsafe.
const DefaultReturnTo = "/"

// ErrDiscoveryUnavailable means no endpoint tier produced a usable set of
// provider endpoints. A login cannot even start.
var ErrDiscoveryUnavailable = fmt.Errorf("auth: provider endpoints unavailable")

// BeginResult carries everything the controller needs to issue the redirect.
type BeginResult struct {
	AuthorizeURL string
	// State must be persisted before the redirect is sent; a callback
	// without it cannot be validated.
	State session.OAuthState
}

// LoginService starts a login attempt.
type LoginService interface {
	Begin(ctx context.Context, returnTo string) (BeginResult, error)
}

// LoginConfig is the client registration the authorization request carries.
type LoginConfig struct {
	ClientID    string
	RedirectURI string
	Scopes      []string
}

type loginService struct {
	cfg       LoginConfig
	endpoints *discovery.Resolver
}

// NewLoginService builds the production LoginService.
func NewLoginService(cfg LoginConfig, endpoints *discovery.Resolver) LoginService {
	return &loginService{cfg: cfg, endpoints: endpoints}
}

func (s *loginService) Begin(ctx context.Context, returnTo string) (BeginResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("LoginService.Begin"))

	returnTo = state.SanitizeReturnTo(returnTo, DefaultReturnTo)

	eps, err := s.endpoints.Resolve(ctx)
	if err != nil {
		log.Error("endpoint discovery failed", logger.Err(err))
		return BeginResult{}, fmt.Errorf("%w: %v", ErrDiscoveryUnavailable, err)
	}

	verifier, err := pkce.GenerateVerifier()
	if err != nil {
		return BeginResult{}, err
	}
	nonce, err := newNonce()
	if err != nil {
		return BeginResult{}, err
	}

	encoded, err := state.Encode(nonce, returnTo)
	if err != nil {
		return BeginResult{}, err
	}

	u, err := url.Parse(eps.Authorize)
	if err != nil {
		return BeginResult{}, fmt.Errorf("%w: bad authorize endpoint: %v", ErrDiscoveryUnavailable, err)
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", s.cfg.ClientID)
	q.Set("redirect_uri", s.cfg.RedirectURI)
	q.Set("scope", strings.Join(s.cfg.Scopes, " "))
	q.Set("code_challenge", pkce.DeriveChallenge(verifier))
	q.Set("code_challenge_method", pkce.ChallengeMethod)
	q.Set("state", encoded)
	u.RawQuery = q.Encode()

	log.Debug("authorization request built", logger.ReturnTo(returnTo))

	return BeginResult{
		AuthorizeURL: u.String(),
		State:        session.OAuthState{CodeVerifier: verifier, CSRFNonce: nonce},
	}, nil
}

// newNonce returns a single-use CSRF nonce for the state parameter.
func newNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("auth: csrf nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
