package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lumeracommerce/storefront/internal/auth/discovery"
	"github.com/lumeracommerce/storefront/internal/auth/provider"
	"github.com/lumeracommerce/storefront/internal/auth/session"
	"github.com/lumeracommerce/storefront/internal/auth/state"
	"github.com/lumeracommerce/storefront/internal/observability/logger"
)

var (
	// ErrMissingCode: the provider redirected back without a code and
	// without an error parameter. Nothing to exchange.
	ErrMissingCode = errors.New("auth: callback missing authorization code")

	// ErrSessionExpired: the server-side login attempt state is gone —
	// expired, already consumed, or the cookie never made it back.
	ErrSessionExpired = errors.New("auth: login attempt expired")

	// ErrInvalidState: the state parameter failed CSRF validation.
	ErrInvalidState = errors.New("auth: state validation failed")

	// ErrUnsafeRedirect: the state carried a returnTo outside this site.
	ErrUnsafeRedirect = errors.New("auth: unsafe redirect target")

	// ErrExchangeFailed: the code could not be exchanged for tokens.
	// Codes are single-use, so this is never retried.
	ErrExchangeFailed = errors.New("auth: token exchange failed")
)

// CompleteRequest is the provider's callback plus the attempt state loaded
// from the browser. Saved is nil when no oauth_state cookie came back.
type CompleteRequest struct {
	Code  string
	State string
	Saved *session.OAuthState
}

// CompleteResult is a validated, exchanged login.
type CompleteResult struct {
	Pair     session.TokenPair
	ReturnTo string
}

// CallbackService drives the callback to a terminal state. Any returned
// error is terminal for the attempt; the caller clears the attempt state on
// every path, success included.
type CallbackService interface {
	Complete(ctx context.Context, req CompleteRequest) (CompleteResult, error)
}

type callbackService struct {
	endpoints *discovery.Resolver
	provider  *provider.Client
	now       func() time.Time
}

// NewCallbackService builds the production CallbackService.
func NewCallbackService(endpoints *discovery.Resolver, providerClient *provider.Client) CallbackService {
	return &callbackService{endpoints: endpoints, provider: providerClient, now: time.Now}
}

func (s *callbackService) Complete(ctx context.Context, req CompleteRequest) (CompleteResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("CallbackService.Complete"))

	if req.Code == "" {
		return CompleteResult{}, ErrMissingCode
	}
	if req.Saved == nil || req.Saved.CSRFNonce == "" {
		return CompleteResult{}, ErrSessionExpired
	}

	decoded, err := state.Decode(req.State)
	if err != nil {
		return CompleteResult{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if decoded.Kind == state.KindLegacy {
		// Flow started by an older deployment mid-rollout.
		log.Warn("legacy bare-token state received")
	}

	if err := state.Validate(decoded, req.Saved.CSRFNonce); err != nil {
		if errors.Is(err, state.ErrUnsafeRedirect) {
			log.Error("unsafe returnTo in state", logger.ReturnTo(decoded.ReturnTo))
			return CompleteResult{}, fmt.Errorf("%w: %v", ErrUnsafeRedirect, err)
		}
		log.Error("csrf nonce mismatch")
		return CompleteResult{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	eps, err := s.endpoints.Resolve(ctx)
	if err != nil {
		log.Error("endpoint discovery failed", logger.Err(err))
		return CompleteResult{}, fmt.Errorf("%w: %v", ErrDiscoveryUnavailable, err)
	}

	tr, err := s.provider.Exchange(ctx, eps.Token, req.Code, req.Saved.CodeVerifier)
	if err != nil {
		log.Error("token exchange failed", logger.Err(err))
		var oe *provider.OAuthError
		if errors.As(err, &oe) {
			return CompleteResult{}, fmt.Errorf("%w: %s", ErrExchangeFailed, oe.Code)
		}
		return CompleteResult{}, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	returnTo := decoded.ReturnTo
	if returnTo == "" {
		returnTo = DefaultReturnTo
	}

	return CompleteResult{
		Pair: session.TokenPair{
			AccessToken:  tr.AccessToken,
			RefreshToken: tr.RefreshToken,
			ExpiresAt:    tr.ExpiryTime(s.now()),
		},
		ReturnTo: returnTo,
	}, nil
}
