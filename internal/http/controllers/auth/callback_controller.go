package auth

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/lumeracommerce/storefront/internal/auth/session"
	"github.com/lumeracommerce/storefront/internal/http/httperrors"
	svc "github.com/lumeracommerce/storefront/internal/http/services/auth"
	"github.com/lumeracommerce/storefront/internal/metrics"
	"github.com/lumeracommerce/storefront/internal/observability/logger"
)

// loginPath is where failed callbacks send the browser, with a machine
// error code the login page renders as a generic "please try again".
const loginPath = "/auth/login"

// CallbackController finishes the authorization-code flow.
type CallbackController struct {
	service svc.CallbackService
	store   *session.Store
}

// NewCallbackController creates a CallbackController.
func NewCallbackController(service svc.CallbackService, store *session.Store) *CallbackController {
	return &CallbackController{service: service, store: store}
}

// Callback handles GET /auth/callback?code=&state=&error=&error_description=
// Every terminal path, error or success, clears the attempt state so a
// half-completed flow cannot be replayed.
func (c *CallbackController) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("CallbackController.Callback"))

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	q := r.URL.Query()

	if provErr := strings.TrimSpace(q.Get("error")); provErr != "" {
		log.Warn("provider returned error",
			logger.String("error", provErr),
			logger.String("description", q.Get("error_description")),
		)
		c.store.ClearOAuthState(w)
		c.fail(w, r, provErr)
		metrics.CallbackOutcome("provider_error")
		return
	}

	var saved *session.OAuthState
	if st, ok := c.store.ReadOAuthState(r); ok {
		saved = &st
	}

	result, err := c.service.Complete(ctx, svc.CompleteRequest{
		Code:  strings.TrimSpace(q.Get("code")),
		State: strings.TrimSpace(q.Get("state")),
		Saved: saved,
	})

	c.store.ClearOAuthState(w)

	if err != nil {
		outcome := callbackOutcome(err)
		log.Error("callback failed", logger.Outcome(outcome), logger.Err(err))
		metrics.CallbackOutcome(outcome)
		c.fail(w, r, outcome)
		return
	}

	if err := c.store.Write(w, result.Pair); err != nil {
		log.Error("persisting session failed", logger.Err(err))
		metrics.CallbackOutcome("session_write_failed")
		c.fail(w, r, "session_write_failed")
		return
	}

	metrics.CallbackOutcome("success")
	log.Info("login completed", logger.ReturnTo(result.ReturnTo))
	http.Redirect(w, r, result.ReturnTo, http.StatusFound)
}

func (c *CallbackController) fail(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, loginPath+"?error="+url.QueryEscape(code), http.StatusFound)
}

func callbackOutcome(err error) string {
	switch {
	case errors.Is(err, svc.ErrMissingCode):
		return "missing_code"
	case errors.Is(err, svc.ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, svc.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, svc.ErrUnsafeRedirect):
		return "unsafe_redirect"
	case errors.Is(err, svc.ErrDiscoveryUnavailable):
		return "discovery_unavailable"
	case errors.Is(err, svc.ErrExchangeFailed):
		return "exchange_failed"
	default:
		return "internal_error"
	}
}
