// Package auth wires the login flow services to the browser-facing routes.
package auth

import (
	"net/http"

	"github.com/lumeracommerce/storefront/internal/auth/session"
	"github.com/lumeracommerce/storefront/internal/http/httperrors"
	svc "github.com/lumeracommerce/storefront/internal/http/services/auth"
	"github.com/lumeracommerce/storefront/internal/metrics"
	"github.com/lumeracommerce/storefront/internal/observability/logger"
)

// LoginController starts the authorization-code flow.
type LoginController struct {
	service svc.LoginService
	store   *session.Store
}

// NewLoginController creates a LoginController.
func NewLoginController(service svc.LoginService, store *session.Store) *LoginController {
	return &LoginController{service: service, store: store}
}

// Login handles GET /auth/login?returnTo=
func (c *LoginController) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("LoginController.Login"))

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}

	result, err := c.service.Begin(ctx, r.URL.Query().Get("returnTo"))
	if err != nil {
		log.Error("login begin failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithDetail("login unavailable"))
		return
	}

	// The attempt state must be on cookies before the browser leaves.
	// A failed write means no redirect at all.
	if err := c.store.WriteOAuthState(w, result.State); err != nil {
		log.Error("persisting login attempt state failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
		return
	}

	metrics.LoginStarted()

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, result.AuthorizeURL, http.StatusFound)
}
