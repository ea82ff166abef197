package auth

import (
	"net/http"

	"github.com/lumeracommerce/storefront/internal/auth/session"
	"github.com/lumeracommerce/storefront/internal/http/httperrors"
	svc "github.com/lumeracommerce/storefront/internal/http/services/auth"
	"github.com/lumeracommerce/storefront/internal/metrics"
	"github.com/lumeracommerce/storefront/internal/observability/logger"
)

// LogoutController tears the session down.
type LogoutController struct {
	service svc.LogoutService
	store   *session.Store
}

// NewLogoutController creates a LogoutController.
func NewLogoutController(service svc.LogoutService, store *session.Store) *LogoutController {
	return &LogoutController{service: service, store: store}
}

// Logout handles GET /auth/logout. The local session is cleared before the
// provider redirect is resolved: a slow or failing provider logout must
// never leave this site authenticated.
func (c *LogoutController) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("LogoutController.Logout"))

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}

	c.store.Clear(w)
	c.store.ClearOAuthState(w)
	metrics.Logout()

	target := c.service.LogoutURL(ctx, r.URL.Query().Get("returnTo"))
	log.Info("session cleared", logger.String("redirect", target))

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, target, http.StatusFound)
}
