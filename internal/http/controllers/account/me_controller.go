// Package account exposes the session to storefront features over JSON.
package account

import (
	"net/http"

	"github.com/lumeracommerce/storefront/internal/auth/session"
	"github.com/lumeracommerce/storefront/internal/customer"
	"github.com/lumeracommerce/storefront/internal/http/httperrors"
)

// MeController reports who the current session belongs to.
type MeController struct {
	sessions *session.Resolver
}

// NewMeController creates a MeController.
func NewMeController(sessions *session.Resolver) *MeController {
	return &MeController{sessions: sessions}
}

type meResponse struct {
	LoggedIn bool               `json:"loggedIn"`
	Customer *customer.Identity `json:"customer,omitempty"`
}

// Me handles GET /api/account/me. Always 200: an anonymous visitor is a
// normal answer, not an error.
func (c *MeController) Me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}

	res := c.sessions.Resolve(w, r)
	httperrors.WriteJSON(w, http.StatusOK, meResponse{
		LoggedIn: res.LoggedIn,
		Customer: res.Customer,
	})
}
