package auth

import (
	"github.com/lumeracommerce/storefront/internal/auth/session"
	svc "github.com/lumeracommerce/storefront/internal/http/services/auth"
)

// Controllers groups the auth controllers for route registration.
type Controllers struct {
	Login    *LoginController
	Callback *CallbackController
	Logout   *LogoutController
}

// NewControllers wires the three auth controllers against one session store.
func NewControllers(login svc.LoginService, callback svc.CallbackService, logout svc.LogoutService, store *session.Store) *Controllers {
	return &Controllers{
		Login:    NewLoginController(login, store),
		Callback: NewCallbackController(callback, store),
		Logout:   NewLogoutController(logout, store),
	}
}
