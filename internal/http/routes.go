// Package http assembles the storefront's HTTP surface: routing,
// middlewares, metrics and the server lifecycle.
package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lumeracommerce/storefront/internal/auth/session"
	accountctrl "github.com/lumeracommerce/storefront/internal/http/controllers/account"
	authctrl "github.com/lumeracommerce/storefront/internal/http/controllers/auth"
	"github.com/lumeracommerce/storefront/internal/http/httperrors"
	mw "github.com/lumeracommerce/storefront/internal/http/middlewares"
	"github.com/lumeracommerce/storefront/internal/rate"
)

// RouterDeps carries everything NewRouter mounts.
type RouterDeps struct {
	Auth    *authctrl.Controllers
	Account *accountctrl.MeController

	// MetricsHandler serves /metrics; nil disables the route.
	MetricsHandler http.Handler

	// LoginLimiter throttles login starts per client IP; nil disables it.
	LoginLimiter rate.Limiter

	// ReadyCheck reports whether dependencies are reachable; nil means
	// always ready.
	ReadyCheck func(ctx context.Context) error
}

// NewRouter builds the full handler chain.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.WithRequestID())
	r.Use(mw.WithLogging())
	r.Use(mw.WithRecover())
	r.Use(WithMetrics)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", readyzHandler(deps.ReadyCheck))

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Use(mw.WithNoStore())
		r.With(mw.WithRateLimit(mw.RateLimitConfig{Limiter: deps.LoginLimiter})).
			Get("/login", deps.Auth.Login.Login)
		r.Get("/callback", deps.Auth.Callback.Callback)
		r.Get("/logout", deps.Auth.Logout.Logout)
	})

	r.Route("/api/account", func(r chi.Router) {
		r.Use(mw.WithNoStore())
		r.Use(session.Scoped())
		r.Get("/me", deps.Account.Me)
	})

	return r
}

func readyzHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				httperrors.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unavailable",
					"error":  err.Error(),
				})
				return
			}
		}
		httperrors.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
