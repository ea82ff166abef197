package middlewares

import (
	"fmt"
	"net/http"

	"github.com/lumeracommerce/storefront/internal/http/httperrors"
	"github.com/lumeracommerce/storefront/internal/observability/logger"
)

// WithRecover turns panics into a 500 response instead of killing the process.
func WithRecover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.From(r.Context()).Error("panic recovered",
						logger.Op("recover"),
						logger.String("panic", fmt.Sprint(rec)),
					)
					httperrors.WriteError(w, httperrors.ErrInternalServerError.WithDetail("panic recovered"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
