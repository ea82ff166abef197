package session

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/lumeracommerce/storefront/internal/auth/discovery"
	"github.com/lumeracommerce/storefront/internal/customer"
	"github.com/lumeracommerce/storefront/internal/observability/logger"
)

// Result is the only session view downstream features ever see.
// Tokens never leave this package.
type Result struct {
	LoggedIn bool
	Customer *customer.Identity
}

// Anonymous is the zero Result, named for readability at call sites.
var Anonymous = Result{}

// Resolver is the per-request entry point for every authenticated feature.
type Resolver struct {
	manager   *Manager
	endpoints *discovery.Resolver
	customers *customer.Client
}

// NewResolver wires the Resolver.
func NewResolver(manager *Manager, endpoints *discovery.Resolver, customers *customer.Client) *Resolver {
	return &Resolver{manager: manager, endpoints: endpoints, customers: customers}
}

// Resolve returns the request's session state, refreshing tokens when
// needed. Within one request (under the Scoped middleware) repeated calls
// share the first resolution instead of repeating network calls.
func (r *Resolver) Resolve(w http.ResponseWriter, req *http.Request) Result {
	if sc := scopeFrom(req.Context()); sc != nil {
		sc.mu.Lock()
		defer sc.mu.Unlock()
		if !sc.done {
			sc.result = r.resolve(w, req)
			sc.done = true
		}
		return sc.result
	}
	return r.resolve(w, req)
}

func (r *Resolver) resolve(w http.ResponseWriter, req *http.Request) Result {
	ctx := req.Context()
	log := logger.From(ctx).With(logger.Layer("session"), logger.Op("Resolve"))

	pair, ok := r.manager.Store().Read(req)
	if !ok {
		return Anonymous
	}

	pair, err := r.manager.EnsureFresh(ctx, w, pair)
	if err != nil {
		// EnsureFresh already cleared the cookies.
		return Anonymous
	}

	eps, err := r.endpoints.Resolve(ctx)
	if err != nil {
		log.Warn("endpoint discovery failed during resolve", logger.Err(err))
		return Anonymous
	}

	identity, err := r.customers.Fetch(ctx, eps.Userinfo, pair.AccessToken)
	if err != nil {
		if errors.Is(err, customer.ErrUnauthorized) {
			log.Info("provider rejected access token, clearing session")
			r.manager.Store().Clear(w)
		} else {
			log.Warn("identity fetch failed", logger.Err(err))
		}
		return Anonymous
	}

	return Result{LoggedIn: true, Customer: identity}
}

// scope memoizes one resolution per request.
type scope struct {
	mu     sync.Mutex
	done   bool
	result Result
}

type scopeKey struct{}

func scopeFrom(ctx context.Context) *scope {
	sc, _ := ctx.Value(scopeKey{}).(*scope)
	return sc
}

// Scoped injects the per-request memoization scope. Mount it once, above
// every handler that may call Resolve.
func Scoped() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := context.WithValue(req.Context(), scopeKey{}, &scope{})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}
