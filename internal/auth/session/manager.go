package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lumeracommerce/storefront/internal/auth/discovery"
	"github.com/lumeracommerce/storefront/internal/auth/provider"
	"github.com/lumeracommerce/storefront/internal/metrics"
	"github.com/lumeracommerce/storefront/internal/observability/logger"
)

// ErrSessionInvalid means the session cannot be made fresh and the customer
// must authenticate again. The provider's raw refresh error is logged, not
// propagated: a refresh failure always means the same thing to callers.
var ErrSessionInvalid = errors.New("session: invalid, re-authentication required")

// Manager keeps sessions fresh. Concurrent refreshes for the same refresh
// token collapse into one provider call.
type Manager struct {
	store     *Store
	endpoints *discovery.Resolver
	provider  *provider.Client
	sf        singleflight.Group
	now       func() time.Time
}

// NewManager wires the Manager.
func NewManager(store *Store, endpoints *discovery.Resolver, providerClient *provider.Client) *Manager {
	return &Manager{
		store:     store,
		endpoints: endpoints,
		provider:  providerClient,
		now:       time.Now,
	}
}

// Store exposes the underlying cookie store.
func (m *Manager) Store() *Store { return m.store }

// EnsureFresh returns a usable TokenPair, refreshing when the access token
// has expired. On refresh failure the session cookies are cleared and
// ErrSessionInvalid is returned.
func (m *Manager) EnsureFresh(ctx context.Context, w http.ResponseWriter, pair TokenPair) (TokenPair, error) {
	now := m.now()
	if !pair.Expired(now) {
		return pair, nil
	}

	log := logger.From(ctx).With(logger.Component("session"), logger.Op("EnsureFresh"))

	if pair.RefreshToken == "" {
		log.Debug("access token expired and no refresh token held")
		m.store.Clear(w)
		return TokenPair{}, ErrSessionInvalid
	}

	v, err, _ := m.sf.Do(pair.RefreshToken, func() (any, error) {
		return m.refresh(ctx, pair)
	})
	if err != nil {
		log.Info("token refresh failed, session demoted to anonymous", logger.Err(err))
		metrics.RefreshResult("failure")
		m.store.Clear(w)
		return TokenPair{}, ErrSessionInvalid
	}

	fresh := v.(TokenPair)
	metrics.RefreshResult("success")

	// Each caller writes the replacement cookies to its own response; the
	// provider call itself ran once.
	if err := m.store.Write(w, fresh); err != nil {
		m.store.Clear(w)
		return TokenPair{}, ErrSessionInvalid
	}
	return fresh, nil
}

func (m *Manager) refresh(ctx context.Context, pair TokenPair) (TokenPair, error) {
	eps, err := m.endpoints.Resolve(ctx)
	if err != nil {
		return TokenPair{}, err
	}
	tr, err := m.provider.Refresh(ctx, eps.Token, pair.RefreshToken)
	if err != nil {
		return TokenPair{}, err
	}

	fresh := TokenPair{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    tr.ExpiryTime(m.now()),
	}
	// Providers may rotate the refresh token or keep it; hold on to the old
	// one when none comes back.
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = pair.RefreshToken
	}
	return fresh, nil
}
