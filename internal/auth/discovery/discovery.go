// Package discovery resolves the identity provider's endpoints.
//
// Three tiers, first success wins: explicit configuration, the provider's
// well-known OpenID discovery document, constructed conventional URLs.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/lumeracommerce/storefront/internal/observability/logger"
)

// ErrUnavailable means no tier could produce endpoints. This is a
// configuration problem and is fatal for login attempts until fixed.
var ErrUnavailable = errors.New("discovery: provider endpoints unavailable")

const (
	defaultTTL     = time.Hour
	defaultTimeout = 10 * time.Second
	cacheKey       = "provider-endpoints"
)

// Endpoints are the provider URLs the auth flow needs.
type Endpoints struct {
	Authorize string
	Token     string
	Logout    string
	Userinfo  string
}

// Config feeds the resolver. Override* take precedence when all three of
// authorize/token/logout are present.
type Config struct {
	OverrideAuthorize string
	OverrideToken     string
	OverrideLogout    string
	OverrideUserinfo  string

	// AccountDomain hosts the discovery document and the constructed defaults.
	AccountDomain string
	// ShopID scopes the constructed default paths.
	ShopID string

	// TTL bounds how long a fetched discovery document is reused. Default 1h.
	TTL time.Duration
	// Timeout bounds the discovery fetch. Default 10s.
	Timeout time.Duration
}

// Resolver caches discovery results in-process and collapses concurrent
// fetches into a single request. Safe for concurrent use.
type Resolver struct {
	cfg   Config
	http  *http.Client
	cache *gocache.Cache
	sf    singleflight.Group
}

// NewResolver builds a Resolver. httpClient may be nil; a client with the
// configured timeout is used then.
func NewResolver(cfg Config, httpClient *http.Client) *Resolver {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Resolver{
		cfg:   cfg,
		http:  httpClient,
		cache: gocache.New(cfg.TTL, 5*time.Minute),
	}
}

// Resolve returns the provider endpoints via the first tier that works.
func (r *Resolver) Resolve(ctx context.Context) (Endpoints, error) {
	if eps, ok := r.explicit(); ok {
		return eps, nil
	}

	if eps, err := r.wellKnown(ctx); err == nil {
		return eps, nil
	} else {
		logger.From(ctx).Debug("discovery document unavailable, using constructed defaults",
			logger.Component("discovery"), logger.Err(err))
	}

	return r.constructed()
}

// explicit is tier 1: all of authorize/token/logout configured verbatim.
func (r *Resolver) explicit() (Endpoints, bool) {
	c := r.cfg
	if c.OverrideAuthorize == "" || c.OverrideToken == "" || c.OverrideLogout == "" {
		return Endpoints{}, false
	}
	eps := Endpoints{
		Authorize: c.OverrideAuthorize,
		Token:     c.OverrideToken,
		Logout:    c.OverrideLogout,
		Userinfo:  c.OverrideUserinfo,
	}
	if eps.Userinfo == "" {
		if fallback, err := r.constructed(); err == nil {
			eps.Userinfo = fallback.Userinfo
		}
	}
	return eps, true
}

type discoveryDoc struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	EndSessionEndpoint    string `json:"end_session_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
}

// wellKnown is tier 2: the cached OpenID discovery document. Concurrent
// misses collapse into one fetch.
func (r *Resolver) wellKnown(ctx context.Context) (Endpoints, error) {
	if v, ok := r.cache.Get(cacheKey); ok {
		return v.(Endpoints), nil
	}

	v, err, _ := r.sf.Do(cacheKey, func() (any, error) {
		// Re-check: a concurrent caller may have populated the cache while
		// this goroutine waited on the singleflight lock.
		if v, ok := r.cache.Get(cacheKey); ok {
			return v.(Endpoints), nil
		}
		eps, err := r.fetchWellKnown(ctx)
		if err != nil {
			return Endpoints{}, err
		}
		r.cache.Set(cacheKey, eps, gocache.DefaultExpiration)
		return eps, nil
	})
	if err != nil {
		return Endpoints{}, err
	}
	return v.(Endpoints), nil
}

func (r *Resolver) fetchWellKnown(ctx context.Context) (Endpoints, error) {
	if r.cfg.AccountDomain == "" {
		return Endpoints{}, ErrUnavailable
	}
	u := "https://" + r.cfg.AccountDomain + "/.well-known/openid-configuration"

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Endpoints{}, err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return Endpoints{}, fmt.Errorf("discovery: fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Endpoints{}, fmt.Errorf("discovery: %s returned %d", u, resp.StatusCode)
	}

	var doc discoveryDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return Endpoints{}, fmt.Errorf("discovery: malformed document: %w", err)
	}
	if doc.AuthorizationEndpoint == "" || doc.TokenEndpoint == "" {
		return Endpoints{}, errors.New("discovery: document missing required endpoints")
	}

	eps := Endpoints{
		Authorize: doc.AuthorizationEndpoint,
		Token:     doc.TokenEndpoint,
		Logout:    doc.EndSessionEndpoint,
		Userinfo:  doc.UserinfoEndpoint,
	}
	if eps.Logout == "" || eps.Userinfo == "" {
		if fallback, err := r.constructed(); err == nil {
			if eps.Logout == "" {
				eps.Logout = fallback.Logout
			}
			if eps.Userinfo == "" {
				eps.Userinfo = fallback.Userinfo
			}
		}
	}
	return eps, nil
}

// constructed is tier 3: conventional URLs from the account domain and shop id.
func (r *Resolver) constructed() (Endpoints, error) {
	domain := strings.TrimSpace(r.cfg.AccountDomain)
	shopID := strings.TrimSpace(r.cfg.ShopID)
	if domain == "" || shopID == "" {
		return Endpoints{}, ErrUnavailable
	}
	base := "https://" + domain + "/authentication/" + shopID
	return Endpoints{
		Authorize: base + "/oauth/authorize",
		Token:     base + "/oauth/token",
		Logout:    base + "/logout",
		Userinfo:  base + "/oauth/userinfo",
	}, nil
}

// Invalidate drops the cached discovery document so the next Resolve
// fetches a fresh one. Hooked to SIGHUP for provider-side changes.
func (r *Resolver) Invalidate() {
	r.cache.Delete(cacheKey)
}
