package session

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumeracommerce/storefront/internal/auth/discovery"
	"github.com/lumeracommerce/storefront/internal/auth/provider"
	"github.com/lumeracommerce/storefront/internal/customer"
)

// fakeProvider bundles a token endpoint and a userinfo endpoint behind one
// httptest server.
type fakeProvider struct {
	srv          *httptest.Server
	refreshHits  atomic.Int32
	userinfoHits atomic.Int32

	rejectToken atomic.Bool
	validAccess string
	refreshedAT string
	refreshedRT string
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	fp := &fakeProvider{validAccess: "at-valid", refreshedAT: "at-refreshed", refreshedRT: "rt-refreshed"}
	fp.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			fp.refreshHits.Add(1)
			_ = r.ParseForm()
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token":  fp.refreshedAT,
				"refresh_token": fp.refreshedRT,
				"expires_in":    3600,
			})
		case "/oauth/userinfo":
			fp.userinfoHits.Add(1)
			auth := r.Header.Get("Authorization")
			if fp.rejectToken.Load() || (auth != "Bearer "+fp.validAccess && auth != "Bearer "+fp.refreshedAT) {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"sub":         "cust-42",
				"email":       "ada@example.com",
				"given_name":  "Ada",
				"family_name": "Lovelace",
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(fp.srv.Close)
	return fp
}

func (fp *fakeProvider) resolver(t *testing.T) (*Resolver, *Store) {
	t.Helper()
	endpoints := discovery.NewResolver(discovery.Config{
		OverrideAuthorize: fp.srv.URL + "/oauth/authorize",
		OverrideToken:     fp.srv.URL + "/oauth/token",
		OverrideLogout:    fp.srv.URL + "/logout",
		OverrideUserinfo:  fp.srv.URL + "/oauth/userinfo",
	}, nil)
	store := testStore(t)
	manager := NewManager(store, endpoints, provider.NewClient(provider.Config{ClientID: "c"}, nil))
	return NewResolver(manager, endpoints, customer.NewClient(nil)), store
}

func TestResolve_NoCookiesIsAnonymous(t *testing.T) {
	fp := newFakeProvider(t)
	r, _ := fp.resolver(t)

	res := r.Resolve(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.False(t, res.LoggedIn)
	require.Nil(t, res.Customer)
	require.Zero(t, fp.userinfoHits.Load(), "anonymous resolve must not hit the network")
}

func TestResolve_FreshSessionReturnsIdentity(t *testing.T) {
	fp := newFakeProvider(t)
	r, store := fp.resolver(t)

	rec := httptest.NewRecorder()
	require.NoError(t, store.Write(rec, TokenPair{
		AccessToken: "at-valid", RefreshToken: "rt", ExpiresAt: time.Now().Add(time.Hour),
	}))

	res := r.Resolve(httptest.NewRecorder(), requestWithCookies(t, rec))
	require.True(t, res.LoggedIn)
	require.Equal(t, "cust-42", res.Customer.ID)
	require.Equal(t, "ada@example.com", res.Customer.Email)
	require.Zero(t, fp.refreshHits.Load())
}

func TestResolve_ExpiredSessionRefreshesTransparently(t *testing.T) {
	fp := newFakeProvider(t)
	r, store := fp.resolver(t)

	rec := httptest.NewRecorder()
	require.NoError(t, store.Write(rec, TokenPair{
		AccessToken: "at-stale", RefreshToken: "rt", ExpiresAt: time.Now().Add(-time.Minute),
	}))

	w := httptest.NewRecorder()
	res := r.Resolve(w, requestWithCookies(t, rec))
	require.True(t, res.LoggedIn, "refresh must be transparent, no new login round-trip")
	require.Equal(t, "cust-42", res.Customer.ID)
	require.Equal(t, int32(1), fp.refreshHits.Load())

	// The rotated pair landed in the response cookies.
	stored, ok := store.Read(requestWithCookies(t, w))
	require.True(t, ok)
	require.Equal(t, "at-refreshed", stored.AccessToken)
	require.Equal(t, "rt-refreshed", stored.RefreshToken)
}

func TestResolve_RejectedTokenClearsSession(t *testing.T) {
	fp := newFakeProvider(t)
	fp.rejectToken.Store(true)
	r, store := fp.resolver(t)

	rec := httptest.NewRecorder()
	require.NoError(t, store.Write(rec, TokenPair{
		AccessToken: "at-valid", RefreshToken: "rt", ExpiresAt: time.Now().Add(time.Hour),
	}))

	w := httptest.NewRecorder()
	res := r.Resolve(w, requestWithCookies(t, rec))
	require.False(t, res.LoggedIn)

	deletions := 0
	for _, c := range w.Result().Cookies() {
		if c.MaxAge == -1 {
			deletions++
		}
	}
	require.Equal(t, 3, deletions)
}

func TestResolve_MemoizedWithinRequest(t *testing.T) {
	fp := newFakeProvider(t)
	r, store := fp.resolver(t)

	rec := httptest.NewRecorder()
	require.NoError(t, store.Write(rec, TokenPair{
		AccessToken: "at-valid", RefreshToken: "rt", ExpiresAt: time.Now().Add(time.Hour),
	}))

	var first, second Result
	h := Scoped()(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		first = r.Resolve(w, req)
		second = r.Resolve(w, req)
	}))

	req := requestWithCookies(t, rec)
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.True(t, first.LoggedIn)
	require.Equal(t, first, second)
	require.Equal(t, int32(1), fp.userinfoHits.Load(), "second resolve within a request must not refetch")
}

func TestResolve_WithoutScopeStillWorks(t *testing.T) {
	fp := newFakeProvider(t)
	r, store := fp.resolver(t)

	rec := httptest.NewRecorder()
	require.NoError(t, store.Write(rec, TokenPair{
		AccessToken: "at-valid", RefreshToken: "rt", ExpiresAt: time.Now().Add(time.Hour),
	}))

	res := r.Resolve(httptest.NewRecorder(), requestWithCookies(t, rec))
	require.True(t, res.LoggedIn)
}
