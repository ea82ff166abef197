package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient() *Client {
	return NewClient(Config{
		ClientID:    "storefront-client",
		RedirectURI: "https://shop.lumera.example/auth/callback",
	}, nil)
}

func TestExchange_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		require.Equal(t, "abc123", r.PostForm.Get("code"))
		require.Equal(t, "verifier-xyz", r.PostForm.Get("code_verifier"))
		require.Equal(t, "storefront-client", r.PostForm.Get("client_id"))
		require.Equal(t, "https://shop.lumera.example/auth/callback", r.PostForm.Get("redirect_uri"))
		require.Empty(t, r.PostForm.Get("client_secret"), "public client must not send a secret")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"access_token": "at-1",
			"refresh_token": "rt-1",
			"expires_in": 3600,
			"token_type": "Bearer"
		}`))
	}))
	defer srv.Close()

	tr, err := newTestClient().Exchange(context.Background(), srv.URL, "abc123", "verifier-xyz")
	require.NoError(t, err)
	require.Equal(t, "at-1", tr.AccessToken)
	require.Equal(t, "rt-1", tr.RefreshToken)
	require.Equal(t, int64(3600), tr.ExpiresIn)
}

func TestExchange_ProviderErrorSurfaced(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code already redeemed"}`))
	}))
	defer srv.Close()

	_, err := newTestClient().Exchange(context.Background(), srv.URL, "abc123", "v")
	var oerr *OAuthError
	require.ErrorAs(t, err, &oerr)
	require.Equal(t, "invalid_grant", oerr.Code)
	require.Equal(t, "code already redeemed", oerr.Description)
	require.Equal(t, int32(1), hits.Load(), "authorization codes are single-use, no retry")
}

func TestExchange_TransportFailureNotRetried(t *testing.T) {
	var attempts atomic.Int32
	c := NewClient(Config{ClientID: "c"}, &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			attempts.Add(1)
			return nil, errors.New("connection reset by peer")
		}),
	})

	_, err := c.Exchange(context.Background(), "https://idp.example/token", "abc", "v")
	require.Error(t, err)
	require.Equal(t, int32(1), attempts.Load())
}

func TestRefresh_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		require.Equal(t, "rt-old", r.PostForm.Get("refresh_token"))
		_, _ = w.Write([]byte(`{"access_token":"at-2","refresh_token":"rt-2","expires_in":3600}`))
	}))
	defer srv.Close()

	tr, err := newTestClient().Refresh(context.Background(), srv.URL, "rt-old")
	require.NoError(t, err)
	require.Equal(t, "at-2", tr.AccessToken)
	require.Equal(t, "rt-2", tr.RefreshToken)
}

func TestRefresh_RetriesOnceOnTransportFailure(t *testing.T) {
	var attempts atomic.Int32
	c := NewClient(Config{ClientID: "c"}, &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if attempts.Add(1) == 1 {
				return nil, errors.New("connection reset by peer")
			}
			return jsonResponse(`{"access_token":"at-2","expires_in":60}`), nil
		}),
	})

	tr, err := c.Refresh(context.Background(), "https://idp.example/token", "rt-old")
	require.NoError(t, err)
	require.Equal(t, "at-2", tr.AccessToken)
	require.Equal(t, int32(2), attempts.Load())
}

func TestRefresh_ProviderErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	_, err := newTestClient().Refresh(context.Background(), srv.URL, "rt-revoked")
	var oerr *OAuthError
	require.ErrorAs(t, err, &oerr)
	require.Equal(t, int32(1), hits.Load(), "a rejected refresh token will not succeed on retry")
}

func TestRefresh_NoRetryAfterCancellation(t *testing.T) {
	var attempts atomic.Int32
	c := NewClient(Config{ClientID: "c"}, &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			attempts.Add(1)
			<-r.Context().Done()
			return nil, r.Context().Err()
		}),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Refresh(ctx, "https://idp.example/token", "rt")
	require.Error(t, err)
	require.LessOrEqual(t, attempts.Load(), int32(1), "a cancelled caller must not trigger the retry")
}

func TestExchange_MissingAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token_type":"Bearer"}`))
	}))
	defer srv.Close()

	_, err := newTestClient().Exchange(context.Background(), srv.URL, "abc", "v")
	var oerr *OAuthError
	require.ErrorAs(t, err, &oerr)
	require.Equal(t, "invalid_response", oerr.Code)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func jsonResponse(body string) *http.Response {
	rec := httptest.NewRecorder()
	rec.Header().Set("Content-Type", "application/json")
	_, _ = rec.WriteString(body)
	return rec.Result()
}
