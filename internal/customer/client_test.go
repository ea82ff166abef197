package customer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"sub": "cust-42",
			"email": "ada@example.com",
			"given_name": "Ada",
			"family_name": "Lovelace",
			"phone_number": "+44 20 7946 0000"
		}`))
	}))
	defer srv.Close()

	id, err := NewClient(nil).Fetch(context.Background(), srv.URL, "at-1")
	require.NoError(t, err)
	require.Equal(t, &Identity{
		ID:        "cust-42",
		Email:     "ada@example.com",
		FirstName: "Ada",
		LastName:  "Lovelace",
		Phone:     "+44 20 7946 0000",
	}, id)
}

func TestFetch_Unauthorized(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		_, err := NewClient(nil).Fetch(context.Background(), srv.URL, "at-stale")
		require.ErrorIs(t, err, ErrUnauthorized, "status %d", status)
		srv.Close()
	}
}

func TestFetch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(nil).Fetch(context.Background(), srv.URL, "at-1")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrUnauthorized)
}

func TestFetch_MissingSub(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"email":"x@example.com"}`))
	}))
	defer srv.Close()

	_, err := NewClient(nil).Fetch(context.Background(), srv.URL, "at-1")
	require.Error(t, err)
}
