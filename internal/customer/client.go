// Package customer resolves the authenticated customer's identity from the
// provider's userinfo endpoint. Identity is never stored in cookies: it is
// fetched fresh with the access token so profile edits show up immediately.
package customer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrUnauthorized means the provider rejected the access token. The caller
// should demote the session to anonymous.
var ErrUnauthorized = errors.New("customer: access token rejected")

// Identity is the profile exposed to downstream features.
type Identity struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// Client fetches identity documents. Safe for concurrent use.
type Client struct {
	http *http.Client
}

// NewClient builds a Client. httpClient may be nil.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{http: httpClient}
}

type userinfoDoc struct {
	Sub         string `json:"sub"`
	Email       string `json:"email"`
	GivenName   string `json:"given_name"`
	FamilyName  string `json:"family_name"`
	PhoneNumber string `json:"phone_number"`
}

// Fetch loads the identity behind accessToken from userinfoURL.
func (c *Client) Fetch(ctx context.Context, userinfoURL, accessToken string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userinfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("customer: build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("customer: userinfo request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("customer: userinfo returned %d", resp.StatusCode)
	}

	var doc userinfoDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("customer: decode userinfo: %w", err)
	}
	if doc.Sub == "" {
		return nil, errors.New("customer: userinfo missing sub claim")
	}

	return &Identity{
		ID:        doc.Sub,
		Email:     doc.Email,
		FirstName: doc.GivenName,
		LastName:  doc.FamilyName,
		Phone:     doc.PhoneNumber,
	}, nil
}
