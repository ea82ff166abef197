// Package provider speaks to the identity provider's token endpoint.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lumeracommerce/storefront/internal/observability/logger"
)

const defaultTimeout = 10 * time.Second

// OAuthError is a structured error body returned by the token endpoint.
type OAuthError struct {
	Status      int
	Code        string
	Description string
}

func (e *OAuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("provider: %s: %s (http %d)", e.Code, e.Description, e.Status)
	}
	return fmt.Sprintf("provider: %s (http %d)", e.Code, e.Status)
}

// TokenResponse is the provider's token endpoint payload.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

// Config identifies this relying party to the provider.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Timeout      time.Duration
}

// Client performs code exchange and token refresh. Safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient builds a Client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient}
}

// Exchange trades an authorization code plus its PKCE verifier for tokens.
// An authorization code is single-use: a failed exchange is never retried,
// the error is surfaced to the caller.
func (c *Client) Exchange(ctx context.Context, tokenURL, code, verifier string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("code_verifier", verifier)
	form.Set("client_id", c.cfg.ClientID)
	form.Set("redirect_uri", c.cfg.RedirectURI)
	if c.cfg.ClientSecret != "" {
		form.Set("client_secret", c.cfg.ClientSecret)
	}
	return c.post(ctx, tokenURL, form)
}

// Refresh trades a refresh token for a new token pair. A transport-level
// failure (no response received) is retried once; an error response from the
// provider is not, since it will deterministically repeat.
func (c *Client) Refresh(ctx context.Context, tokenURL, refreshToken string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", c.cfg.ClientID)
	if c.cfg.ClientSecret != "" {
		form.Set("client_secret", c.cfg.ClientSecret)
	}

	tr, err := c.post(ctx, tokenURL, form)
	if err == nil {
		return tr, nil
	}
	if _, isOAuth := err.(*OAuthError); isOAuth || ctx.Err() != nil {
		return nil, err
	}

	logger.From(ctx).Debug("token refresh transport failure, retrying once",
		logger.Component("provider"), logger.Err(err))
	return c.post(ctx, tokenURL, form)
}

func (c *Client) post(ctx context.Context, tokenURL string, form url.Values) (*TokenResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("provider: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider: token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var body struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error == "" {
			body.Error = "invalid_response"
		}
		return nil, &OAuthError{Status: resp.StatusCode, Code: body.Error, Description: body.ErrorDescription}
	}

	var tr TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("provider: decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, &OAuthError{Status: resp.StatusCode, Code: "invalid_response", Description: "token response missing access_token"}
	}
	return &tr, nil
}
