package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

const minimalYAML = `
auth:
  client_id: storefront-client
  shop_id: shop-1
  account_domain: account.lumera.example
  redirect_url: https://shop.lumera.example/auth/callback
`

func TestLoad_DefaultsApplied(t *testing.T) {
	c, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	require.Equal(t, ":8080", c.Server.Addr)
	require.Equal(t, "info", c.Log.Level)
	require.Equal(t, []string{"openid", "email", "customer-account-api:full"}, c.Auth.Scopes)
	require.Equal(t, time.Hour, c.DiscoveryTTL())
	require.Equal(t, 10*time.Second, c.HTTPTimeout())
	require.Equal(t, 720*time.Hour, c.SessionTTL())
	require.Equal(t, "lax", c.Session.SameSite)
	require.True(t, *c.Session.Secure, "secure defaults on outside dev")
}

func TestLoad_DevDisablesSecureCookies(t *testing.T) {
	c, err := Load(writeConfig(t, minimalYAML+"\napp:\n  env: dev\n"))
	require.NoError(t, err)
	require.False(t, *c.Session.Secure)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("AUTH_CLIENT_ID", "from-env")
	t.Setenv("AUTH_SCOPES", "openid, email")
	t.Setenv("SESSION_COOKIE_SECURE", "true")

	c, err := Load(writeConfig(t, minimalYAML+"\napp:\n  env: dev\n"))
	require.NoError(t, err)
	require.Equal(t, "from-env", c.Auth.ClientID)
	require.Equal(t, []string{"openid", "email"}, c.Auth.Scopes)
	require.True(t, *c.Session.Secure, "explicit env wins over dev default")
}

func TestLoad_ShopDomainDefaultsPostLogoutURL(t *testing.T) {
	c, err := Load(writeConfig(t, minimalYAML+"\n  shop_domain: shop.lumera.example\n"))
	require.NoError(t, err)
	require.Equal(t, "https://shop.lumera.example/", c.Auth.LogoutRedirectURL)
}

func TestLoad_ExplicitPostLogoutURLWins(t *testing.T) {
	c, err := Load(writeConfig(t, minimalYAML+"\n  shop_domain: shop.lumera.example\n  logout_redirect_url: https://shop.lumera.example/bye\n"))
	require.NoError(t, err)
	require.Equal(t, "https://shop.lumera.example/bye", c.Auth.LogoutRedirectURL)
}

func TestLoad_MissingClientID(t *testing.T) {
	_, err := Load(writeConfig(t, `
auth:
  shop_id: shop-1
  account_domain: account.lumera.example
  redirect_url: https://shop.lumera.example/auth/callback
`))
	require.Error(t, err)
}

func TestLoad_EndpointOverridesRelaxDomainRequirement(t *testing.T) {
	_, err := Load(writeConfig(t, `
auth:
  client_id: c
  redirect_url: https://shop.lumera.example/auth/callback
  endpoints:
    authorize: https://idp.example/authorize
    token: https://idp.example/token
    logout: https://idp.example/logout
`))
	require.NoError(t, err)
}

func TestLoad_RateRequiresRedis(t *testing.T) {
	_, err := Load(writeConfig(t, minimalYAML+"\nrate:\n  enabled: true\n"))
	require.Error(t, err)
}

func TestLoad_BadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, minimalYAML+"\nsession:\n  ttl: soon\n"))
	require.Error(t, err)
}
