// Package config loads the storefront configuration: a YAML file plus
// environment overrides. Loaded once at startup; re-read only on restart.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr         string `yaml:"addr"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	// Auth configures the identity-provider client. Immutable for the
	// process lifetime.
	Auth struct {
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`

		ShopID        string `yaml:"shop_id"`
		ShopDomain    string `yaml:"shop_domain"`
		AccountDomain string `yaml:"account_domain"`

		RedirectURL       string   `yaml:"redirect_url"`
		LogoutRedirectURL string   `yaml:"logout_redirect_url"`
		Scopes            []string `yaml:"scopes"`

		// Explicit endpoint overrides. When authorize, token and logout are
		// all present, discovery is skipped entirely.
		Endpoints struct {
			Authorize string `yaml:"authorize"`
			Token     string `yaml:"token"`
			Logout    string `yaml:"logout"`
			Userinfo  string `yaml:"userinfo"`
		} `yaml:"endpoints"`

		DiscoveryTTL string `yaml:"discovery_ttl"`
		HTTPTimeout  string `yaml:"http_timeout"`
	} `yaml:"auth"`

	Session struct {
		Domain   string `yaml:"domain"`
		SameSite string `yaml:"samesite"`
		Secure   *bool  `yaml:"secure"`
		TTL      string `yaml:"ttl"`
	} `yaml:"session"`

	Rate struct {
		Enabled bool `yaml:"enabled"`
		Redis   struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Login struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"login"`
	} `yaml:"rate"`
}

// Load reads the YAML at path, applies defaults and env overrides, and
// validates the result.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "10s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "30s"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if len(c.Auth.Scopes) == 0 {
		c.Auth.Scopes = []string{"openid", "email", "customer-account-api:full"}
	}
	if c.Auth.DiscoveryTTL == "" {
		c.Auth.DiscoveryTTL = "1h"
	}
	if c.Auth.HTTPTimeout == "" {
		c.Auth.HTTPTimeout = "10s"
	}
	if c.Session.SameSite == "" {
		c.Session.SameSite = "lax"
	}
	if c.Session.TTL == "" {
		c.Session.TTL = "720h" // 30d, bounds the refresh token's use
	}
	if c.Rate.Login.Limit == 0 {
		c.Rate.Login.Limit = 10
	}
	if c.Rate.Login.Window == "" {
		c.Rate.Login.Window = "1m"
	}
	if c.Rate.Redis.Prefix == "" {
		c.Rate.Redis.Prefix = "storefront:rl:"
	}

	c.applyEnvOverrides()

	// Secure cookies everywhere except explicit opt-out (dev over http).
	if c.Session.Secure == nil {
		secure := !strings.EqualFold(c.App.Env, "dev")
		c.Session.Secure = &secure
	}

	// Without an explicit post-logout URL, land on the shop's storefront.
	if c.Auth.LogoutRedirectURL == "" && c.Auth.ShopDomain != "" {
		c.Auth.LogoutRedirectURL = "https://" + c.Auth.ShopDomain + "/"
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = v
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := getEnvStr("AUTH_CLIENT_ID"); ok {
		c.Auth.ClientID = v
	}
	if v, ok := getEnvStr("AUTH_CLIENT_SECRET"); ok {
		c.Auth.ClientSecret = v
	}
	if v, ok := getEnvStr("AUTH_SHOP_ID"); ok {
		c.Auth.ShopID = v
	}
	if v, ok := getEnvStr("AUTH_SHOP_DOMAIN"); ok {
		c.Auth.ShopDomain = v
	}
	if v, ok := getEnvStr("AUTH_ACCOUNT_DOMAIN"); ok {
		c.Auth.AccountDomain = v
	}
	if v, ok := getEnvStr("AUTH_REDIRECT_URL"); ok {
		c.Auth.RedirectURL = v
	}
	if v, ok := getEnvStr("AUTH_LOGOUT_REDIRECT_URL"); ok {
		c.Auth.LogoutRedirectURL = v
	}
	if v, ok := getEnvCSV("AUTH_SCOPES"); ok {
		c.Auth.Scopes = v
	}
	if v, ok := getEnvStr("SESSION_COOKIE_DOMAIN"); ok {
		c.Session.Domain = v
	}
	if v, ok := getEnvBool("SESSION_COOKIE_SECURE"); ok {
		c.Session.Secure = &v
	}
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvStr("RATE_REDIS_ADDR"); ok {
		c.Rate.Redis.Addr = v
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Auth.ClientID) == "" {
		return errors.New("config: auth.client_id is required")
	}
	if strings.TrimSpace(c.Auth.RedirectURL) == "" {
		return errors.New("config: auth.redirect_url is required")
	}
	hasOverrides := c.Auth.Endpoints.Authorize != "" && c.Auth.Endpoints.Token != "" && c.Auth.Endpoints.Logout != ""
	if !hasOverrides && (c.Auth.AccountDomain == "" || c.Auth.ShopID == "") {
		return errors.New("config: auth.account_domain and auth.shop_id are required unless all endpoint overrides are set")
	}
	if c.Rate.Enabled && c.Rate.Redis.Addr == "" {
		return errors.New("config: rate.redis.addr is required when rate limiting is enabled")
	}
	for _, d := range []struct{ name, val string }{
		{"server.read_timeout", c.Server.ReadTimeout},
		{"server.write_timeout", c.Server.WriteTimeout},
		{"auth.discovery_ttl", c.Auth.DiscoveryTTL},
		{"auth.http_timeout", c.Auth.HTTPTimeout},
		{"session.ttl", c.Session.TTL},
		{"rate.login.window", c.Rate.Login.Window},
	} {
		if _, err := time.ParseDuration(d.val); err != nil {
			return fmt.Errorf("config: %s: %w", d.name, err)
		}
	}
	return nil
}

// Duration helpers for validated string durations.

func (c *Config) ReadTimeout() time.Duration  { return mustDur(c.Server.ReadTimeout) }
func (c *Config) WriteTimeout() time.Duration { return mustDur(c.Server.WriteTimeout) }
func (c *Config) DiscoveryTTL() time.Duration { return mustDur(c.Auth.DiscoveryTTL) }
func (c *Config) HTTPTimeout() time.Duration  { return mustDur(c.Auth.HTTPTimeout) }
func (c *Config) SessionTTL() time.Duration   { return mustDur(c.Session.TTL) }
func (c *Config) LoginWindow() time.Duration  { return mustDur(c.Rate.Login.Window) }

func mustDur(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, strings.TrimSpace(v) != ""
}

func getEnvBool(key string) (bool, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func getEnvCSV(key string) ([]string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil, false
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, len(out) > 0
}
