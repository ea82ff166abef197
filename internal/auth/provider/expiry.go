package provider

import (
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// defaultAccessTokenTTL applies when the provider reports no expiry at all.
// Conservative on purpose: an early refresh is cheap, a stale token is not.
const defaultAccessTokenTTL = 30 * time.Minute

// ExpiryTime resolves when the access token expires. Preference order:
// the expires_in field, the exp claim of a JWT-shaped access token, a
// conservative default. The JWT parse is unverified: the token is opaque to
// this client and only the provider validates it, the claim is used as a
// refresh hint only.
func (tr *TokenResponse) ExpiryTime(now time.Time) time.Time {
	if tr.ExpiresIn > 0 {
		return now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	}

	var claims jwtv5.RegisteredClaims
	if _, _, err := jwtv5.NewParser().ParseUnverified(tr.AccessToken, &claims); err == nil {
		if claims.ExpiresAt != nil && claims.ExpiresAt.After(now) {
			return claims.ExpiresAt.Time
		}
	}

	return now.Add(defaultAccessTokenTTL)
}
