package auth

import (
	"context"
	"net/url"

	"github.com/lumeracommerce/storefront/internal/auth/discovery"
	"github.com/lumeracommerce/storefront/internal/auth/state"
	"github.com/lumeracommerce/storefront/internal/observability/logger"
)

// LogoutService resolves where to send the browser after the local session
// has been cleared.
type LogoutService interface {
	// LogoutURL returns the provider logout endpoint with the configured
	// post-logout redirect, carrying returnTo so the site routes back there
	// after the provider round trip. Unsafe returnTo values are replaced
	// with the site root. When discovery fails the browser goes straight to
	// returnTo instead; logout never fails, the local session is cleared
	// regardless.
	LogoutURL(ctx context.Context, returnTo string) string
}

type logoutService struct {
	endpoints     *discovery.Resolver
	postLogoutURL string
}

// NewLogoutService builds the production LogoutService. postLogoutURL is
// where the provider sends the browser back.
func NewLogoutService(endpoints *discovery.Resolver, postLogoutURL string) LogoutService {
	if postLogoutURL == "" {
		postLogoutURL = DefaultReturnTo
	}
	return &logoutService{endpoints: endpoints, postLogoutURL: postLogoutURL}
}

func (s *logoutService) LogoutURL(ctx context.Context, returnTo string) string {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("LogoutService.LogoutURL"))

	returnTo = state.SanitizeReturnTo(returnTo, DefaultReturnTo)

	eps, err := s.endpoints.Resolve(ctx)
	if err != nil {
		log.Warn("endpoint discovery failed, skipping provider logout", logger.Err(err))
		return returnTo
	}

	u, err := url.Parse(eps.Logout)
	if err != nil {
		log.Warn("bad logout endpoint, skipping provider logout", logger.Err(err))
		return returnTo
	}
	q := u.Query()
	q.Set("post_logout_redirect_uri", s.postLogout(returnTo))
	u.RawQuery = q.Encode()
	return u.String()
}

// postLogout appends returnTo to the configured post-logout URL so the
// landing page can finish the navigation after the provider round trip.
func (s *logoutService) postLogout(returnTo string) string {
	if returnTo == DefaultReturnTo {
		return s.postLogoutURL
	}
	u, err := url.Parse(s.postLogoutURL)
	if err != nil {
		return s.postLogoutURL
	}
	q := u.Query()
	q.Set("returnTo", returnTo)
	u.RawQuery = q.Encode()
	return u.String()
}
