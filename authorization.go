package rpflow

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/go-hclog"
)

// DefaultAuthorizationExpirySkew defines a default time skew when checking an
// access token's expiration.
const DefaultAuthorizationExpirySkew = 10 * time.Second

// Authorization wraps the token pair in play for one request. It is
// constructed clean, exactly as read from storage, and becomes dirty when
// EnsureFresh rotates the pair. A dirty pair must be written back to storage
// before the response completes: the provider has consumed the old refresh
// token, so losing the new pair makes the session unrecoverable on the next
// request.
type Authorization struct {
	accessToken  string
	refreshToken string
	dirty        bool

	logger hclog.Logger
}

// NewAuthorization creates a clean Authorization from the token pair read
// from storage.
// Supported options: WithLogger
func NewAuthorization(accessToken, refreshToken string, opt ...Option) (*Authorization, error) {
	const op = "rpflow.NewAuthorization"
	if accessToken == "" {
		return nil, fmt.Errorf("%s: access token is empty: %w", op, ErrInvalidParameter)
	}
	if refreshToken == "" {
		return nil, fmt.Errorf("%s: refresh token is empty: %w", op, ErrInvalidParameter)
	}
	opts := getAuthorizationOpts(opt...)
	return &Authorization{
		accessToken:  accessToken,
		refreshToken: refreshToken,
		logger:       opts.withLogger,
	}, nil
}

// AccessToken returns the access token currently in play.
func (a *Authorization) AccessToken() string { return a.accessToken }

// RefreshToken returns the refresh token currently in play.
func (a *Authorization) RefreshToken() string { return a.refreshToken }

// Dirty reports whether the pair was rotated during this request and still
// needs to be written back to storage.
func (a *Authorization) Dirty() bool { return a.dirty }

// Expired decodes the access token's exp claim without verifying the
// signature. The claim is a hint, not a security boundary: only the provider
// can mint a token its userinfo endpoint accepts, so a forged claim costs at
// most an unnecessary or skipped refresh. A token whose claim cannot be read
// is treated as expired, trading a spare refresh for never trusting a
// malformed token. Supports the WithExpirySkew option and if none is provided
// it will use the DefaultAuthorizationExpirySkew.
func (a *Authorization) Expired(opt ...Option) bool {
	opts := getAuthorizationOpts(opt...)
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(a.accessToken, &claims); err != nil {
		a.logger.Error("unable to decode access token expiry claim", "error", err)
		return true
	}
	if claims.ExpiresAt == nil {
		a.logger.Error("access token carries no expiry claim")
		return true
	}
	return claims.ExpiresAt.Before(time.Now().Add(opts.withExpirySkew))
}

// EnsureFresh refreshes the token pair when the access token has expired,
// calling the token endpoint at most once: a provider that rejects the
// refresh token surfaces as an error wrapping ErrRefreshing, never as a retry
// loop. On success the access token is replaced, the refresh token is
// replaced only when the response carries a new one, and the Authorization
// becomes dirty. On failure the pair is left untouched and the caller must
// treat the session as unusable.
func (a *Authorization) EnsureFresh(ctx context.Context, client *Client, opt ...Option) error {
	const op = "Authorization.EnsureFresh"
	if client == nil {
		return fmt.Errorf("%s: client is nil: %w", op, ErrNilParameter)
	}
	if !a.Expired(opt...) {
		return nil
	}
	token, err := client.Refresh(ctx, a.refreshToken)
	if err != nil {
		return fmt.Errorf("%s: %v: %w", op, err, ErrRefreshing)
	}
	a.accessToken = token.AccessToken
	if token.RefreshToken != "" {
		a.refreshToken = string(token.RefreshToken)
	}
	a.dirty = true
	return nil
}

// authorizationOptions is the set of available options for Authorization
// functions
type authorizationOptions struct {
	withExpirySkew time.Duration
	withLogger     hclog.Logger
}

// authorizationDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func authorizationDefaults() authorizationOptions {
	return authorizationOptions{
		withExpirySkew: DefaultAuthorizationExpirySkew,
		withLogger:     hclog.NewNullLogger(),
	}
}

// getAuthorizationOpts gets the defaults and applies the opt overrides passed
// in
func getAuthorizationOpts(opt ...Option) authorizationOptions {
	opts := authorizationDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
