package rpflow

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DefaultLoginStateTTL bounds the window between the login redirect and the
// provider calling back.
const DefaultLoginStateTTL = 10 * time.Minute

// StateLength is the number of alphanumeric characters in a state value.
const StateLength = 20

// DefaultStateExpirySkew defines a default time skew when checking a
// LoginState's expiration.
const DefaultStateExpirySkew = 1 * time.Second

// LoginState binds one login attempt to its provider callback. Value is the
// single-use anti-forgery token round-tripped through the provider.
// RedirectTo is the post-login target, stored alongside the value instead of
// concatenated into it so that it stays covered by the storage layer's
// integrity protection on its own.
type LoginState struct {
	Value      string    `json:"value"`
	RedirectTo string    `json:"redirect_to,omitempty"`
	Expiration time.Time `json:"expiration"`
}

// NewLoginState creates a LoginState with a fresh random value. redirectTo
// may be empty; a non-empty target must pass ValidateRedirectTarget.
func NewLoginState(expireIn time.Duration, redirectTo string) (*LoginState, error) {
	const op = "rpflow.NewLoginState"
	if expireIn <= 0 {
		return nil, fmt.Errorf("%s: expireIn not greater than zero: %w", op, ErrInvalidParameter)
	}
	if redirectTo != "" {
		if err := ValidateRedirectTarget(redirectTo); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	value, err := NewID(StateLength)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a state value: %w", op, err)
	}
	return &LoginState{
		Value:      value,
		RedirectTo: redirectTo,
		Expiration: time.Now().Add(expireIn),
	}, nil
}

// IsExpired returns true if the state has expired. Supports the
// WithExpirySkew option and if none is provided it will use the
// DefaultStateExpirySkew.
func (s *LoginState) IsExpired(opt ...Option) bool {
	opts := getLoginStateOpts(opt...)
	return s.Expiration.Before(time.Now().Add(opts.withExpirySkew))
}

// ValidateRedirectTarget accepts only same-origin relative paths: a single
// leading slash, no scheme, host or userinfo, and no control characters.
// Anything else is an open-redirect vector and is rejected.
func ValidateRedirectTarget(target string) error {
	const op = "rpflow.ValidateRedirectTarget"
	if target == "" {
		return fmt.Errorf("%s: redirect target is empty: %w", op, ErrInvalidParameter)
	}
	for _, r := range target {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%s: redirect target contains control characters: %w", op, ErrInvalidParameter)
		}
	}
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return fmt.Errorf("%s: redirect target %q is not a relative path: %w", op, target, ErrInvalidParameter)
	}
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("%s: redirect target %q is unparsable: %w", op, target, ErrInvalidParameter)
	}
	if u.Scheme != "" || u.Host != "" || u.User != nil {
		return fmt.Errorf("%s: redirect target %q is not same-origin: %w", op, target, ErrInvalidParameter)
	}
	return nil
}

// loginStateOptions is the set of available options for LoginState functions
type loginStateOptions struct {
	withExpirySkew time.Duration
}

// loginStateDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func loginStateDefaults() loginStateOptions {
	return loginStateOptions{
		withExpirySkew: DefaultStateExpirySkew,
	}
}

// getLoginStateOpts gets the defaults and applies the opt overrides passed in
func getLoginStateOpts(opt ...Option) loginStateOptions {
	opts := loginStateDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
