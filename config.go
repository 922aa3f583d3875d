package rpflow

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/hashicorp/go-multierror"
)

// ClientSecret is a client credential which must never end up in logs or
// serialized output.
type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client secret
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret
func (s ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret
func (s ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// Config holds the relying-party registration with the identity provider.
// It is constructed once at process start and treated as immutable: every
// component that needs the credentials receives the same Config by reference.
type Config struct {
	// ClientID is the relying party id
	ClientID string

	// ClientSecret is the relying party secret
	ClientSecret ClientSecret

	// RedirectURL is the callback URL registered with the provider
	RedirectURL string

	// Scopes is the list of scopes requested during login, space-joined on
	// the wire
	Scopes []string

	// AuthorizeEndpoint, TokenEndpoint and UserinfoEndpoint are the
	// provider's endpoints. Leave all three empty to have NewClient
	// discover them from an issuer (see WithIssuer).
	AuthorizeEndpoint string
	TokenEndpoint     string
	UserinfoEndpoint  string

	// ProviderCA is an optional CA cert PEM to use when calling the provider
	ProviderCA string
}

// NewConfig composes a new relying-party config.
// Supported options: WithScopes, WithEndpoints, WithProviderCA
func NewConfig(clientID string, clientSecret ClientSecret, redirectURL string, opt ...Option) (*Config, error) {
	const op = "rpflow.NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		ClientID:          clientID,
		ClientSecret:      clientSecret,
		RedirectURL:       redirectURL,
		Scopes:            opts.withScopes,
		AuthorizeEndpoint: opts.withAuthorizeEndpoint,
		TokenEndpoint:     opts.withTokenEndpoint,
		UserinfoEndpoint:  opts.withUserinfoEndpoint,
		ProviderCA:        opts.withProviderCA,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid config: %w", op, err)
	}
	return c, nil
}

// Validate the config, reporting every violation at once. Endpoints are
// validated only when set, since NewClient may fill them in via discovery.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	var result *multierror.Error
	if c.ClientID == "" {
		result = multierror.Append(result, fmt.Errorf("client id is empty: %w", ErrInvalidParameter))
	}
	if c.ClientSecret == "" {
		result = multierror.Append(result, fmt.Errorf("client secret is empty: %w", ErrInvalidParameter))
	}
	if c.RedirectURL == "" {
		result = multierror.Append(result, fmt.Errorf("redirect URL is empty: %w", ErrInvalidParameter))
	}
	endpoints := map[string]string{
		"authorize endpoint": c.AuthorizeEndpoint,
		"token endpoint":     c.TokenEndpoint,
		"userinfo endpoint":  c.UserinfoEndpoint,
	}
	for name, endpoint := range endpoints {
		if endpoint == "" {
			continue
		}
		u, err := url.Parse(endpoint)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s %s is invalid: %w", name, endpoint, ErrInvalidParameter))
			continue
		}
		if u.Scheme != "https" && u.Scheme != "http" {
			result = multierror.Append(result, fmt.Errorf("%s %s scheme is not http or https: %w", name, endpoint, ErrInvalidParameter))
		}
	}
	return result.ErrorOrNil()
}

// hasEndpoints reports whether all three provider endpoints are set.
func (c *Config) hasEndpoints() bool {
	return c.AuthorizeEndpoint != "" && c.TokenEndpoint != "" && c.UserinfoEndpoint != ""
}

// configOptions is the set of available options
type configOptions struct {
	withScopes            []string
	withAuthorizeEndpoint string
	withTokenEndpoint     string
	withUserinfoEndpoint  string
	withProviderCA        string
}

// configDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func configDefaults() configOptions {
	return configOptions{}
}

// getConfigOpts gets the defaults and applies the opt overrides passed in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithScopes provides an optional list of scopes to request during login
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withScopes = scopes
		}
	}
}

// WithEndpoints provides the provider's authorize, token and userinfo
// endpoints for configs that don't use discovery
func WithEndpoints(authorize, token, userinfo string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withAuthorizeEndpoint = authorize
			o.withTokenEndpoint = token
			o.withUserinfoEndpoint = userinfo
		}
	}
}

// WithProviderCA provides an optional CA cert PEM for the provider's config
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}
