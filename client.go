package rpflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// maxResponseBytes caps how much of a provider response is read.
const maxResponseBytes = 1 << 20

// Client issues the three outbound calls to the identity provider: the
// authorization-code exchange, the refresh-token exchange and the userinfo
// fetch. It holds no per-user state and is safe for concurrent use across
// requests; the underlying transport pools connections.
//
// None of the operations retry internally. The caller decides what a failed
// exchange means, and for refresh the answer is always "give up": see
// Authorization.EnsureFresh.
type Client struct {
	config *Config
	http   *http.Client
	logger hclog.Logger

	authorizeURL string
	tokenURL     string
	userinfoURL  string

	// refreshGroup collapses concurrent refresh exchanges carrying the same
	// refresh token into a single round trip, so two simultaneous requests
	// with a soon-to-expire pair cannot race the provider's rotation.
	refreshGroup singleflight.Group
}

// NewClient creates a Client for the configured provider. When the config
// carries no endpoints, they are discovered from the issuer's OIDC discovery
// document, which makes one http request.
// Supported options: WithIssuer, WithRequestTimeout, WithLogger
func NewClient(ctx context.Context, c *Config, opt ...Option) (*Client, error) {
	const op = "rpflow.NewClient"
	if c == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid config: %w", op, err)
	}
	opts := getClientOpts(opt...)

	httpClient, err := newHTTPClient(c.ProviderCA, opts.withRequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}

	client := &Client{
		config:       c,
		http:         httpClient,
		logger:       opts.withLogger,
		authorizeURL: c.AuthorizeEndpoint,
		tokenURL:     c.TokenEndpoint,
		userinfoURL:  c.UserinfoEndpoint,
	}
	if !c.hasEndpoints() {
		if opts.withIssuer == "" {
			return nil, fmt.Errorf("%s: config has no endpoints and no issuer to discover them from: %w", op, ErrInvalidParameter)
		}
		if err := client.discoverEndpoints(ctx, opts.withIssuer); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	return client, nil
}

// discoverEndpoints resolves the provider's endpoints from its OIDC discovery
// document.
func (c *Client) discoverEndpoints(ctx context.Context, issuer string) error {
	const op = "Client.discoverEndpoints"
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, c.http), issuer)
	if err != nil {
		return fmt.Errorf("%s: unable to discover provider endpoints: %w", op, err)
	}
	var claims struct {
		UserinfoEndpoint string `json:"userinfo_endpoint"`
	}
	if err := provider.Claims(&claims); err != nil {
		return fmt.Errorf("%s: unable to read discovery document: %w", op, err)
	}
	if claims.UserinfoEndpoint == "" {
		return fmt.Errorf("%s: provider advertises no userinfo endpoint: %w", op, ErrProtocol)
	}
	endpoint := provider.Endpoint()
	c.authorizeURL = endpoint.AuthURL
	c.tokenURL = endpoint.TokenURL
	c.userinfoURL = claims.UserinfoEndpoint
	return nil
}

// AuthCodeURL returns the URL of the provider's authorize endpoint which
// starts an authorization-code flow bound to state: response_type=code,
// client_id, redirect_uri and the configured scopes space-joined.
func (c *Client) AuthCodeURL(state string) string {
	oauth2Config := oauth2.Config{
		ClientID:    c.config.ClientID,
		RedirectURL: c.config.RedirectURL,
		Scopes:      c.config.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.authorizeURL,
			TokenURL: c.tokenURL,
		},
	}
	return oauth2Config.AuthCodeURL(state)
}

// ExchangeCode exchanges an authorization code received on the callback for a
// token pair.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	const op = "Client.ExchangeCode"
	if code == "" {
		return nil, fmt.Errorf("%s: authorization code is empty: %w", op, ErrInvalidParameter)
	}
	token, err := c.token(ctx, url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {c.config.RedirectURL},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return token, nil
}

// Refresh exchanges a refresh token for a fresh token pair. Concurrent calls
// with the same refresh token share a single exchange. The response may omit
// a new refresh token, in which case the one passed in remains valid.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	const op = "Client.Refresh"
	if refreshToken == "" {
		return nil, fmt.Errorf("%s: refresh token is empty: %w", op, ErrInvalidParameter)
	}
	v, err, _ := c.refreshGroup.Do(refreshToken, func() (interface{}, error) {
		return c.token(ctx, url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {refreshToken},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return v.(*TokenResponse), nil
}

// UserInfo fetches the provider's userinfo claims using the access token as
// bearer credential. This call is the actual authority check on the token:
// expiry claims are only ever a hint.
func (c *Client) UserInfo(ctx context.Context, accessToken string) (*UserInfoResponse, error) {
	const op = "Client.UserInfo"
	if accessToken == "" {
		return nil, fmt.Errorf("%s: access token is empty: %w", op, ErrInvalidParameter)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userinfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to build userinfo request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var info UserInfoResponse
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("%s: undecodable userinfo response: %w", op, ErrProtocol)
	}
	if info.Subject == "" {
		return nil, fmt.Errorf("%s: userinfo response has no subject: %w", op, ErrProtocol)
	}
	return &info, nil
}

// token performs one form-encoded POST against the token endpoint.
func (c *Client) token(ctx context.Context, form url.Values) (*TokenResponse, error) {
	form.Set("client_id", c.config.ClientID)
	form.Set("client_secret", string(c.config.ClientSecret))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("unable to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var token TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("undecodable token response: %w", ErrProtocol)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("token response has no access_token: %w", ErrProtocol)
	}
	return &token, nil
}

// do sends the request and classifies failures: network errors, timeouts and
// 5xx answers wrap ErrTransport; 4xx answers wrap ErrProtocol.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s unreachable: %v: %w", req.URL.Path, err, ErrTransport)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("unable to read response from %s: %w", req.URL.Path, ErrTransport)
	}
	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%s returned %d: %w", req.URL.Path, resp.StatusCode, ErrTransport)
	case resp.StatusCode >= 400:
		c.logger.Debug("provider rejected request", "path", req.URL.Path, "status", resp.StatusCode)
		return nil, fmt.Errorf("%s returned %d: %w", req.URL.Path, resp.StatusCode, ErrProtocol)
	}
	return body, nil
}

// clientOptions is the set of available options
type clientOptions struct {
	withIssuer         string
	withRequestTimeout time.Duration
	withLogger         hclog.Logger
}

// clientDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func clientDefaults() clientOptions {
	return clientOptions{
		withRequestTimeout: DefaultRequestTimeout,
		withLogger:         hclog.NewNullLogger(),
	}
}

// getClientOpts gets the defaults and applies the opt overrides passed in.
func getClientOpts(opt ...Option) clientOptions {
	opts := clientDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithIssuer provides an issuer to discover the provider's endpoints from,
// for configs that don't set them explicitly
func WithIssuer(issuer string) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok {
			o.withIssuer = issuer
		}
	}
}

// WithRequestTimeout provides an optional overall timeout for each outbound
// provider call, overriding DefaultRequestTimeout
func WithRequestTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok {
			o.withRequestTimeout = d
		}
	}
}
