package httpflow

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/andover-id/rpflow"
)

// CookieNames are the three persisted cookie names plus the short-lived
// anti-forgery state cookie. The three session cookies are independently
// absent-able: the guard maps each absence to its own error.
type CookieNames struct {
	Access  string
	Refresh string
	Session string
	State   string
}

// DefaultCookieNames returns the cookie names used when none are configured.
func DefaultCookieNames() CookieNames {
	return CookieNames{
		Access:  "rp_access",
		Refresh: "rp_refresh",
		Session: "rp_session",
		State:   "rp_state",
	}
}

// RoutePaths are the local paths the flow's three routes are mounted on.
type RoutePaths struct {
	Login    string
	Callback string
	Logout   string
}

// DefaultRoutePaths returns the route paths used when none are configured.
func DefaultRoutePaths() RoutePaths {
	return RoutePaths{
		Login:    "/login",
		Callback: "/callback",
		Logout:   "/logout",
	}
}

// Handler sequences the three phases of the flow (login redirect, callback
// completion, authenticated-request guard) and owns every cookie read and
// write relative to those phases. It is stateless across requests and safe
// for concurrent use.
type Handler struct {
	client  *rpflow.Client
	cookies CookieStore
	states  StateStore

	names      CookieNames
	paths      RoutePaths
	stateTTL   time.Duration
	postLogin  string
	postLogout string
	logger     hclog.Logger
}

// New creates a Handler for the flow driven by client, persisting through
// cookies.
// Supported options: WithCookieNames, WithRoutePaths, WithStateStore,
// WithStateTTL, WithPostLoginTarget, WithPostLogoutTarget, WithFlowLogger
func New(client *rpflow.Client, cookies CookieStore, opt ...rpflow.Option) (*Handler, error) {
	const op = "httpflow.New"
	if client == nil {
		return nil, fmt.Errorf("%s: client is nil: %w", op, rpflow.ErrNilParameter)
	}
	if cookies == nil {
		return nil, fmt.Errorf("%s: cookie store is nil: %w", op, rpflow.ErrNilParameter)
	}
	opts := getHandlerOpts(opt...)
	h := &Handler{
		client:     client,
		cookies:    cookies,
		states:     opts.withStateStore,
		names:      opts.withCookieNames,
		paths:      opts.withRoutePaths,
		stateTTL:   opts.withStateTTL,
		postLogin:  opts.withPostLoginTarget,
		postLogout: opts.withPostLogoutTarget,
		logger:     opts.withLogger,
	}
	if h.states == nil {
		states, err := NewCookieStateStore(cookies, h.names.State)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		h.states = states
	}
	return h, nil
}

// handlerOptions is the set of available options for Handler
type handlerOptions struct {
	withCookieNames      CookieNames
	withRoutePaths       RoutePaths
	withStateStore       StateStore
	withStateTTL         time.Duration
	withPostLoginTarget  string
	withPostLogoutTarget string
	withLogger           hclog.Logger
}

// handlerDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func handlerDefaults() handlerOptions {
	return handlerOptions{
		withCookieNames:      DefaultCookieNames(),
		withRoutePaths:       DefaultRoutePaths(),
		withStateTTL:         rpflow.DefaultLoginStateTTL,
		withPostLoginTarget:  "/",
		withPostLogoutTarget: "/",
		withLogger:           hclog.NewNullLogger(),
	}
}

// getHandlerOpts gets the defaults and applies the opt overrides passed in.
func getHandlerOpts(opt ...rpflow.Option) handlerOptions {
	opts := handlerDefaults()
	rpflow.ApplyOpts(&opts, opt...)
	return opts
}

// WithCookieNames overrides DefaultCookieNames
func WithCookieNames(names CookieNames) rpflow.Option {
	return func(o interface{}) {
		if o, ok := o.(*handlerOptions); ok {
			o.withCookieNames = names
		}
	}
}

// WithRoutePaths overrides DefaultRoutePaths
func WithRoutePaths(paths RoutePaths) rpflow.Option {
	return func(o interface{}) {
		if o, ok := o.(*handlerOptions); ok {
			o.withRoutePaths = paths
		}
	}
}

// WithStateStore provides an alternative login-state store, for deployments
// that keep login state server side (see the redisstate package)
func WithStateStore(s StateStore) rpflow.Option {
	return func(o interface{}) {
		if o, ok := o.(*handlerOptions); ok {
			o.withStateStore = s
		}
	}
}

// WithStateTTL overrides rpflow.DefaultLoginStateTTL for the login to
// callback window
func WithStateTTL(ttl time.Duration) rpflow.Option {
	return func(o interface{}) {
		if o, ok := o.(*handlerOptions); ok {
			o.withStateTTL = ttl
		}
	}
}

// WithPostLoginTarget overrides the default "/" target used after a
// successful callback when the login carried no redirect target
func WithPostLoginTarget(target string) rpflow.Option {
	return func(o interface{}) {
		if o, ok := o.(*handlerOptions); ok {
			o.withPostLoginTarget = target
		}
	}
}

// WithPostLogoutTarget overrides the default "/" target used after logout
func WithPostLogoutTarget(target string) rpflow.Option {
	return func(o interface{}) {
		if o, ok := o.(*handlerOptions); ok {
			o.withPostLogoutTarget = target
		}
	}
}

// WithFlowLogger provides an optional hclog.Logger for a Handler
func WithFlowLogger(l hclog.Logger) rpflow.Option {
	return func(o interface{}) {
		if o, ok := o.(*handlerOptions); ok {
			o.withLogger = l
		}
	}
}
