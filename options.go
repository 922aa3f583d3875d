package rpflow

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		o(opts)
	}
}

// WithExpirySkew provides an optional expiry skew duration for: Authorization,
// LoginState
func WithExpirySkew(d time.Duration) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *authorizationOptions:
			v.withExpirySkew = d
		case *loginStateOptions:
			v.withExpirySkew = d
		}
	}
}

// WithLogger provides an optional hclog.Logger for: Client, Authorization
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *clientOptions:
			v.withLogger = l
		case *authorizationOptions:
			v.withLogger = l
		}
	}
}
