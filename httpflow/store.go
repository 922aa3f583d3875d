package httpflow

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/hashicorp/go-hclog"

	"github.com/andover-id/rpflow"
)

// CookieStore is the storage boundary between the flow and the HTTP layer.
// Implementations must provide confidentiality and integrity for the values
// they persist; the flow never double-encrypts.
type CookieStore interface {
	// Get returns the plaintext value of the named cookie. Missing,
	// tampered and unsealable cookies all read as absent.
	Get(r *http.Request, name string) (string, bool)

	// Set seals value into the named cookie on the response. ttl <= 0
	// produces a session cookie.
	Set(w http.ResponseWriter, name, value string, ttl time.Duration) error

	// Remove expires the named cookie. Removing an absent cookie is a
	// no-op.
	Remove(w http.ResponseWriter, name string)
}

// SealedStore implements CookieStore on gorilla/securecookie: values are
// encrypted with the block key and authenticated with the hash key.
type SealedStore struct {
	codec  *securecookie.SecureCookie
	secure bool
	logger hclog.Logger
}

// NewSealedStore creates a SealedStore. hashKey authenticates values and
// should be 32 or 64 bytes; blockKey encrypts them and must be 16, 24 or 32
// bytes. Both must stay stable across restarts or every session is lost.
// Supported options: WithInsecureCookies, WithStoreLogger
func NewSealedStore(hashKey, blockKey []byte, opt ...rpflow.Option) (*SealedStore, error) {
	const op = "httpflow.NewSealedStore"
	switch len(hashKey) {
	case 32, 64:
	default:
		return nil, fmt.Errorf("%s: hash key must be 32 or 64 bytes, got %d: %w", op, len(hashKey), rpflow.ErrInvalidParameter)
	}
	switch len(blockKey) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%s: block key must be 16, 24 or 32 bytes, got %d: %w", op, len(blockKey), rpflow.ErrInvalidParameter)
	}
	opts := getStoreOpts(opt...)
	return &SealedStore{
		codec:  securecookie.New(hashKey, blockKey),
		secure: !opts.withInsecureCookies,
		logger: opts.withLogger,
	}, nil
}

// Get implements CookieStore. A cookie that fails to unseal is logged and
// read as absent.
func (s *SealedStore) Get(r *http.Request, name string) (string, bool) {
	cookie, err := r.Cookie(name)
	if err != nil {
		return "", false
	}
	var value string
	if err := s.codec.Decode(name, cookie.Value, &value); err != nil {
		s.logger.Warn("dropping cookie that failed to unseal", "cookie", name, "error", err)
		return "", false
	}
	return value, true
}

// Set implements CookieStore.
func (s *SealedStore) Set(w http.ResponseWriter, name, value string, ttl time.Duration) error {
	const op = "SealedStore.Set"
	encoded, err := s.codec.Encode(name, value)
	if err != nil {
		return fmt.Errorf("%s: unable to seal cookie %s: %w", op, name, err)
	}
	cookie := &http.Cookie{
		Name:     name,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl > 0 {
		cookie.MaxAge = int(ttl / time.Second)
	}
	http.SetCookie(w, cookie)
	return nil
}

// Remove implements CookieStore.
func (s *SealedStore) Remove(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}

// storeOptions is the set of available options for SealedStore
type storeOptions struct {
	withInsecureCookies bool
	withLogger          hclog.Logger
}

// storeDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func storeDefaults() storeOptions {
	return storeOptions{
		withLogger: hclog.NewNullLogger(),
	}
}

// getStoreOpts gets the defaults and applies the opt overrides passed in.
func getStoreOpts(opt ...rpflow.Option) storeOptions {
	opts := storeDefaults()
	rpflow.ApplyOpts(&opts, opt...)
	return opts
}

// WithInsecureCookies drops the Secure cookie attribute, for local
// development over plain http
func WithInsecureCookies() rpflow.Option {
	return func(o interface{}) {
		if o, ok := o.(*storeOptions); ok {
			o.withInsecureCookies = true
		}
	}
}

// WithStoreLogger provides an optional hclog.Logger for a SealedStore
func WithStoreLogger(l hclog.Logger) rpflow.Option {
	return func(o interface{}) {
		if o, ok := o.(*storeOptions); ok {
			o.withLogger = l
		}
	}
}
