package httpflow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/andover-id/rpflow"
)

// StateStore persists the login state between the login redirect and the
// provider calling back. Consume is single-use: implementations remove the
// stored entry no matter what the caller decides about the outcome, so a
// replayed callback can never match twice.
type StateStore interface {
	// Save stores state for the duration of ttl.
	Save(ctx context.Context, w http.ResponseWriter, state *rpflow.LoginState, ttl time.Duration) error

	// Consume removes and returns the stored state for this login attempt.
	// It returns nil when nothing is stored, or, for stores keyed by the
	// state value, nothing matching requestValue. An undecodable stored
	// entry also reads as nil.
	Consume(ctx context.Context, w http.ResponseWriter, r *http.Request, requestValue string) (*rpflow.LoginState, error)
}

// CookieStateStore keeps the login state in a sealed cookie on the browser
// that started the flow, which pins the callback to the same browser.
type CookieStateStore struct {
	cookies CookieStore
	name    string
}

// NewCookieStateStore creates a CookieStateStore persisting through cookies
// under the given cookie name.
func NewCookieStateStore(cookies CookieStore, name string) (*CookieStateStore, error) {
	const op = "httpflow.NewCookieStateStore"
	if cookies == nil {
		return nil, fmt.Errorf("%s: cookie store is nil: %w", op, rpflow.ErrNilParameter)
	}
	if name == "" {
		return nil, fmt.Errorf("%s: cookie name is empty: %w", op, rpflow.ErrInvalidParameter)
	}
	return &CookieStateStore{cookies: cookies, name: name}, nil
}

// Save implements StateStore.
func (s *CookieStateStore) Save(ctx context.Context, w http.ResponseWriter, state *rpflow.LoginState, ttl time.Duration) error {
	const op = "CookieStateStore.Save"
	if state == nil {
		return fmt.Errorf("%s: state is nil: %w", op, rpflow.ErrNilParameter)
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.cookies.Set(w, s.name, string(raw), ttl); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Consume implements StateStore. The stored state belongs to the browser, so
// requestValue plays no part in the lookup; the caller compares it against
// the returned state.
func (s *CookieStateStore) Consume(ctx context.Context, w http.ResponseWriter, r *http.Request, requestValue string) (*rpflow.LoginState, error) {
	raw, ok := s.cookies.Get(r, s.name)
	if !ok {
		return nil, nil
	}
	s.cookies.Remove(w, s.name)
	var state rpflow.LoginState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, nil
	}
	return &state, nil
}
