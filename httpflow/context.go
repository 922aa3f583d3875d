package httpflow

import (
	"context"

	"github.com/andover-id/rpflow"
)

type contextKey struct{}

// NewContext returns a context carrying the resolved session.
func NewContext(ctx context.Context, s *rpflow.Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session placed by RequireSession, or nil when the
// request did not pass through the guard.
func FromContext(ctx context.Context) *rpflow.Session {
	s, _ := ctx.Value(contextKey{}).(*rpflow.Session)
	return s
}
