// Package redisstate keeps login state in Redis instead of a browser
// cookie. Entries are keyed by the state value itself, so the callback's
// state parameter is the lookup key and a GETDEL makes consumption atomic
// across replicas of the relying party.
package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/andover-id/rpflow"
)

const keyPrefix = "rpflow:state:"

// Store implements httpflow.StateStore on a Redis client.
type Store struct {
	client redis.UniversalClient
}

// New creates a Store using client for persistence.
func New(client redis.UniversalClient) (*Store, error) {
	const op = "redisstate.New"
	if client == nil {
		return nil, fmt.Errorf("%s: redis client is nil: %w", op, rpflow.ErrNilParameter)
	}
	return &Store{client: client}, nil
}

// Save stores state under its own value for the duration of ttl. Redis
// enforces the expiry, so an abandoned login cleans itself up.
func (s *Store) Save(ctx context.Context, w http.ResponseWriter, state *rpflow.LoginState, ttl time.Duration) error {
	const op = "redisstate.(Store).Save"
	if state == nil {
		return fmt.Errorf("%s: state is nil: %w", op, rpflow.ErrNilParameter)
	}
	if state.Value == "" {
		return fmt.Errorf("%s: state value is empty: %w", op, rpflow.ErrInvalidParameter)
	}
	if ttl <= 0 {
		return fmt.Errorf("%s: ttl not greater than zero: %w", op, rpflow.ErrInvalidParameter)
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.client.Set(ctx, keyPrefix+state.Value, raw, ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Consume atomically removes and returns the entry stored under
// requestValue. A miss reads as nil: either no login under this value is in
// progress, it already expired, or it was consumed once before.
func (s *Store) Consume(ctx context.Context, w http.ResponseWriter, r *http.Request, requestValue string) (*rpflow.LoginState, error) {
	const op = "redisstate.(Store).Consume"
	if requestValue == "" {
		return nil, nil
	}
	raw, err := s.client.GetDel(ctx, keyPrefix+requestValue).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var state rpflow.LoginState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, nil
	}
	return &state, nil
}
