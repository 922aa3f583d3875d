package rpflow

import (
	"encoding/json"
	"fmt"
)

// Session identifies the logged-in user between requests. It is materialized
// once during the callback phase from the provider's userinfo response and
// then carried in a sealed cookie: later requests re-validate its structure
// on decode, they do not re-fetch userinfo.
type Session struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Email  *string `json:"email,omitempty"`
	Scopes string  `json:"scopes"`
}

// SessionFromUserInfo maps a userinfo response onto a Session. Scopes is left
// empty until the provider exposes granted scopes.
func SessionFromUserInfo(info *UserInfoResponse) (Session, error) {
	const op = "rpflow.SessionFromUserInfo"
	if info == nil {
		return Session{}, fmt.Errorf("%s: userinfo response is nil: %w", op, ErrNilParameter)
	}
	if info.Subject == "" {
		return Session{}, fmt.Errorf("%s: userinfo subject is empty: %w", op, ErrProtocol)
	}
	return Session{
		ID:    info.Subject,
		Name:  info.Name,
		Email: info.Email,
	}, nil
}

// Encode serializes the session to its persisted (cookie) form.
func (s Session) Encode() (string, error) {
	const op = "Session.Encode"
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(raw), nil
}

// DecodeSession parses a persisted session. Any structural mismatch yields an
// error wrapping ErrSessionDecoding: corrupted or forged payloads must read
// as a typed failure the caller inspects, never as a fault.
func DecodeSession(raw string) (Session, error) {
	const op = "rpflow.DecodeSession"
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Session{}, fmt.Errorf("%s: %w", op, ErrSessionDecoding)
	}
	if s.ID == "" {
		return Session{}, fmt.Errorf("%s: session id is empty: %w", op, ErrSessionDecoding)
	}
	return s, nil
}
