package httpflow

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"

	"github.com/andover-id/rpflow"
)

// Callback completes the authorization flow. The stored login state is
// consumed before anything else so a replayed callback URL can never be
// honored twice, and the trio of cookies is committed only after every
// upstream call has succeeded. Any failure between exchange and commit
// leaves the browser exactly as logged out as it started.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	code := q.Get("code")
	requestState := q.Get("state")
	if code == "" || requestState == "" {
		http.Error(w, "missing code or state", http.StatusBadRequest)
		return
	}

	st, err := h.verifyState(ctx, w, r, requestState)
	switch {
	case errors.Is(err, rpflow.ErrStateMissing):
		h.logger.Warn("rejected callback", "error", err)
		http.Error(w, "no login in progress", http.StatusBadRequest)
		return
	case errors.Is(err, rpflow.ErrStateMismatch):
		h.logger.Warn("rejected callback", "error", err)
		http.Error(w, "state mismatch", http.StatusUnauthorized)
		return
	case err != nil:
		h.logger.Error("consuming login state", "error", err)
		http.Error(w, "login state unavailable", http.StatusInternalServerError)
		return
	}

	tokens, err := h.client.ExchangeCode(ctx, code)
	if err != nil {
		h.logger.Error("exchanging authorization code", "error", err)
		http.Error(w, "authorization exchange failed", http.StatusBadGateway)
		return
	}

	type cookieWrite struct {
		name  string
		value string
	}
	var writes []cookieWrite
	// A grant without a refresh token cannot carry a full session: the guard
	// needs the refresh token to keep the pair alive. Only the access cookie
	// is committed, good until the token expires.
	if tokens.RefreshToken != "" {
		info, err := h.client.UserInfo(ctx, tokens.AccessToken)
		if err != nil {
			h.logger.Error("fetching userinfo", "error", err)
			http.Error(w, "userinfo fetch failed", http.StatusBadGateway)
			return
		}
		session, err := rpflow.SessionFromUserInfo(info)
		if err != nil {
			h.logger.Error("building session", "error", err)
			http.Error(w, "userinfo fetch failed", http.StatusBadGateway)
			return
		}
		encoded, err := session.Encode()
		if err != nil {
			h.logger.Error("encoding session", "error", err)
			http.Error(w, "session encoding failed", http.StatusInternalServerError)
			return
		}
		writes = append(writes,
			cookieWrite{h.names.Session, encoded},
			cookieWrite{h.names.Refresh, string(tokens.RefreshToken)},
		)
	}
	writes = append(writes, cookieWrite{h.names.Access, tokens.AccessToken})
	for _, cw := range writes {
		if err := h.cookies.Set(w, cw.name, cw.value, 0); err != nil {
			h.logger.Error("writing session cookies", "cookie", cw.name, "error", err)
			h.cookies.Remove(w, h.names.Access)
			h.cookies.Remove(w, h.names.Refresh)
			h.cookies.Remove(w, h.names.Session)
			http.Error(w, "session persistence failed", http.StatusInternalServerError)
			return
		}
	}

	target := st.RedirectTo
	if target == "" {
		target = h.postLogin
	}
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// verifyState consumes the stored login state and checks it against the
// state parameter the provider echoed back. An expired entry counts as
// missing: the login window simply closed. The comparison is constant time
// even though state values are not secrets, since the cost is nil.
func (h *Handler) verifyState(ctx context.Context, w http.ResponseWriter, r *http.Request, requestState string) (*rpflow.LoginState, error) {
	const op = "httpflow.(Handler).verifyState"
	st, err := h.states.Consume(ctx, w, r, requestState)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if st == nil {
		return nil, fmt.Errorf("%s: %w", op, rpflow.ErrStateMissing)
	}
	if st.IsExpired() {
		return nil, fmt.Errorf("%s: login state expired: %w", op, rpflow.ErrStateMissing)
	}
	if subtle.ConstantTimeCompare([]byte(st.Value), []byte(requestState)) != 1 {
		return nil, fmt.Errorf("%s: %w", op, rpflow.ErrStateMismatch)
	}
	return st, nil
}
