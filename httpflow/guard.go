package httpflow

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/andover-id/rpflow"
)

// ResolveSession inspects the request's cookies and returns the session they
// describe, refreshing the access token through the provider when it has
// expired. A refresh rotates both tokens, and the rotated pair is written
// back to w before ResolveSession returns; callers must therefore not have
// written the response header yet.
//
// The error distinguishes a browser that is simply logged out (see
// rpflow.IsLoggedOut) from ones whose cookies are present but unusable:
// rpflow.ErrSessionDecoding for a corrupt session cookie and
// rpflow.ErrRefreshing when the provider rejected or failed the refresh.
func (h *Handler) ResolveSession(w http.ResponseWriter, r *http.Request) (*rpflow.Session, error) {
	const op = "httpflow.(Handler).ResolveSession"
	access, ok := h.cookies.Get(r, h.names.Access)
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, rpflow.ErrMissingAuthorization)
	}
	refresh, ok := h.cookies.Get(r, h.names.Refresh)
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, rpflow.ErrMissingRefresh)
	}

	auth, err := rpflow.NewAuthorization(access, refresh, rpflow.WithLogger(h.logger))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := auth.EnsureFresh(r.Context(), h.client); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if auth.Dirty() {
		if err := h.cookies.Set(w, h.names.Access, auth.AccessToken(), 0); err != nil {
			return nil, fmt.Errorf("%s: writing refreshed access token: %w", op, err)
		}
		if err := h.cookies.Set(w, h.names.Refresh, auth.RefreshToken(), 0); err != nil {
			return nil, fmt.Errorf("%s: writing rotated refresh token: %w", op, err)
		}
	}

	encoded, ok := h.cookies.Get(r, h.names.Session)
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, rpflow.ErrMissingUserinfo)
	}
	session, err := rpflow.DecodeSession(encoded)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &session, nil
}

// RequireSession wraps next so it only runs with a valid session in the
// request context. Logged-out browsers are sent to the login route with a
// redirect_to pointing back at the page they asked for; a corrupt session
// cookie is dropped and treated the same way. A failed refresh is surfaced
// as a 502 since the cookies may still be good once the provider recovers.
func (h *Handler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := h.ResolveSession(w, r)
		if err != nil {
			switch {
			case rpflow.IsLoggedOut(err):
				h.redirectToLogin(w, r)
			case errors.Is(err, rpflow.ErrSessionDecoding):
				h.logger.Warn("dropping undecodable session cookie")
				h.cookies.Remove(w, h.names.Session)
				h.redirectToLogin(w, r)
			case errors.Is(err, rpflow.ErrRefreshing):
				h.logger.Error("refreshing authorization", "error", err)
				http.Error(w, "authorization refresh failed", http.StatusBadGateway)
			default:
				h.logger.Error("resolving session", "error", err)
				http.Error(w, "session resolution failed", http.StatusInternalServerError)
			}
			return
		}
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), session)))
	})
}

// RequireSessionStrict is the API flavor of RequireSession: no redirects,
// just status codes. Logged-out and undecodable both get a 401.
func (h *Handler) RequireSessionStrict(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := h.ResolveSession(w, r)
		if err != nil {
			switch {
			case rpflow.IsLoggedOut(err), errors.Is(err, rpflow.ErrSessionDecoding):
				http.Error(w, "unauthorized", http.StatusUnauthorized)
			case errors.Is(err, rpflow.ErrRefreshing):
				h.logger.Error("refreshing authorization", "error", err)
				http.Error(w, "authorization refresh failed", http.StatusBadGateway)
			default:
				h.logger.Error("resolving session", "error", err)
				http.Error(w, "session resolution failed", http.StatusInternalServerError)
			}
			return
		}
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), session)))
	})
}

func (h *Handler) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	target := h.paths.Login
	if back := r.URL.RequestURI(); back != "" && rpflow.ValidateRedirectTarget(back) == nil {
		target = h.paths.Login + "?redirect_to=" + url.QueryEscape(back)
	}
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}
