package httpflow

import (
	"net/http"

	"github.com/andover-id/rpflow"
)

// Login begins the authorization flow. An optional redirect_to query
// parameter names the local path to land on once the callback completes; a
// value that fails ValidateRedirectTarget is ignored in favor of the default
// target, so an open-redirect attempt never derails a login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	redirectTo := h.postLogin
	if raw := r.URL.Query().Get("redirect_to"); raw != "" {
		if err := rpflow.ValidateRedirectTarget(raw); err != nil {
			h.logger.Warn("ignoring login redirect target", "error", err)
		} else {
			redirectTo = raw
		}
	}

	st, err := rpflow.NewLoginState(h.stateTTL, redirectTo)
	if err != nil {
		h.logger.Error("creating login state", "error", err)
		http.Error(w, "login unavailable", http.StatusInternalServerError)
		return
	}
	if err := h.states.Save(r.Context(), w, st, h.stateTTL); err != nil {
		h.logger.Error("saving login state", "error", err)
		http.Error(w, "login unavailable", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, h.client.AuthCodeURL(st.Value), http.StatusTemporaryRedirect)
}
