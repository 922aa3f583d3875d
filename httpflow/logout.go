package httpflow

import (
	"net/http"

	"github.com/andover-id/rpflow"
)

// Logout drops the three session cookies and sends the browser to the
// validated redirect_to query parameter, or the post-logout target when none
// is given. Logging out never talks to the provider, so it succeeds even
// when the provider is unreachable. The 303 forces a GET on the target
// regardless of the method used to log out.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookies.Remove(w, h.names.Access)
	h.cookies.Remove(w, h.names.Refresh)
	h.cookies.Remove(w, h.names.Session)

	target := h.postLogout
	if raw := r.URL.Query().Get("redirect_to"); raw != "" {
		if err := rpflow.ValidateRedirectTarget(raw); err != nil {
			h.logger.Warn("ignoring logout redirect target", "error", err)
		} else {
			target = raw
		}
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
