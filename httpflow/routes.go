package httpflow

import (
	"github.com/gorilla/mux"
)

// Mount registers the login, callback and logout routes on r. The paths come
// from the Handler's configured RoutePaths.
func (h *Handler) Mount(r *mux.Router) {
	r.HandleFunc(h.paths.Login, h.Login).Methods("GET")
	r.HandleFunc(h.paths.Callback, h.Callback).Methods("GET")
	r.HandleFunc(h.paths.Logout, h.Logout).Methods("GET")
}
