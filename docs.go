// Package rpflow implements the relying-party half of an OAuth2
// authorization code flow with refresh-token rotation, bound to the HTTP
// request/response lifecycle through sealed cookies.
//
// The package provides the protocol pieces: a Client for the three outbound
// exchanges with the identity provider, an Authorization state machine that
// refreshes an expired token pair at most once per request, a Session type
// materialized from the provider's userinfo response, and the single-use
// LoginState that binds a login attempt to its callback.
//
// The httpflow subpackage binds these pieces to net/http handlers and cookie
// storage.
package rpflow
