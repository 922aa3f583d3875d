package rpflow

import "errors"

var (
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrNilParameter      = errors.New("nil parameter")
	ErrInvalidCACert     = errors.New("invalid CA certificate")
	ErrIDGeneratorFailed = errors.New("id generation failed")

	// ErrTransport covers network-level failures reaching the provider,
	// including timeouts and 5xx answers. ErrProtocol covers answers the
	// provider did produce but which are not usable: 4xx statuses and
	// undecodable bodies.
	ErrTransport = errors.New("provider transport failure")
	ErrProtocol  = errors.New("malformed provider response")

	// Guard taxonomy. The three missing-value errors classify as logged
	// out (see IsLoggedOut); session decoding and refresh failures are
	// distinct classes a caller may want to surface differently.
	ErrMissingAuthorization = errors.New("missing access token")
	ErrMissingRefresh       = errors.New("missing refresh token")
	ErrMissingUserinfo      = errors.New("missing session payload")
	ErrSessionDecoding      = errors.New("session payload is undecodable")
	ErrRefreshing           = errors.New("token refresh failed")

	// Callback anti-forgery checks.
	ErrStateMismatch = errors.New("state mismatch")
	ErrStateMissing  = errors.New("state missing")
)

// IsLoggedOut reports whether err means the user is simply logged out (one of
// the session values is absent from storage) rather than that something
// failed. Logged-out errors are recoverable by logging in again; the others
// are not.
func IsLoggedOut(err error) bool {
	return errors.Is(err, ErrMissingAuthorization) ||
		errors.Is(err, ErrMissingRefresh) ||
		errors.Is(err, ErrMissingUserinfo)
}
