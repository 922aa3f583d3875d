package rpflow

import "encoding/json"

// TokenResponse is the provider's answer to an authorization-code or
// refresh-token exchange. RefreshToken is optional: when a refresh exchange
// omits it, the prior refresh token remains valid and must be preserved by
// the caller.
type TokenResponse struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	RefreshToken RefreshToken `json:"refresh_token,omitempty"`
}

// UserInfoResponse is the provider's answer to an authenticated userinfo
// fetch. Email is optional and absent is not the same as empty.
type UserInfoResponse struct {
	Subject string  `json:"sub"`
	Name    string  `json:"name"`
	Email   *string `json:"email,omitempty"`
}

// RefreshToken is an oauth refresh_token
type RefreshToken string

// RedactedRefreshToken is the redacted string for an oauth refresh_token
const RedactedRefreshToken = "[REDACTED: refresh_token]"

// String will redact the token
func (t RefreshToken) String() string {
	return RedactedRefreshToken
}

// MarshalJSON will redact the token
func (t RefreshToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedRefreshToken)
}
