package rpflow

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/go-uuid"
	"github.com/stretchr/testify/require"
)

// TestProvider is a local server implementing the three identity-provider
// endpoints the flow consumes: authorize, token and userinfo, plus an OIDC
// discovery document. It makes writing tests much easier.
//
// Every mutator is safe for concurrent use, since the provider is typically
// driven from test goroutines while handlers run.
type TestProvider struct {
	httpServer *httptest.Server
	signingKey []byte

	mu                sync.Mutex
	clientID          string
	clientSecret      string
	expectedAuthCode  string
	accessToken       string
	refreshToken      string
	nextAccessToken   string
	nextRefreshToken  string
	currentAccess     string
	expiresIn         int64
	omitRefreshToken  bool
	omitRotation      bool
	tokenErrorCode    int
	userinfoErrorCode int
	rawTokenResponse  string
	tokenDelay        time.Duration
	replySubject      string
	replyName         string
	replyEmail        *string

	exchangeCount int
	refreshCount  int
	userinfoCount int

	t *testing.T
}

// StartTestProvider creates a disposable TestProvider. It is stopped
// automatically when the test finishes.
func StartTestProvider(t *testing.T) *TestProvider {
	t.Helper()
	require := require.New(t)

	key, err := uuid.GenerateRandomBytes(32)
	require.NoError(err)

	p := &TestProvider{
		t:                t,
		signingKey:       key,
		clientID:         "test-client-id",
		clientSecret:     "test-client-secret",
		expectedAuthCode: testID(t, "code"),
		accessToken:      testID(t, "at"),
		refreshToken:     testID(t, "rt"),
		nextAccessToken:  testID(t, "at-next"),
		nextRefreshToken: testID(t, "rt-next"),
		expiresIn:        3600,
		replySubject:     testID(t, "sub"),
		replyName:        "Test User",
	}
	p.currentAccess = p.accessToken

	p.httpServer = httptest.NewServer(p)
	t.Cleanup(p.httpServer.Close)
	return p
}

func testID(t *testing.T, prefix string) string {
	t.Helper()
	id, err := uuid.GenerateUUID()
	require.NoError(t, err)
	return fmt.Sprintf("%s_%s", prefix, id)
}

// Addr returns the provider's base URL, which also serves as its issuer.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// AuthorizeEndpoint returns the provider's authorize endpoint.
func (p *TestProvider) AuthorizeEndpoint() string { return p.httpServer.URL + "/authorize" }

// TokenEndpoint returns the provider's token endpoint.
func (p *TestProvider) TokenEndpoint() string { return p.httpServer.URL + "/token" }

// UserinfoEndpoint returns the provider's userinfo endpoint.
func (p *TestProvider) UserinfoEndpoint() string { return p.httpServer.URL + "/userinfo" }

// ClientCreds returns the client id and secret the provider accepts.
func (p *TestProvider) ClientCreds() (string, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clientID, p.clientSecret
}

// SetClientCreds configures the client credentials required on the token
// endpoint.
func (p *TestProvider) SetClientCreds(id, secret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = id
	p.clientSecret = secret
}

// SetExpectedAuthCode configures the code issued by /authorize and the only
// code /token accepts.
func (p *TestProvider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
}

// ExpectedAuthCode returns the currently accepted authorization code.
func (p *TestProvider) ExpectedAuthCode() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.expectedAuthCode
}

// SetTokens configures the pair issued by the authorization-code exchange.
func (p *TestProvider) SetTokens(accessToken, refreshToken string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accessToken = accessToken
	p.refreshToken = refreshToken
	p.currentAccess = accessToken
}

// SetRefreshedTokens configures the pair issued by the refresh-token
// exchange. An empty refreshToken makes the refresh response omit the
// refresh_token field, leaving the prior one valid.
func (p *TestProvider) SetRefreshedTokens(accessToken, refreshToken string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextAccessToken = accessToken
	p.nextRefreshToken = refreshToken
	p.omitRotation = refreshToken == ""
}

// SetExpiresIn configures the expires_in value of token responses.
func (p *TestProvider) SetExpiresIn(seconds int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expiresIn = seconds
}

// OmitRefreshTokens makes the authorization-code exchange grant only an
// access token.
func (p *TestProvider) OmitRefreshTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitRefreshToken = true
}

// SetTokenError makes /token reply with the given status code.
func (p *TestProvider) SetTokenError(statusCode int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenErrorCode = statusCode
}

// SetUserinfoError makes /userinfo reply with the given status code.
func (p *TestProvider) SetUserinfoError(statusCode int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userinfoErrorCode = statusCode
}

// SetRawTokenResponse overrides the /token response body, for tests that
// need a malformed reply.
func (p *TestProvider) SetRawTokenResponse(body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rawTokenResponse = body
}

// SetTokenDelay makes /token stall before answering, for tests that need
// overlapping in-flight exchanges.
func (p *TestProvider) SetTokenDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenDelay = d
}

// SetUserInfoReply configures the userinfo claims. email may be nil.
func (p *TestProvider) SetUserInfoReply(subject, name string, email *string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replySubject = subject
	p.replyName = name
	p.replyEmail = email
}

// ExchangeCount returns how many authorization-code exchanges /token has
// seen, accepted or not.
func (p *TestProvider) ExchangeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exchangeCount
}

// RefreshCount returns how many refresh exchanges /token has seen, accepted
// or not.
func (p *TestProvider) RefreshCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshCount
}

// UserinfoCount returns how many requests /userinfo served.
func (p *TestProvider) UserinfoCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userinfoCount
}

// SignedAccessToken mints an HS256 token whose exp claim lies expireIn from
// now, for tests that need a parsable expiry. Negative values produce an
// already-expired token.
func (p *TestProvider) SignedAccessToken(expireIn time.Duration) string {
	p.t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   p.replySubject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expireIn)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		Issuer:    p.httpServer.URL,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.signingKey)
	require.NoError(p.t, err)
	return signed
}

// ServeHTTP implements the provider endpoints.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch req.URL.Path {
	case "/.well-known/openid-configuration":
		p.writeJSON(w, http.StatusOK, map[string]interface{}{
			"issuer":                 p.httpServer.URL,
			"authorization_endpoint": p.httpServer.URL + "/authorize",
			"token_endpoint":         p.httpServer.URL + "/token",
			"userinfo_endpoint":      p.httpServer.URL + "/userinfo",
			"jwks_uri":               p.httpServer.URL + "/.well-known/jwks.json",
		})
	case "/.well-known/jwks.json":
		p.writeJSON(w, http.StatusOK, map[string]interface{}{"keys": []interface{}{}})
	case "/authorize":
		p.authorize(w, req)
	case "/token":
		p.token(w, req)
	case "/userinfo":
		p.userinfo(w, req)
	default:
		http.NotFound(w, req)
	}
}

func (p *TestProvider) authorize(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	switch {
	case q.Get("response_type") != "code",
		q.Get("client_id") != p.clientID,
		q.Get("redirect_uri") == "",
		q.Get("state") == "":
		http.Error(w, "invalid authorize request", http.StatusBadRequest)
		return
	}
	location := fmt.Sprintf("%s?code=%s&state=%s", q.Get("redirect_uri"), p.expectedAuthCode, q.Get("state"))
	http.Redirect(w, req, location, http.StatusFound)
}

func (p *TestProvider) token(w http.ResponseWriter, req *http.Request) {
	if p.tokenDelay > 0 {
		p.mu.Unlock()
		time.Sleep(p.tokenDelay)
		p.mu.Lock()
	}
	if p.tokenErrorCode != 0 {
		p.writeJSON(w, p.tokenErrorCode, map[string]interface{}{"error": "server_error"})
		return
	}
	if err := req.ParseForm(); err != nil {
		p.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid_request"})
		return
	}
	if req.PostFormValue("client_id") != p.clientID || req.PostFormValue("client_secret") != p.clientSecret {
		p.writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"error": "invalid_client"})
		return
	}
	if p.rawTokenResponse != "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, p.rawTokenResponse)
		return
	}

	switch req.PostFormValue("grant_type") {
	case "authorization_code":
		p.exchangeCount++
		if req.PostFormValue("code") != p.expectedAuthCode {
			p.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid_grant"})
			return
		}
		reply := map[string]interface{}{
			"access_token": p.accessToken,
			"token_type":   "Bearer",
			"expires_in":   p.expiresIn,
		}
		if !p.omitRefreshToken {
			reply["refresh_token"] = p.refreshToken
		}
		p.currentAccess = p.accessToken
		p.writeJSON(w, http.StatusOK, reply)
	case "refresh_token":
		p.refreshCount++
		if req.PostFormValue("refresh_token") != p.refreshToken {
			p.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid_grant"})
			return
		}
		reply := map[string]interface{}{
			"access_token": p.nextAccessToken,
			"token_type":   "Bearer",
			"expires_in":   p.expiresIn,
		}
		if !p.omitRotation {
			reply["refresh_token"] = p.nextRefreshToken
			// Rotation consumes the old refresh token.
			p.refreshToken = p.nextRefreshToken
		}
		p.currentAccess = p.nextAccessToken
		p.writeJSON(w, http.StatusOK, reply)
	default:
		p.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "unsupported_grant_type"})
	}
}

func (p *TestProvider) userinfo(w http.ResponseWriter, req *http.Request) {
	if p.userinfoErrorCode != 0 {
		p.writeJSON(w, p.userinfoErrorCode, map[string]interface{}{"error": "server_error"})
		return
	}
	if req.Header.Get("Authorization") != "Bearer "+p.currentAccess {
		p.writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"error": "invalid_token"})
		return
	}
	p.userinfoCount++
	reply := map[string]interface{}{
		"sub":  p.replySubject,
		"name": p.replyName,
	}
	if p.replyEmail != nil {
		reply["email"] = *p.replyEmail
	}
	p.writeJSON(w, http.StatusOK, reply)
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, statusCode int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		p.t.Errorf("test provider: unable to encode reply: %s", err)
	}
}
