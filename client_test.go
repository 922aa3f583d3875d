package rpflow

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClient builds a Client against tp with explicit endpoints.
func testClient(t *testing.T, tp *TestProvider, opt ...Option) *Client {
	t.Helper()
	require := require.New(t)
	id, secret := tp.ClientCreds()
	cfg, err := NewConfig(id, ClientSecret(secret), "http://rp.example.com/callback",
		WithEndpoints(tp.AuthorizeEndpoint(), tp.TokenEndpoint(), tp.UserinfoEndpoint()),
		WithScopes("basic"),
	)
	require.NoError(err)
	client, err := NewClient(context.Background(), cfg, opt...)
	require.NoError(err)
	return client
}

func TestNewClient_discovery(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := StartTestProvider(t)
	id, secret := tp.ClientCreds()

	cfg, err := NewConfig(id, ClientSecret(secret), "http://rp.example.com/callback")
	require.NoError(err)

	client, err := NewClient(context.Background(), cfg, WithIssuer(tp.Addr()))
	require.NoError(err)
	assert.Equal(tp.AuthorizeEndpoint(), client.authorizeURL)
	assert.Equal(tp.TokenEndpoint(), client.tokenURL)
	assert.Equal(tp.UserinfoEndpoint(), client.userinfoURL)
}

func TestNewClient_noEndpointsNoIssuer(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	cfg, err := NewConfig("client-id", "client-secret", "http://rp.example.com/callback")
	require.NoError(err)
	_, err = NewClient(context.Background(), cfg)
	require.Error(err)
	require.True(errors.Is(err, ErrInvalidParameter))
}

func TestClient_AuthCodeURL(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := StartTestProvider(t)
	client := testClient(t, tp)

	raw := client.AuthCodeURL("state-123")
	u, err := url.Parse(raw)
	require.NoError(err)
	q := u.Query()
	assert.Equal("code", q.Get("response_type"))
	assert.Equal("state-123", q.Get("state"))
	assert.Equal("basic", q.Get("scope"))
	assert.Equal("http://rp.example.com/callback", q.Get("redirect_uri"))
	id, _ := tp.ClientCreds()
	assert.Equal(id, q.Get("client_id"))
}

func TestClient_ExchangeCode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.SetTokens("A1", "R1")
		client := testClient(t, tp)

		token, err := client.ExchangeCode(ctx, tp.ExpectedAuthCode())
		require.NoError(err)
		assert.Equal("A1", token.AccessToken)
		assert.Equal(RefreshToken("R1"), token.RefreshToken)
		assert.EqualValues(3600, token.ExpiresIn)
		assert.Equal(1, tp.ExchangeCount())
	})

	t.Run("rejected-code-is-protocol-error", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)
		tp := StartTestProvider(t)
		client := testClient(t, tp)

		_, err := client.ExchangeCode(ctx, "wrong-code")
		require.Error(err)
		require.True(errors.Is(err, ErrProtocol))
	})

	t.Run("5xx-is-transport-error", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)
		tp := StartTestProvider(t)
		tp.SetTokenError(500)
		client := testClient(t, tp)

		_, err := client.ExchangeCode(ctx, tp.ExpectedAuthCode())
		require.Error(err)
		require.True(errors.Is(err, ErrTransport))
	})

	t.Run("malformed-body-is-protocol-error", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)
		tp := StartTestProvider(t)
		tp.SetRawTokenResponse("this is not json")
		client := testClient(t, tp)

		_, err := client.ExchangeCode(ctx, tp.ExpectedAuthCode())
		require.Error(err)
		require.True(errors.Is(err, ErrProtocol))
	})

	t.Run("missing-access-token-is-protocol-error", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)
		tp := StartTestProvider(t)
		tp.SetRawTokenResponse(`{"token_type":"Bearer","expires_in":3600}`)
		client := testClient(t, tp)

		_, err := client.ExchangeCode(ctx, tp.ExpectedAuthCode())
		require.Error(err)
		require.True(errors.Is(err, ErrProtocol))
	})

	t.Run("unreachable-endpoint-is-transport-error", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)
		cfg, err := NewConfig("client-id", "client-secret", "http://rp.example.com/callback",
			WithEndpoints("http://127.0.0.1:1/authorize", "http://127.0.0.1:1/token", "http://127.0.0.1:1/userinfo"),
		)
		require.NoError(err)
		client, err := NewClient(ctx, cfg, WithRequestTimeout(time.Second))
		require.NoError(err)

		_, err = client.ExchangeCode(ctx, "code")
		require.Error(err)
		require.True(errors.Is(err, ErrTransport))
	})

	t.Run("empty-code", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)
		tp := StartTestProvider(t)
		client := testClient(t, tp)
		_, err := client.ExchangeCode(ctx, "")
		require.Error(err)
		require.True(errors.Is(err, ErrInvalidParameter))
	})
}

func TestClient_Refresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("rotates-both-tokens", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.SetTokens("A1", "R1")
		tp.SetRefreshedTokens("A2", "R2")
		client := testClient(t, tp)

		token, err := client.Refresh(ctx, "R1")
		require.NoError(err)
		assert.Equal("A2", token.AccessToken)
		assert.Equal(RefreshToken("R2"), token.RefreshToken)
		assert.Equal(1, tp.RefreshCount())
	})

	t.Run("response-may-omit-refresh-token", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.SetTokens("A1", "R1")
		tp.SetRefreshedTokens("A2", "")
		client := testClient(t, tp)

		token, err := client.Refresh(ctx, "R1")
		require.NoError(err)
		assert.Equal("A2", token.AccessToken)
		assert.Empty(token.RefreshToken)
	})

	t.Run("consumed-token-is-rejected", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)
		tp := StartTestProvider(t)
		tp.SetTokens("A1", "R1")
		tp.SetRefreshedTokens("A2", "R2")
		client := testClient(t, tp)

		_, err := client.Refresh(ctx, "R1")
		require.NoError(err)
		// R1 was consumed by the rotation above.
		_, err = client.Refresh(ctx, "R1")
		require.Error(err)
		require.True(errors.Is(err, ErrProtocol))
	})

	t.Run("concurrent-refreshes-share-one-exchange", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.SetTokens("A1", "R1")
		tp.SetRefreshedTokens("A2", "R2")
		tp.SetTokenDelay(100 * time.Millisecond)
		client := testClient(t, tp)

		const workers = 8
		var wg sync.WaitGroup
		results := make([]*TokenResponse, workers)
		errs := make([]error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = client.Refresh(ctx, "R1")
			}(i)
		}
		wg.Wait()

		for i := 0; i < workers; i++ {
			require.NoError(errs[i])
			assert.Equal("A2", results[i].AccessToken)
		}
		assert.Equal(1, tp.RefreshCount())
	})
}

func TestClient_UserInfo(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.SetTokens("A1", "R1")
		email := "ann@example.com"
		tp.SetUserInfoReply("u-1", "Ann", &email)
		client := testClient(t, tp)

		info, err := client.UserInfo(ctx, "A1")
		require.NoError(err)
		assert.Equal("u-1", info.Subject)
		assert.Equal("Ann", info.Name)
		require.NotNil(info.Email)
		assert.Equal(email, *info.Email)
	})

	t.Run("no-email", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.SetTokens("A1", "R1")
		tp.SetUserInfoReply("u-1", "Ann", nil)
		client := testClient(t, tp)

		info, err := client.UserInfo(ctx, "A1")
		require.NoError(err)
		assert.Nil(info.Email)
	})

	t.Run("rejected-token-is-protocol-error", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)
		tp := StartTestProvider(t)
		tp.SetTokens("A1", "R1")
		client := testClient(t, tp)

		_, err := client.UserInfo(ctx, "not-the-access-token")
		require.Error(err)
		require.True(errors.Is(err, ErrProtocol))
	})

	t.Run("5xx-is-transport-error", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)
		tp := StartTestProvider(t)
		tp.SetUserinfoError(500)
		client := testClient(t, tp)

		_, err := client.UserInfo(ctx, "A1")
		require.Error(err)
		require.True(errors.Is(err, ErrTransport))
	})
}
