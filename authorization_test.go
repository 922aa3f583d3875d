package rpflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAuthorization(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name         string
		accessToken  string
		refreshToken string
		wantErr      bool
	}{
		{name: "valid", accessToken: "A1", refreshToken: "R1"},
		{name: "missing-access", refreshToken: "R1", wantErr: true},
		{name: "missing-refresh", accessToken: "A1", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			got, err := NewAuthorization(tt.accessToken, tt.refreshToken)
			if tt.wantErr {
				require.Error(err)
				assert.True(errors.Is(err, ErrInvalidParameter))
				return
			}
			require.NoError(err)
			assert.Equal(tt.accessToken, got.AccessToken())
			assert.Equal(tt.refreshToken, got.RefreshToken())
			assert.False(got.Dirty())
		})
	}
}

func TestAuthorization_Expired(t *testing.T) {
	t.Parallel()
	tp := StartTestProvider(t)

	tests := []struct {
		name        string
		accessToken string
		opts        []Option
		want        bool
	}{
		{
			name:        "future-expiry",
			accessToken: tp.SignedAccessToken(time.Hour),
			want:        false,
		},
		{
			name:        "past-expiry",
			accessToken: tp.SignedAccessToken(-time.Hour),
			want:        true,
		},
		{
			name:        "within-skew",
			accessToken: tp.SignedAccessToken(5 * time.Second),
			want:        true, // default skew is 10s
		},
		{
			name:        "within-custom-skew",
			accessToken: tp.SignedAccessToken(30 * time.Minute),
			opts:        []Option{WithExpirySkew(time.Hour)},
			want:        true,
		},
		{
			name:        "unparsable-token-fails-safe",
			accessToken: "A-old",
			want:        true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			authz, err := NewAuthorization(tt.accessToken, "R1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, authz.Expired(tt.opts...))
		})
	}
}

func TestAuthorization_EnsureFresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("fresh-token-no-refresh", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		client := testClient(t, tp)

		access := tp.SignedAccessToken(time.Hour)
		authz, err := NewAuthorization(access, "R1")
		require.NoError(err)

		require.NoError(authz.EnsureFresh(ctx, client))
		assert.False(authz.Dirty())
		assert.Equal(access, authz.AccessToken())
		assert.Equal("R1", authz.RefreshToken())
		assert.Equal(0, tp.RefreshCount())
	})

	t.Run("expired-token-refreshes-once", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.SetTokens("A1", "R1")
		tp.SetRefreshedTokens("A2", "R2")
		client := testClient(t, tp)

		authz, err := NewAuthorization(tp.SignedAccessToken(-time.Hour), "R1")
		require.NoError(err)

		require.NoError(authz.EnsureFresh(ctx, client))
		assert.True(authz.Dirty())
		assert.Equal("A2", authz.AccessToken())
		assert.Equal("R2", authz.RefreshToken())
		assert.Equal(1, tp.RefreshCount())
	})

	t.Run("omitted-refresh-token-keeps-prior", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.SetTokens("A-old", "R1")
		tp.SetRefreshedTokens("A2", "")
		client := testClient(t, tp)

		authz, err := NewAuthorization("A-old", "R1")
		require.NoError(err)

		require.NoError(authz.EnsureFresh(ctx, client))
		assert.True(authz.Dirty())
		assert.Equal("A2", authz.AccessToken())
		assert.Equal("R1", authz.RefreshToken())
	})

	t.Run("refresh-failure-leaves-pair-untouched", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.SetTokenError(500)
		client := testClient(t, tp)

		authz, err := NewAuthorization("A-old", "R1")
		require.NoError(err)

		err = authz.EnsureFresh(ctx, client)
		require.Error(err)
		assert.True(errors.Is(err, ErrRefreshing))
		assert.False(authz.Dirty())
		assert.Equal("A-old", authz.AccessToken())
		assert.Equal("R1", authz.RefreshToken())
	})

	t.Run("rejected-refresh-token-is-refreshing-error", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		tp.SetTokens("A1", "R1")
		client := testClient(t, tp)

		authz, err := NewAuthorization("A-old", "R-consumed")
		require.NoError(err)

		err = authz.EnsureFresh(ctx, client)
		require.Error(err)
		assert.True(errors.Is(err, ErrRefreshing))
		assert.Equal(1, tp.RefreshCount())
	})

	t.Run("nil-client", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)
		authz, err := NewAuthorization("A1", "R1")
		require.NoError(err)
		err = authz.EnsureFresh(ctx, nil)
		require.Error(err)
		require.True(errors.Is(err, ErrNilParameter))
	})
}
