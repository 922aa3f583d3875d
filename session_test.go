package rpflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionFromUserInfo(t *testing.T) {
	t.Parallel()
	email := "ann@example.com"
	tests := []struct {
		name      string
		info      *UserInfoResponse
		want      Session
		wantErr   bool
		wantIsErr error
	}{
		{
			name: "with-email",
			info: &UserInfoResponse{Subject: "u-1", Name: "Ann", Email: &email},
			want: Session{ID: "u-1", Name: "Ann", Email: &email},
		},
		{
			name: "without-email",
			info: &UserInfoResponse{Subject: "u-2", Name: "Bob"},
			want: Session{ID: "u-2", Name: "Bob"},
		},
		{
			name:      "nil-info",
			wantErr:   true,
			wantIsErr: ErrNilParameter,
		},
		{
			name:      "empty-subject",
			info:      &UserInfoResponse{Name: "Ann"},
			wantErr:   true,
			wantIsErr: ErrProtocol,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			got, err := SessionFromUserInfo(tt.info)
			if tt.wantErr {
				require.Error(err)
				assert.True(errors.Is(err, tt.wantIsErr))
				return
			}
			require.NoError(err)
			assert.Equal(tt.want, got)
			assert.Empty(got.Scopes)
		})
	}
}

func TestSession_roundTrip(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	email := "ann@example.com"
	for _, session := range []Session{
		{ID: "u-1", Name: "Ann", Email: &email, Scopes: ""},
		{ID: "u-2", Name: "Bob"},
		{ID: "u-3", Name: "名前", Scopes: "basic email"},
	} {
		encoded, err := session.Encode()
		require.NoError(err)
		decoded, err := DecodeSession(encoded)
		require.NoError(err)
		assert.Equal(session, decoded)
	}
}

func TestDecodeSession_malformed(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "not-json", raw: "not json at all"},
		{name: "wrong-shape", raw: `[1,2,3]`},
		{name: "wrong-field-type", raw: `{"id": 42}`},
		{name: "missing-id", raw: `{"name":"Ann"}`},
		{name: "truncated", raw: `{"id":"u-1","name":"An`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeSession(tt.raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSessionDecoding))
		})
	}
}
