package jwt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	api_models "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models/api"
	auth_models "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models/auth"
)

type recordedRevocation struct {
	tokenID string
	ttl     time.Duration
}

type fakeRevocations struct {
	revoked map[string]bool
	calls   []recordedRevocation
}

func (f *fakeRevocations) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	f.calls = append(f.calls, recordedRevocation{tokenID: tokenID, ttl: ttl})
	f.revoked[tokenID] = true
	return nil
}

func (f *fakeRevocations) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	return f.revoked[tokenID], nil
}

type fakeUsers struct {
	users map[string]*auth_models.User
}

func (f *fakeUsers) Create(_ context.Context, u *auth_models.User) (*auth_models.User, error) {
	f.users[u.UserID] = u
	return u, nil
}
func (f *fakeUsers) GetByID(_ context.Context, id string) (*auth_models.User, error) {
	return f.users[id], nil
}
func (f *fakeUsers) GetByUsername(_ context.Context, name string) (*auth_models.User, error) {
	for _, u := range f.users {
		if u.Username == name {
			return u, nil
		}
	}
	return nil, nil
}
func (f *fakeUsers) GetByRole(context.Context, string) ([]*auth_models.User, error) { return nil, nil }
func (f *fakeUsers) GetAll(context.Context) ([]*auth_models.User, error)            { return nil, nil }
func (f *fakeUsers) Update(context.Context, *auth_models.User) error                { return nil }

var issuedAt = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig() api_models.Config {
	return api_models.Config{
		SecretKey:            "test-secret",
		AccessTokenDuration:  15 * time.Minute,
		RefreshTokenDuration: 24 * time.Hour,
		Issuer:               "temperature-server",
	}
}

func newTestService(t *testing.T) (*Service, *fakeRevocations) {
	t.Helper()
	revocations := &fakeRevocations{revoked: make(map[string]bool)}
	s := NewService(testConfig(), revocations)
	s.now = func() time.Time { return issuedAt }
	return s, revocations
}

func TestGenerateAndValidateAccessToken(t *testing.T) {
	s, _ := newTestService(t)

	pair, err := s.GenerateTokens("u1", "alice", auth_models.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, issuedAt.Add(15*time.Minute).Unix(), pair.ExpiresAt)
	assert.Equal(t, issuedAt.Add(24*time.Hour).Unix(), pair.RefreshExpiresAt)

	claims, err := s.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, auth_models.RoleUser, claims.Role)
	assert.Equal(t, pair.TokenID, claims.TokenID)
	assert.Equal(t, pair.TokenID, claims.ID)
}

func TestTokenTypesAreNotInterchangeable(t *testing.T) {
	s, _ := newTestService(t)

	pair, err := s.GenerateTokens("u1", "alice", auth_models.RoleUser)
	require.NoError(t, err)

	_, err = s.ValidateAccessToken(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = s.ValidateRefreshToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsBadTokens(t *testing.T) {
	s, _ := newTestService(t)
	pair, err := s.GenerateTokens("u1", "alice", auth_models.RoleUser)
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		s.now = func() time.Time { return issuedAt.Add(time.Hour) }
		defer func() { s.now = func() time.Time { return issuedAt } }()

		_, err := s.ValidateAccessToken(pair.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		cfg := testConfig()
		cfg.SecretKey = "other"
		other := NewService(cfg, nil)
		other.now = s.now

		_, err := other.ValidateAccessToken(pair.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		cfg := testConfig()
		cfg.Issuer = "someone-else"
		other := NewService(cfg, nil)
		other.now = s.now

		_, err := other.ValidateAccessToken(pair.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := s.ValidateAccessToken("not-a-jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestRevokeUsesRemainingRefreshLifetime(t *testing.T) {
	s, revocations := newTestService(t)
	s.now = func() time.Time { return issuedAt.Add(4 * time.Hour) }

	require.NoError(t, s.Revoke(context.Background(), "tok-1", issuedAt))

	require.Len(t, revocations.calls, 1)
	assert.Equal(t, "tok-1", revocations.calls[0].tokenID)
	assert.Equal(t, 20*time.Hour, revocations.calls[0].ttl)

	revoked, err := s.IsRevoked(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestRevokeWithoutStoreIsNoop(t *testing.T) {
	s := NewService(testConfig(), nil)

	require.NoError(t, s.Revoke(context.Background(), "tok-1", time.Now()))
	revoked, err := s.IsRevoked(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRefreshTokens(t *testing.T) {
	ctx := context.Background()
	users := &fakeUsers{users: map[string]*auth_models.User{
		"u1": {UserID: "u1", Username: "alice", Role: auth_models.RoleAdmin, Active: true},
		"u2": {UserID: "u2", Username: "bob", Role: auth_models.RoleUser, Active: false},
	}}

	t.Run("issues a fresh pair", func(t *testing.T) {
		s, _ := newTestService(t)
		pair, err := s.GenerateTokens("u1", "alice", auth_models.RoleAdmin)
		require.NoError(t, err)

		refreshed, err := s.RefreshTokens(ctx, pair.RefreshToken, users)
		require.NoError(t, err)
		assert.NotEqual(t, pair.TokenID, refreshed.TokenID)

		claims, err := s.ValidateAccessToken(refreshed.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, auth_models.RoleAdmin, claims.Role)
	})

	t.Run("revoked", func(t *testing.T) {
		s, _ := newTestService(t)
		pair, err := s.GenerateTokens("u1", "alice", auth_models.RoleAdmin)
		require.NoError(t, err)
		require.NoError(t, s.Revoke(ctx, pair.TokenID, issuedAt))

		_, err = s.RefreshTokens(ctx, pair.RefreshToken, users)
		assert.ErrorIs(t, err, ErrTokenRevoked)
	})

	t.Run("inactive user", func(t *testing.T) {
		s, _ := newTestService(t)
		pair, err := s.GenerateTokens("u2", "bob", auth_models.RoleUser)
		require.NoError(t, err)

		_, err = s.RefreshTokens(ctx, pair.RefreshToken, users)
		assert.Error(t, err)
	})
}
