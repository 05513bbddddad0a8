package implementation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTokenRepository_RevokeAndExpire(t *testing.T) {
	repo := NewMemoryTokenRepository()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	revoked, err := repo.IsRevoked(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, repo.Revoke(ctx, "abc", time.Minute))
	revoked, err = repo.IsRevoked(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, revoked)

	now = now.Add(time.Minute)
	revoked, err = repo.IsRevoked(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, revoked, "revocation should lapse with the token")
}

func TestMemoryTokenRepository_IgnoresExpiredTTL(t *testing.T) {
	repo := NewMemoryTokenRepository()
	ctx := context.Background()

	require.NoError(t, repo.Revoke(ctx, "old", 0))
	revoked, err := repo.IsRevoked(ctx, "old")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestMemoryTokenRepository_PrunesOnRevoke(t *testing.T) {
	repo := NewMemoryTokenRepository()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, repo.Revoke(ctx, "a", time.Second))
	now = now.Add(2 * time.Second)
	require.NoError(t, repo.Revoke(ctx, "b", time.Minute))

	assert.Len(t, repo.revoked, 1)
	assert.Contains(t, repo.revoked, "b")
}
