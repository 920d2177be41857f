package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/mfi_wallet/internal/config"
	"github.com/congo-pay/mfi_wallet/internal/member"
)

func setupAuth(t *testing.T) (*Service, member.Member) {
	t.Helper()
	repo := member.NewMemoryRepository()
	m, err := member.NewService(repo).Register(context.Background(), member.Credentials{Phone: "+242060000002", PIN: "1234", DeviceID: "d-1"})
	require.NoError(t, err)

	svc := NewService(config.Config{
		JWTSecret:       "access-secret",
		RefreshSecret:   "refresh-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	}, repo)
	return svc, m
}

func TestLoginVerifyAndRefresh(t *testing.T) {
	svc, m := setupAuth(t)
	ctx := context.Background()

	pair, err := svc.Login(m)
	require.NoError(t, err)
	assert.EqualValues(t, 900, pair.ExpiresIn)

	claims, err := svc.Verify(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, m.ID, claims.Subject)
	assert.Equal(t, member.TierZero, claims.Tier)

	_, err = svc.Verify(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	access, _, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	_, err = svc.Verify(ctx, access)
	assert.NoError(t, err)
}

func TestLogoutInvalidatesOutstandingTokens(t *testing.T) {
	svc, m := setupAuth(t)
	ctx := context.Background()

	pair, err := svc.Login(m)
	require.NoError(t, err)
	require.NoError(t, svc.Logout(ctx, pair.RefreshToken))

	_, err = svc.Verify(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalidated)
	_, _, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenInvalidated)
}

func TestVerifyRejectsExpiredAndForeignTokens(t *testing.T) {
	svc, m := setupAuth(t)
	ctx := context.Background()

	expired, _, err := Sign(m.ID, 0, m.Tier, []byte("access-secret"), time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	_, err = svc.Verify(ctx, expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	foreign, _, err := Sign(m.ID, 0, m.Tier, []byte("someone-else"), time.Minute, time.Now())
	require.NoError(t, err)
	_, err = svc.Verify(ctx, foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Verify(ctx, "not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
