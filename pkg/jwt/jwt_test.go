package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestAccessAndRefreshTokensAreNotInterchangeable(t *testing.T) {
	svc := NewJWTService(testSecret, time.Hour, 24*time.Hour)

	access, err := svc.GenerateAccessToken(7, "alice")
	require.NoError(t, err)
	refresh, err := svc.GenerateRefreshToken(7, "alice")
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(access)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.NotEmpty(t, claims.ID)

	_, err = svc.ValidateAccessToken(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ValidateRefreshToken(access)
	assert.ErrorIs(t, err, ErrInvalidToken)

	claims, err = svc.ValidateRefreshToken(refresh)
	require.NoError(t, err)
	assert.True(t, claims.IsRefresh())
}

func TestValidateTokenErrors(t *testing.T) {
	svc := NewJWTService(testSecret, -time.Minute, time.Hour)
	expired, err := svc.GenerateAccessToken(1, "bob")
	require.NoError(t, err)

	_, err = svc.ValidateToken(expired)
	assert.ErrorIs(t, err, ErrExpiredToken)

	other := NewJWTService("another-secret-another-secret-xx", time.Hour, time.Hour)
	foreign, err := other.GenerateAccessToken(1, "bob")
	require.NoError(t, err)
	_, err = svc.ValidateToken(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
