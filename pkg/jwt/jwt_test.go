package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewService("secret", time.Hour)

	token, err := svc.GenerateToken("user-1", RoleUser)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.True(t, claims.HasRole(RoleUser))
	assert.False(t, claims.HasRole(RoleAdmin))
}

func TestTokenSignedWithOtherSecretIsRejected(t *testing.T) {
	token, err := NewService("a", time.Hour).GenerateToken("user-1", RoleAdmin)
	require.NoError(t, err)

	_, err = NewService("b", time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredToken(t *testing.T) {
	token, err := generateToken([]byte("s"), "user-1", RoleUser, time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	_, err = validateToken([]byte("s"), token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}
