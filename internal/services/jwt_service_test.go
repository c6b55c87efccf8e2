package services_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amultiwary/TaskApp/internal/services"
)

func TestJWTService_GenerateAndValidate(t *testing.T) {
	s := services.NewJWTService("test-secret", "taskapp-test", time.Hour)

	token, err := s.GenerateToken("user-123", "ada@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserID)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, 5*time.Second)
}

func TestJWTService_Expired(t *testing.T) {
	s := services.NewJWTService("test-secret", "taskapp-test", -time.Minute)

	token, err := s.GenerateToken("user-123", "ada@example.com")
	require.NoError(t, err)

	_, err = s.ValidateToken(token)
	assert.ErrorIs(t, err, services.ErrExpiredToken)
}

func TestJWTService_RejectsForeignTokens(t *testing.T) {
	s := services.NewJWTService("test-secret", "taskapp-test", time.Hour)

	otherSecret, err := services.NewJWTService("other-secret", "taskapp-test", time.Hour).GenerateToken("u", "e@x.com")
	require.NoError(t, err)
	otherIssuer, err := services.NewJWTService("test-secret", "someone-else", time.Hour).GenerateToken("u", "e@x.com")
	require.NoError(t, err)
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "u",
		Issuer:    "taskapp-test",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"wrong secret": otherSecret,
		"wrong issuer": otherIssuer,
		"alg none":     unsigned,
		"garbage":      "not-a-token",
		"empty":        "",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := s.ValidateToken(token)
			assert.ErrorIs(t, err, services.ErrInvalidToken)
		})
	}
}
