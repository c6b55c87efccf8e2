package services_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amultiwary/TaskApp/internal/apperrors"
	"github.com/amultiwary/TaskApp/internal/models"
)

func TestAuthService_RegisterThenLogin(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	registered, err := s.auth.Register(ctx, models.RegisterRequest{Name: "Ada", Email: "ada@x.com", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, registered.AccessToken)
	assert.Equal(t, "Bearer", registered.TokenType)
	assert.Equal(t, int64(3600), registered.ExpiresIn)
	assert.Empty(t, registered.User.PasswordHash)

	loggedIn, err := s.auth.Login(ctx, models.LoginRequest{Email: "ada@x.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, loggedIn.User.ID)
	assert.Empty(t, loggedIn.User.PasswordHash)

	u, err := s.auth.Authenticate(ctx, loggedIn.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "ada@x.com", u.Email)
	assert.Empty(t, u.PasswordHash)
}

func TestAuthService_Login_SameErrorForUnknownEmailAndBadPassword(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()
	_, err := s.auth.Register(ctx, models.RegisterRequest{Name: "Ada", Email: "ada@x.com", Password: "secret1"})
	require.NoError(t, err)

	_, wrongPassword := s.auth.Login(ctx, models.LoginRequest{Email: "ada@x.com", Password: "nope123"})
	_, unknownEmail := s.auth.Login(ctx, models.LoginRequest{Email: "bob@x.com", Password: "secret1"})

	require.ErrorIs(t, wrongPassword, apperrors.ErrUnauthorized)
	require.ErrorIs(t, unknownEmail, apperrors.ErrUnauthorized)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestAuthService_Authenticate_Failures(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	_, err := s.auth.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	// 署名は正しいが、ユーザーが存在しない
	orphan, err := s.jwt.GenerateToken(uuid.NewString(), "ghost@x.com")
	require.NoError(t, err)
	_, err = s.auth.Authenticate(ctx, orphan)
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.Equal(t, "User no longer exists", apperrors.PublicMessage(err))
}
