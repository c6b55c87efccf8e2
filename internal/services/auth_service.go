package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/amultiwary/TaskApp/internal/apperrors"
	"github.com/amultiwary/TaskApp/internal/models"
	"github.com/amultiwary/TaskApp/internal/repositories"
)

const (
	invalidCredentials = "Invalid email or password"
	invalidToken       = "Invalid or expired token"
	userGone           = "User no longer exists"
)

// AuthService はログイン・登録時のトークン発行と、リクエストごとのトークン検証を扱います。
type AuthService struct {
	users  *UserService
	hasher *PasswordHasher
	jwt    *JWTService
}

// NewAuthService は新しいAuthServiceを作成します。
func NewAuthService(users *UserService, hasher *PasswordHasher, jwt *JWTService) *AuthService {
	return &AuthService{users: users, hasher: hasher, jwt: jwt}
}

// Register はユーザーを登録し、そのままトークンを発行します。
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	u, err := s.users.RegisterUser(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.issue(u)
}

// Login は資格情報を照合してトークンを発行します。
// メールが存在しない場合とパスワードが違う場合で同じエラーを返します。
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	u, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			s.hasher.VerifyDecoy(req.Password)
			return nil, apperrors.Unauthorized(invalidCredentials)
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if !s.hasher.Verify(req.Password, u.PasswordHash) {
		return nil, apperrors.Unauthorized(invalidCredentials)
	}
	return s.issue(u.Public())
}

// Authenticate はトークンを検証し、現存するユーザーを返します。副作用はありません。
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.jwt.ValidateToken(token)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUnauthorized, invalidToken, err)
	}
	u, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, apperrors.Unauthorized(userGone)
		}
		return nil, fmt.Errorf("failed to resolve token user: %w", err)
	}
	return u, nil
}

func (s *AuthService) issue(u *models.User) (*models.AuthResponse, error) {
	token, err := s.jwt.GenerateToken(u.ID, u.Email)
	if err != nil {
		slog.Error("Failed to generate token", "error", err)
		return nil, err
	}
	return &models.AuthResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.jwt.TTL().Seconds()),
		User:        u,
	}, nil
}
