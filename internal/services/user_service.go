package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/amultiwary/TaskApp/internal/apperrors"
	"github.com/amultiwary/TaskApp/internal/models"
	"github.com/amultiwary/TaskApp/internal/repositories"
)

const (
	NameMaxLen        = 100
	PasswordMinLen    = 6
	PasswordMaxBytes  = 72 // bcrypt はこれ以降を無視する
	emailConflictText = "Email already registered"
)

// UserService はユーザー (認証情報) 関連のビジネスロジックを扱います。
type UserService struct {
	userRepo repositories.UserRepository
	hasher   *PasswordHasher
	now      func() time.Time
}

// NewUserService は新しいUserServiceを作成します。
func NewUserService(userRepo repositories.UserRepository, hasher *PasswordHasher) *UserService {
	return &UserService{userRepo: userRepo, hasher: hasher, now: utcNow}
}

// NormalizeEmail は比較用にメールアドレスを小文字化します。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RegisterUser はユーザーを登録し、パスワードハッシュを除いたユーザーを返します。
func (s *UserService) RegisterUser(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	name := strings.TrimSpace(req.Name)
	email := NormalizeEmail(req.Email)
	if err := validateRegistration(name, email, req.Password); err != nil {
		return nil, err
	}

	if _, err := s.userRepo.FindByEmail(ctx, email); err == nil {
		return nil, apperrors.Conflict(emailConflictText)
	} else if !errors.Is(err, repositories.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}

	hashedPassword, err := s.hasher.Hash(req.Password)
	if err != nil {
		slog.Error("Failed to hash password", "error", err)
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	newUser := &models.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hashedPassword,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, newUser); err != nil {
		// 事前チェックと挿入の間に同じメールで登録された場合
		if errors.Is(err, repositories.ErrDuplicateEmail) {
			return nil, apperrors.Conflict(emailConflictText)
		}
		return nil, err
	}
	return newUser.Public(), nil // レスポンスにパスワードを含めない
}

// FindByEmail はパスワードハッシュを含むユーザーを返します。ログイン照合専用です。
func (s *UserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := s.userRepo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	return u, nil
}

// FindByID はパスワードハッシュを除いたユーザーを返します。
func (s *UserService) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return u.Public(), nil
}

func validateRegistration(name, email, password string) error {
	var problems []string
	if name == "" || utf8.RuneCountInString(name) > NameMaxLen {
		problems = append(problems, fmt.Sprintf("name must be 1-%d characters", NameMaxLen))
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		problems = append(problems, "email must be a valid address")
	}
	if len(password) < PasswordMinLen || len(password) > PasswordMaxBytes {
		problems = append(problems, fmt.Sprintf("password must be %d-%d characters", PasswordMinLen, PasswordMaxBytes))
	}
	if len(problems) > 0 {
		return apperrors.Validation(strings.Join(problems, "; "))
	}
	return nil
}

func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
