// Package services はアプリケーションのビジネスロジックを提供します。
package services

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost はbcryptの既定コストです。
const DefaultBcryptCost = 12

// PasswordHasher はパスワードのハッシュ化と照合を行います。
type PasswordHasher struct {
	cost    int
	compare func(hash, password []byte) error

	decoyOnce sync.Once
	decoy     []byte
}

// NewPasswordHasher は指定コストのPasswordHasherを作成します。範囲外の値は既定値になります。
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &PasswordHasher{cost: cost, compare: bcrypt.CompareHashAndPassword}
}

// Hash はパスワードをソルト付きでハッシュ化します。
func (h *PasswordHasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify はパスワードがハッシュと一致するかを返します。
func (h *PasswordHasher) Verify(password, hash string) bool {
	return h.compare([]byte(hash), []byte(password)) == nil
}

// VerifyDecoy は存在しないユーザーに対しても同じコストの照合を行い、常に false を返します。
// 応答時間からメールアドレスの登録有無が分からないようにします。
func (h *PasswordHasher) VerifyDecoy(password string) bool {
	h.decoyOnce.Do(func() {
		// 生成に失敗した場合 decoy は空のままで、照合は即座に失敗する
		h.decoy, _ = bcrypt.GenerateFromPassword([]byte("taskapp-decoy-password"), h.cost)
	})
	_ = h.compare(h.decoy, []byte(password))
	return false
}
