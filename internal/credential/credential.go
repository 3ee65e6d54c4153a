// Package credential はパスワードのハッシュ化と検証を提供する。
package credential

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes はbcryptが扱えるパスワードの最大バイト長。
const MaxPasswordBytes = 72

var (
	// ErrEmptyPassword は空のパスワードが渡された場合のエラー。
	ErrEmptyPassword = errors.New("password is empty")
	// ErrPasswordTooLong はパスワードがMaxPasswordBytesを超える場合のエラー。
	ErrPasswordTooLong = errors.New("password exceeds 72 bytes")
)

// Store はbcryptによるパスワードハッシュの生成と照合を行う。
type Store struct {
	cost int
}

// NewStore はStoreを生成する。costが範囲外の場合はbcrypt.DefaultCostを使用する。
func NewStore(cost int) *Store {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Store{cost: cost}
}

// Hash はパスワードのソルト付きハッシュを返す。
// 同じパスワードでも呼び出しごとに異なるハッシュになる。
func (s *Store) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify はパスワードがハッシュと一致するかを返す。
// 空または不正な形式のハッシュに対してはfalseを返す。
func (s *Store) Verify(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
