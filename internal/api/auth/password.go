package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher 对密码做单向哈希。
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// NewPasswordHasher 按名称返回哈希器：bcrypt（默认）或 argon2id。
func NewPasswordHasher(name string) (PasswordHasher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "bcrypt":
		return bcryptHasher{cost: bcrypt.DefaultCost}, nil
	case "argon2id":
		return argon2Hasher{params: argon2id.DefaultParams}, nil
	}
	return nil, fmt.Errorf("unsupported password hasher %q", name)
}

type bcryptHasher struct {
	cost int
}

func (h bcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash: %w", err)
	}
	return string(hash), nil
}

type argon2Hasher struct {
	params *argon2id.Params
}

func (h argon2Hasher) Hash(password string) (string, error) {
	hash, err := argon2id.CreateHash(password, h.params)
	if err != nil {
		return "", fmt.Errorf("argon2id hash: %w", err)
	}
	return hash, nil
}

// CheckPassword 按哈希前缀识别算法并比对，切换哈希器后旧密码仍可登录。
func CheckPassword(hash, password string) (bool, error) {
	if strings.HasPrefix(hash, "$argon2id$") {
		return argon2id.ComparePasswordAndHash(password, hash)
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
