package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind 区分 access 与 refresh 令牌。
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// Claims 是签发令牌的载荷。
type Claims struct {
	jwt.RegisteredClaims
	Kind TokenKind `json:"token_type"`
}

// UserID 解析 subject 中的用户 ID。
func (c *Claims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrInvalidToken
	}
	return uint(id), nil
}

// TokenPair 登录时一起签发的一对令牌。
type TokenPair struct {
	Access         string
	AccessExpires  time.Time
	Refresh        string
	RefreshExpires time.Time
}

// TokenIssuer 使用 HS256 签发和校验令牌。
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenIssuer 创建令牌签发器。
func NewTokenIssuer(secret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	if accessTTL <= 0 {
		accessTTL = 5 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 24 * time.Hour
	}
	return &TokenIssuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// IssuePair 为用户签发一对新令牌。
func (t *TokenIssuer) IssuePair(userID uint) (TokenPair, error) {
	access, accessClaims, err := t.Issue(KindAccess, userID)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshClaims, err := t.Issue(KindRefresh, userID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		Access:         access,
		AccessExpires:  accessClaims.ExpiresAt.Time,
		Refresh:        refresh,
		RefreshExpires: refreshClaims.ExpiresAt.Time,
	}, nil
}

// Issue 签发指定类型的令牌。
func (t *TokenIssuer) Issue(kind TokenKind, userID uint) (string, *Claims, error) {
	ttl := t.accessTTL
	if kind == KindRefresh {
		ttl = t.refreshTTL
	}
	now := t.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Kind: kind,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, claims, nil
}

// Parse 校验签名、过期时间与令牌类型。
func (t *TokenIssuer) Parse(tokenStr string, kind TokenKind) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrMissingToken
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidToken, ErrTokenExpired)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Kind != kind || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// AccessTTL 返回 access token 有效期。
func (t *TokenIssuer) AccessTTL() time.Duration { return t.accessTTL }

// RefreshTTL 返回 refresh token 有效期。
func (t *TokenIssuer) RefreshTTL() time.Duration { return t.refreshTTL }
