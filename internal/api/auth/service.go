package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"taskmanager/internal/model"
	"taskmanager/internal/pkg/metrics"
	"taskmanager/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrMissingToken       = errors.New("missing token")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenRevoked       = errors.New("token revoked")
	ErrUserNotFound       = errors.New("user not found")
)

// UserStore 是认证所需的用户存储。
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	FindByID(ctx context.Context, id uint) (*model.User, error)
}

// Revoker 是令牌吊销名单。
type Revoker interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Service 实现注册、令牌签发/刷新/吊销以及请求身份解析。
type Service struct {
	users   UserStore
	hasher  PasswordHasher
	tokens  *TokenIssuer
	revoker Revoker
	logger  *slog.Logger
}

// NewService 创建认证服务。revoker 可为 nil，此时吊销仅依赖清除 Cookie。
func NewService(users UserStore, hasher PasswordHasher, tokens *TokenIssuer, revoker Revoker, logger *slog.Logger) *Service {
	return &Service{
		users:   users,
		hasher:  hasher,
		tokens:  tokens,
		revoker: revoker,
		logger:  logger,
	}
}

// Tokens 返回令牌签发器。
func (s *Service) Tokens() *TokenIssuer {
	return s.tokens
}

// Register 校验并创建用户。校验失败返回 FieldErrors。
func (s *Service) Register(ctx context.Context, username, password string) (*model.User, error) {
	if errs := ValidateRegistration(username, password); errs != nil {
		metrics.AuthEventsTotal.WithLabelValues("register", "invalid").Inc()
		return nil, errs
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &model.User{
		Username: username,
		Password: hash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			metrics.AuthEventsTotal.WithLabelValues("register", "invalid").Inc()
			return nil, FieldErrors{"username": {msgUsernameTaken}}
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	metrics.AuthEventsTotal.WithLabelValues("register", "success").Inc()
	if s.logger != nil {
		s.logger.Info("user registered", slog.String("username", username))
	}
	return user, nil
}

// Issue 校验用户名密码并签发一对令牌。
func (s *Service) Issue(ctx context.Context, username, password string) (TokenPair, error) {
	pair, err := s.issue(ctx, username, password)
	metrics.AuthEventsTotal.WithLabelValues("login", metrics.Result(err)).Inc()
	return pair, err
}

func (s *Service) issue(ctx context.Context, username, password string) (TokenPair, error) {
	if username == "" || password == "" {
		return TokenPair{}, ErrInvalidCredentials
	}
	user, err := s.users.FindByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return TokenPair{}, ErrInvalidCredentials
	}
	if err != nil {
		return TokenPair{}, fmt.Errorf("find user: %w", err)
	}

	ok, err := CheckPassword(user.Password, password)
	if err != nil {
		return TokenPair{}, fmt.Errorf("check password: %w", err)
	}
	if !ok {
		return TokenPair{}, ErrInvalidCredentials
	}

	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return TokenPair{}, err
	}
	if s.logger != nil {
		s.logger.Info("user logged in", slog.String("username", username))
	}
	return pair, nil
}

// Refresh 用 refresh token 换取新的 access token，refresh token 本身不轮换。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	access, exp, err := s.refresh(ctx, refreshToken)
	metrics.AuthEventsTotal.WithLabelValues("refresh", metrics.Result(err)).Inc()
	return access, exp, err
}

func (s *Service) refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	claims, err := s.tokens.Parse(refreshToken, KindRefresh)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := s.checkRevoked(ctx, claims); err != nil {
		return "", time.Time{}, err
	}
	user, err := s.userFromClaims(ctx, claims)
	if err != nil {
		return "", time.Time{}, err
	}

	access, accessClaims, err := s.tokens.Issue(KindAccess, user.ID)
	if err != nil {
		return "", time.Time{}, err
	}
	return access, accessClaims.ExpiresAt.Time, nil
}

// Revoke 尽力将提交的令牌写入吊销名单。无法解析的令牌直接忽略。
func (s *Service) Revoke(ctx context.Context, accessToken, refreshToken string) error {
	defer metrics.AuthEventsTotal.WithLabelValues("logout", "success").Inc()
	if s.revoker == nil {
		return nil
	}

	var errs []error
	for _, tok := range []struct {
		raw  string
		kind TokenKind
	}{
		{accessToken, KindAccess},
		{refreshToken, KindRefresh},
	} {
		claims, err := s.tokens.Parse(tok.raw, tok.kind)
		if err != nil {
			continue
		}
		if err := s.revoker.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
			errs = append(errs, fmt.Errorf("revoke %s token: %w", tok.kind, err))
		}
	}
	return errors.Join(errs...)
}

// Authenticate 将 access token 解析为请求身份。
func (s *Service) Authenticate(ctx context.Context, accessToken string) (model.Identity, error) {
	claims, err := s.tokens.Parse(accessToken, KindAccess)
	if err != nil {
		return model.Identity{}, err
	}
	if err := s.checkRevoked(ctx, claims); err != nil {
		return model.Identity{}, err
	}
	user, err := s.userFromClaims(ctx, claims)
	if err != nil {
		return model.Identity{}, err
	}
	return model.IdentityOf(user), nil
}

// CurrentUser 读取身份对应的用户记录。
func (s *Service) CurrentUser(ctx context.Context, ident model.Identity) (*model.User, error) {
	user, err := s.users.FindByID(ctx, ident.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

func (s *Service) checkRevoked(ctx context.Context, claims *Claims) error {
	if s.revoker == nil {
		return nil
	}
	revoked, err := s.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		return fmt.Errorf("check denylist: %w", err)
	}
	if revoked {
		return ErrTokenRevoked
	}
	return nil
}

func (s *Service) userFromClaims(ctx context.Context, claims *Claims) (*model.User, error) {
	id, err := claims.UserID()
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

// IsAuthError 报告 err 是否属于应返回 401 的认证失败（而非内部故障）。
func IsAuthError(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrMissingToken) ||
		errors.Is(err, ErrTokenRevoked) ||
		errors.Is(err, ErrUserNotFound)
}
