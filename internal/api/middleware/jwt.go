package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"taskmanager/internal/api/auth"
	"taskmanager/internal/model"
	"taskmanager/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
)

const (
	identityKey = "identity"
	userIDKey   = "userID"
)

const (
	msgNotAuthenticated = "Authentication credentials were not provided."
	msgTokenNotValid    = "Given token not valid for any token type"
)

// Authenticator 将 access token 解析为请求身份。
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (model.Identity, error)
}

// AuthMiddleware 校验 access token 并将身份写入上下文。
//
// 令牌优先取 Authorization: Bearer 头，其次取 access_token Cookie。
func AuthMiddleware(authn Authenticator, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := accessToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": msgTokenNotValid})
			return
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": msgNotAuthenticated})
			return
		}

		ident, err := authn.Authenticate(c.Request.Context(), token)
		if err != nil {
			if auth.IsAuthError(err) {
				metrics.AuthEventsTotal.WithLabelValues("authenticate", "rejected").Inc()
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": msgTokenNotValid})
				return
			}
			metrics.AuthEventsTotal.WithLabelValues("authenticate", "failure").Inc()
			if logger != nil {
				logger.Error("authenticate failed", slog.String("error", err.Error()))
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "authentication unavailable"})
			return
		}

		c.Set(identityKey, ident)
		c.Set(userIDKey, ident.UserID)
		c.Next()
	}
}

// accessToken 返回请求携带的令牌；Authorization 头格式错误时 ok 为 false。
func accessToken(c *gin.Context) (string, bool) {
	if header := strings.TrimSpace(c.GetHeader("Authorization")); header != "" {
		token := auth.BearerToken(header)
		return token, token != ""
	}
	token, _ := c.Cookie(auth.AccessCookieName)
	return token, true
}

// IdentityFrom 读取 AuthMiddleware 写入的身份。
func IdentityFrom(c *gin.Context) (model.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return model.Identity{}, false
	}
	ident, ok := v.(model.Identity)
	return ident, ok
}

// SetIdentity 将身份写入上下文，供测试与内部路由使用。
func SetIdentity(c *gin.Context, ident model.Identity) {
	c.Set(identityKey, ident)
	c.Set(userIDKey, ident.UserID)
}
