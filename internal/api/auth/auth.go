package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"taskmanager/internal/model"

	"github.com/gin-gonic/gin"
)

// Handler 提供注册、签发、刷新与注销接口。
type Handler struct {
	svc     *Service
	cookies CookieConfig
	logger  *slog.Logger
}

// NewHandler 创建 Auth Handler。
func NewHandler(svc *Service, cookies CookieConfig, logger *slog.Logger) *Handler {
	return &Handler{
		svc:     svc,
		cookies: cookies,
		logger:  logger,
	}
}

type registerRequest struct {
	Username *string `json:"username"`
	Password *string `json:"password"`
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UserResponse 是用户对外的表示，不包含密码哈希。
type UserResponse struct {
	ID          uint      `json:"id"`
	Username    string    `json:"username"`
	IsStaff     bool      `json:"is_staff"`
	IsSuperuser bool      `json:"is_superuser"`
	DateJoined  time.Time `json:"date_joined"`
}

// NewUserResponse 从用户记录构造响应。
func NewUserResponse(u *model.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Username:    u.Username,
		IsStaff:     u.IsStaff,
		IsSuperuser: u.IsSuperuser,
		DateJoined:  u.DateJoined,
	}
}

// Register 创建新用户。
//
// POST /register
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "malformed request body"})
		return
	}
	if errs := validateRegistrationInput(req.Username, req.Password); errs != nil {
		c.JSON(http.StatusBadRequest, errs)
		return
	}

	user, err := h.svc.Register(c.Request.Context(), *req.Username, *req.Password)
	if err != nil {
		var fieldErrs FieldErrors
		if errors.As(err, &fieldErrs) {
			c.JSON(http.StatusBadRequest, fieldErrs)
			return
		}
		h.logError("register failed", err, slog.String("username", *req.Username))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create user failed"})
		return
	}
	c.JSON(http.StatusCreated, NewUserResponse(user))
}

// Token 校验凭据并通过 Cookie 下发令牌对。
//
// POST /token
func (h *Handler) Token(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false})
		return
	}
	req.Username = strings.TrimSpace(req.Username)

	pair, err := h.svc.Issue(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			if h.logger != nil {
				h.logger.Info("login rejected", slog.String("username", req.Username))
			}
			c.JSON(http.StatusUnauthorized, gin.H{"success": false})
			return
		}
		h.logError("issue token failed", err, slog.String("username", req.Username))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false})
		return
	}

	h.cookies.SetTokenCookies(c, pair)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Refresh 读取 refresh Cookie 并下发新的 access Cookie。
//
// POST /token/refresh
func (h *Handler) Refresh(c *gin.Context) {
	refresh, _ := c.Cookie(RefreshCookieName)
	access, exp, err := h.svc.Refresh(c.Request.Context(), refresh)
	if err != nil {
		if IsAuthError(err) {
			if h.logger != nil {
				h.logger.Info("refresh rejected", slog.String("reason", err.Error()))
			}
			c.JSON(http.StatusUnauthorized, gin.H{})
			return
		}
		h.logError("refresh token failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{})
		return
	}

	h.cookies.SetAccessCookie(c, access, exp)
	c.JSON(http.StatusOK, gin.H{"refreshed": true})
}

// Logout 吊销当前令牌并清除 Cookie，总是返回成功。
//
// POST /logout
func (h *Handler) Logout(c *gin.Context) {
	access, _ := c.Cookie(AccessCookieName)
	refresh, _ := c.Cookie(RefreshCookieName)
	if access == "" {
		access = BearerToken(c.GetHeader("Authorization"))
	}
	if err := h.svc.Revoke(c.Request.Context(), access, refresh); err != nil {
		h.logError("revoke tokens failed", err)
	}

	h.cookies.ClearTokenCookies(c)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) logError(msg string, err error, attrs ...any) {
	if h.logger == nil {
		return
	}
	h.logger.Error(msg, append(attrs, slog.String("error", err.Error()))...)
}

// BearerToken 提取 "Bearer <token>" 头中的令牌，格式不符返回空串。
func BearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
