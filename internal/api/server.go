package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"taskmanager/internal/api/auth"
	"taskmanager/internal/api/middleware"
	"taskmanager/internal/config"
	"taskmanager/internal/model"
	"taskmanager/internal/pkg/denylist"
	"taskmanager/internal/pkg/metrics"
	"taskmanager/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库连接、可选的 Redis 客户端（令牌吊销名单）以及 Gin 路由引擎。
type Server struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *gorm.DB
	rdb       *redis.Client
	router    *gin.Engine
	auth      *auth.Handler
	accounts  AccountService
	users     AdminStore
	hasher    auth.PasswordHasher
	taskStore TaskStore
}

// TaskStore 是任务处理器依赖的存储，每个调用都携带调用者身份。
type TaskStore interface {
	ListTasks(ctx context.Context, ident model.Identity, filter model.TaskFilter) ([]model.Task, error)
	CreateTask(ctx context.Context, ident model.Identity, task *model.Task) error
	GetTask(ctx context.Context, ident model.Identity, id uint) (*model.Task, error)
	UpdateTask(ctx context.Context, ident model.Identity, id uint, changes model.TaskChanges) (*model.Task, error)
	DeleteTask(ctx context.Context, ident model.Identity, id uint) error
}

// AccountService 提供当前用户查询与请求鉴权。
type AccountService interface {
	middleware.Authenticator
	CurrentUser(ctx context.Context, ident model.Identity) (*model.User, error)
}

// AdminStore 是管理员初始化所需的用户存储。
type AdminStore interface {
	auth.UserStore
	PromoteSuperuser(ctx context.Context, id uint) error
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 按配置连接 MySQL / PostgreSQL 并执行自动迁移
// 2. 配置了地址时连接 Redis，用作令牌吊销名单
// 3. 初始化认证服务与 Gin 路由引擎
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := store.Open(cfg.Database)
	if err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			closeDB(db)
			return nil, fmt.Errorf("ping redis: %w", err)
		}
	} else {
		logger.Warn("redis not configured, token revocation relies on cookie deletion only")
	}

	s, err := New(cfg, logger, db, rdb)
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		closeDB(db)
		return nil, err
	}
	return s, nil
}

// New 使用已建立的连接组装服务器。rdb 可为 nil。
func New(cfg *config.Config, logger *slog.Logger, db *gorm.DB, rdb *redis.Client) (*Server, error) {
	hasher, err := auth.NewPasswordHasher(cfg.Security.PasswordHasher)
	if err != nil {
		return nil, err
	}

	var revoker auth.Revoker
	if rdb != nil {
		revoker = denylist.New(rdb)
	}

	users := store.NewUserStore(db)
	tokens := auth.NewTokenIssuer(cfg.Security.JWTSecret, cfg.Security.AccessTokenTTL, cfg.Security.RefreshTokenTTL)
	svc := auth.NewService(users, hasher, tokens, revoker, logger)
	cookies := auth.CookieConfig{Secure: cfg.Security.CookieSecure, Domain: cfg.Security.CookieDomain}

	// 初始化 Prometheus 指标
	metrics.InitMetrics()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Metrics())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		rdb:       rdb,
		router:    r,
		auth:      auth.NewHandler(svc, cookies, logger),
		accounts:  svc,
		users:     users,
		hasher:    hasher,
		taskStore: store.NewTaskStore(db),
	}
	s.registerRoutes()
	return s, nil
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// Close 关闭数据库与缓存连接。
func (s *Server) Close() error {
	var firstErr error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			firstErr = err
		}
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else {
			if closeErr := sqlDB.Close(); closeErr != nil {
				if firstErr == nil {
					firstErr = closeErr
				}
			}
		}
	}
	return firstErr
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/healthz", s.handleHealthz)

	s.router.POST("/register", s.auth.Register)
	s.router.POST("/token", s.auth.Token)
	s.router.POST("/token/refresh", s.auth.Refresh)
	s.router.POST("/logout", s.auth.Logout)

	authed := s.router.Group("/")
	authed.Use(middleware.AuthMiddleware(s.accounts, s.logger))
	authed.GET("/me", s.handleMe)
	authed.GET("/tasks", s.handleListTasks)
	authed.GET("/task", s.handleListTasks)
	authed.POST("/tasks", s.handleCreateTask)
	authed.POST("/tasks/create", s.handleCreateTask)
	authed.GET("/tasks/:id", s.handleGetTask)
	authed.PUT("/tasks/:id", s.handleReplaceTask)
	authed.PATCH("/tasks/:id", s.handlePatchTask)
	authed.DELETE("/tasks/:id", s.handleDeleteTask)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleMe 返回调用者自己的用户信息。
//
// GET /me
func (s *Server) handleMe(c *gin.Context) {
	ident, ok := s.identity(c)
	if !ok {
		return
	}
	user, err := s.accounts.CurrentUser(c.Request.Context(), ident)
	if err != nil {
		if auth.IsAuthError(err) {
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "User not found"})
			return
		}
		s.logger.Error("load current user failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load user failed"})
		return
	}
	c.JSON(http.StatusOK, auth.NewUserResponse(user))
}
