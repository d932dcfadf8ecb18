package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 保存应用程序配置。
type Config struct {
	App      AppConfig      `json:"app"`
	Database DatabaseConfig `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	Security SecurityConfig `json:"security"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env      string `json:"env"`       // 运行环境: local / prod
	LogLevel string `json:"log_level"` // 日志级别: debug / info / warn / error
	HTTPAddr string `json:"http_addr"` // API 服务监听地址
}

// DatabaseConfig 关系型数据库配置。
type DatabaseConfig struct {
	Driver string `json:"driver"` // mysql / postgres
	DSN    string `json:"dsn"`    // 数据库连接字符串
}

// RedisConfig Redis 配置（用于令牌吊销名单）。
type RedisConfig struct {
	Addr     string `json:"addr"`     // Redis 地址 (host:port)，为空表示不启用吊销名单
	Password string `json:"password"` // Redis 密码
	DB       int    `json:"db"`       // Redis 库编号
}

// SecurityConfig 安全相关配置。
type SecurityConfig struct {
	JWTSecret       string        `json:"jwt_secret"`        // JWT 签名密钥
	AccessTokenTTL  time.Duration `json:"access_token_ttl"`  // access token 有效期（如 "5m"）
	RefreshTokenTTL time.Duration `json:"refresh_token_ttl"` // refresh token 有效期（如 "24h"）
	PasswordHasher  string        `json:"password_hasher"`   // bcrypt / argon2id
	CookieSecure    bool          `json:"cookie_secure"`     // Cookie 是否带 Secure 标记
	CookieDomain    string        `json:"cookie_domain"`     // Cookie 域
	AdminUsername   string        `json:"admin_username"`    // 启动时确保存在的超级管理员
	AdminPassword   string        `json:"admin_password"`    // 超级管理员密码
}

// Load 从 JSON 文件加载配置。
//
// 它会先加载 .env（若存在），再尝试读取 configs/config.json，文件不存在则使用默认值，
// 最后由环境变量覆盖。
//
// 参数:
//
//	configPath: 配置文件路径（如果为空则使用默认路径 "configs/config.json")
//
// 返回值:
//
//	*Config: 加载完成的配置对象
//	error: 加载失败返回错误
func Load(configPath ...string) (*Config, error) {
	_ = godotenv.Load()

	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := getDefaultConfig()
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// cookie_secure 默认为 true，先铺默认值再解析，避免 JSON 缺省时被置为 false
	cfg := getDefaultConfig()
	cfg.Database.DSN = ""
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// getDefaultConfig 返回默认配置。
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:      "local",
			LogLevel: "info",
			HTTPAddr: ":8000",
		},
		Database: DatabaseConfig{
			Driver: "mysql",
			DSN:    "root:password@tcp(localhost:3306)/taskmanager?parseTime=true&loc=Local",
		},
		Redis: RedisConfig{
			Addr: "",
		},
		Security: SecurityConfig{
			JWTSecret:       "dev_secret_change_me",
			AccessTokenTTL:  5 * time.Minute,
			RefreshTokenTTL: 24 * time.Hour,
			PasswordHasher:  "bcrypt",
			CookieSecure:    true,
		},
	}
}

// applyDefaults 对未设置的字段应用默认值。
func applyDefaults(cfg *Config) {
	defaults := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = defaults.Database.Driver
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "mysql" {
		cfg.Database.DSN = defaults.Database.DSN
	}
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = defaults.Security.JWTSecret
	}
	if cfg.Security.AccessTokenTTL <= 0 {
		cfg.Security.AccessTokenTTL = defaults.Security.AccessTokenTTL
	}
	if cfg.Security.RefreshTokenTTL <= 0 {
		cfg.Security.RefreshTokenTTL = defaults.Security.RefreshTokenTTL
	}
	if cfg.Security.PasswordHasher == "" {
		cfg.Security.PasswordHasher = defaults.Security.PasswordHasher
	}
}

func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	_ = viper.BindEnv("db_host", "DB_HOST")
	_ = viper.BindEnv("db_password", "DB_PASSWORD")
	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("jwt_secret", "JWT_SECRET")
	_ = viper.BindEnv("admin_password", "ADMIN_PASSWORD")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	}

	if v := viper.GetString("jwt_secret"); v != "" {
		cfg.Security.JWTSecret = v
	}
	if v := os.Getenv("JWT_ACCESS_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Security.AccessTokenTTL = d
		}
	}
	if v := os.Getenv("JWT_REFRESH_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Security.RefreshTokenTTL = d
		}
	}
	if v := os.Getenv("PASSWORD_HASHER"); v != "" {
		cfg.Security.PasswordHasher = strings.ToLower(v)
	}
	if v := os.Getenv("COOKIE_SECURE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Security.CookieSecure = b
		}
	}
	if v := os.Getenv("COOKIE_DOMAIN"); v != "" {
		cfg.Security.CookieDomain = v
	}
	if v := os.Getenv("ADMIN_USERNAME"); v != "" {
		cfg.Security.AdminUsername = v
	}
	if v := viper.GetString("admin_password"); v != "" {
		cfg.Security.AdminPassword = v
	}

	if v := os.Getenv("DB_DRIVER"); v != "" {
		cfg.Database.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.Database.DSN = v
	} else if cfg.Database.Driver == "mysql" && (hasAnyEnv("DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME") || viper.GetString("db_host") != "" || viper.GetString("db_password") != "") {
		parsed := parseMySQLDSN(cfg.Database.DSN)
		if v := viper.GetString("db_host"); v != "" {
			port := getenvDefault("DB_PORT", parsed.Addr, "3306")
			parsed.Addr = v + ":" + port
		} else if v := os.Getenv("DB_PORT"); v != "" {
			host := parsed.Addr
			if strings.Contains(host, ":") {
				host = strings.Split(host, ":")[0]
			}
			parsed.Addr = host + ":" + v
		}
		if v := os.Getenv("DB_USER"); v != "" {
			parsed.User = v
		}
		if v := viper.GetString("db_password"); v != "" {
			parsed.Passwd = v
		}
		if v := os.Getenv("DB_NAME"); v != "" {
			parsed.DBName = v
		}
		cfg.Database.DSN = parsed.FormatDSN()
	}

	if v := viper.GetString("redis_addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = i
		}
	}
}

func hasAnyEnv(keys ...string) bool {
	for _, key := range keys {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

func getenvDefault(envKey, fallbackAddr, defaultValue string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if fallbackAddr == "" {
		return defaultValue
	}
	if strings.Contains(fallbackAddr, ":") {
		parts := strings.Split(fallbackAddr, ":")
		if len(parts) == 2 && parts[1] != "" {
			return parts[1]
		}
	}
	return defaultValue
}

func parseMySQLDSN(dsn string) *mysql.Config {
	fallback := func() *mysql.Config {
		c := mysql.NewConfig()
		c.User = "root"
		c.Net = "tcp"
		c.Addr = "localhost:3306"
		c.DBName = "taskmanager"
		c.ParseTime = true
		c.Params = map[string]string{"loc": "Local"}
		return c
	}
	if dsn == "" {
		return fallback()
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return fallback()
	}
	return parsed
}

// UnmarshalJSON 自定义 JSON 解析，支持 Duration 字符串。
func (s *SecurityConfig) UnmarshalJSON(data []byte) error {
	type Alias SecurityConfig
	aux := &struct {
		AccessTokenTTL  string `json:"access_token_ttl"`
		RefreshTokenTTL string `json:"refresh_token_ttl"`
		*Alias
	}{
		Alias: (*Alias)(s),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.AccessTokenTTL != "" {
		d, err := time.ParseDuration(aux.AccessTokenTTL)
		if err != nil {
			return fmt.Errorf("invalid access_token_ttl format: %w", err)
		}
		s.AccessTokenTTL = d
	}
	if aux.RefreshTokenTTL != "" {
		d, err := time.ParseDuration(aux.RefreshTokenTTL)
		if err != nil {
			return fmt.Errorf("invalid refresh_token_ttl format: %w", err)
		}
		s.RefreshTokenTTL = d
	}
	return nil
}
