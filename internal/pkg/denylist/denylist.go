package denylist

import (
	"context"
	"fmt"
	"time"

	"taskmanager/internal/pkg/metrics"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "taskmanager:denylist:jti:"

// Denylist 记录已吊销的令牌 ID（jti），键在令牌自然过期后由 Redis 清理。
//
// nil 接收者与未配置 Redis 时所有操作都是空操作。
type Denylist struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Denylist {
	return &Denylist{rdb: rdb}
}

// Revoke 吊销 jti，直到 expiresAt。已过期的令牌无需记录。
func (d *Denylist) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if d == nil || d.rdb == nil || jti == "" {
		return nil
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	ok, err := d.rdb.SetNX(ctx, keyPrefix+jti, "1", ttl).Result()
	if err != nil {
		return fmt.Errorf("denylist setnx: %w", err)
	}
	if ok {
		metrics.TokensRevokedTotal.Inc()
	}
	return nil
}

// IsRevoked 报告 jti 是否已被吊销。
func (d *Denylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if d == nil || d.rdb == nil || jti == "" {
		return false, nil
	}
	n, err := d.rdb.Exists(ctx, keyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("denylist exists: %w", err)
	}
	return n > 0, nil
}
