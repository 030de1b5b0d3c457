package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"xinicimail/backend/internal/config"
	"xinicimail/backend/internal/domain"
)

// NewClient 根据配置创建 Redis 客户端。
//
// 创建本身不会建立连接；go-redis 在首次命令时拨号，断线后自动重连。
func NewClient(cfg config.RedisConfig) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
}

// Ping 测试 Redis 连接，失败时返回包装了 domain.ErrBackendUnavailable 的错误。
func Ping(ctx context.Context, rdb *goredis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis ping: %v", domain.ErrBackendUnavailable, err)
	}
	return nil
}
