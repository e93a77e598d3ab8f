package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// 全局客户端；addr 未配置时保持 nil，调用方需自行降级
var rdb *goredis.Client

// Init 建立 Redis 连接池；addr 为空表示本环境不启用 Redis
func Init(addr, password string, db int) {
	if addr == "" {
		return
	}
	rdb = goredis.NewClient(&goredis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     64,
		MinIdleConns: 4,
	})
}

// Client 返回客户端实例，未初始化时为 nil
func Client() *goredis.Client { return rdb }

// Ping 带超时探测连通性；未启用 Redis 视为正常
func Ping(ctx context.Context, timeout time.Duration) error {
	if rdb == nil {
		return nil
	}
	c, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return rdb.Ping(c).Err()
}
