// internal/service/commerce/infrastructure/once_redis.go
package infrastructure

import (
	"context"
	"time"

	pkgredis "mall/internal/pkg/redis"
)

// RedisOnceGuard 用 SETNX 实现跨实例的幂等闸门。
// key 带 TTL，陈年去重记录不会无限堆积。
type RedisOnceGuard struct {
	client *pkgredis.Client
	ttl    time.Duration
}

func NewRedisOnceGuard(client *pkgredis.Client) *RedisOnceGuard {
	return &RedisOnceGuard{client: client, ttl: 24 * time.Hour}
}

func (g *RedisOnceGuard) Acquire(ctx context.Context, key string) (bool, error) {
	return g.client.GetClient().SetNX(ctx, "once:"+key, 1, g.ttl).Result()
}

func (g *RedisOnceGuard) Release(ctx context.Context, key string) error {
	return g.client.GetClient().Del(ctx, "once:"+key).Err()
}
