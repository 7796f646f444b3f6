// internal/pkg/lock/redis.go
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"mall/internal/pkg/redis"
)

const unlockScriptName = "lock_unlock"

// 只有持有者本人（token 匹配）才能删除锁，防止误删他人在 lease 到期后
// 重新获取的锁。
var unlockScript = `
if redis.call('get', KEYS[1]) == ARGV[1] then
    return redis.call('del', KEYS[1])
end
return 0
`

// RedisManager 基于 SET NX PX 实现带租约的命名锁。
// 等待阶段以固定间隔轮询，直到拿到锁或超出 wait 预算。
type RedisManager struct {
	client       *redis.Client
	pollInterval time.Duration
}

// NewRedisManager 创建一个 redis 锁管理器。
func NewRedisManager(client *redis.Client) (*RedisManager, error) {
	if err := client.LoadScriptFromContent(unlockScriptName, unlockScript); err != nil {
		return nil, fmt.Errorf("failed to load unlock script: %w", err)
	}
	return &RedisManager{
		client:       client,
		pollInterval: 50 * time.Millisecond,
	}, nil
}

func (m *RedisManager) Acquire(ctx context.Context, keys []string, wait, lease time.Duration) (func(), error) {
	return acquireAll(ctx, keys, wait, func(ctx context.Context, key string, deadline time.Time) (func(), error) {
		return m.acquireOne(ctx, key, deadline, lease)
	})
}

func (m *RedisManager) acquireOne(ctx context.Context, key string, deadline time.Time, lease time.Duration) (func(), error) {
	token := uuid.New().String()
	rdb := m.client.GetClient()

	for {
		ok, err := rdb.SetNX(ctx, key, token, lease).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			return func() { m.unlock(key, token) }, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockUnavailable
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.pollInterval):
		}
	}
}

func (m *RedisManager) unlock(key, token string) {
	// 释放动作脱离调用方的 ctx：即使业务操作超时，锁也要尽力归还。
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := m.client.RunScript(ctx, unlockScriptName, []string{key}, token); err != nil {
		// 释放失败时租约到期会兜底，但仍需要暴露出来
		log.Error().Err(err).Str("key", key).Msg("failed to release redis lock, lease will expire it")
	}
}
