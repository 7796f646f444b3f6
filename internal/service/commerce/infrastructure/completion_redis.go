// internal/service/commerce/infrastructure/completion_redis.go
package infrastructure

import (
	"context"
	"fmt"
	"time"

	pkgredis "mall/internal/pkg/redis"
)

const completionScriptName = "completion_add_step"

// completionScript 原子地记录一个步骤并判断是否集齐：
// SADD 去重（同名步骤重投不重复计数），SCARD 达到要求即返回 1。
// 集合不在这里删除——收尾事务失败后，最后一步的重投要能再次拿到
// 完成信号。清理交给调用方的 Clear 和 TTL。
const completionScript = `
redis.call('SADD', KEYS[1], ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
if redis.call('SCARD', KEYS[1]) >= tonumber(ARGV[2]) then
    return 1
end
return 0
`

// RedisCompletionStore 把每个订单已完成的步骤存在 redis set 里，
// 多实例部署时所有消费者共享同一份进度。
type RedisCompletionStore struct {
	client *pkgredis.Client
	ttl    time.Duration
}

func NewRedisCompletionStore(client *pkgredis.Client) (*RedisCompletionStore, error) {
	if err := client.LoadScriptFromContent(completionScriptName, completionScript); err != nil {
		return nil, err
	}
	// 孤儿进度（订单卡死在中间态）最多保留一天
	return &RedisCompletionStore{client: client, ttl: 24 * time.Hour}, nil
}

func completionKey(orderID int64) string {
	return fmt.Sprintf("order:completion:%d", orderID)
}

func (s *RedisCompletionStore) AddStep(ctx context.Context, orderID int64, step string, required int) (bool, error) {
	res, err := s.client.RunScript(ctx, completionScriptName,
		[]string{completionKey(orderID)}, step, required, s.ttl.Milliseconds())
	if err != nil {
		return false, err
	}
	n, ok := res.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result %T", res)
	}
	return n == 1, nil
}

func (s *RedisCompletionStore) Clear(ctx context.Context, orderID int64) error {
	return s.client.GetClient().Del(ctx, completionKey(orderID)).Err()
}
