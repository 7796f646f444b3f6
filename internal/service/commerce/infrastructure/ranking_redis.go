// internal/service/commerce/infrastructure/ranking_redis.go
package infrastructure

import (
	"context"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pkgredis "mall/internal/pkg/redis"
	"mall/internal/service/commerce/domain"
)

const rankingKeyPrefix = "product:sales:ranking:"

// RedisRanking 用按天切分的 ZSET 聚合销量，member 是商品 ID，
// score 是当日累计销量。当天的 key 带一天 TTL，过期自动清理。
type RedisRanking struct {
	client *pkgredis.Client
	// 可注入的时钟，测试用
	now func() time.Time
}

func NewRedisRanking(client *pkgredis.Client) *RedisRanking {
	return &RedisRanking{client: client, now: time.Now}
}

func (r *RedisRanking) key() string {
	return rankingKeyPrefix + r.now().Format("2006-01-02")
}

func (r *RedisRanking) IncrementSalesCount(ctx context.Context, productID, quantity int64) error {
	rdb := r.client.GetClient()
	key := r.key()

	created, err := rdb.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if err := rdb.ZIncrBy(ctx, key, float64(quantity), strconv.FormatInt(productID, 10)).Err(); err != nil {
		return err
	}
	// 首次创建当天的 key 时挂上一天的 TTL
	if created == 0 {
		if err := rdb.Expire(ctx, key, 24*time.Hour).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (r *RedisRanking) TopN(ctx context.Context, n int) ([]domain.RankEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	pairs, err := r.client.GetClient().ZRevRangeWithScores(ctx, r.key(), 0, int64(n-1)).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, err
	}

	out := make([]domain.RankEntry, 0, len(pairs))
	for _, p := range pairs {
		member, ok := p.Member.(string)
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, domain.RankEntry{ProductID: id, SalesCount: int64(p.Score)})
	}
	return out, nil
}
