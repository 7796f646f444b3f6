// internal/service/commerce/domain/port.go
package domain

import "context"

// EventPublisher 是出站消息端口。实现负责序列化与投递，投递语义为至少一次。
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key string, event any) error
}

// RankEntry 是销量排行中的一项。
type RankEntry struct {
	ProductID  int64
	SalesCount int64
}

// ProductRanking 是外部销量聚合服务的端口（消费方，不拥有其状态）。
// 履约 saga 的排行步骤是尽力而为：失败只记日志，不参与补偿。
type ProductRanking interface {
	IncrementSalesCount(ctx context.Context, productID, quantity int64) error
	TopN(ctx context.Context, n int) ([]RankEntry, error)
}

// CompletionStore 记录每个订单已完成的履约步骤。
// AddStep 必须是原子的记录并计数：步骤集合达到 required 即返回 true。
// 进度在 Clear 之前一直保留，因此消息重投会再次得到完成信号——订单收尾
// 失败后可以借重投重试，由调用方的幂等状态迁移保证只生效一次。
// Clear 丢弃进度，用于失败路径与完成后的收尾清理。
type CompletionStore interface {
	AddStep(ctx context.Context, orderID int64, step string, required int) (completed bool, err error)
	Clear(ctx context.Context, orderID int64) error
}

// OnceGuard 是恢复器的幂等闸门：同一个 key 只有第一次 Acquire 返回 true，
// 消息重投时后续调用返回 false。Release 退还闸门，供拿到 true 但动作
// 未能落地的调用方使用，否则该 key 对应的动作会被重投永久跳过。
type OnceGuard interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}
