// internal/service/commerce/application/completion_tracker.go
package application

import (
	"context"

	"github.com/rs/zerolog/log"

	"mall/internal/service/commerce/domain"
)

// 履约步骤标识。步骤名参与完成计数，同名步骤的重投不会重复计数。
const (
	StepStock  = "STOCK"
	StepPoint  = "POINT"
	StepCoupon = "COUPON"
)

// CompletionTracker 汇聚各履约步骤的完成信号，当一个订单集齐全部
// 步骤时把它推进到 COMPLETED。步骤计数放在 CompletionStore 里，
// 服务重启或多实例部署都不丢进度。
type CompletionTracker struct {
	ledger domain.Ledger
	store  domain.CompletionStore
}

func NewCompletionTracker(ledger domain.Ledger, store domain.CompletionStore) *CompletionTracker {
	return &CompletionTracker{ledger: ledger, store: store}
}

// MarkDone 记录一个步骤完成，集齐后把订单推进到 COMPLETED。
// 步骤进度在收尾成功前不会被清掉：收尾事务失败时返回错误，
// 消费循环重投最后一步会再次拿到完成信号并重试收尾。并发信号
// 可能让多个调用方同时看到集齐，MarkCompleted 的幂等迁移保证
// 状态只推进一次。
func (t *CompletionTracker) MarkDone(ctx context.Context, orderID int64, step string) error {
	order, err := t.ledger.Orders().FindByID(ctx, orderID)
	if err != nil {
		return err
	}

	completed, err := t.store.AddStep(ctx, orderID, step, order.RequiredSteps())
	if err != nil {
		return err
	}
	if !completed {
		return nil
	}
	if err := t.completeOrder(ctx, orderID); err != nil {
		return err
	}
	if err := t.store.Clear(ctx, orderID); err != nil {
		// 进度清理失败不影响订单状态，redis 侧还有 TTL 兜底
		log.Warn().Err(err).Int64("orderId", orderID).Msg("清理完成计数失败")
	}
	return nil
}

// Clear 丢弃一个订单已累计的步骤记录，失败路径用它防止
// 迟到的成功信号把 FAILED 订单重新拼成 COMPLETED。
func (t *CompletionTracker) Clear(ctx context.Context, orderID int64) error {
	return t.store.Clear(ctx, orderID)
}

func (t *CompletionTracker) completeOrder(ctx context.Context, orderID int64) error {
	return t.ledger.Transact(ctx, func(ctx context.Context) error {
		order, err := t.ledger.Orders().FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.MarkCompleted() {
			// 已被失败路径置为终态，迟到的完成信号直接丢弃。
			log.Warn().Int64("orderId", orderID).Str("status", string(order.Status)).Msg("订单已处于终态，跳过完成")
			return nil
		}
		if err := t.ledger.Orders().Save(ctx, order); err != nil {
			return err
		}
		ordersCompletedTotal.Inc()
		log.Info().Int64("orderId", orderID).Msg("订单履约完成")
		return nil
	})
}
