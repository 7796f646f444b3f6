// internal/service/commerce/application/fulfillment_saga.go
package application

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"mall/internal/pkg/lock"
	"mall/internal/service/commerce/domain"
)

// errOrderTerminal 表示订单已处于终态，剩余履约步骤直接跳过。
// 消息重投时会走到这里，不是异常。
var errOrderTerminal = errors.New("order already in terminal state")

// FulfillmentSaga 消费订单创建事件，按固定顺序执行履约步骤：
// 库存扣减 → 余额扣减 → 优惠券核销（带券订单）→ 销量上报。
//
// 顺序执行让失败事件的类型本身就标识了已完成的前缀：失败处理器
// 据此决定要发哪些恢复指令，不需要在事件里携带进度。每一步是
// 独立的原子单元，成功即落地，失败不回滚先行步骤，由补偿路径恢复。
type FulfillmentSaga struct {
	ledger    domain.Ledger
	locks     lock.Manager
	publisher domain.EventPublisher
	ranking   domain.ProductRanking
	tracker   *CompletionTracker
	wait      time.Duration
	lease     time.Duration
}

func NewFulfillmentSaga(
	ledger domain.Ledger,
	locks lock.Manager,
	publisher domain.EventPublisher,
	ranking domain.ProductRanking,
	tracker *CompletionTracker,
	wait, lease time.Duration,
) *FulfillmentSaga {
	return &FulfillmentSaga{
		ledger:    ledger,
		locks:     locks,
		publisher: publisher,
		ranking:   ranking,
		tracker:   tracker,
		wait:      wait,
		lease:     lease,
	}
}

// HandleOrderCreated 执行一笔订单的完整履约。
// 业务性失败转化为对应的失败事件后吞掉，让消费位点推进；
// 只有事件发布这类基础设施错误才向上返回。
func (s *FulfillmentSaga) HandleOrderCreated(ctx context.Context, ev *domain.OrderCreatedEvent) error {
	ctx, span := tracer.Start(ctx, "saga.Fulfill")
	defer span.End()

	if err := s.stockStep(ctx, ev); err != nil {
		if errors.Is(err, errOrderTerminal) {
			return nil
		}
		return s.publishFailure(ctx, domain.TopicStockDeductionFailed, ev.OrderID, domain.StockDeductionFailedEvent{
			OrderID:      ev.OrderID,
			UserID:       ev.UserID,
			ErrorMessage: err.Error(),
		})
	}

	if err := s.pointStep(ctx, ev); err != nil {
		if errors.Is(err, errOrderTerminal) {
			return nil
		}
		return s.publishFailure(ctx, domain.TopicPointDeductionFailed, ev.OrderID, domain.PointDeductionFailedEvent{
			OrderID:      ev.OrderID,
			UserID:       ev.UserID,
			FinalAmount:  ev.FinalAmount,
			ErrorMessage: err.Error(),
			CartItems:    ev.CartItems,
		})
	}

	if ev.UserCouponID != nil {
		if err := s.couponStep(ctx, ev); err != nil {
			if errors.Is(err, errOrderTerminal) {
				return nil
			}
			return s.publishFailure(ctx, domain.TopicCouponUsageFailed, ev.OrderID, domain.CouponUsageFailedEvent{
				OrderID:      ev.OrderID,
				UserID:       ev.UserID,
				UserCouponID: *ev.UserCouponID,
				FinalAmount:  ev.FinalAmount,
				ErrorMessage: err.Error(),
				CartItems:    ev.CartItems,
			})
		}
	}

	// 排行是尽力而为，不参与完成计数也不触发补偿。
	for _, line := range ev.CartItems {
		if err := s.ranking.IncrementSalesCount(ctx, line.ProductID, line.Quantity); err != nil {
			log.Warn().Err(err).Int64("productId", line.ProductID).Msg("销量上报失败")
		}
	}
	return nil
}

// stockStep 在商品锁内扣减全部购物车行的库存。
// 任何一行不足则整个单元回滚，不会留下部分扣减。
func (s *FulfillmentSaga) stockStep(ctx context.Context, ev *domain.OrderCreatedEvent) error {
	if err := s.ensureOrderActive(ctx, ev.OrderID); err != nil {
		return err
	}

	items := make([]domain.CartItem, 0, len(ev.CartItems))
	for _, line := range ev.CartItems {
		items = append(items, domain.CartItem{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	sorted := domain.DistinctProductIDs(items)

	keys := make([]string, 0, len(sorted))
	for _, id := range sorted {
		keys = append(keys, domain.ProductLockKey(id))
	}
	release, err := s.locks.Acquire(ctx, keys, s.wait, s.lease)
	if err != nil {
		return err
	}
	defer release()

	err = s.ledger.Transact(ctx, func(ctx context.Context) error {
		products, err := s.ledger.Products().FindByIDsForUpdate(ctx, sorted)
		if err != nil {
			return err
		}
		for _, line := range ev.CartItems {
			p, ok := products[line.ProductID]
			if !ok {
				return domain.ErrProductNotFound
			}
			if err := p.DecreaseStock(line.Quantity); err != nil {
				return err
			}
		}
		for _, p := range products {
			if err := s.ledger.Products().Save(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return s.finishStep(ctx, ev.OrderID, StepStock, domain.TopicStockReserved, domain.StockReservedEvent{
		OrderID: ev.OrderID,
		UserID:  ev.UserID,
	})
}

// pointStep 扣减用户余额。
func (s *FulfillmentSaga) pointStep(ctx context.Context, ev *domain.OrderCreatedEvent) error {
	if err := s.ensureOrderActive(ctx, ev.OrderID); err != nil {
		return err
	}

	err := s.ledger.Transact(ctx, func(ctx context.Context) error {
		user, err := s.ledger.Users().FindByID(ctx, ev.UserID)
		if err != nil {
			return err
		}
		if err := user.DeductPoint(ev.FinalAmount); err != nil {
			return err
		}
		return s.ledger.Users().Save(ctx, user)
	})
	if err != nil {
		return err
	}

	return s.finishStep(ctx, ev.OrderID, StepPoint, domain.TopicPointDeducted, domain.PointDeductedEvent{
		OrderID: ev.OrderID,
		UserID:  ev.UserID,
	})
}

// couponStep 核销订单使用的优惠券。
func (s *FulfillmentSaga) couponStep(ctx context.Context, ev *domain.OrderCreatedEvent) error {
	if err := s.ensureOrderActive(ctx, ev.OrderID); err != nil {
		return err
	}

	err := s.ledger.Transact(ctx, func(ctx context.Context) error {
		userCoupon, err := s.ledger.UserCoupons().FindByID(ctx, *ev.UserCouponID)
		if err != nil {
			return err
		}
		if userCoupon.UserID != ev.UserID {
			return domain.ErrCouponNotOwned
		}
		if err := userCoupon.MarkAsUsed(time.Now()); err != nil {
			return err
		}
		if err := s.ledger.UserCoupons().Save(ctx, userCoupon); err != nil {
			return err
		}
		coupon, err := s.ledger.Coupons().FindByID(ctx, userCoupon.CouponID)
		if err != nil {
			return err
		}
		coupon.IncreaseUsedQuantity()
		return s.ledger.Coupons().Save(ctx, coupon)
	})
	if err != nil {
		return err
	}

	return s.finishStep(ctx, ev.OrderID, StepCoupon, domain.TopicCouponUsed, domain.CouponUsedEvent{
		OrderID: ev.OrderID,
		UserID:  ev.UserID,
	})
}

// ensureOrderActive 在执行步骤前确认订单还没被失败路径置为终态。
func (s *FulfillmentSaga) ensureOrderActive(ctx context.Context, orderID int64) error {
	order, err := s.ledger.Orders().FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != domain.OrderPending {
		log.Warn().Int64("orderId", orderID).Str("status", string(order.Status)).Msg("订单已处于终态，跳过履约步骤")
		return errOrderTerminal
	}
	return nil
}

// finishStep 是步骤成功后的收尾：发布成功事件并上报完成计数。
func (s *FulfillmentSaga) finishStep(ctx context.Context, orderID int64, step, topic string, ev any) error {
	if err := s.publisher.Publish(ctx, topic, strconv.FormatInt(orderID, 10), ev); err != nil {
		log.Error().Err(err).Int64("orderId", orderID).Str("topic", topic).Msg("步骤成功事件发布失败")
	}
	if err := s.tracker.MarkDone(ctx, orderID, step); err != nil {
		return err
	}
	return nil
}

// publishFailure 发布步骤失败事件。失败事件是补偿路径的唯一触发器，
// 发不出去就意味着这笔订单卡在中间态，必须让消费循环重试。
func (s *FulfillmentSaga) publishFailure(ctx context.Context, topic string, orderID int64, ev any) error {
	if err := s.publisher.Publish(ctx, topic, strconv.FormatInt(orderID, 10), ev); err != nil {
		log.Error().Err(err).Int64("orderId", orderID).Str("topic", topic).Msg("步骤失败事件发布失败")
		return err
	}
	log.Warn().Int64("orderId", orderID).Str("topic", topic).Msg("履约步骤失败，已发布失败事件")
	return nil
}
