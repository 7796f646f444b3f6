// internal/service/commerce/application/restorers.go
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"mall/internal/pkg/alert"
	"mall/internal/pkg/lock"
	"mall/internal/service/commerce/domain"
)

// Restorers 消费恢复指令并把被扣掉的资源加回去。
//
// 恢复消息是至少一次投递，重复加回比漏加更糟，所以每个恢复动作
// 先过 OnceGuard：以 (资源类型, orderID) 为键，同一指令只生效一次。
// 恢复动作失败时必须退还闸门，否则重投会被当成重复而跳过，
// 这笔补偿就永远丢了。
type Restorers struct {
	ledger   domain.Ledger
	locks    lock.Manager
	guard    domain.OnceGuard
	notifier alert.Notifier
	wait     time.Duration
	lease    time.Duration
}

func NewRestorers(ledger domain.Ledger, locks lock.Manager, guard domain.OnceGuard, notifier alert.Notifier, wait, lease time.Duration) *Restorers {
	return &Restorers{ledger: ledger, locks: locks, guard: guard, notifier: notifier, wait: wait, lease: lease}
}

// withGuard 执行一个恢复动作并维护它的幂等闸门。
// 动作失败时退还闸门再把错误交给消费循环重试；退还本身失败意味着
// 这笔补偿不会再被自动执行，按补偿失败上报并通知运营介入。
func (r *Restorers) withGuard(ctx context.Context, key string, orderID int64, restore func(ctx context.Context) error) error {
	ok, err := r.guard.Acquire(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		log.Warn().Int64("orderId", orderID).Str("key", key).Msg("恢复指令重复投递，跳过")
		return nil
	}

	if err := restore(ctx); err != nil {
		if relErr := r.guard.Release(ctx, key); relErr != nil {
			compensationFailuresTotal.Inc()
			log.Error().Err(relErr).Int64("orderId", orderID).Str("key", key).Msg("恢复闸门退还失败，补偿将不会自动重试")
			r.notifier.Notify("critical", fmt.Sprintf("订单 %d 的补偿(%s)无法自动重试，需要人工介入", orderID, key))
		}
		return err
	}
	return nil
}

// HandleStockRestore 把订单扣减的库存加回去。
func (r *Restorers) HandleStockRestore(ctx context.Context, ev *domain.StockRestoreEvent) error {
	return r.withGuard(ctx, fmt.Sprintf("restore:stock:%d", ev.OrderID), ev.OrderID, func(ctx context.Context) error {
		items := make([]domain.CartItem, 0, len(ev.CartItems))
		for _, line := range ev.CartItems {
			items = append(items, domain.CartItem{ProductID: line.ProductID, Quantity: line.Quantity})
		}
		sorted := domain.DistinctProductIDs(items)
		keys := make([]string, 0, len(sorted))
		for _, id := range sorted {
			keys = append(keys, domain.ProductLockKey(id))
		}

		release, err := r.locks.Acquire(ctx, keys, r.wait, r.lease)
		if err != nil {
			return err
		}
		defer release()

		err = r.ledger.Transact(ctx, func(ctx context.Context) error {
			products, err := r.ledger.Products().FindByIDsForUpdate(ctx, sorted)
			if err != nil {
				return err
			}
			for _, line := range ev.CartItems {
				p, ok := products[line.ProductID]
				if !ok {
					return domain.ErrProductNotFound
				}
				p.RestoreStock(line.Quantity)
			}
			for _, p := range products {
				if err := r.ledger.Products().Save(ctx, p); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		log.Info().Int64("orderId", ev.OrderID).Msg("库存已恢复")
		return nil
	})
}

// HandlePointRestore 把订单扣减的余额加回去。
func (r *Restorers) HandlePointRestore(ctx context.Context, ev *domain.PointRestoreEvent) error {
	return r.withGuard(ctx, fmt.Sprintf("restore:point:%d", ev.OrderID), ev.OrderID, func(ctx context.Context) error {
		err := r.ledger.Transact(ctx, func(ctx context.Context) error {
			user, err := r.ledger.Users().FindByID(ctx, ev.UserID)
			if err != nil {
				return err
			}
			user.RestorePoint(ev.Amount)
			return r.ledger.Users().Save(ctx, user)
		})
		if err != nil {
			return err
		}

		log.Info().Int64("orderId", ev.OrderID).Int64("userId", ev.UserID).Msg("余额已恢复")
		return nil
	})
}

// HandleCouponRestore 把订单核销的券恢复为未使用。
func (r *Restorers) HandleCouponRestore(ctx context.Context, ev *domain.CouponRestoreEvent) error {
	return r.withGuard(ctx, fmt.Sprintf("restore:coupon:%d", ev.OrderID), ev.OrderID, func(ctx context.Context) error {
		err := r.ledger.Transact(ctx, func(ctx context.Context) error {
			userCoupon, err := r.ledger.UserCoupons().FindByID(ctx, ev.UserCouponID)
			if err != nil {
				return err
			}
			userCoupon.Restore()
			return r.ledger.UserCoupons().Save(ctx, userCoupon)
		})
		if err != nil {
			return err
		}

		log.Info().Int64("orderId", ev.OrderID).Int64("userCouponId", ev.UserCouponID).Msg("优惠券已恢复")
		return nil
	})
}
