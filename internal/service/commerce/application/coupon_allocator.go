// internal/service/commerce/application/coupon_allocator.go
package application

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"mall/internal/pkg/lock"
	"mall/internal/service/commerce/domain"
)

var tracer = otel.Tracer("commerce-application")

// CouponAllocator 实现限量发放：同一优惠券的所有发放请求先抢该券的
// 行级锁，锁内完成全部校验与扣减，保证发放量绝不超过 TotalQuantity。
type CouponAllocator struct {
	ledger domain.Ledger
	locks  lock.Manager
	wait   time.Duration
	lease  time.Duration
}

func NewCouponAllocator(ledger domain.Ledger, locks lock.Manager, wait, lease time.Duration) *CouponAllocator {
	return &CouponAllocator{ledger: ledger, locks: locks, wait: wait, lease: lease}
}

// Allocate 同步发放一张优惠券。
//
// 校验顺序固定：用户存在 → 优惠券存在 → 未过期 → 未重复持有 → 余量充足。
// 全部校验与 IssuedQuantity 扣减在锁内同一事务里完成，
// (UserID, CouponID) 唯一索引是跨发放路径的最后防线。
func (a *CouponAllocator) Allocate(ctx context.Context, userID, couponID int64) (*domain.UserCoupon, error) {
	ctx, span := tracer.Start(ctx, "coupon.Allocate")
	defer span.End()

	release, err := a.locks.Acquire(ctx, []string{domain.CouponLockKey(couponID)}, a.wait, a.lease)
	if err != nil {
		return nil, err
	}
	defer release()

	var issued *domain.UserCoupon
	err = a.ledger.Transact(ctx, func(ctx context.Context) error {
		if _, err := a.ledger.Users().FindByID(ctx, userID); err != nil {
			return err
		}
		coupon, err := a.ledger.Coupons().FindByID(ctx, couponID)
		if err != nil {
			return err
		}
		if coupon.IsExpired(time.Now()) {
			return domain.ErrCouponExpired
		}

		_, err = a.ledger.UserCoupons().FindByUserAndCoupon(ctx, userID, couponID)
		if err == nil {
			return domain.ErrCouponAlreadyIssued
		}
		if !errors.Is(err, domain.ErrUserCouponNotFound) {
			return err
		}

		if err := coupon.IncreaseIssuedQuantity(); err != nil {
			return err
		}
		if err := a.ledger.Coupons().Save(ctx, coupon); err != nil {
			return err
		}

		uc := &domain.UserCoupon{UserID: userID, CouponID: couponID, IssuedAt: time.Now()}
		if err := a.ledger.UserCoupons().Create(ctx, uc); err != nil {
			return err
		}
		issued = uc
		return nil
	})
	if err != nil {
		return nil, err
	}

	couponsIssuedTotal.Inc()
	log.Info().Int64("userId", userID).Int64("couponId", couponID).Msg("优惠券发放成功")
	return issued, nil
}
