// internal/service/commerce/domain/coupon.go
package domain

import (
	"fmt"
	"time"
)

// DiscountType 定义了优惠券的折扣方式。
type DiscountType string

const (
	DiscountRate   DiscountType = "RATE"   // 按比例折扣，DiscountValue 为百分比
	DiscountAmount DiscountType = "AMOUNT" // 按金额折扣，DiscountValue 为减免金额
)

// Coupon 是一类优惠券的库存记录。
// 不变式：0 <= IssuedQuantity <= TotalQuantity，且 IssuedQuantity 只增不减。
type Coupon struct {
	ID             int64
	Name           string
	DiscountType   DiscountType
	DiscountValue  int64
	TotalQuantity  int64
	IssuedQuantity int64
	UsedQuantity   int64
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// IsExpired 判断优惠券是否已过期。零值过期时间视为永不过期。
func (c *Coupon) IsExpired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(now)
}

// IsIssuable 判断是否还有可发放余量。
func (c *Coupon) IsIssuable() bool {
	return c.TotalQuantity > c.IssuedQuantity
}

// ValidateIssuable 校验发放前提（先校验过期，再校验余量）。
func (c *Coupon) ValidateIssuable(now time.Time) error {
	if c.IsExpired(now) {
		return ErrCouponExpired
	}
	if !c.IsIssuable() {
		return ErrCouponOutOfStock
	}
	return nil
}

// IncreaseIssuedQuantity 发放一张，余量不足时拒绝。
// 调用方必须持有该优惠券的行级锁，整个检查加增量才是原子的。
func (c *Coupon) IncreaseIssuedQuantity() error {
	if !c.IsIssuable() {
		return ErrCouponOutOfStock
	}
	c.IssuedQuantity++
	return nil
}

// IncreaseUsedQuantity 记录一次使用。
func (c *Coupon) IncreaseUsedQuantity() {
	c.UsedQuantity++
}

// CalculateDiscount 计算折扣金额。RATE 为整数向下取整。
func (c *Coupon) CalculateDiscount(totalAmount int64) int64 {
	switch c.DiscountType {
	case DiscountRate:
		return totalAmount * c.DiscountValue / 100
	case DiscountAmount:
		return c.DiscountValue
	default:
		return 0
	}
}

// UserCoupon 是用户持有的一张具体优惠券。
// 不变式：(UserID, CouponID) 全局唯一，一个用户最多持有同一优惠券一张。
type UserCoupon struct {
	ID       int64
	UserID   int64
	CouponID int64
	Used     bool
	IssuedAt time.Time
	UsedAt   *time.Time
}

// MarkAsUsed 将券置为已使用。重复使用是业务冲突。
func (uc *UserCoupon) MarkAsUsed(now time.Time) error {
	if uc.Used {
		return ErrCouponAlreadyUsed
	}
	uc.Used = true
	uc.UsedAt = &now
	return nil
}

// Restore 是补偿路径：把券恢复为未使用。对已恢复的券重复调用无副作用。
func (uc *UserCoupon) Restore() {
	uc.Used = false
	uc.UsedAt = nil
}

// CouponLockKey 生成优惠券行级锁的锁名。
func CouponLockKey(couponID int64) string {
	return fmt.Sprintf("coupon:lock:%d", couponID)
}
