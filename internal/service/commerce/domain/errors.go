// internal/service/commerce/domain/errors.go
package domain

import "errors"

// 领域错误按规约分为三类：
//   - NotFound：调用方给出的标识不存在，对当前操作是致命的，不重试；
//   - 业务冲突：并发竞争下的正常业务结果，原样返回给调用方，不自动重试；
//   - 锁超时：瞬时失败，未产生任何状态变更，调用方可整体重试。
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrProductNotFound    = errors.New("product not found")
	ErrCouponNotFound     = errors.New("coupon not found")
	ErrUserCouponNotFound = errors.New("user coupon not found")
	ErrOrderNotFound      = errors.New("order not found")

	ErrCartEmpty           = errors.New("cart is empty")
	ErrCouponExpired       = errors.New("coupon expired")
	ErrCouponOutOfStock    = errors.New("coupon out of stock")
	ErrCouponAlreadyIssued = errors.New("coupon already issued to this user")
	ErrCouponNotOwned      = errors.New("coupon not owned by this user")
	ErrCouponAlreadyUsed   = errors.New("coupon already used")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInsufficientPoint   = errors.New("insufficient point")
)

// IsNotFound 判断是否为“标识不存在”类错误。
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrCouponNotFound) ||
		errors.Is(err, ErrUserCouponNotFound) ||
		errors.Is(err, ErrOrderNotFound)
}

// IsConflict 判断是否为业务冲突类错误。
func IsConflict(err error) bool {
	return errors.Is(err, ErrCartEmpty) ||
		errors.Is(err, ErrCouponExpired) ||
		errors.Is(err, ErrCouponOutOfStock) ||
		errors.Is(err, ErrCouponAlreadyIssued) ||
		errors.Is(err, ErrCouponNotOwned) ||
		errors.Is(err, ErrCouponAlreadyUsed) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInsufficientPoint)
}
