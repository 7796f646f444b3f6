// internal/service/commerce/domain/event.go
package domain

// Kafka topic 命名。所有消息均为至少一次投递，消费方必须幂等。
const (
	TopicOrderCreated         = "order-created"
	TopicStockReserved        = "stock-reserved"
	TopicStockDeductionFailed = "stock-deduction-failed"
	TopicPointDeducted        = "point-deducted"
	TopicPointDeductionFailed = "point-deduction-failed"
	TopicCouponUsed           = "coupon-used"
	TopicCouponUsageFailed    = "coupon-usage-failed"
	TopicStockRestore         = "stock-restore"
	TopicPointRestore         = "point-restore"
	TopicCouponRestore        = "coupon-restore"
	TopicCouponIssueRequest   = "coupon-issue-request"
)

// CartLine 是消息里携带的购物车行快照。
type CartLine struct {
	ProductID int64 `json:"productId"`
	Quantity  int64 `json:"quantity"`
}

// ToCartLines 把购物车条目转换为消息载体。
func ToCartLines(items []CartItem) []CartLine {
	lines := make([]CartLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, CartLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}

// OrderCreatedEvent 在订单提交后发布，驱动履约 saga。
type OrderCreatedEvent struct {
	EventID      string     `json:"eventId"`
	OrderID      int64      `json:"orderId"`
	UserID       int64      `json:"userId"`
	UserCouponID *int64     `json:"userCouponId,omitempty"`
	FinalAmount  int64      `json:"finalAmount"`
	CartItems    []CartLine `json:"cartItems"`
}

// StockReservedEvent 表示库存扣减步骤成功。
type StockReservedEvent struct {
	OrderID int64 `json:"orderId"`
	UserID  int64 `json:"userId"`
}

// StockDeductionFailedEvent 表示库存扣减步骤失败。
type StockDeductionFailedEvent struct {
	OrderID      int64  `json:"orderId"`
	UserID       int64  `json:"userId"`
	ErrorMessage string `json:"errorMessage"`
}

// PointDeductedEvent 表示余额扣减步骤成功。
type PointDeductedEvent struct {
	OrderID int64 `json:"orderId"`
	UserID  int64 `json:"userId"`
}

// PointDeductionFailedEvent 表示余额扣减步骤失败。
// 携带金额与购物车行，供补偿路径恢复先行步骤。
type PointDeductionFailedEvent struct {
	OrderID      int64      `json:"orderId"`
	UserID       int64      `json:"userId"`
	FinalAmount  int64      `json:"finalAmount"`
	ErrorMessage string     `json:"errorMessage"`
	CartItems    []CartLine `json:"cartItems"`
}

// CouponUsedEvent 表示优惠券使用步骤成功。
type CouponUsedEvent struct {
	OrderID int64 `json:"orderId"`
	UserID  int64 `json:"userId"`
}

// CouponUsageFailedEvent 表示优惠券使用步骤失败。
type CouponUsageFailedEvent struct {
	OrderID      int64      `json:"orderId"`
	UserID       int64      `json:"userId"`
	UserCouponID int64      `json:"userCouponId"`
	FinalAmount  int64      `json:"finalAmount"`
	ErrorMessage string     `json:"errorMessage"`
	CartItems    []CartLine `json:"cartItems"`
}

// StockRestoreEvent 指示恢复已扣减的库存。OrderID 是恢复器的幂等去重键。
type StockRestoreEvent struct {
	OrderID   int64      `json:"orderId"`
	CartItems []CartLine `json:"cartItems"`
}

// PointRestoreEvent 指示恢复已扣减的余额。
type PointRestoreEvent struct {
	OrderID int64 `json:"orderId"`
	UserID  int64 `json:"userId"`
	Amount  int64 `json:"amount"`
}

// CouponRestoreEvent 指示把已用掉的券恢复为未使用。
type CouponRestoreEvent struct {
	OrderID      int64 `json:"orderId"`
	UserID       int64 `json:"userId"`
	UserCouponID int64 `json:"userCouponId"`
}

// CouponIssueRequestEvent 是排队发放路径的入队请求。
type CouponIssueRequestEvent struct {
	UserID   int64 `json:"userId"`
	CouponID int64 `json:"couponId"`
}
