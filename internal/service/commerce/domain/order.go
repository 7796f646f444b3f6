// internal/service/commerce/domain/order.go
package domain

import "time"

// OrderStatus 定义了订单的生命周期状态。
// PENDING 订单由 CompletionTracker 推进到 COMPLETED，或由失败处理路径
// 推进到 FAILED；这两个终态之外不存在其他迁移。
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderCompleted OrderStatus = "COMPLETED"
	OrderFailed    OrderStatus = "FAILED"
)

// Order 是订单聚合根。
type Order struct {
	ID             int64
	UserID         int64
	UserCouponID   *int64
	TotalAmount    int64
	DiscountAmount int64
	UsedPoint      int64 // 实付金额（总额 - 折扣，下限 0）
	Status         OrderStatus
	CreatedAt      time.Time
}

// OrderItem 是下单时的商品快照，创建后不再变更。
type OrderItem struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Quantity  int64
	UnitPrice int64
}

// RequiredSteps 返回履约需要完成的步骤数：带券订单 3 步，否则 2 步。
func (o *Order) RequiredSteps() int {
	if o.UserCouponID != nil {
		return 3
	}
	return 2
}

// MarkCompleted 幂等地将订单置为完成。
// 已处于终态的订单不再变更，返回 false。
func (o *Order) MarkCompleted() bool {
	if o.Status == OrderCompleted || o.Status == OrderFailed {
		return false
	}
	o.Status = OrderCompleted
	return true
}

// MarkFailed 幂等地将订单置为失败。
// 已处于终态的订单不再变更，返回 false。
func (o *Order) MarkFailed() bool {
	if o.Status == OrderCompleted || o.Status == OrderFailed {
		return false
	}
	o.Status = OrderFailed
	return true
}

// FinalAmount 计算实付金额：max(总额 - 折扣, 0)。
func FinalAmount(totalAmount, discountAmount int64) int64 {
	final := totalAmount - discountAmount
	if final < 0 {
		return 0
	}
	return final
}
