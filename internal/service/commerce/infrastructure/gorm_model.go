// internal/service/commerce/infrastructure/gorm_model.go
package infrastructure

import "time"

type userModel struct {
	ID    int64 `gorm:"primaryKey;autoIncrement"`
	Name  string
	Point int64
}

func (userModel) TableName() string { return "users" }

type couponModel struct {
	ID             int64 `gorm:"primaryKey;autoIncrement"`
	Name           string
	DiscountType   string
	DiscountValue  int64
	TotalQuantity  int64
	IssuedQuantity int64
	UsedQuantity   int64
	CreatedAt      time.Time
	ExpiresAt      *time.Time // NULL 表示永不过期
}

func (couponModel) TableName() string { return "coupon" }

// userCouponModel 上的复合唯一索引是“一人一券”的数据库级防线，
// 任何发放路径都绕不过它。
type userCouponModel struct {
	ID       int64 `gorm:"primaryKey;autoIncrement"`
	UserID   int64 `gorm:"uniqueIndex:uniq_user_coupon"`
	CouponID int64 `gorm:"uniqueIndex:uniq_user_coupon"`
	Used     bool
	IssuedAt time.Time
	UsedAt   *time.Time
}

func (userCouponModel) TableName() string { return "user_coupon" }

type productModel struct {
	ID       int64 `gorm:"primaryKey;autoIncrement"`
	Name     string
	Price    int64
	Quantity int64
}

func (productModel) TableName() string { return "product" }

type orderModel struct {
	ID             int64 `gorm:"primaryKey;autoIncrement"`
	UserID         int64 `gorm:"index"`
	UserCouponID   *int64
	TotalAmount    int64
	DiscountAmount int64
	UsedPoint      int64
	Status         string
	CreatedAt      time.Time
}

func (orderModel) TableName() string { return "orders" }

type orderItemModel struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	OrderID   int64 `gorm:"index"`
	ProductID int64
	Quantity  int64
	UnitPrice int64
}

func (orderItemModel) TableName() string { return "order_item" }

type cartItemModel struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	UserID    int64 `gorm:"index"`
	ProductID int64
	Quantity  int64
}

func (cartItemModel) TableName() string { return "cart_item" }
