// internal/service/commerce/domain/repository.go
package domain

import "context"

// Ledger 是全部持久化状态的唯一拥有者。
// 其他组件只通过它读写记录，不得跨操作缓存可变副本。
//
// Transact 打开一个原子单元：fn 内通过同一个 ctx 访问各仓储时读写同属
// 一个事务，fn 返回错误则整个单元回滚，任何变更都不会落地。
type Ledger interface {
	Users() UserRepository
	Coupons() CouponRepository
	UserCoupons() UserCouponRepository
	Products() ProductRepository
	Orders() OrderRepository
	Carts() CartRepository

	Transact(ctx context.Context, fn func(ctx context.Context) error) error
}

// UserRepository 读写用户记录。
type UserRepository interface {
	FindByID(ctx context.Context, id int64) (*User, error)
	Save(ctx context.Context, user *User) error
}

// CouponRepository 读写优惠券库存记录。
type CouponRepository interface {
	FindByID(ctx context.Context, id int64) (*Coupon, error)
	Save(ctx context.Context, coupon *Coupon) error
}

// UserCouponRepository 读写用户持券记录。
type UserCouponRepository interface {
	FindByID(ctx context.Context, id int64) (*UserCoupon, error)
	// FindByUserAndCoupon 不存在时返回 ErrUserCouponNotFound。
	FindByUserAndCoupon(ctx context.Context, userID, couponID int64) (*UserCoupon, error)
	// Create 插入新券。(userID, couponID) 唯一索引冲突时返回
	// ErrCouponAlreadyIssued，作为跨路径发放的最后防线。
	Create(ctx context.Context, uc *UserCoupon) error
	Save(ctx context.Context, uc *UserCoupon) error
}

// ProductRepository 读写商品记录。
type ProductRepository interface {
	FindAll(ctx context.Context) ([]*Product, error)
	// FindByIDs 返回 id -> Product；缺失的 id 不在 map 里，由调用方判定。
	FindByIDs(ctx context.Context, ids []int64) (map[int64]*Product, error)
	// FindByIDsForUpdate 是加锁读变体：在事务内以排他方式读取，
	// 持有直到所在原子单元结束。必须在 Transact 内调用。
	FindByIDsForUpdate(ctx context.Context, ids []int64) (map[int64]*Product, error)
	Save(ctx context.Context, product *Product) error
}

// OrderRepository 读写订单及其明细。
type OrderRepository interface {
	// Create 原子地创建订单和全部明细行，并回填 order.ID。
	Create(ctx context.Context, order *Order, items []*OrderItem) error
	FindByID(ctx context.Context, id int64) (*Order, error)
	Save(ctx context.Context, order *Order) error
	FindItems(ctx context.Context, orderID int64) ([]*OrderItem, error)
}

// CartRepository 读写购物车。
type CartRepository interface {
	FindByUser(ctx context.Context, userID int64) ([]CartItem, error)
	Save(ctx context.Context, item *CartItem) error
	Clear(ctx context.Context, userID int64) error
}
