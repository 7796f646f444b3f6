// internal/service/commerce/infrastructure/memory/ledger.go
//
// Ledger 的进程内实现。开发与测试时用它替代 MySQL，
// 语义上等价：Transact 是原子单元，失败时所有变更回滚。
package memory

import (
	"context"
	"sync"
	"time"

	"mall/internal/service/commerce/domain"
)

type inTxKey struct{}

// Ledger 把全部状态放在进程内的 map 里，用一把大锁串行化原子单元。
// Transact 进入时做全量快照，fn 出错时恢复快照，模拟事务回滚。
type Ledger struct {
	mu sync.Mutex

	users       map[int64]domain.User
	coupons     map[int64]domain.Coupon
	userCoupons map[int64]domain.UserCoupon
	products    map[int64]domain.Product
	orders      map[int64]domain.Order
	orderItems  map[int64][]domain.OrderItem // orderID -> items
	carts       map[int64][]domain.CartItem  // userID -> items

	nextUserCouponID int64
	nextOrderID      int64
	nextOrderItemID  int64
	nextCartItemID   int64
}

func NewLedger() *Ledger {
	return &Ledger{
		users:       make(map[int64]domain.User),
		coupons:     make(map[int64]domain.Coupon),
		userCoupons: make(map[int64]domain.UserCoupon),
		products:    make(map[int64]domain.Product),
		orders:      make(map[int64]domain.Order),
		orderItems:  make(map[int64][]domain.OrderItem),
		carts:       make(map[int64][]domain.CartItem),
	}
}

func (l *Ledger) Users() domain.UserRepository             { return memUserRepo{l} }
func (l *Ledger) Coupons() domain.CouponRepository         { return memCouponRepo{l} }
func (l *Ledger) UserCoupons() domain.UserCouponRepository { return memUserCouponRepo{l} }
func (l *Ledger) Products() domain.ProductRepository       { return memProductRepo{l} }
func (l *Ledger) Orders() domain.OrderRepository           { return memOrderRepo{l} }
func (l *Ledger) Carts() domain.CartRepository             { return memCartRepo{l} }

func (l *Ledger) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(inTxKey{}) != nil {
		return fn(ctx)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	snap := l.snapshot()
	if err := fn(context.WithValue(ctx, inTxKey{}, struct{}{})); err != nil {
		l.restore(snap)
		return err
	}
	return nil
}

// enter 串行化单条操作；已在 Transact 内时大锁已持有，直接放行。
func (l *Ledger) enter(ctx context.Context) func() {
	if ctx.Value(inTxKey{}) != nil {
		return func() {}
	}
	l.mu.Lock()
	return l.mu.Unlock
}

type ledgerSnapshot struct {
	users       map[int64]domain.User
	coupons     map[int64]domain.Coupon
	userCoupons map[int64]domain.UserCoupon
	products    map[int64]domain.Product
	orders      map[int64]domain.Order
	orderItems  map[int64][]domain.OrderItem
	carts       map[int64][]domain.CartItem

	nextUserCouponID int64
	nextOrderID      int64
	nextOrderItemID  int64
	nextCartItemID   int64
}

func (l *Ledger) snapshot() ledgerSnapshot {
	return ledgerSnapshot{
		users:            copyMap(l.users),
		coupons:          copyMap(l.coupons),
		userCoupons:      copyMap(l.userCoupons),
		products:         copyMap(l.products),
		orders:           copyMap(l.orders),
		orderItems:       copySliceMap(l.orderItems),
		carts:            copySliceMap(l.carts),
		nextUserCouponID: l.nextUserCouponID,
		nextOrderID:      l.nextOrderID,
		nextOrderItemID:  l.nextOrderItemID,
		nextCartItemID:   l.nextCartItemID,
	}
}

func (l *Ledger) restore(s ledgerSnapshot) {
	l.users = s.users
	l.coupons = s.coupons
	l.userCoupons = s.userCoupons
	l.products = s.products
	l.orders = s.orders
	l.orderItems = s.orderItems
	l.carts = s.carts
	l.nextUserCouponID = s.nextUserCouponID
	l.nextOrderID = s.nextOrderID
	l.nextOrderItemID = s.nextOrderItemID
	l.nextCartItemID = s.nextCartItemID
}

func copyMap[V any](m map[int64]V) map[int64]V {
	out := make(map[int64]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copySliceMap[V any](m map[int64][]V) map[int64][]V {
	out := make(map[int64][]V, len(m))
	for k, vs := range m {
		cp := make([]V, len(vs))
		copy(cp, vs)
		out[k] = cp
	}
	return out
}

// SeedUser 预置一个用户，建数据用。
func (l *Ledger) SeedUser(u domain.User) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.users[u.ID] = u
}

// SeedCoupon 预置一类优惠券。
func (l *Ledger) SeedCoupon(c domain.Coupon) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.coupons[c.ID] = c
}

// SeedProduct 预置一个商品。
func (l *Ledger) SeedProduct(p domain.Product) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.products[p.ID] = p
}

type memUserRepo struct{ l *Ledger }

func (r memUserRepo) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	defer r.l.enter(ctx)()
	u, ok := r.l.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (r memUserRepo) Save(ctx context.Context, user *domain.User) error {
	defer r.l.enter(ctx)()
	r.l.users[user.ID] = *user
	return nil
}

type memCouponRepo struct{ l *Ledger }

func (r memCouponRepo) FindByID(ctx context.Context, id int64) (*domain.Coupon, error) {
	defer r.l.enter(ctx)()
	c, ok := r.l.coupons[id]
	if !ok {
		return nil, domain.ErrCouponNotFound
	}
	return &c, nil
}

func (r memCouponRepo) Save(ctx context.Context, coupon *domain.Coupon) error {
	defer r.l.enter(ctx)()
	r.l.coupons[coupon.ID] = *coupon
	return nil
}

type memUserCouponRepo struct{ l *Ledger }

func (r memUserCouponRepo) FindByID(ctx context.Context, id int64) (*domain.UserCoupon, error) {
	defer r.l.enter(ctx)()
	uc, ok := r.l.userCoupons[id]
	if !ok {
		return nil, domain.ErrUserCouponNotFound
	}
	return &uc, nil
}

func (r memUserCouponRepo) FindByUserAndCoupon(ctx context.Context, userID, couponID int64) (*domain.UserCoupon, error) {
	defer r.l.enter(ctx)()
	for _, uc := range r.l.userCoupons {
		if uc.UserID == userID && uc.CouponID == couponID {
			out := uc
			return &out, nil
		}
	}
	return nil, domain.ErrUserCouponNotFound
}

func (r memUserCouponRepo) Create(ctx context.Context, uc *domain.UserCoupon) error {
	defer r.l.enter(ctx)()
	// (UserID, CouponID) 唯一约束
	for _, existing := range r.l.userCoupons {
		if existing.UserID == uc.UserID && existing.CouponID == uc.CouponID {
			return domain.ErrCouponAlreadyIssued
		}
	}
	r.l.nextUserCouponID++
	uc.ID = r.l.nextUserCouponID
	if uc.IssuedAt.IsZero() {
		uc.IssuedAt = time.Now()
	}
	r.l.userCoupons[uc.ID] = *uc
	return nil
}

func (r memUserCouponRepo) Save(ctx context.Context, uc *domain.UserCoupon) error {
	defer r.l.enter(ctx)()
	r.l.userCoupons[uc.ID] = *uc
	return nil
}

type memProductRepo struct{ l *Ledger }

func (r memProductRepo) FindAll(ctx context.Context) ([]*domain.Product, error) {
	defer r.l.enter(ctx)()
	out := make([]*domain.Product, 0, len(r.l.products))
	for _, p := range r.l.products {
		cp := p
		out = append(out, &cp)
	}
	return out, nil
}

func (r memProductRepo) FindByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Product, error) {
	defer r.l.enter(ctx)()
	out := make(map[int64]*domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := r.l.products[id]; ok {
			cp := p
			out[id] = &cp
		}
	}
	return out, nil
}

func (r memProductRepo) FindByIDsForUpdate(ctx context.Context, ids []int64) (map[int64]*domain.Product, error) {
	// 大锁已经串行化了整个原子单元，无需额外的行锁
	return r.FindByIDs(ctx, ids)
}

func (r memProductRepo) Save(ctx context.Context, product *domain.Product) error {
	defer r.l.enter(ctx)()
	r.l.products[product.ID] = *product
	return nil
}

type memOrderRepo struct{ l *Ledger }

func (r memOrderRepo) Create(ctx context.Context, order *domain.Order, items []*domain.OrderItem) error {
	defer r.l.enter(ctx)()
	r.l.nextOrderID++
	order.ID = r.l.nextOrderID
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	r.l.orders[order.ID] = *order

	stored := make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		r.l.nextOrderItemID++
		item.ID = r.l.nextOrderItemID
		item.OrderID = order.ID
		stored = append(stored, *item)
	}
	r.l.orderItems[order.ID] = stored
	return nil
}

func (r memOrderRepo) FindByID(ctx context.Context, id int64) (*domain.Order, error) {
	defer r.l.enter(ctx)()
	o, ok := r.l.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return &o, nil
}

func (r memOrderRepo) Save(ctx context.Context, order *domain.Order) error {
	defer r.l.enter(ctx)()
	r.l.orders[order.ID] = *order
	return nil
}

func (r memOrderRepo) FindItems(ctx context.Context, orderID int64) ([]*domain.OrderItem, error) {
	defer r.l.enter(ctx)()
	items := r.l.orderItems[orderID]
	out := make([]*domain.OrderItem, 0, len(items))
	for i := range items {
		cp := items[i]
		out = append(out, &cp)
	}
	return out, nil
}

type memCartRepo struct{ l *Ledger }

func (r memCartRepo) FindByUser(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	defer r.l.enter(ctx)()
	items := r.l.carts[userID]
	out := make([]domain.CartItem, len(items))
	copy(out, items)
	return out, nil
}

func (r memCartRepo) Save(ctx context.Context, item *domain.CartItem) error {
	defer r.l.enter(ctx)()
	items := r.l.carts[item.UserID]
	if item.ID != 0 {
		for i := range items {
			if items[i].ID == item.ID {
				items[i] = *item
				r.l.carts[item.UserID] = items
				return nil
			}
		}
	}
	r.l.nextCartItemID++
	item.ID = r.l.nextCartItemID
	r.l.carts[item.UserID] = append(items, *item)
	return nil
}

func (r memCartRepo) Clear(ctx context.Context, userID int64) error {
	defer r.l.enter(ctx)()
	delete(r.l.carts, userID)
	return nil
}
