// internal/service/commerce/application/create_order.go
package application

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"mall/internal/pkg/lock"
	"mall/internal/service/commerce/domain"
)

// 下单模式。
const (
	// ModeSync 在商品锁内一次性完成全部扣减，订单落库即 COMPLETED。
	ModeSync = "sync"
	// ModeAsync 只在锁内校验并落 PENDING 订单，扣减交给履约 saga。
	ModeAsync = "async"
)

// CreateOrderUseCase 是下单入口。
//
// 外层负责购物车装载、复合加锁与下单后动作；锁内的工作拆成两个
// 显式调用：validateOrder 做全部前置校验，executeOrderTransaction
// 在一个原子单元里落地变更。
type CreateOrderUseCase struct {
	ledger    domain.Ledger
	locks     lock.Manager
	publisher domain.EventPublisher
	ranking   domain.ProductRanking
	mode      string
	wait      time.Duration
	lease     time.Duration
}

func NewCreateOrderUseCase(
	ledger domain.Ledger,
	locks lock.Manager,
	publisher domain.EventPublisher,
	ranking domain.ProductRanking,
	mode string,
	wait, lease time.Duration,
) *CreateOrderUseCase {
	if mode != ModeSync {
		mode = ModeAsync
	}
	return &CreateOrderUseCase{
		ledger:    ledger,
		locks:     locks,
		publisher: publisher,
		ranking:   ranking,
		mode:      mode,
		wait:      wait,
		lease:     lease,
	}
}

// orderValidation 是锁内校验的产出，供落库阶段复用，避免重复读取。
type orderValidation struct {
	products       map[int64]*domain.Product
	userCoupon     *domain.UserCoupon
	totalAmount    int64
	discountAmount int64
	finalAmount    int64
}

// CreateOrder 基于用户当前购物车创建订单。
//
// 加锁顺序是购物车涉及商品 ID 的去重升序；所有下单方对同一批商品
// 使用同一顺序，不会形成环路等待。锁获取超时返回 ErrLockUnavailable，
// 此时没有任何状态变更，调用方可整体重试。
func (uc *CreateOrderUseCase) CreateOrder(ctx context.Context, userID int64, userCouponID *int64) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "order.Create")
	defer span.End()

	user, err := uc.ledger.Users().FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	items, err := uc.ledger.Carts().FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, domain.ErrCartEmpty
	}

	productIDs := domain.DistinctProductIDs(items)
	keys := make([]string, 0, len(productIDs))
	for _, id := range productIDs {
		keys = append(keys, domain.ProductLockKey(id))
	}

	order, err := uc.createLocked(ctx, keys, user, userCouponID, items, productIDs)
	if err != nil {
		return nil, err
	}

	// 锁已释放，提交后动作不占用商品锁
	uc.afterCommit(ctx, order, items)
	return order, nil
}

func (uc *CreateOrderUseCase) createLocked(
	ctx context.Context,
	keys []string,
	user *domain.User,
	userCouponID *int64,
	items []domain.CartItem,
	productIDs []int64,
) (*domain.Order, error) {
	release, err := uc.locks.Acquire(ctx, keys, uc.wait, uc.lease)
	if err != nil {
		return nil, err
	}
	defer release()

	// 锁内重新读取商品，锁外的预读不可信。
	v, err := uc.validateOrder(ctx, user, userCouponID, items, productIDs)
	if err != nil {
		return nil, err
	}
	return uc.executeOrderTransaction(ctx, user, userCouponID, items, v)
}

// afterCommit 执行提交后的动作。async 模式发布订单创建事件驱动履约 saga；
// sync 模式此时扣减已全部落地，直接做尽力而为的销量上报。
func (uc *CreateOrderUseCase) afterCommit(ctx context.Context, order *domain.Order, items []domain.CartItem) {
	ordersCreatedTotal.Inc()

	if uc.mode == ModeSync {
		ordersCompletedTotal.Inc()
		for _, item := range items {
			if err := uc.ranking.IncrementSalesCount(ctx, item.ProductID, item.Quantity); err != nil {
				log.Warn().Err(err).Int64("productId", item.ProductID).Msg("销量上报失败")
			}
		}
		return
	}

	ev := domain.OrderCreatedEvent{
		EventID:      uuid.NewString(),
		OrderID:      order.ID,
		UserID:       order.UserID,
		UserCouponID: order.UserCouponID,
		FinalAmount:  order.UsedPoint,
		CartItems:    domain.ToCartLines(items),
	}
	if err := uc.publisher.Publish(ctx, domain.TopicOrderCreated, strconv.FormatInt(order.ID, 10), ev); err != nil {
		// 订单已落库但事件没发出去，履约不会启动，这笔订单需要人工补发事件。
		log.Error().Err(err).Int64("orderId", order.ID).Msg("订单创建事件发布失败")
	}
}

// validateOrder 在锁内完成全部前置校验：商品存在且库存充足、
// 优惠券可用、余额足以支付实付金额。只读，不做任何变更。
func (uc *CreateOrderUseCase) validateOrder(
	ctx context.Context,
	user *domain.User,
	userCouponID *int64,
	items []domain.CartItem,
	productIDs []int64,
) (*orderValidation, error) {
	products, err := uc.ledger.Products().FindByIDs(ctx, productIDs)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, item := range items {
		p, ok := products[item.ProductID]
		if !ok {
			return nil, domain.ErrProductNotFound
		}
		if err := p.ValidateStock(item.Quantity); err != nil {
			return nil, err
		}
		total += p.Price * item.Quantity
	}

	userCoupon, discount, err := uc.validateCouponUsage(ctx, user.ID, userCouponID, total)
	if err != nil {
		return nil, err
	}

	final := domain.FinalAmount(total, discount)
	if err := user.ValidateSufficientPoint(final); err != nil {
		return nil, err
	}

	return &orderValidation{
		products:       products,
		userCoupon:     userCoupon,
		totalAmount:    total,
		discountAmount: discount,
		finalAmount:    final,
	}, nil
}

// validateCouponUsage 校验本单使用的优惠券：存在、归属当前用户、未使用。
// 不传券时折扣为 0。
func (uc *CreateOrderUseCase) validateCouponUsage(ctx context.Context, userID int64, userCouponID *int64, totalAmount int64) (*domain.UserCoupon, int64, error) {
	if userCouponID == nil {
		return nil, 0, nil
	}
	userCoupon, err := uc.ledger.UserCoupons().FindByID(ctx, *userCouponID)
	if err != nil {
		return nil, 0, err
	}
	if userCoupon.UserID != userID {
		return nil, 0, domain.ErrCouponNotOwned
	}
	if userCoupon.Used {
		return nil, 0, domain.ErrCouponAlreadyUsed
	}
	coupon, err := uc.ledger.Coupons().FindByID(ctx, userCoupon.CouponID)
	if err != nil {
		return nil, 0, err
	}
	return userCoupon, coupon.CalculateDiscount(totalAmount), nil
}

// executeOrderTransaction 在一个原子单元里落地订单。
//
// async 模式只写 PENDING 订单并清空购物车；sync 模式在同一事务里
// 完成券核销、余额扣减与库存扣减，订单直接落为 COMPLETED。
// 两种模式互斥，同一笔扣减不会执行两次。
func (uc *CreateOrderUseCase) executeOrderTransaction(
	ctx context.Context,
	user *domain.User,
	userCouponID *int64,
	items []domain.CartItem,
	v *orderValidation,
) (*domain.Order, error) {
	order := &domain.Order{
		UserID:         user.ID,
		UserCouponID:   userCouponID,
		TotalAmount:    v.totalAmount,
		DiscountAmount: v.discountAmount,
		UsedPoint:      v.finalAmount,
		Status:         domain.OrderPending,
		CreatedAt:      time.Now(),
	}
	if uc.mode == ModeSync {
		order.Status = domain.OrderCompleted
	}

	err := uc.ledger.Transact(ctx, func(ctx context.Context) error {
		if uc.mode == ModeSync {
			if err := uc.applyDebits(ctx, user.ID, userCouponID, items, v.finalAmount); err != nil {
				return err
			}
		}

		orderItems := make([]*domain.OrderItem, 0, len(items))
		for _, item := range items {
			orderItems = append(orderItems, &domain.OrderItem{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				UnitPrice: v.products[item.ProductID].Price,
			})
		}
		if err := uc.ledger.Orders().Create(ctx, order, orderItems); err != nil {
			return err
		}
		return uc.ledger.Carts().Clear(ctx, user.ID)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// applyDebits 是 sync 模式的扣减：在事务内核销券、扣余额、扣库存。
// 用户与商品都在事务内重读，锁外的副本不可信。
func (uc *CreateOrderUseCase) applyDebits(ctx context.Context, userID int64, userCouponID *int64, items []domain.CartItem, finalAmount int64) error {
	if userCouponID != nil {
		userCoupon, err := uc.ledger.UserCoupons().FindByID(ctx, *userCouponID)
		if err != nil {
			return err
		}
		if err := userCoupon.MarkAsUsed(time.Now()); err != nil {
			return err
		}
		if err := uc.ledger.UserCoupons().Save(ctx, userCoupon); err != nil {
			return err
		}
		coupon, err := uc.ledger.Coupons().FindByID(ctx, userCoupon.CouponID)
		if err != nil {
			return err
		}
		coupon.IncreaseUsedQuantity()
		if err := uc.ledger.Coupons().Save(ctx, coupon); err != nil {
			return err
		}
	}

	user, err := uc.ledger.Users().FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := user.DeductPoint(finalAmount); err != nil {
		return err
	}
	if err := uc.ledger.Users().Save(ctx, user); err != nil {
		return err
	}

	products, err := uc.ledger.Products().FindByIDsForUpdate(ctx, domain.DistinctProductIDs(items))
	if err != nil {
		return err
	}
	for _, item := range items {
		p, ok := products[item.ProductID]
		if !ok {
			return domain.ErrProductNotFound
		}
		if err := p.DecreaseStock(item.Quantity); err != nil {
			return err
		}
	}
	for _, p := range products {
		if err := uc.ledger.Products().Save(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
