// internal/service/commerce/application/fulfillment_saga_test.go
package application

import (
	"context"
	"testing"

	"mall/internal/service/commerce/domain"
)

func TestAsyncCheckoutFulfillsOrder(t *testing.T) {
	f := newFixture(t, ModeAsync)
	ctx := context.Background()

	f.ledger.SeedUser(domain.User{ID: 1, Point: 50_000})
	f.ledger.SeedProduct(domain.Product{ID: 1, Price: 3000, Quantity: 10})
	f.ledger.SeedCoupon(domain.Coupon{ID: 1, DiscountType: domain.DiscountRate, DiscountValue: 10, TotalQuantity: 5})
	issued, err := f.allocator.Allocate(ctx, 1, 1)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	mustAddItem(t, f, 1, 1, 2)

	order, err := f.orders.CreateOrder(ctx, 1, &issued.ID)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	// 同步总线下履约在下单调用内走完
	final, err := f.ledger.Orders().FindByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if final.Status != domain.OrderCompleted {
		t.Fatalf("Status = %s, want COMPLETED", final.Status)
	}

	user, _ := f.ledger.Users().FindByID(ctx, 1)
	if user.Point != 50_000-5400 {
		t.Errorf("Point = %d, want %d", user.Point, 50_000-5400)
	}
	products, _ := f.ledger.Products().FindByIDs(ctx, []int64{1})
	if products[1].Quantity != 8 {
		t.Errorf("stock = %d, want 8", products[1].Quantity)
	}
	uc, _ := f.ledger.UserCoupons().FindByID(ctx, issued.ID)
	if !uc.Used {
		t.Error("coupon should be used after fulfillment")
	}

	top, err := f.products.TopN(ctx, 5)
	if err != nil {
		t.Fatalf("TopN: %v", err)
	}
	if len(top) != 1 || top[0].SalesCount != 2 {
		t.Errorf("ranking = %+v, want product 1 with sales 2", top)
	}
}

// seedPendingOrder 直接落一张 PENDING 订单并返回驱动 saga 的事件，
// 用于构造失败路径（绕过下单时的前置校验）。
func seedPendingOrder(t *testing.T, f *fixture, userID int64, userCouponID *int64, finalAmount int64, lines []domain.CartLine) *domain.OrderCreatedEvent {
	t.Helper()
	order := &domain.Order{
		UserID:       userID,
		UserCouponID: userCouponID,
		UsedPoint:    finalAmount,
		Status:       domain.OrderPending,
	}
	if err := f.ledger.Orders().Create(context.Background(), order, nil); err != nil {
		t.Fatalf("Create order: %v", err)
	}
	return &domain.OrderCreatedEvent{
		EventID:      "test-event",
		OrderID:      order.ID,
		UserID:       userID,
		UserCouponID: userCouponID,
		FinalAmount:  finalAmount,
		CartItems:    lines,
	}
}

func TestPointFailureCompensatesStock(t *testing.T) {
	f := newFixture(t, ModeAsync)
	ctx := context.Background()

	// 余额不足以支付，库存步骤会先成功
	f.ledger.SeedUser(domain.User{ID: 1, Point: 100})
	f.ledger.SeedProduct(domain.Product{ID: 1, Price: 3000, Quantity: 10})
	ev := seedPendingOrder(t, f, 1, nil, 6000, []domain.CartLine{{ProductID: 1, Quantity: 2}})

	if err := f.saga.HandleOrderCreated(ctx, ev); err != nil {
		t.Fatalf("HandleOrderCreated: %v", err)
	}

	order, _ := f.ledger.Orders().FindByID(ctx, ev.OrderID)
	if order.Status != domain.OrderFailed {
		t.Errorf("Status = %s, want FAILED", order.Status)
	}
	// 库存被补偿回原值，余额没动
	products, _ := f.ledger.Products().FindByIDs(ctx, []int64{1})
	if products[1].Quantity != 10 {
		t.Errorf("stock = %d, want 10 after compensation", products[1].Quantity)
	}
	user, _ := f.ledger.Users().FindByID(ctx, 1)
	if user.Point != 100 {
		t.Errorf("Point = %d, want 100", user.Point)
	}
}

func TestCouponFailureCompensatesStockAndPoint(t *testing.T) {
	f := newFixture(t, ModeAsync)
	ctx := context.Background()

	f.ledger.SeedUser(domain.User{ID: 1, Point: 10_000})
	f.ledger.SeedProduct(domain.Product{ID: 1, Price: 3000, Quantity: 10})
	f.ledger.SeedCoupon(domain.Coupon{ID: 1, DiscountType: domain.DiscountAmount, DiscountValue: 500, TotalQuantity: 5})
	issued, err := f.allocator.Allocate(ctx, 1, 1)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	// 券已被别的订单用掉，核销步骤必然失败
	issued.Used = true
	if err := f.ledger.UserCoupons().Save(ctx, issued); err != nil {
		t.Fatalf("Save: %v", err)
	}

	ev := seedPendingOrder(t, f, 1, &issued.ID, 5500, []domain.CartLine{{ProductID: 1, Quantity: 2}})
	if err := f.saga.HandleOrderCreated(ctx, ev); err != nil {
		t.Fatalf("HandleOrderCreated: %v", err)
	}

	order, _ := f.ledger.Orders().FindByID(ctx, ev.OrderID)
	if order.Status != domain.OrderFailed {
		t.Errorf("Status = %s, want FAILED", order.Status)
	}
	// 库存与余额都回到原值
	products, _ := f.ledger.Products().FindByIDs(ctx, []int64{1})
	if products[1].Quantity != 10 {
		t.Errorf("stock = %d, want 10", products[1].Quantity)
	}
	user, _ := f.ledger.Users().FindByID(ctx, 1)
	if user.Point != 10_000 {
		t.Errorf("Point = %d, want 10000", user.Point)
	}
}

func TestStockFailureLeavesNothingToCompensate(t *testing.T) {
	f := newFixture(t, ModeAsync)
	ctx := context.Background()

	f.ledger.SeedUser(domain.User{ID: 1, Point: 10_000})
	f.ledger.SeedProduct(domain.Product{ID: 1, Price: 3000, Quantity: 1})
	ev := seedPendingOrder(t, f, 1, nil, 6000, []domain.CartLine{{ProductID: 1, Quantity: 2}})

	if err := f.saga.HandleOrderCreated(ctx, ev); err != nil {
		t.Fatalf("HandleOrderCreated: %v", err)
	}

	order, _ := f.ledger.Orders().FindByID(ctx, ev.OrderID)
	if order.Status != domain.OrderFailed {
		t.Errorf("Status = %s, want FAILED", order.Status)
	}
	user, _ := f.ledger.Users().FindByID(ctx, 1)
	if user.Point != 10_000 {
		t.Errorf("Point = %d, want 10000", user.Point)
	}
	// 第一步就失败，不应有任何恢复指令
	if events := f.bus.Published(domain.TopicStockRestore); len(events) != 0 {
		t.Errorf("stock restore events = %d, want 0", len(events))
	}
	if events := f.bus.Published(domain.TopicPointRestore); len(events) != 0 {
		t.Errorf("point restore events = %d, want 0", len(events))
	}
}

func TestRestoreReplayIsIdempotent(t *testing.T) {
	f := newFixture(t, ModeAsync)
	ctx := context.Background()

	f.ledger.SeedUser(domain.User{ID: 1, Point: 1000})
	f.ledger.SeedProduct(domain.Product{ID: 1, Price: 100, Quantity: 5})

	stockEv := &domain.StockRestoreEvent{OrderID: 42, CartItems: []domain.CartLine{{ProductID: 1, Quantity: 3}}}
	for i := 0; i < 3; i++ {
		if err := f.restorers.HandleStockRestore(ctx, stockEv); err != nil {
			t.Fatalf("HandleStockRestore #%d: %v", i, err)
		}
	}
	products, _ := f.ledger.Products().FindByIDs(ctx, []int64{1})
	if products[1].Quantity != 8 {
		t.Errorf("stock = %d, want 8 (restored exactly once)", products[1].Quantity)
	}

	pointEv := &domain.PointRestoreEvent{OrderID: 42, UserID: 1, Amount: 500}
	for i := 0; i < 3; i++ {
		if err := f.restorers.HandlePointRestore(ctx, pointEv); err != nil {
			t.Fatalf("HandlePointRestore #%d: %v", i, err)
		}
	}
	user, _ := f.ledger.Users().FindByID(ctx, 1)
	if user.Point != 1500 {
		t.Errorf("Point = %d, want 1500 (restored exactly once)", user.Point)
	}
}

func TestRestoreRedeliveryAfterFailureIsNotSkipped(t *testing.T) {
	f := newFixture(t, ModeAsync)
	ctx := context.Background()

	// 用户记录还读不到，第一次投递必然失败
	ev := &domain.PointRestoreEvent{OrderID: 7, UserID: 1, Amount: 500}
	if err := f.restorers.HandlePointRestore(ctx, ev); err == nil {
		t.Fatal("HandlePointRestore should fail while the user is unreadable")
	}

	// 失败的投递不得消耗幂等闸门：重投要真正把余额加回去
	f.ledger.SeedUser(domain.User{ID: 1, Point: 100})
	if err := f.restorers.HandlePointRestore(ctx, ev); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	user, _ := f.ledger.Users().FindByID(ctx, 1)
	if user.Point != 600 {
		t.Errorf("Point = %d, want 600 after redelivery", user.Point)
	}

	// 成功之后的重投才是真正的重复，跳过
	if err := f.restorers.HandlePointRestore(ctx, ev); err != nil {
		t.Fatalf("replay after success: %v", err)
	}
	user, _ = f.ledger.Users().FindByID(ctx, 1)
	if user.Point != 600 {
		t.Errorf("Point = %d, want 600 after replay", user.Point)
	}
}

func TestSagaReplayAfterTerminalStateIsNoop(t *testing.T) {
	f := newFixture(t, ModeAsync)
	ctx := context.Background()

	f.ledger.SeedUser(domain.User{ID: 1, Point: 10_000})
	f.ledger.SeedProduct(domain.Product{ID: 1, Price: 100, Quantity: 10})
	ev := seedPendingOrder(t, f, 1, nil, 200, []domain.CartLine{{ProductID: 1, Quantity: 2}})

	if err := f.saga.HandleOrderCreated(ctx, ev); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	order, _ := f.ledger.Orders().FindByID(ctx, ev.OrderID)
	if order.Status != domain.OrderCompleted {
		t.Fatalf("Status = %s, want COMPLETED", order.Status)
	}

	// 重投整条订单创建事件：订单已是终态，不得再次扣减
	if err := f.saga.HandleOrderCreated(ctx, ev); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	products, _ := f.ledger.Products().FindByIDs(ctx, []int64{1})
	if products[1].Quantity != 8 {
		t.Errorf("stock = %d, want 8 (debited exactly once)", products[1].Quantity)
	}
	user, _ := f.ledger.Users().FindByID(ctx, 1)
	if user.Point != 9800 {
		t.Errorf("Point = %d, want 9800 (debited exactly once)", user.Point)
	}
}
