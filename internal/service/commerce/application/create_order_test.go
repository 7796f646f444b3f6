// internal/service/commerce/application/create_order_test.go
package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mall/internal/service/commerce/domain"
)

func TestSyncCheckoutWithRateCoupon(t *testing.T) {
	f := newFixture(t, ModeSync)
	ctx := context.Background()

	f.ledger.SeedUser(domain.User{ID: 1, Point: 100_000})
	f.ledger.SeedProduct(domain.Product{ID: 1, Price: 3000, Quantity: 10})
	f.ledger.SeedProduct(domain.Product{ID: 2, Price: 2000, Quantity: 10})
	f.ledger.SeedCoupon(domain.Coupon{ID: 1, DiscountType: domain.DiscountRate, DiscountValue: 10, TotalQuantity: 10})
	issued, err := f.allocator.Allocate(ctx, 1, 1)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	mustAddItem(t, f, 1, 1, 2) // 6000
	mustAddItem(t, f, 1, 2, 2) // 4000

	order, err := f.orders.CreateOrder(ctx, 1, &issued.ID)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if order.Status != domain.OrderCompleted {
		t.Errorf("Status = %s, want COMPLETED", order.Status)
	}
	if order.TotalAmount != 10000 || order.DiscountAmount != 1000 || order.UsedPoint != 9000 {
		t.Errorf("amounts = (%d, %d, %d), want (10000, 1000, 9000)",
			order.TotalAmount, order.DiscountAmount, order.UsedPoint)
	}

	user, _ := f.ledger.Users().FindByID(ctx, 1)
	if user.Point != 91_000 {
		t.Errorf("Point = %d, want 91000", user.Point)
	}
	p1, _ := f.ledger.Products().FindByIDs(ctx, []int64{1, 2})
	if p1[1].Quantity != 8 || p1[2].Quantity != 8 {
		t.Errorf("stock = (%d, %d), want (8, 8)", p1[1].Quantity, p1[2].Quantity)
	}
	uc, _ := f.ledger.UserCoupons().FindByID(ctx, issued.ID)
	if !uc.Used {
		t.Error("user coupon should be marked used")
	}
	items, _ := f.carts.Items(ctx, 1)
	if len(items) != 0 {
		t.Errorf("cart should be cleared, got %d items", len(items))
	}
	orderItems, _ := f.ledger.Orders().FindItems(ctx, order.ID)
	if len(orderItems) != 2 {
		t.Errorf("order items = %d, want 2", len(orderItems))
	}
}

func TestCheckoutAmountCouponClampsToZero(t *testing.T) {
	f := newFixture(t, ModeSync)
	ctx := context.Background()

	f.ledger.SeedUser(domain.User{ID: 1, Point: 0}) // 实付 0，余额为零也能下单
	f.ledger.SeedProduct(domain.Product{ID: 1, Price: 10_000, Quantity: 5})
	f.ledger.SeedCoupon(domain.Coupon{ID: 1, DiscountType: domain.DiscountAmount, DiscountValue: 15_000, TotalQuantity: 1})
	issued, err := f.allocator.Allocate(ctx, 1, 1)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	mustAddItem(t, f, 1, 1, 1)

	order, err := f.orders.CreateOrder(ctx, 1, &issued.ID)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.UsedPoint != 0 {
		t.Errorf("UsedPoint = %d, want 0", order.UsedPoint)
	}
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	f := newFixture(t, ModeSync)
	ctx := context.Background()

	const (
		stock  = 50
		buyers = 100
	)
	f.ledger.SeedProduct(domain.Product{ID: 1, Price: 100, Quantity: stock})
	for i := int64(1); i <= buyers; i++ {
		f.ledger.SeedUser(domain.User{ID: i, Point: 1000})
		mustAddItem(t, f, i, 1, 1)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
		rejected  int
	)
	for i := int64(1); i <= buyers; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := f.orders.CreateOrder(ctx, userID, nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				completed++
			case errors.Is(err, domain.ErrInsufficientStock):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if completed != stock {
		t.Errorf("completed = %d, want %d", completed, stock)
	}
	if rejected != buyers-stock {
		t.Errorf("rejected = %d, want %d", rejected, buyers-stock)
	}
	products, _ := f.ledger.Products().FindByIDs(ctx, []int64{1})
	if products[1].Quantity != 0 {
		t.Errorf("final stock = %d, want 0", products[1].Quantity)
	}
}

func TestOppositeOrderCartsCheckoutWithoutDeadlock(t *testing.T) {
	f := newFixture(t, ModeSync)
	ctx := context.Background()

	const rounds = 20
	f.ledger.SeedProduct(domain.Product{ID: 1, Price: 100, Quantity: 1000})
	f.ledger.SeedProduct(domain.Product{ID: 2, Price: 100, Quantity: 1000})
	f.ledger.SeedUser(domain.User{ID: 1, Point: 100_000})
	f.ledger.SeedUser(domain.User{ID: 2, Point: 100_000})

	// 两个买家以相反顺序把同样两件商品放进购物车并反复并发结算，
	// 加锁顺序不统一的话会在商品锁上互相等死
	var wg sync.WaitGroup
	checkout := func(userID, first, second int64) {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			if err := f.carts.AddItem(ctx, userID, first, 1); err != nil {
				t.Errorf("AddItem(%d, %d): %v", userID, first, err)
				return
			}
			if err := f.carts.AddItem(ctx, userID, second, 1); err != nil {
				t.Errorf("AddItem(%d, %d): %v", userID, second, err)
				return
			}
			if _, err := f.orders.CreateOrder(ctx, userID, nil); err != nil {
				t.Errorf("CreateOrder(user %d, round %d): %v", userID, i, err)
				return
			}
		}
	}
	wg.Add(2)
	go checkout(1, 1, 2)
	go checkout(2, 2, 1)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("checkouts did not finish, likely deadlocked on product locks")
	}

	products, _ := f.ledger.Products().FindByIDs(ctx, []int64{1, 2})
	want := int64(1000 - 2*rounds)
	if products[1].Quantity != want || products[2].Quantity != want {
		t.Errorf("stock = (%d, %d), want (%d, %d)",
			products[1].Quantity, products[2].Quantity, want, want)
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newFixture(t, ModeSync)
	f.ledger.SeedUser(domain.User{ID: 1, Point: 1000})

	if _, err := f.orders.CreateOrder(context.Background(), 1, nil); !errors.Is(err, domain.ErrCartEmpty) {
		t.Errorf("CreateOrder = %v, want ErrCartEmpty", err)
	}
}

func TestCheckoutInsufficientPoint(t *testing.T) {
	f := newFixture(t, ModeSync)
	ctx := context.Background()

	f.ledger.SeedUser(domain.User{ID: 1, Point: 500})
	f.ledger.SeedProduct(domain.Product{ID: 1, Price: 1000, Quantity: 10})
	mustAddItem(t, f, 1, 1, 1)

	if _, err := f.orders.CreateOrder(ctx, 1, nil); !errors.Is(err, domain.ErrInsufficientPoint) {
		t.Errorf("CreateOrder = %v, want ErrInsufficientPoint", err)
	}
	// 校验失败不得留下任何变更
	products, _ := f.ledger.Products().FindByIDs(ctx, []int64{1})
	if products[1].Quantity != 10 {
		t.Errorf("stock = %d, want 10", products[1].Quantity)
	}
	items, _ := f.carts.Items(ctx, 1)
	if len(items) != 1 {
		t.Errorf("cart must survive a rejected checkout, got %d items", len(items))
	}
}

func TestCheckoutRejectsForeignCoupon(t *testing.T) {
	f := newFixture(t, ModeSync)
	ctx := context.Background()

	f.ledger.SeedUser(domain.User{ID: 1, Point: 10_000})
	f.ledger.SeedUser(domain.User{ID: 2, Point: 10_000})
	f.ledger.SeedProduct(domain.Product{ID: 1, Price: 1000, Quantity: 10})
	f.ledger.SeedCoupon(domain.Coupon{ID: 1, DiscountType: domain.DiscountAmount, DiscountValue: 100, TotalQuantity: 10})
	issued, err := f.allocator.Allocate(ctx, 2, 1)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	mustAddItem(t, f, 1, 1, 1)

	if _, err := f.orders.CreateOrder(ctx, 1, &issued.ID); !errors.Is(err, domain.ErrCouponNotOwned) {
		t.Errorf("CreateOrder = %v, want ErrCouponNotOwned", err)
	}
}

func mustAddItem(t *testing.T, f *fixture, userID, productID, quantity int64) {
	t.Helper()
	if err := f.carts.AddItem(context.Background(), userID, productID, quantity); err != nil {
		t.Fatalf("AddItem(%d, %d, %d): %v", userID, productID, quantity, err)
	}
}
