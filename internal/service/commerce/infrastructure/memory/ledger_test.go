// internal/service/commerce/infrastructure/memory/ledger_test.go
package memory

import (
	"context"
	"errors"
	"testing"

	"mall/internal/service/commerce/domain"
)

func TestTransactRollsBackOnError(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	l.SeedProduct(domain.Product{ID: 1, Quantity: 10})
	l.SeedUser(domain.User{ID: 1, Point: 100})

	boom := errors.New("boom")
	err := l.Transact(ctx, func(ctx context.Context) error {
		p, err := l.Products().FindByIDs(ctx, []int64{1})
		if err != nil {
			return err
		}
		p[1].Quantity = 0
		if err := l.Products().Save(ctx, p[1]); err != nil {
			return err
		}
		u, err := l.Users().FindByID(ctx, 1)
		if err != nil {
			return err
		}
		u.Point = 0
		if err := l.Users().Save(ctx, u); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Transact = %v, want boom", err)
	}

	products, _ := l.Products().FindByIDs(ctx, []int64{1})
	if products[1].Quantity != 10 {
		t.Errorf("Quantity = %d, want 10 after rollback", products[1].Quantity)
	}
	user, _ := l.Users().FindByID(ctx, 1)
	if user.Point != 100 {
		t.Errorf("Point = %d, want 100 after rollback", user.Point)
	}
}

func TestTransactCommitsOnSuccess(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	l.SeedProduct(domain.Product{ID: 1, Quantity: 10})

	err := l.Transact(ctx, func(ctx context.Context) error {
		p, _ := l.Products().FindByIDs(ctx, []int64{1})
		p[1].Quantity = 7
		return l.Products().Save(ctx, p[1])
	})
	if err != nil {
		t.Fatalf("Transact: %v", err)
	}
	products, _ := l.Products().FindByIDs(ctx, []int64{1})
	if products[1].Quantity != 7 {
		t.Errorf("Quantity = %d, want 7", products[1].Quantity)
	}
}

func TestUserCouponUniqueConstraint(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	if err := l.UserCoupons().Create(ctx, &domain.UserCoupon{UserID: 1, CouponID: 1}); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	err := l.UserCoupons().Create(ctx, &domain.UserCoupon{UserID: 1, CouponID: 1})
	if !errors.Is(err, domain.ErrCouponAlreadyIssued) {
		t.Errorf("second Create = %v, want ErrCouponAlreadyIssued", err)
	}
	// 不同用户领同一张券不受影响
	if err := l.UserCoupons().Create(ctx, &domain.UserCoupon{UserID: 2, CouponID: 1}); err != nil {
		t.Errorf("different user Create = %v, want nil", err)
	}
}

func TestOrderCreateBackfillsIDs(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	order := &domain.Order{UserID: 1, Status: domain.OrderPending}
	items := []*domain.OrderItem{{ProductID: 1, Quantity: 2, UnitPrice: 100}}
	if err := l.Orders().Create(ctx, order, items); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if order.ID == 0 {
		t.Error("order ID was not backfilled")
	}
	if items[0].ID == 0 || items[0].OrderID != order.ID {
		t.Errorf("item IDs not backfilled: %+v", items[0])
	}

	stored, err := l.Orders().FindItems(ctx, order.ID)
	if err != nil || len(stored) != 1 {
		t.Fatalf("FindItems = %v, %v", stored, err)
	}
}
