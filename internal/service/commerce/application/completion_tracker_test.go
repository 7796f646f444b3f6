// internal/service/commerce/application/completion_tracker_test.go
package application

import (
	"context"
	"errors"
	"sync"
	"testing"

	"mall/internal/service/commerce/domain"
	"mall/internal/service/commerce/infrastructure/memory"
)

func TestTrackerCompletesWhenAllStepsArrive(t *testing.T) {
	f := newFixture(t, ModeAsync)
	ctx := context.Background()

	couponID := int64(9)
	order := &domain.Order{UserID: 1, UserCouponID: &couponID, Status: domain.OrderPending}
	if err := f.ledger.Orders().Create(ctx, order, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}

	for _, step := range []string{StepStock, StepPoint} {
		if err := f.tracker.MarkDone(ctx, order.ID, step); err != nil {
			t.Fatalf("MarkDone(%s): %v", step, err)
		}
		got, _ := f.ledger.Orders().FindByID(ctx, order.ID)
		if got.Status != domain.OrderPending {
			t.Fatalf("order completed after %s, want still PENDING", step)
		}
	}

	if err := f.tracker.MarkDone(ctx, order.ID, StepCoupon); err != nil {
		t.Fatalf("MarkDone(COUPON): %v", err)
	}
	got, _ := f.ledger.Orders().FindByID(ctx, order.ID)
	if got.Status != domain.OrderCompleted {
		t.Errorf("Status = %s, want COMPLETED", got.Status)
	}
}

func TestTrackerIgnoresDuplicateStepSignals(t *testing.T) {
	f := newFixture(t, ModeAsync)
	ctx := context.Background()

	order := &domain.Order{UserID: 1, Status: domain.OrderPending} // 无券订单需要 2 步
	if err := f.ledger.Orders().Create(ctx, order, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// 同一步骤重投不推进计数
	for i := 0; i < 3; i++ {
		if err := f.tracker.MarkDone(ctx, order.ID, StepStock); err != nil {
			t.Fatalf("MarkDone: %v", err)
		}
	}
	got, _ := f.ledger.Orders().FindByID(ctx, order.ID)
	if got.Status != domain.OrderPending {
		t.Errorf("Status = %s, want PENDING after duplicate signals", got.Status)
	}

	if err := f.tracker.MarkDone(ctx, order.ID, StepPoint); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	got, _ = f.ledger.Orders().FindByID(ctx, order.ID)
	if got.Status != domain.OrderCompleted {
		t.Errorf("Status = %s, want COMPLETED", got.Status)
	}
}

func TestTrackerConcurrentSignalsCompleteExactlyOnce(t *testing.T) {
	f := newFixture(t, ModeAsync)
	ctx := context.Background()

	couponID := int64(3)
	order := &domain.Order{UserID: 1, UserCouponID: &couponID, Status: domain.OrderPending}
	if err := f.ledger.Orders().Create(ctx, order, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}

	var wg sync.WaitGroup
	for _, step := range []string{StepStock, StepPoint, StepCoupon} {
		wg.Add(1)
		go func(step string) {
			defer wg.Done()
			if err := f.tracker.MarkDone(ctx, order.ID, step); err != nil {
				t.Errorf("MarkDone(%s): %v", step, err)
			}
		}(step)
	}
	wg.Wait()

	got, _ := f.ledger.Orders().FindByID(ctx, order.ID)
	if got.Status != domain.OrderCompleted {
		t.Errorf("Status = %s, want COMPLETED", got.Status)
	}
}

// flakyOrderLedger 让订单 Save 失败指定次数，模拟收尾落库的瞬时故障。
type flakyOrderLedger struct {
	domain.Ledger
	failures int
}

func (l *flakyOrderLedger) Orders() domain.OrderRepository {
	return &flakyOrderRepo{OrderRepository: l.Ledger.Orders(), owner: l}
}

type flakyOrderRepo struct {
	domain.OrderRepository
	owner *flakyOrderLedger
}

func (r *flakyOrderRepo) Save(ctx context.Context, order *domain.Order) error {
	if r.owner.failures > 0 {
		r.owner.failures--
		return errors.New("order store briefly unavailable")
	}
	return r.OrderRepository.Save(ctx, order)
}

func TestTrackerRetriesCompletionAfterTransientFailure(t *testing.T) {
	mem := memory.NewLedger()
	flaky := &flakyOrderLedger{Ledger: mem, failures: 1}
	tracker := NewCompletionTracker(flaky, memory.NewCompletionStore())
	ctx := context.Background()

	order := &domain.Order{UserID: 1, Status: domain.OrderPending}
	if err := mem.Orders().Create(ctx, order, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := tracker.MarkDone(ctx, order.ID, StepStock); err != nil {
		t.Fatalf("MarkDone(STOCK): %v", err)
	}
	// 最后一步集齐，但收尾落库失败，错误必须交回消费循环重试
	if err := tracker.MarkDone(ctx, order.ID, StepPoint); err == nil {
		t.Fatal("MarkDone should surface the completion failure")
	}
	got, _ := mem.Orders().FindByID(ctx, order.ID)
	if got.Status != domain.OrderPending {
		t.Fatalf("Status = %s, want still PENDING after failed completion", got.Status)
	}

	// 重投最后一步：进度没有被清掉，收尾重试后订单完成
	if err := tracker.MarkDone(ctx, order.ID, StepPoint); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	got, _ = mem.Orders().FindByID(ctx, order.ID)
	if got.Status != domain.OrderCompleted {
		t.Errorf("Status = %s, want COMPLETED", got.Status)
	}
}

func TestClearDropsAccumulatedProgress(t *testing.T) {
	f := newFixture(t, ModeAsync)
	ctx := context.Background()

	order := &domain.Order{UserID: 1, Status: domain.OrderPending}
	if err := f.ledger.Orders().Create(ctx, order, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := f.tracker.MarkDone(ctx, order.ID, StepStock); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}

	// 失败路径清掉进度后把订单置为失败
	if err := f.tracker.Clear(ctx, order.ID); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	stored, _ := f.ledger.Orders().FindByID(ctx, order.ID)
	stored.MarkFailed()
	if err := f.ledger.Orders().Save(ctx, stored); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// 迟到的成功信号从零开始计数，且终态订单不会被改写
	if err := f.tracker.MarkDone(ctx, order.ID, StepPoint); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	if err := f.tracker.MarkDone(ctx, order.ID, StepStock); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	got, _ := f.ledger.Orders().FindByID(ctx, order.ID)
	if got.Status != domain.OrderFailed {
		t.Errorf("Status = %s, want FAILED to stick", got.Status)
	}
}
