// internal/service/commerce/application/harness_test.go
package application

import (
	"testing"
	"time"

	"mall/internal/pkg/alert"
	"mall/internal/pkg/lock"
	"mall/internal/service/commerce/domain"
	"mall/internal/service/commerce/infrastructure"
	"mall/internal/service/commerce/infrastructure/memory"
)

// fixture 把全部用例所需的组件按生产布线方式组装起来：
// 进程内账本 + 本地锁 + 同步事件总线，事件处理路径与线上一致。
type fixture struct {
	ledger    *memory.Ledger
	bus       *memory.Publisher
	ranking   *memory.Ranking
	allocator *CouponAllocator
	issuer    *QueueingIssuer
	orders    *CreateOrderUseCase
	tracker   *CompletionTracker
	saga      *FulfillmentSaga
	failures  *OrderFailureHandler
	restorers *Restorers
	carts     *CartService
	products  *ProductQuery
}

func newFixture(t *testing.T, orderMode string) *fixture {
	t.Helper()

	ledger := memory.NewLedger()
	bus := memory.NewPublisher()
	locks := lock.NewLocalManager()
	completion := memory.NewCompletionStore()
	guard := memory.NewOnceGuard()
	ranking := memory.NewRanking()

	const (
		wait  = 5 * time.Second
		lease = time.Minute
	)

	tracker := NewCompletionTracker(ledger, completion)
	allocator := NewCouponAllocator(ledger, locks, wait, lease)
	issuer := NewQueueingIssuer(ledger, allocator, bus)
	orders := NewCreateOrderUseCase(ledger, locks, bus, ranking, orderMode, wait, lease)
	saga := NewFulfillmentSaga(ledger, locks, bus, ranking, tracker, wait, lease)
	failures := NewOrderFailureHandler(ledger, bus, tracker, alert.NopNotifier{})
	restorers := NewRestorers(ledger, locks, guard, alert.NopNotifier{}, wait, lease)

	bus.Subscribe(domain.TopicOrderCreated, infrastructure.Typed(saga.HandleOrderCreated))
	bus.Subscribe(domain.TopicStockDeductionFailed, infrastructure.Typed(failures.HandleStockDeductionFailed))
	bus.Subscribe(domain.TopicPointDeductionFailed, infrastructure.Typed(failures.HandlePointDeductionFailed))
	bus.Subscribe(domain.TopicCouponUsageFailed, infrastructure.Typed(failures.HandleCouponUsageFailed))
	bus.Subscribe(domain.TopicStockRestore, infrastructure.Typed(restorers.HandleStockRestore))
	bus.Subscribe(domain.TopicPointRestore, infrastructure.Typed(restorers.HandlePointRestore))
	bus.Subscribe(domain.TopicCouponRestore, infrastructure.Typed(restorers.HandleCouponRestore))
	bus.Subscribe(domain.TopicCouponIssueRequest, infrastructure.Typed(issuer.HandleIssueRequest))

	return &fixture{
		ledger:    ledger,
		bus:       bus,
		ranking:   ranking,
		allocator: allocator,
		issuer:    issuer,
		orders:    orders,
		tracker:   tracker,
		saga:      saga,
		failures:  failures,
		restorers: restorers,
		carts:     NewCartService(ledger),
		products:  NewProductQuery(ledger, ranking),
	}
}
