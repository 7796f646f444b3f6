// internal/service/commerce/application/failure_handler.go
package application

import (
	"context"
	"strconv"

	"github.com/rs/zerolog/log"

	"mall/internal/pkg/alert"
	"mall/internal/service/commerce/domain"
)

// OrderFailureHandler 消费履约步骤的失败事件：把订单置为 FAILED、
// 清掉完成计数，然后为已落地的先行步骤发出恢复指令。
//
// 失败事件的类型标识了已完成的前缀：
//   - 库存扣减失败：没有任何先行步骤，只置失败；
//   - 余额扣减失败：库存已扣，发库存恢复；
//   - 券核销失败：库存与余额都已扣，两者都发恢复。
//
// 恢复指令发布失败意味着资源会一直处于多扣状态，除了日志外
// 还会推送运维告警，等待人工介入。
type OrderFailureHandler struct {
	ledger    domain.Ledger
	publisher domain.EventPublisher
	tracker   *CompletionTracker
	notifier  alert.Notifier
}

func NewOrderFailureHandler(ledger domain.Ledger, publisher domain.EventPublisher, tracker *CompletionTracker, notifier alert.Notifier) *OrderFailureHandler {
	return &OrderFailureHandler{ledger: ledger, publisher: publisher, tracker: tracker, notifier: notifier}
}

// HandleStockDeductionFailed 处理库存扣减失败。第一步就失败，无需恢复。
func (h *OrderFailureHandler) HandleStockDeductionFailed(ctx context.Context, ev *domain.StockDeductionFailedEvent) error {
	h.failOrder(ctx, ev.OrderID, ev.ErrorMessage)
	return nil
}

// HandlePointDeductionFailed 处理余额扣减失败：恢复已扣的库存。
func (h *OrderFailureHandler) HandlePointDeductionFailed(ctx context.Context, ev *domain.PointDeductionFailedEvent) error {
	h.failOrder(ctx, ev.OrderID, ev.ErrorMessage)
	h.publishRestore(ctx, domain.TopicStockRestore, ev.OrderID, domain.StockRestoreEvent{
		OrderID:   ev.OrderID,
		CartItems: ev.CartItems,
	})
	return nil
}

// HandleCouponUsageFailed 处理券核销失败：恢复已扣的余额与库存。
func (h *OrderFailureHandler) HandleCouponUsageFailed(ctx context.Context, ev *domain.CouponUsageFailedEvent) error {
	h.failOrder(ctx, ev.OrderID, ev.ErrorMessage)
	h.publishRestore(ctx, domain.TopicPointRestore, ev.OrderID, domain.PointRestoreEvent{
		OrderID: ev.OrderID,
		UserID:  ev.UserID,
		Amount:  ev.FinalAmount,
	})
	h.publishRestore(ctx, domain.TopicStockRestore, ev.OrderID, domain.StockRestoreEvent{
		OrderID:   ev.OrderID,
		CartItems: ev.CartItems,
	})
	return nil
}

// failOrder 幂等地把订单置为 FAILED 并丢弃完成计数。
// 失败事件可能重投，订单已是终态时恢复指令仍会照发，
// 由恢复器的幂等闸门保证不会二次加回。
func (h *OrderFailureHandler) failOrder(ctx context.Context, orderID int64, reason string) {
	err := h.ledger.Transact(ctx, func(ctx context.Context) error {
		order, err := h.ledger.Orders().FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.MarkFailed() {
			log.Warn().Int64("orderId", orderID).Str("status", string(order.Status)).Msg("订单已处于终态，跳过置失败")
			return nil
		}
		if err := h.ledger.Orders().Save(ctx, order); err != nil {
			return err
		}
		ordersFailedTotal.Inc()
		log.Info().Int64("orderId", orderID).Str("reason", reason).Msg("订单履约失败")
		return nil
	})
	if err != nil {
		log.Error().Err(err).Int64("orderId", orderID).Msg("订单置失败时出错")
	}
	if err := h.tracker.Clear(ctx, orderID); err != nil {
		log.Error().Err(err).Int64("orderId", orderID).Msg("清理完成计数失败")
	}
}

func (h *OrderFailureHandler) publishRestore(ctx context.Context, topic string, orderID int64, ev any) {
	if err := h.publisher.Publish(ctx, topic, strconv.FormatInt(orderID, 10), ev); err != nil {
		compensationFailuresTotal.Inc()
		msg := "恢复指令发布失败，订单 " + strconv.FormatInt(orderID, 10) + " 需要人工补偿（" + topic + "）"
		log.Error().Err(err).Int64("orderId", orderID).Str("topic", topic).Msg("恢复指令发布失败")
		h.notifier.Notify("critical", msg)
	}
}
