// internal/service/commerce/application/queueing_issuer.go
package application

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"mall/internal/service/commerce/domain"
)

// QueueingIssuer 实现排队发放：请求先经过轻量预检后写入 Kafka，
// 由单消费组顺序消费，把瞬时峰值摊平为稳定的发放速率。
//
// 预检只为尽早拒绝明显无效的请求；由于预检与实际发放之间存在竞争窗口，
// 最终判定仍由 CouponAllocator 在锁内完成。
type QueueingIssuer struct {
	ledger    domain.Ledger
	allocator *CouponAllocator
	publisher domain.EventPublisher
}

func NewQueueingIssuer(ledger domain.Ledger, allocator *CouponAllocator, publisher domain.EventPublisher) *QueueingIssuer {
	return &QueueingIssuer{ledger: ledger, allocator: allocator, publisher: publisher}
}

// Enqueue 校验请求并写入发放队列。入队成功只代表“已受理”，不代表已发放。
func (q *QueueingIssuer) Enqueue(ctx context.Context, userID, couponID int64) error {
	ctx, span := tracer.Start(ctx, "coupon.Enqueue")
	defer span.End()

	if _, err := q.ledger.Users().FindByID(ctx, userID); err != nil {
		return err
	}
	coupon, err := q.ledger.Coupons().FindByID(ctx, couponID)
	if err != nil {
		return err
	}
	if err := coupon.ValidateIssuable(time.Now()); err != nil {
		return err
	}
	_, err = q.ledger.UserCoupons().FindByUserAndCoupon(ctx, userID, couponID)
	if err == nil {
		return domain.ErrCouponAlreadyIssued
	}
	if !errors.Is(err, domain.ErrUserCouponNotFound) {
		return err
	}

	// 按 couponID 作分区键，同一优惠券的请求保持顺序
	ev := domain.CouponIssueRequestEvent{UserID: userID, CouponID: couponID}
	if err := q.publisher.Publish(ctx, domain.TopicCouponIssueRequest, strconv.FormatInt(couponID, 10), ev); err != nil {
		return err
	}
	log.Info().Int64("userId", userID).Int64("couponId", couponID).Msg("发放请求已入队")
	return nil
}

// HandleIssueRequest 消费一条入队请求并执行实际发放。
//
// 业务性失败（重复、过期、售罄等）对重投不敏感，记日志后吞掉，
// 让消费位点正常推进；只有基础设施错误才向上返回，触发消费循环重试。
func (q *QueueingIssuer) HandleIssueRequest(ctx context.Context, ev *domain.CouponIssueRequestEvent) error {
	_, err := q.allocator.Allocate(ctx, ev.UserID, ev.CouponID)
	switch {
	case err == nil:
		return nil
	case domain.IsConflict(err) || domain.IsNotFound(err):
		log.Warn().Err(err).
			Int64("userId", ev.UserID).
			Int64("couponId", ev.CouponID).
			Msg("排队发放被业务规则拒绝")
		return nil
	default:
		return err
	}
}
