// internal/service/commerce/infrastructure/mapper.go
package infrastructure

import (
	"time"

	"mall/internal/service/commerce/domain"
)

func toDomainUser(m *userModel) *domain.User {
	return &domain.User{ID: m.ID, Name: m.Name, Point: m.Point}
}

func toUserModel(u *domain.User) *userModel {
	return &userModel{ID: u.ID, Name: u.Name, Point: u.Point}
}

func toDomainCoupon(m *couponModel) *domain.Coupon {
	c := &domain.Coupon{
		ID:             m.ID,
		Name:           m.Name,
		DiscountType:   domain.DiscountType(m.DiscountType),
		DiscountValue:  m.DiscountValue,
		TotalQuantity:  m.TotalQuantity,
		IssuedQuantity: m.IssuedQuantity,
		UsedQuantity:   m.UsedQuantity,
		CreatedAt:      m.CreatedAt,
	}
	if m.ExpiresAt != nil {
		c.ExpiresAt = *m.ExpiresAt
	}
	return c
}

func toCouponModel(c *domain.Coupon) *couponModel {
	m := &couponModel{
		ID:             c.ID,
		Name:           c.Name,
		DiscountType:   string(c.DiscountType),
		DiscountValue:  c.DiscountValue,
		TotalQuantity:  c.TotalQuantity,
		IssuedQuantity: c.IssuedQuantity,
		UsedQuantity:   c.UsedQuantity,
		CreatedAt:      c.CreatedAt,
	}
	if !c.ExpiresAt.IsZero() {
		t := c.ExpiresAt
		m.ExpiresAt = &t
	}
	return m
}

func toDomainUserCoupon(m *userCouponModel) *domain.UserCoupon {
	return &domain.UserCoupon{
		ID:       m.ID,
		UserID:   m.UserID,
		CouponID: m.CouponID,
		Used:     m.Used,
		IssuedAt: m.IssuedAt,
		UsedAt:   m.UsedAt,
	}
}

func toUserCouponModel(uc *domain.UserCoupon) *userCouponModel {
	return &userCouponModel{
		ID:       uc.ID,
		UserID:   uc.UserID,
		CouponID: uc.CouponID,
		Used:     uc.Used,
		IssuedAt: uc.IssuedAt,
		UsedAt:   uc.UsedAt,
	}
}

func toDomainProduct(m *productModel) *domain.Product {
	return &domain.Product{ID: m.ID, Name: m.Name, Price: m.Price, Quantity: m.Quantity}
}

func toProductModel(p *domain.Product) *productModel {
	return &productModel{ID: p.ID, Name: p.Name, Price: p.Price, Quantity: p.Quantity}
}

func toDomainOrder(m *orderModel) *domain.Order {
	return &domain.Order{
		ID:             m.ID,
		UserID:         m.UserID,
		UserCouponID:   m.UserCouponID,
		TotalAmount:    m.TotalAmount,
		DiscountAmount: m.DiscountAmount,
		UsedPoint:      m.UsedPoint,
		Status:         domain.OrderStatus(m.Status),
		CreatedAt:      m.CreatedAt,
	}
}

func toOrderModel(o *domain.Order) *orderModel {
	created := o.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return &orderModel{
		ID:             o.ID,
		UserID:         o.UserID,
		UserCouponID:   o.UserCouponID,
		TotalAmount:    o.TotalAmount,
		DiscountAmount: o.DiscountAmount,
		UsedPoint:      o.UsedPoint,
		Status:         string(o.Status),
		CreatedAt:      created,
	}
}

func toDomainOrderItem(m *orderItemModel) *domain.OrderItem {
	return &domain.OrderItem{
		ID:        m.ID,
		OrderID:   m.OrderID,
		ProductID: m.ProductID,
		Quantity:  m.Quantity,
		UnitPrice: m.UnitPrice,
	}
}

func toDomainCartItem(m *cartItemModel) domain.CartItem {
	return domain.CartItem{ID: m.ID, UserID: m.UserID, ProductID: m.ProductID, Quantity: m.Quantity}
}
