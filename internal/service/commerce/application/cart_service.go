// internal/service/commerce/application/cart_service.go
package application

import (
	"context"

	"mall/internal/service/commerce/domain"
)

// CartService 维护用户购物车。
type CartService struct {
	ledger domain.Ledger
}

func NewCartService(ledger domain.Ledger) *CartService {
	return &CartService{ledger: ledger}
}

// AddItem 向购物车添加商品。同一商品重复添加时合并数量。
func (s *CartService) AddItem(ctx context.Context, userID, productID, quantity int64) error {
	if _, err := s.ledger.Users().FindByID(ctx, userID); err != nil {
		return err
	}
	products, err := s.ledger.Products().FindByIDs(ctx, []int64{productID})
	if err != nil {
		return err
	}
	if _, ok := products[productID]; !ok {
		return domain.ErrProductNotFound
	}

	return s.ledger.Transact(ctx, func(ctx context.Context) error {
		items, err := s.ledger.Carts().FindByUser(ctx, userID)
		if err != nil {
			return err
		}
		for i := range items {
			if items[i].ProductID == productID {
				items[i].Quantity += quantity
				return s.ledger.Carts().Save(ctx, &items[i])
			}
		}
		return s.ledger.Carts().Save(ctx, &domain.CartItem{
			UserID:    userID,
			ProductID: productID,
			Quantity:  quantity,
		})
	})
}

// Items 返回用户当前购物车。
func (s *CartService) Items(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	return s.ledger.Carts().FindByUser(ctx, userID)
}

// Clear 清空用户购物车。
func (s *CartService) Clear(ctx context.Context, userID int64) error {
	return s.ledger.Carts().Clear(ctx, userID)
}
