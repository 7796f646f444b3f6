// internal/service/commerce/domain/product.go
package domain

import "fmt"

// Product 是商品记录。不变式：任何已提交状态下 Quantity >= 0。
type Product struct {
	ID       int64
	Name     string
	Price    int64
	Quantity int64 // 库存
}

// ValidateStock 校验库存是否足够。
func (p *Product) ValidateStock(quantity int64) error {
	if p.Quantity < quantity {
		return ErrInsufficientStock
	}
	return nil
}

// DecreaseStock 扣减库存，不足时拒绝。
// 调用方必须持有该商品的锁。
func (p *Product) DecreaseStock(quantity int64) error {
	if err := p.ValidateStock(quantity); err != nil {
		return err
	}
	p.Quantity -= quantity
	return nil
}

// RestoreStock 是补偿路径：把库存加回去。
func (p *Product) RestoreStock(quantity int64) {
	p.Quantity += quantity
}

// ProductLockKey 生成商品锁的锁名。
// 复合加锁时调用方必须按商品 ID 升序排列锁名。
func ProductLockKey(productID int64) string {
	return fmt.Sprintf("product:lock:%d", productID)
}
