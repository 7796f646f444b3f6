// internal/service/commerce/domain/cart.go
package domain

import "sort"

// CartItem 是购物车中的一行。
type CartItem struct {
	ID        int64
	UserID    int64
	ProductID int64
	Quantity  int64
}

// DistinctProductIDs 提取购物车涉及的商品 ID，去重并升序排序。
// 升序是复合加锁的确定性全序，绝不能省略。
func DistinctProductIDs(items []CartItem) []int64 {
	seen := make(map[int64]struct{}, len(items))
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
