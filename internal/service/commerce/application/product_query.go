// internal/service/commerce/application/product_query.go
package application

import (
	"context"

	"github.com/rs/zerolog/log"

	"mall/internal/service/commerce/domain"
)

// ProductQuery 是商品侧的只读入口。
type ProductQuery struct {
	ledger  domain.Ledger
	ranking domain.ProductRanking
}

func NewProductQuery(ledger domain.Ledger, ranking domain.ProductRanking) *ProductQuery {
	return &ProductQuery{ledger: ledger, ranking: ranking}
}

// List 返回全部商品。
func (q *ProductQuery) List(ctx context.Context) ([]*domain.Product, error) {
	return q.ledger.Products().FindAll(ctx)
}

// TopProduct 是销量排行中的一项，带商品详情。
type TopProduct struct {
	Product    *domain.Product
	SalesCount int64
}

// TopN 返回当日销量前 n 的商品。排行里引用的商品查不到详情时
// 跳过该项并记日志，不让单个脏数据拖垮整个接口。
func (q *ProductQuery) TopN(ctx context.Context, n int) ([]TopProduct, error) {
	entries, err := q.ranking.TopN(ctx, n)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ProductID)
	}
	products, err := q.ledger.Products().FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]TopProduct, 0, len(entries))
	for _, e := range entries {
		p, ok := products[e.ProductID]
		if !ok {
			log.Warn().Int64("productId", e.ProductID).Msg("排行中的商品不存在，跳过")
			continue
		}
		out = append(out, TopProduct{Product: p, SalesCount: e.SalesCount})
	}
	return out, nil
}
