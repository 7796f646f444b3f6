// internal/service/commerce/infrastructure/memory/local.go
package memory

import (
	"context"
	"sort"
	"sync"

	"mall/internal/service/commerce/domain"
)

// CompletionStore 是单实例部署下的完成计数实现。
type CompletionStore struct {
	mu    sync.Mutex
	steps map[int64]map[string]struct{}
}

func NewCompletionStore() *CompletionStore {
	return &CompletionStore{steps: make(map[int64]map[string]struct{})}
}

func (s *CompletionStore) AddStep(ctx context.Context, orderID int64, step string, required int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.steps[orderID]
	if !ok {
		set = make(map[string]struct{})
		s.steps[orderID] = set
	}
	set[step] = struct{}{}
	return len(set) >= required, nil
}

func (s *CompletionStore) Clear(ctx context.Context, orderID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.steps, orderID)
	return nil
}

// OnceGuard 是进程内的幂等闸门。
type OnceGuard struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewOnceGuard() *OnceGuard {
	return &OnceGuard{seen: make(map[string]struct{})}
}

func (g *OnceGuard) Acquire(ctx context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.seen[key]; ok {
		return false, nil
	}
	g.seen[key] = struct{}{}
	return true, nil
}

func (g *OnceGuard) Release(ctx context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, key)
	return nil
}

// Ranking 是进程内的销量聚合，memory 模式下替代 redis ZSET。
type Ranking struct {
	mu    sync.Mutex
	sales map[int64]int64
}

func NewRanking() *Ranking {
	return &Ranking{sales: make(map[int64]int64)}
}

func (r *Ranking) IncrementSalesCount(ctx context.Context, productID, quantity int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sales[productID] += quantity
	return nil
}

func (r *Ranking) TopN(ctx context.Context, n int) ([]domain.RankEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.RankEntry, 0, len(r.sales))
	for id, count := range r.sales {
		out = append(out, domain.RankEntry{ProductID: id, SalesCount: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SalesCount != out[j].SalesCount {
			return out[i].SalesCount > out[j].SalesCount
		}
		return out[i].ProductID < out[j].ProductID
	})
	if n < len(out) {
		out = out[:n]
	}
	return out, nil
}
