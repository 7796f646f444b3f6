// internal/pkg/lock/local.go
package lock

import (
	"context"
	"sync"
	"time"
)

// LocalManager 是进程内的锁后端，语义与分布式后端一致（有界等待 + 租约），
// 用于 memory 存储模式和测试。
type LocalManager struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	sem chan struct{} // 容量 1 的信号量
	gen uint64        // 持有代数，防止过期的 release 误释放新持有者
}

// NewLocalManager 创建一个进程内锁管理器。
func NewLocalManager() *LocalManager {
	return &LocalManager{locks: make(map[string]*localLock)}
}

func (m *LocalManager) Acquire(ctx context.Context, keys []string, wait, lease time.Duration) (func(), error) {
	return acquireAll(ctx, keys, wait, func(ctx context.Context, key string, deadline time.Time) (func(), error) {
		return m.acquireOne(ctx, key, deadline, lease)
	})
}

func (m *LocalManager) acquireOne(ctx context.Context, key string, deadline time.Time, lease time.Duration) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &localLock{sem: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	m.mu.Unlock()

	remaining := time.Until(deadline)
	if remaining <= 0 {
		remaining = 0
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case l.sem <- struct{}{}:
	case <-timer.C:
		return nil, ErrLockUnavailable
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	m.mu.Lock()
	l.gen++
	myGen := l.gen
	m.mu.Unlock()

	release := func() { m.release(l, myGen) }

	// 租约到期强制释放，模拟持有者崩溃后的回收
	if lease > 0 {
		time.AfterFunc(lease, release)
	}
	return release, nil
}

func (m *LocalManager) release(l *localLock, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// 只有当前代的持有者可以释放；重复释放和过期租约回调都会被忽略
	if l.gen != gen {
		return
	}
	l.gen++
	select {
	case <-l.sem:
	default:
	}
}
