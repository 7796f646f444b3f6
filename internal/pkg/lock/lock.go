// internal/pkg/lock/lock.go
package lock

import (
	"context"
	"errors"
	"sort"
	"time"
)

// ErrLockUnavailable 表示在等待时间内未能获取锁。
// 调用方可以安全地整体重试，因为获取失败时不会留下任何部分持有。
var ErrLockUnavailable = errors.New("lock unavailable")

// Manager 是命名锁的获取入口。
//
// Acquire 按 keys 的给定顺序依次加锁，作为一个复合操作整体成功或整体失败：
// 任何一把锁获取超时，已获取的部分会被立刻释放并返回 ErrLockUnavailable。
// wait 限定获取阶段的最长等待，lease 限定持有时间的上限，持有者崩溃后
// 锁最迟在 lease 到期时被强制释放。
//
// 调用方负责保证 keys 已按确定性全序排列（见 SortKeys），这是多资源
// 加锁时避免死锁的前提。
type Manager interface {
	Acquire(ctx context.Context, keys []string, wait, lease time.Duration) (release func(), err error)
}

// SortKeys 返回去重并升序排序后的 key 副本。
// 所有并发方对同一批资源使用同一顺序加锁，互相之间不会形成环路等待。
func SortKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// acquireAll 是各后端共用的复合获取骨架：用单把锁的获取函数依次取每把锁，
// 共享同一个 wait 预算，失败时逆序释放已取得的部分。
func acquireAll(
	ctx context.Context,
	keys []string,
	wait time.Duration,
	acquireOne func(ctx context.Context, key string, deadline time.Time) (func(), error),
) (func(), error) {
	deadline := time.Now().Add(wait)
	releases := make([]func(), 0, len(keys))

	releaseAll := func() {
		// 逆序释放
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}

	for _, key := range keys {
		rel, err := acquireOne(ctx, key, deadline)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, rel)
	}
	return releaseAll, nil
}
