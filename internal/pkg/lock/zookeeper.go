// internal/pkg/lock/zookeeper.go
package lock

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/rs/zerolog/log"
)

const lockRoot = "/mall_locks" // 所有分布式锁的根节点

// ZookeeperManager 基于临时顺序节点实现命名锁。
// 持有者会话断开后节点自动删除，相当于由会话超时承担租约职责，
// 因此 lease 参数在此后端不做客户端强制。
type ZookeeperManager struct {
	conn *zk.Conn
}

// NewZookeeperManager 连接 zookeeper 并确保锁根节点存在。
func NewZookeeperManager(addrs []string) (*ZookeeperManager, error) {
	conn, _, err := zk.Connect(addrs, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to zookeeper: %w", err)
	}

	if _, err := conn.Create(lockRoot, []byte(""), 0, zk.WorldACL(zk.PermAll)); err != nil && err != zk.ErrNodeExists {
		conn.Close()
		return nil, fmt.Errorf("failed to create lock root node: %w", err)
	}
	return &ZookeeperManager{conn: conn}, nil
}

func (m *ZookeeperManager) Acquire(ctx context.Context, keys []string, wait, lease time.Duration) (func(), error) {
	return acquireAll(ctx, keys, wait, m.acquireOne)
}

func (m *ZookeeperManager) acquireOne(ctx context.Context, key string, deadline time.Time) (func(), error) {
	// zk 路径里不允许出现 '/'
	lockPath := lockRoot + "/" + strings.ReplaceAll(key, "/", "_")
	if _, err := m.conn.Create(lockPath, []byte(""), 0, zk.WorldACL(zk.PermAll)); err != nil && err != zk.ErrNodeExists {
		return nil, fmt.Errorf("failed to create lock path node %s: %w", lockPath, err)
	}

	// 1. 在锁路径下创建一个临时顺序节点
	nodePath, err := m.conn.CreateProtectedEphemeralSequential(lockPath+"/lock-", []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return nil, fmt.Errorf("failed to create sequential node: %w", err)
	}

	release := func() {
		if err := m.conn.Delete(nodePath, -1); err != nil && err != zk.ErrNoNode {
			log.Error().Err(err).Str("node", nodePath).Msg("failed to delete zookeeper lock node")
		}
	}

	for {
		// 2. 获取锁路径下的所有子节点并排序
		children, _, err := m.conn.Children(lockPath)
		if err != nil {
			release()
			return nil, fmt.Errorf("failed to get children nodes: %w", err)
		}
		sort.Strings(children)

		// 3. 自己是最小节点则获取成功
		myNodeName := strings.TrimPrefix(nodePath, lockPath+"/")
		if len(children) > 0 && myNodeName == children[0] {
			return release, nil
		}

		// 4. 否则监听前一个节点
		prevIndex := -1
		for i, child := range children {
			if child == myNodeName {
				prevIndex = i - 1
				break
			}
		}
		if prevIndex < 0 {
			release()
			return nil, fmt.Errorf("node %s not found among children of %s", myNodeName, lockPath)
		}
		prevNodePath := lockPath + "/" + children[prevIndex]

		_, _, eventChan, err := m.conn.ExistsW(prevNodePath)
		if err != nil {
			// 前一个节点刚好被删除，重试循环
			if err == zk.ErrNoNode {
				continue
			}
			release()
			return nil, fmt.Errorf("failed to watch previous node: %w", err)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			release()
			return nil, ErrLockUnavailable
		}

		select {
		case event := <-eventChan:
			if event.Type == zk.EventNodeDeleted {
				continue
			}
		case <-time.After(remaining):
			release()
			return nil, ErrLockUnavailable
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}
}

// Close 关闭 zookeeper 连接，临时节点随会话一起清理。
func (m *ZookeeperManager) Close() {
	m.conn.Close()
}
