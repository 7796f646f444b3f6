// internal/pkg/redis/client.go
package redis

import (
	"context"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"
)

// Client 封装了 go-redis 客户端，并管理按名字注册的 Lua 脚本。
// 业务方通过脚本名调用，避免在各处散落脚本内容。
type Client struct {
	rdb *goredis.Client

	mu      sync.RWMutex
	scripts map[string]*goredis.Script
}

// NewClient 创建一个新的 redis 客户端封装。
func NewClient(addr string) *Client {
	return &Client{
		rdb:     goredis.NewClient(&goredis.Options{Addr: addr}),
		scripts: make(map[string]*goredis.Script),
	}
}

// GetClient 暴露底层客户端，供需要 pipeline 等高级操作的调用方使用。
func (c *Client) GetClient() *goredis.Client {
	return c.rdb
}

// LoadScriptFromContent 按名字注册一段 Lua 脚本。
func (c *Client) LoadScriptFromContent(name, content string) error {
	if content == "" {
		return fmt.Errorf("script %q is empty", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[name] = goredis.NewScript(content)
	return nil
}

// RunScript 执行一段已注册的脚本。EVALSHA 失败时 go-redis 会自动回退到 EVAL。
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	c.mu.RLock()
	script, ok := c.scripts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("script %q is not loaded", name)
	}
	return script.Run(ctx, c.rdb, keys, args...).Result()
}

// Close 关闭底层连接。
func (c *Client) Close() error {
	return c.rdb.Close()
}
