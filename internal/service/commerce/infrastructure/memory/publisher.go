// internal/service/commerce/infrastructure/memory/publisher.go
package memory

import (
	"context"
	"encoding/json"
	"sync"
)

// Publisher 是进程内的事件总线，memory 模式下替代 kafka：
// Publish 同步调用该 topic 的全部订阅者，消息同样走 JSON 编解码，
// 处理路径与线上保持一致。
type Publisher struct {
	mu       sync.RWMutex
	handlers map[string][]func(ctx context.Context, payload []byte) error

	// 记录全部已发布事件，测试断言用
	published []PublishedEvent
}

// PublishedEvent 是一条已发布事件的记录。
type PublishedEvent struct {
	Topic   string
	Key     string
	Payload []byte
}

func NewPublisher() *Publisher {
	return &Publisher{handlers: make(map[string][]func(ctx context.Context, payload []byte) error)}
}

// Subscribe 注册一个 topic 的处理函数。
func (p *Publisher) Subscribe(topic string, handler func(ctx context.Context, payload []byte) error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[topic] = append(p.handlers[topic], handler)
}

func (p *Publisher) Publish(ctx context.Context, topic string, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.published = append(p.published, PublishedEvent{Topic: topic, Key: key, Payload: payload})
	handlers := make([]func(ctx context.Context, payload []byte) error, len(p.handlers[topic]))
	copy(handlers, p.handlers[topic])
	p.mu.Unlock()

	for _, h := range handlers {
		if err := h(ctx, payload); err != nil {
			return err
		}
	}
	return nil
}

// Published 返回指定 topic 的全部已发布事件；topic 为空时返回全部。
func (p *Publisher) Published(topic string) []PublishedEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if topic == "" {
		out := make([]PublishedEvent, len(p.published))
		copy(out, p.published)
		return out
	}
	var out []PublishedEvent
	for _, ev := range p.published {
		if ev.Topic == topic {
			out = append(out, ev)
		}
	}
	return out
}
