// internal/service/commerce/infrastructure/kafka_producer.go
package infrastructure

import (
	"context"
	"encoding/json"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"mall/internal/pkg/mq"
)

// KafkaPublisher 是 EventPublisher 的 kafka 实现。
// 每个 topic 懒初始化一个 writer，进程内复用。
type KafkaPublisher struct {
	brokers []string

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	return &KafkaPublisher{brokers: brokers, writers: make(map[string]*kafka.Writer)}
}

func (p *KafkaPublisher) writer(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.writers[topic]
	if !ok {
		w = mq.NewWriter(p.brokers, topic)
		p.writers[topic] = w
	}
	return w
}

func (p *KafkaPublisher) Publish(ctx context.Context, topic string, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return pkgerrors.Wrapf(err, "marshal event for topic %s", topic)
	}
	return pkgerrors.Wrapf(mq.ProduceMessage(ctx, p.writer(topic), []byte(key), payload), "produce to %s", topic)
}

func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var first error
	for _, w := range p.writers {
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
