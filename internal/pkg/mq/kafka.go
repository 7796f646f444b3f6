// internal/pkg/mq/kafka.go
package mq

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// KafkaHeaderCarrier 让 kafka 消息头适配 OTel 的 TextMapCarrier 接口，
// 用于在生产者和消费者之间传递追踪上下文。
type KafkaHeaderCarrier []kafka.Header

func (c *KafkaHeaderCarrier) Get(key string) string {
	for _, h := range *c {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *KafkaHeaderCarrier) Set(key, value string) {
	// 覆盖同名 header
	for i, h := range *c {
		if h.Key == key {
			(*c)[i].Value = []byte(value)
			return
		}
	}
	*c = append(*c, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *KafkaHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(*c))
	for _, h := range *c {
		keys = append(keys, h.Key)
	}
	return keys
}

// NewWriter 为指定 topic 创建一个 kafka writer。
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		// topic 可能由我们首次写入时创建
		AllowAutoTopicCreation: true,
	}
}

// NewReader 为指定 topic/group 创建一个 kafka reader。
func NewReader(brokers []string, groupID, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        groupID,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0, // 显式提交
	})
}

// ProduceMessage 发送一条消息，并把当前 trace 上下文注入消息头。
func ProduceMessage(ctx context.Context, writer *kafka.Writer, key, value []byte) error {
	carrier := KafkaHeaderCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, &carrier)

	return writer.WriteMessages(ctx, kafka.Message{
		Key:     key,
		Value:   value,
		Headers: carrier,
	})
}
