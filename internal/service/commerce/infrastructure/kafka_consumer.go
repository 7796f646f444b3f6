// internal/service/commerce/infrastructure/kafka_consumer.go
package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"mall/internal/pkg/mq"
)

// HandlerFunc 处理一条已解出 trace 上下文的消息。
// 返回错误表示基础设施故障，消息不提交，退避后重拉。
type HandlerFunc func(ctx context.Context, payload []byte) error

// Typed 把强类型处理函数包装成 HandlerFunc，负责 JSON 反序列化。
func Typed[T any](fn func(ctx context.Context, ev *T) error) HandlerFunc {
	return func(ctx context.Context, payload []byte) error {
		var ev T
		if err := json.Unmarshal(payload, &ev); err != nil {
			// 格式坏掉的消息重试也救不回来，记日志后提交吞掉
			log.Error().Err(err).Str("payload", string(payload)).Msg("消息反序列化失败，丢弃")
			return nil
		}
		return fn(ctx, &ev)
	}
}

// Consumer 是单 topic 的消费循环：拉取 → 解出 trace 上下文 →
// 处理 → 显式提交。处理失败不提交位点，退避后重新拉取，
// 配合各处理器的幂等实现至少一次语义。
type Consumer struct {
	name    string
	reader  *kafka.Reader
	handler HandlerFunc
}

func NewConsumer(brokers []string, groupID, topic string, handler HandlerFunc) *Consumer {
	return &Consumer{
		name:    topic,
		reader:  mq.NewReader(brokers, groupID, topic),
		handler: handler,
	}
}

func (c *Consumer) Name() string { return c.name }

// Run 阻塞运行消费循环，直到 ctx 取消。
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	logger := log.With().Str("topic", c.name).Logger()
	logger.Info().Msg("消费者启动")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info().Msg("消费者退出")
				return nil
			}
			logger.Error().Err(err).Msg("拉取消息失败")
			sleepCtx(ctx, time.Second)
			continue
		}

		carrier := mq.KafkaHeaderCarrier(msg.Headers)
		msgCtx := otel.GetTextMapPropagator().Extract(ctx, &carrier)

		if err := c.handler(msgCtx, msg.Value); err != nil {
			logger.Error().Err(err).Int64("offset", msg.Offset).Msg("消息处理失败，位点不提交")
			sleepCtx(ctx, time.Second)
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			logger.Error().Err(err).Int64("offset", msg.Offset).Msg("位点提交失败")
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
