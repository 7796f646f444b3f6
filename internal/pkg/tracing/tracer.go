// internal/pkg/tracing/tracer.go
package tracing

import (
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// InitTracerProvider 初始化全局 TracerProvider，span 批量导出到 Jaeger。
// 采样率由 TRACE_SAMPLE_RATIO 控制（0~1，缺省全采样），子 span 始终
// 跟随父 span 的采样决定，跨服务调用链不会中途断开。
func InitTracerProvider(serviceName, jaegerEndpoint string) (*sdktrace.TracerProvider, error) {
	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(rootSampler())),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	log.Info().Str("endpoint", jaegerEndpoint).Msg("链路追踪已初始化")
	return tp, nil
}

func rootSampler() sdktrace.Sampler {
	raw := os.Getenv("TRACE_SAMPLE_RATIO")
	if raw == "" {
		return sdktrace.AlwaysSample()
	}
	ratio, err := strconv.ParseFloat(raw, 64)
	if err != nil || ratio < 0 || ratio > 1 {
		log.Warn().Str("value", raw).Msg("采样率配置非法，回退为全采样")
		return sdktrace.AlwaysSample()
	}
	return sdktrace.TraceIDRatioBased(ratio)
}
