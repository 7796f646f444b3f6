// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"mall/internal/pkg/config"
	"mall/internal/pkg/logger"
	"mall/internal/pkg/nacos"
	"mall/internal/pkg/tracing"
)

// Runner 是需要随服务启动的后台任务（消费循环等）。
// Run 必须阻塞直到 ctx 取消，正常退出返回 nil。
type Runner interface {
	Name() string
	Run(ctx context.Context) error
}

// AppInfo 描述一个服务实例的启动参数。
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(mux *http.ServeMux)
	Runners          []Runner
	OnShutdown       []func()
}

// StartService 按统一的流程拉起服务：日志、追踪、HTTP、后台任务、
// 注册中心，然后阻塞直到收到退出信号并优雅关停。
func StartService(info AppInfo) {
	logger.Init(info.ServiceName)
	cfg := config.Current()

	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化追踪失败")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(mux)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", info.Port),
		Handler: mux,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(rootCtx)

	g.Go(func() error {
		log.Info().Int("port", info.Port).Msg("HTTP 服务启动")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	for _, r := range info.Runners {
		runner := r
		g.Go(func() error {
			if err := runner.Run(ctx); err != nil {
				return fmt.Errorf("runner %s: %w", runner.Name(), err)
			}
			return nil
		})
	}

	// 注册中心是可选依赖，失败只告警不阻塞启动
	deregister := registerWithNacos(cfg, info.ServiceName, info.Port)

	g.Go(func() error {
		<-ctx.Done()

		if deregister != nil {
			deregister()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP 服务关停失败")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("服务异常退出")
	}

	for _, fn := range info.OnShutdown {
		fn()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("追踪退出失败")
	}
	log.Info().Msg("服务已退出")
}

func registerWithNacos(cfg *config.Config, serviceName string, port int) func() {
	if !cfg.Infra.Nacos.Enabled {
		return nil
	}
	client, err := nacos.NewClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
	if err != nil {
		log.Warn().Err(err).Msg("连接 nacos 失败，跳过注册")
		return nil
	}
	ip, err := outboundIP()
	if err != nil {
		log.Warn().Err(err).Msg("获取本机地址失败，跳过 nacos 注册")
		return nil
	}
	if err := client.RegisterServiceInstance(serviceName, ip, port); err != nil {
		log.Warn().Err(err).Msg("nacos 注册失败")
		return nil
	}
	return func() {
		if err := client.DeregisterServiceInstance(serviceName, ip, port); err != nil {
			log.Warn().Err(err).Msg("nacos 注销失败")
		}
	}
}

// outboundIP 用一次 UDP 拨号探测本机的出口地址，不实际发包。
func outboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("unexpected local addr type %T", conn.LocalAddr())
	}
	return addr.IP.String(), nil
}

// MustEnvPort 允许用环境变量覆盖监听端口。
func MustEnvPort(fallback int) int {
	raw := os.Getenv("PORT")
	if raw == "" {
		return fallback
	}
	var port int
	if _, err := fmt.Sscanf(raw, "%d", &port); err != nil || port <= 0 {
		log.Fatal().Str("PORT", raw).Msg("非法的端口配置")
	}
	return port
}
