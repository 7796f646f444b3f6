// cmd/commerce-service/main.go
package main

import (
	"errors"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"mall/internal/pkg/alert"
	"mall/internal/pkg/bootstrap"
	"mall/internal/pkg/config"
	"mall/internal/pkg/lock"
	"mall/internal/pkg/logger"
	pkgredis "mall/internal/pkg/redis"
	"mall/internal/service/commerce/application"
	"mall/internal/service/commerce/domain"
	"mall/internal/service/commerce/infrastructure"
	"mall/internal/service/commerce/infrastructure/memory"
	"mall/internal/service/commerce/interfaces"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = config.Current()
			log.Warn().Str("path", *cfgPath).Msg("配置文件不存在，使用默认配置")
		} else {
			log.Fatal().Err(err).Msg("加载配置失败")
		}
	}
	logger.Init(cfg.App.Name)

	var (
		ledger     domain.Ledger
		publisher  domain.EventPublisher
		ranking    domain.ProductRanking
		completion domain.CompletionStore
		guard      domain.OnceGuard
		runners    []bootstrap.Runner
		onShutdown []func()
	)

	var redisClient *pkgredis.Client
	needsRedis := cfg.Storage != "memory" || cfg.Lock.Backend == "redis"
	if needsRedis {
		redisClient = pkgredis.NewClient(cfg.Infra.Redis.Addr)
		onShutdown = append(onShutdown, func() {
			if err := redisClient.Close(); err != nil {
				log.Error().Err(err).Msg("关闭 redis 连接失败")
			}
		})
	}

	locks := buildLockManager(cfg, redisClient)
	hub := alert.NewHub()

	switch cfg.Storage {
	case "memory":
		memLedger := memory.NewLedger()
		seedDemoData(memLedger)
		ledger = memLedger
		ranking = memory.NewRanking()
		completion = memory.NewCompletionStore()
		guard = memory.NewOnceGuard()
	default:
		gormLedger, err := infrastructure.NewGormLedger(cfg.Infra.MySQL.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("连接 MySQL 失败")
		}
		if err := gormLedger.AutoMigrate(); err != nil {
			log.Fatal().Err(err).Msg("建表失败")
		}
		ledger = gormLedger
		ranking = infrastructure.NewRedisRanking(redisClient)
		completion, err = infrastructure.NewRedisCompletionStore(redisClient)
		if err != nil {
			log.Fatal().Err(err).Msg("加载完成计数脚本失败")
		}
		guard = infrastructure.NewRedisOnceGuard(redisClient)
	}

	var memBus *memory.Publisher
	if cfg.Storage == "memory" {
		// memory 模式没有 kafka，事件走进程内总线，处理路径不变
		memBus = memory.NewPublisher()
		publisher = memBus
	} else {
		kafkaPublisher := infrastructure.NewKafkaPublisher(cfg.Infra.Kafka.Brokers)
		onShutdown = append(onShutdown, func() {
			if err := kafkaPublisher.Close(); err != nil {
				log.Error().Err(err).Msg("关闭 kafka writer 失败")
			}
		})
		publisher = kafkaPublisher
	}

	wait, lease := cfg.Lock.Wait, cfg.Lock.Lease

	tracker := application.NewCompletionTracker(ledger, completion)
	allocator := application.NewCouponAllocator(ledger, locks, wait, lease)
	issuer := application.NewQueueingIssuer(ledger, allocator, publisher)
	createOrder := application.NewCreateOrderUseCase(ledger, locks, publisher, ranking, cfg.Order.Mode, wait, lease)
	saga := application.NewFulfillmentSaga(ledger, locks, publisher, ranking, tracker, wait, lease)
	failures := application.NewOrderFailureHandler(ledger, publisher, tracker, hub)
	restorers := application.NewRestorers(ledger, locks, guard, hub, wait, lease)
	carts := application.NewCartService(ledger)
	products := application.NewProductQuery(ledger, ranking)

	handlers := map[string]infrastructure.HandlerFunc{
		domain.TopicOrderCreated:         infrastructure.Typed(saga.HandleOrderCreated),
		domain.TopicStockDeductionFailed: infrastructure.Typed(failures.HandleStockDeductionFailed),
		domain.TopicPointDeductionFailed: infrastructure.Typed(failures.HandlePointDeductionFailed),
		domain.TopicCouponUsageFailed:    infrastructure.Typed(failures.HandleCouponUsageFailed),
		domain.TopicStockRestore:         infrastructure.Typed(restorers.HandleStockRestore),
		domain.TopicPointRestore:         infrastructure.Typed(restorers.HandlePointRestore),
		domain.TopicCouponRestore:        infrastructure.Typed(restorers.HandleCouponRestore),
		domain.TopicCouponIssueRequest:   infrastructure.Typed(issuer.HandleIssueRequest),
	}
	if memBus != nil {
		for topic, handler := range handlers {
			memBus.Subscribe(topic, handler)
		}
	} else {
		for topic, handler := range handlers {
			runners = append(runners, infrastructure.NewConsumer(
				cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.GroupID, topic, handler))
		}
	}

	httpHandler := interfaces.NewHandler(allocator, issuer, createOrder, carts, products, ledger, hub)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName:      cfg.App.Name,
		Port:             bootstrap.MustEnvPort(cfg.App.Port),
		RegisterHandlers: httpHandler.RegisterRoutes,
		Runners:          runners,
		OnShutdown:       onShutdown,
	})
}

func buildLockManager(cfg *config.Config, redisClient *pkgredis.Client) lock.Manager {
	switch cfg.Lock.Backend {
	case "zookeeper":
		mgr, err := lock.NewZookeeperManager(cfg.Infra.Zookeeper.Addrs)
		if err != nil {
			log.Fatal().Err(err).Msg("连接 zookeeper 失败")
		}
		return mgr
	case "local":
		return lock.NewLocalManager()
	default:
		mgr, err := lock.NewRedisManager(redisClient)
		if err != nil {
			log.Fatal().Err(err).Msg("初始化 redis 锁失败")
		}
		return mgr
	}
}

// seedDemoData 给 memory 模式准备一套演示数据。
func seedDemoData(ledger *memory.Ledger) {
	ledger.SeedUser(domain.User{ID: 1, Name: "demo", Point: 1_000_000})
	ledger.SeedProduct(domain.Product{ID: 1, Name: "keyboard", Price: 35_000, Quantity: 100})
	ledger.SeedProduct(domain.Product{ID: 2, Name: "mouse", Price: 15_000, Quantity: 100})
	ledger.SeedCoupon(domain.Coupon{
		ID:            1,
		Name:          "10% off",
		DiscountType:  domain.DiscountRate,
		DiscountValue: 10,
		TotalQuantity: 50,
		CreatedAt:     time.Now(),
	})
}
