// Package main 多币种账本服务启动入口
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/nilebridge/cargoledger/internal/ledger/application"
	"github.com/nilebridge/cargoledger/internal/ledger/domain"
	"github.com/nilebridge/cargoledger/internal/ledger/infrastructure/persistence/mysql"
	ledgerhttp "github.com/nilebridge/cargoledger/internal/ledger/interfaces/http"
	"github.com/nilebridge/cargoledger/pkg/cache"
	"github.com/nilebridge/cargoledger/pkg/config"
	"github.com/nilebridge/cargoledger/pkg/db"
	"github.com/nilebridge/cargoledger/pkg/idgen"
	"github.com/nilebridge/cargoledger/pkg/logger"
	"github.com/nilebridge/cargoledger/pkg/metrics"
	"github.com/nilebridge/cargoledger/pkg/middleware"
	"github.com/nilebridge/cargoledger/pkg/mq"
)

func main() {
	configPath := flag.String("config", "configs/config.toml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.Get()

	if err := idgen.Init(cfg.Ledger.IDGenNode); err != nil {
		logger.Fatal(context.Background(), "failed to init id generator", "error", err)
	}

	// 指标
	m := metrics.New("ledgerd")
	if cfg.Metrics.Enabled {
		if err := m.Register(); err != nil {
			logger.Fatal(context.Background(), "failed to register metrics", "error", err)
		}
		metrics.StartHTTPServer(cfg.Metrics.Port, cfg.Metrics.Path)
	}

	// 数据库
	database, err := db.Init(db.Config{
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
		QueryObserver:      func(d time.Duration) { m.DBQueryDuration.Observe(d.Seconds()) },
	})
	if err != nil {
		logger.Fatal(context.Background(), "failed to connect database", "error", err)
	}
	defer database.Close()

	if cfg.Database.AutoMigrate {
		if err := mysql.AutoMigrate(database.DB); err != nil {
			logger.Fatal(context.Background(), "failed to migrate schema", "error", err)
		}
	}

	// 事件发布
	var events domain.EventPublisher = mq.NoopPublisher{}
	if cfg.Kafka.Enabled {
		producer, err := mq.NewProducer(mq.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		})
		if err != nil {
			logger.Fatal(context.Background(), "failed to create kafka producer", "error", err)
		}
		defer producer.Close()
		events = producer
	}

	// Redis（余额缓存与接口限流共用）
	var redisCache *cache.RedisCache
	if cfg.Redis.Enabled {
		redisCache, err = cache.New(cache.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			MaxPoolSize:  cfg.Redis.MaxPoolSize,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			logger.Fatal(context.Background(), "failed to connect redis", "error", err)
		}
		defer redisCache.Close()
	}

	// 仓储
	txm := mysql.NewTxManager(database.DB)
	clientRepo := mysql.NewClientRepository(database.DB)
	entryRepo := mysql.NewEntryRepository(database.DB)
	cashboxRepo := mysql.NewCashboxRepository(database.DB)
	rateRepo := mysql.NewRateRepository(database.DB)
	audit := mysql.NewActivityRecorder(database.DB)

	// 服务
	converter := domain.NewConverter(rateRepo)
	engine := application.NewReconciliationEngine(txm, clientRepo, entryRepo, events, log)
	lockTimeout := time.Duration(cfg.Ledger.LockTimeout) * time.Millisecond
	paymentSvc := application.NewPaymentService(txm, clientRepo, entryRepo, cashboxRepo, engine, audit, events, lockTimeout, log)
	loadingSvc := application.NewLoadingService(txm, clientRepo, entryRepo, engine, converter, audit, events, log)
	querySvc := application.NewQueryService(clientRepo, entryRepo, cashboxRepo, rateRepo, log)
	adminSvc := application.NewAdminService(txm, clientRepo, rateRepo, audit, log)

	if redisCache != nil && cfg.Redis.BalanceCacheTTL > 0 {
		engine.EnableBalanceCache(redisCache)
		querySvc.EnableBalanceCache(redisCache, time.Duration(cfg.Redis.BalanceCacheTTL)*time.Second)
	}
	engine.SetMetrics(m)
	paymentSvc.SetMetrics(m)
	loadingSvc.SetMetrics(m)

	// HTTP
	handler := ledgerhttp.NewHandler(paymentSvc, loadingSvc, querySvc, adminSvc, engine, converter)

	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.GinRecoveryMiddleware(),
		middleware.GinLoggingMiddleware(),
		middleware.GinMetricsMiddleware(m),
		middleware.GinCORSMiddleware(),
	)
	if cfg.RateLimit.Enabled && redisCache != nil {
		router.Use(middleware.GinRateLimitMiddleware(redisCache.Client(), cfg.RateLimit.QPS, cfg.RateLimit.Burst))
	}

	router.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			middleware.GRPCRecoveryInterceptor(),
			middleware.GRPCLoggingInterceptor(),
		),
		grpc.MaxConcurrentStreams(uint32(cfg.GRPC.MaxConcurrentStreams)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting HTTP server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		addr := fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port)
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to listen gRPC: %w", err)
		}
		log.Info("starting gRPC server", "addr", addr)
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("gRPC server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		httpServer.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
