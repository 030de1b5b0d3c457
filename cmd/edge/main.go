package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"xinicimail/backend/internal/config"
	"xinicimail/backend/internal/domain"
	"xinicimail/backend/internal/edge"
	"xinicimail/backend/internal/health"
	"xinicimail/backend/internal/logger"
	"xinicimail/backend/internal/monitoring"
	"xinicimail/backend/internal/service"
	redisstore "xinicimail/backend/internal/storage/redis"
	httptransport "xinicimail/backend/internal/transport/http"
)

// main 启动边缘投递入口与查询接口，邮件保存在 Redis 中并按保留时长过期。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting xinici mail edge",
		zap.String("backend", domain.BackendEdge),
		zap.String("redis_address", cfg.Redis.Address),
		zap.Duration("retention", cfg.Mailbox.Retention),
	)

	metrics := monitoring.NewMetrics(nil)
	stats := monitoring.NewStats(metrics)

	rdb := redisstore.NewClient(cfg.Redis)
	// Redis 暂不可达时继续启动，请求在恢复前返回 503
	if err := redisstore.Ping(context.Background(), rdb); err != nil {
		log.Warn("redis not reachable at startup", zap.Error(err))
	}
	store := redisstore.NewStore(rdb, cfg.Mailbox.Retention, stats)

	if cfg.Edge.InboundToken == "" {
		log.Warn("edge.inbound_token is empty, /api/inbound accepts unauthenticated deliveries")
	}

	messageService := service.NewMessageService(store, log, metrics)
	inbound := edge.NewHandler(messageService, cfg.Edge.MaxMessageBytes, log, metrics)
	mailboxService := service.NewMailboxService(store, stats, domain.BackendEdge, nil)
	healthChecker := health.NewHealthChecker(store, nil, log)

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:         cfg,
		MailboxService: mailboxService,
		InboundHandler: inbound,
		Metrics:        metrics,
		Health:         healthChecker.Handler(),
		Logger:         log,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		if err := store.Close(); err != nil {
			log.Warn("redis close warning", zap.Error(err))
		}

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}
