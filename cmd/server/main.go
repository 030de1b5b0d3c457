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
	"xinicimail/backend/internal/health"
	"xinicimail/backend/internal/logger"
	"xinicimail/backend/internal/monitoring"
	"xinicimail/backend/internal/service"
	"xinicimail/backend/internal/smtp"
	"xinicimail/backend/internal/storage/memory"
	httptransport "xinicimail/backend/internal/transport/http"
)

// main 启动 SMTP 收件与查询接口，邮件保存在进程内存中。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
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

	log.Info("starting xinici mail server",
		zap.String("backend", domain.BackendMemory),
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	metrics := monitoring.NewMetrics(nil)
	stats := monitoring.NewStats(metrics)

	store := memory.NewStore(cfg.Mailbox.Capacity, stats)
	log.Info("using memory storage", zap.Int("capacity", cfg.Mailbox.Capacity))

	messageService := service.NewMessageService(store, log, metrics)

	// SMTP 服务器，绑定失败时只停用收件通道
	smtpBackend := smtp.NewBackend(messageService, smtp.Options{
		AllowedDomains:  cfg.Mailbox.AllowedDomains,
		MaxMessageBytes: cfg.SMTP.MaxMessageBytes,
		Limiter:         smtp.NewConnectionLimiter(cfg.SMTP.MaxConnections, cfg.SMTP.MaxConnRate),
		Logger:          log,
		Metrics:         metrics,
	})
	smtpServer := smtp.NewServer(smtpBackend, cfg.SMTP, log)
	if err := smtpServer.Listen(); err != nil {
		log.Warn("continuing without smtp ingestion", zap.Error(err))
	}

	mailboxService := service.NewMailboxService(store, stats, domain.BackendMemory, smtpServer)
	healthChecker := health.NewHealthChecker(store, map[string]health.Probe{"smtp": smtpServer}, log)

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:         cfg,
		MailboxService: mailboxService,
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

	// 信号处理
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
		if err := smtpServer.Serve(); err != nil {
			log.Error("SMTP server error", zap.Error(err))
		}
		return nil
	})

	// 优雅关闭
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		if err := smtpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("SMTP server shutdown warning", zap.Error(err))
		}
		_ = store.Close()

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}
