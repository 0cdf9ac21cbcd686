package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"inboxrelay/backend/internal/config"
	"inboxrelay/backend/internal/engine"
	"inboxrelay/backend/internal/gate"
	"inboxrelay/backend/internal/health"
	"inboxrelay/backend/internal/logger"
	"inboxrelay/backend/internal/monitoring"
	"inboxrelay/backend/internal/provider"
	"inboxrelay/backend/internal/registry"
	"inboxrelay/backend/internal/transport"
	httptransport "inboxrelay/backend/internal/transport/http"
)

// main 启动通知中继服务：HTTP API、定时轮询与可达性巡检。
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

	// 初始化日志系统
	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     "",
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting inbox relay",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
		zap.Duration("poll_interval", cfg.Relay.PollInterval),
		zap.Duration("liveness_interval", cfg.Relay.LivenessInterval),
	)

	// 初始化监控系统
	metrics := monitoring.NewMetrics()

	// 初始化核心组件
	mailProvider := provider.NewClient(cfg.Provider, log)

	sessionRegistry := registry.NewSessionRegistry(cfg.Relay.SeenHighWater, cfg.Relay.SeenLowWater)
	accessGate := gate.NewAccessGate(cfg.Admin.IDs)
	deliveryTransport := transport.NewWebhookTransport(10*time.Second, log)

	relayEngine := engine.New(mailProvider, sessionRegistry, accessGate, deliveryTransport, metrics, log, engine.Config{
		DeliveryPacing: cfg.Relay.DeliveryPacing,
		AuthBackoff:    cfg.Provider.AuthBackoff,
	})

	// 初始化健康检查
	healthChecker := health.NewChecker(cfg.Provider.BaseURL, log)

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:   cfg,
		Engine:   relayEngine,
		Gate:     accessGate,
		Registry: sessionRegistry,
		Metrics:  metrics,
		Health:   healthChecker,
		Logger:   log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
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

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// 定时轮询 goroutine
	group.Go(func() error {
		ticker := time.NewTicker(cfg.Relay.PollInterval)
		defer ticker.Stop()

		log.Info("starting poll sweep task", zap.Duration("interval", cfg.Relay.PollInterval))

		for {
			select {
			case <-groupCtx.Done():
				log.Info("poll sweep task stopped")
				return nil
			case <-ticker.C:
				relayEngine.Sweep(groupCtx)
			}
		}
	})

	// 可达性巡检 goroutine
	group.Go(func() error {
		ticker := time.NewTicker(cfg.Relay.LivenessInterval)
		defer ticker.Stop()

		log.Info("starting liveness sweep task", zap.Duration("interval", cfg.Relay.LivenessInterval))

		for {
			select {
			case <-groupCtx.Done():
				log.Info("liveness sweep task stopped")
				return nil
			case <-ticker.C:
				relayEngine.LivenessSweep(groupCtx)
			}
		}
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		log.Info("server stopped")
		return nil
	})

	// 等待所有 goroutine 完成
	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}
