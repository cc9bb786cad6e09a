package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BinLe1988/moderation-gateway/api"
	"github.com/BinLe1988/moderation-gateway/configs"
	"github.com/BinLe1988/moderation-gateway/pkg/logger"
	"github.com/BinLe1988/moderation-gateway/pkg/moderation"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func main() {
	cfg, err := configs.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(context.Background(), cfg, zl); err != nil {
		zl.Fatal("gateway stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *configs.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cfg.Ready(); err != nil {
		zl.Warn("starting without upstream credentials; moderation endpoints will answer 503", zap.Error(err))
	}

	cache, err := moderation.NewResultCache(ctx, cfg.Cache, zl)
	if err != nil {
		return errors.Wrap(err, "failed to initialize result cache")
	}
	if cache != nil {
		defer cache.Close()
		zl.Info("result cache enabled", zap.Bool("redis", cfg.Cache.RedisURL != ""), zap.Duration("ttl", cfg.Cache.TTL()))
	}
	if mc, ok := cache.(*moderation.MemoryCache); ok && cfg.Cache.MonitorInterval() > 0 {
		monitor := moderation.NewCacheMonitor(mc, moderation.MonitorConfig{
			Interval:   cfg.Cache.MonitorInterval(),
			MinHitRate: 0.1,
		}, zl)
		monitor.Start()
		defer monitor.Stop()
	}

	client := moderation.NewClient(cfg.Upstream, nil, zl)
	svc := moderation.NewService(cfg, client, cache, zl)

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(cfg, svc, zl)

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("http server started",
			zap.String("addr", server.Addr),
			zap.String("upstream", cfg.Upstream.URL),
			zap.Int("max_attempts", cfg.Retry.MaxAttempts),
			zap.Int("batch_concurrency", cfg.Batch.Concurrency),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- errors.Wrap(err, "http server")
		}
	}()

	select {
	case <-ctx.Done():
		zl.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	// in-flight calls may take up to one logical deadline
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Upstream.Deadline()+5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "graceful shutdown")
	}
	zl.Info("http server stopped")
	return nil
}
