package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Bradawan/sqtracker/internal/app"
	"github.com/Bradawan/sqtracker/internal/backend"
	"github.com/Bradawan/sqtracker/internal/config"
	"github.com/Bradawan/sqtracker/internal/logging"
	"github.com/Bradawan/sqtracker/internal/session"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("load .env: %v", err)
	}
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("web server failed", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	categories, err := cfg.LoadCatalog()
	if err != nil {
		return fmt.Errorf("load categories: %w", err)
	}
	if categories.Empty() {
		logger.Info("no torrent categories configured, category selection disabled")
	}

	var flashes session.Store
	if strings.TrimSpace(cfg.RedisURL) != "" {
		logger.Info("using redis for notifications")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		flashes = redisStore
	} else {
		logger.Info("using in-memory notifications")
		flashes = session.NewMemoryStore()
	}
	defer flashes.Close()

	api := backend.NewClient(cfg.APIURL, cfg.UpstreamTimeout, logger)
	service := app.NewService(cfg, api, flashes, categories, logger)
	go service.RunJanitor(ctx, time.Minute)

	limiter := app.NewRateLimiter(cfg.SubmitRatePerMinute)
	go limiter.Run(ctx)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger, limiter)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("sqtracker web listening", zap.String("addr", cfg.Addr), zap.String("api", cfg.APIURL))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	return nil
}
