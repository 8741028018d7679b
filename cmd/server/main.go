package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"sodaledger/backend/internal/cache"
	"sodaledger/backend/internal/config"
	"sodaledger/backend/internal/httpapi"
	"sodaledger/backend/internal/logging"
	"sodaledger/backend/internal/metrics"
	"sodaledger/backend/internal/service"
	"sodaledger/backend/internal/store"
	"sodaledger/backend/internal/store/memory"
	pgstore "sodaledger/backend/internal/store/postgres"
)

const defaultBootstrapPassword = "admin123"

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal("invalid security configuration", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		repo = memory.New()
		logger.Warn("repository: in-memory, data is lost on restart")
	}

	denylist := cache.TokenDenylist(cache.NewMemoryTokenDenylist())
	if cfg.RedisAddr != "" {
		redisDenylist := cache.NewRedisTokenDenylist(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisDenylist.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, revoked tokens kept in memory", zap.Error(err))
			_ = redisDenylist.Close()
		} else {
			denylist = redisDenylist
			closers = append(closers, redisDenylist.Close)
			logger.Info("token denylist: redis", zap.String("addr", cfg.RedisAddr))
		}
	} else {
		logger.Info("token denylist: memory")
	}

	m := metrics.New()
	svc := service.New(repo,
		service.WithLogger(logger),
		service.WithMetrics(m),
		service.WithLowStockThreshold(cfg.LowStockThreshold),
		service.WithPhoneRegion(cfg.CustomerPhoneRegion),
	)
	if err := svc.Bootstrap(ctx, cfg.BootstrapAdminPassword); err != nil {
		logger.Fatal("bootstrap admin", zap.Error(err))
	}

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, denylist)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, httpapi.WithLogger(logger), httpapi.WithMetrics(m))

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("soda ledger listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.BootstrapAdminPassword) < 6 {
		return fmt.Errorf("BOOTSTRAP_ADMIN_PASSWORD must be at least 6 characters")
	}
	// The shipped default is only tolerated outside production.
	if cfg.AppEnv == "production" && cfg.BootstrapAdminPassword == defaultBootstrapPassword {
		return fmt.Errorf("BOOTSTRAP_ADMIN_PASSWORD must be changed from the default in production")
	}
	return nil
}
