package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/iamgideonidoko/flowauth/internal/config"
	"github.com/iamgideonidoko/flowauth/internal/handlers"
	"github.com/iamgideonidoko/flowauth/internal/middleware"
	"github.com/iamgideonidoko/flowauth/internal/services"
	"github.com/iamgideonidoko/flowauth/internal/store"
	"github.com/iamgideonidoko/flowauth/pkg/logger"
	"github.com/iamgideonidoko/flowauth/pkg/risk"
)

func main() {
	// Load environment variables
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Monitoring.LogLevel))
	defer func() { _ = logger.Default().Sync() }()
	logger.Info("Starting FlowAuth API", map[string]any{
		"version":       "1.0.0",
		"environment":   cfg.API.Environment,
		"store":         cfg.Store.Driver,
		"history_scope": cfg.Risk.HistoryScope,
	})

	// Connect to Redis first when it backs records or rate limiting
	var redisStore *store.RedisStore
	if cfg.Store.Driver == config.DriverRedis || cfg.RateLimit.UseRedis {
		redisStore, err = store.Dial(context.Background(), config.DriverRedis, store.DefaultBackoff, func() (*store.RedisStore, error) {
			return store.NewRedisStore(store.RedisConfig{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
				Prefix:   cfg.Redis.KeyPrefix,
			})
		})
		if err != nil {
			logger.Error("Failed to connect to Redis", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
		defer redisStore.Close()
		logger.Info("Connected to Redis", map[string]any{"addr": cfg.Redis.Addr})
	}

	records, err := openStore(cfg, redisStore)
	if err != nil {
		logger.Error("Failed to open store", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	if cfg.Store.Driver != config.DriverRedis {
		defer records.Close()
	}

	if err := records.Ping(context.Background()); err != nil {
		logger.Error("Store health check failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	// Initialize services
	trust := services.NewTrustManager(records)
	fingerprints := services.NewFingerprintService(
		services.NewHistoryRecorder(records),
		trust,
		risk.NewAnalyzer(),
		&cfg.Risk,
	)
	sessions := services.NewSessionService(records, fingerprints, trust)
	logger.Info("Initialized risk services")

	handler := handlers.NewHandler(fingerprints, trust, sessions, records)

	var limiter middleware.Limiter
	if redisStore != nil {
		limiter = redisStore
	}
	rateLimiter := middleware.NewRateLimiter(limiter, &cfg.RateLimit)
	defer rateLimiter.Stop()

	app := handlers.NewApp()
	handlers.SetupRoutes(app, handler, handlers.RouteOptions{
		CORSOrigins:   cfg.Security.CORSOrigins,
		RateLimit:     rateLimiter.LimitByIP(),
		EnableMetrics: cfg.Monitoring.EnableMetrics,
	})

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutting down gracefully...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_ = app.ShutdownWithContext(ctx)
	}()

	addr := fmt.Sprintf("%s:%s", cfg.API.Host, cfg.API.Port)
	logger.Info("FlowAuth API started", map[string]any{"address": addr})

	if err := app.Listen(addr); err != nil {
		logger.Error("Server error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	logger.Info("Server shutdown complete")
}

// openStore returns the record store named by STORE_DRIVER. The redis
// driver reuses the already connected client.
func openStore(cfg *config.Config, redisStore *store.RedisStore) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverRedis:
		return redisStore, nil
	case config.DriverMemory:
		logger.Warn("Using in-memory store, records are lost on restart")
		return store.NewMemoryStore(), nil
	}

	sqlStore, err := store.Dial(context.Background(), cfg.Store.Driver, store.DefaultBackoff, func() (*store.SQLStore, error) {
		return store.NewSQLStore(store.SQLConfig{
			Driver:       cfg.Store.Driver,
			DSN:          cfg.Store.DatabaseURL,
			SQLitePath:   cfg.Store.SQLitePath,
			MaxConns:     cfg.Store.MaxConns,
			MaxIdleConns: cfg.Store.MaxIdleConns,
		})
	})
	if err != nil {
		return nil, err
	}

	stats := sqlStore.Stats()
	logger.Info("Connected to database", map[string]any{
		"driver":     cfg.Store.Driver,
		"open_conns": stats.OpenConnections,
	})
	return sqlStore, nil
}
