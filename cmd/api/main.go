package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"cardpress/internal/httpapi"
	"cardpress/internal/pkg/config"
	"cardpress/internal/pkg/logger"
	"cardpress/internal/pkg/shutdown"
	"cardpress/internal/repositories"
	"cardpress/internal/storage"
)

func main() {
	log := logger.NewDefault("cardpress-api")

	cfg, err := config.LoadAPI()
	if err != nil {
		log.LogFatal("invalid configuration", err)
	}
	log.Info("starting cardpress API", "port", cfg.HTTPPort, "storage", cfg.Storage.Provider)

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, cfg.ShutdownTimeout)

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.LogFatal("failed to connect to PostgreSQL", err)
	}

	if err := pool.Ping(ctx); err != nil {
		log.LogFatal("failed to ping PostgreSQL", err)
	}
	if cfg.AutoMigrate {
		if err := repositories.EnsureSchema(ctx, pool); err != nil {
			log.LogFatal("failed to apply schema", err)
		}
	}
	log.Info("PostgreSQL connected")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.LogFatal("failed to ping Redis", err)
	}
	log.Info("Redis connected")

	sp, err := storage.NewProvider(ctx, cfg.Storage)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}
	log.Info("storage provider initialized", "provider", sp.Provider())

	router := httpapi.NewRouter(httpapi.Deps{
		Pool:   pool,
		RDB:    rdb,
		SP:     sp,
		Config: cfg,
		Log:    log,
	})

	// No WriteTimeout: job event streams stay open for the life of a job.
	// Other routes are bounded by the router's request timeout.
	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	shutdownMgr.Wait(ctx)

	// Closed after the server has drained.
	if err := rdb.Close(); err != nil {
		log.Warn("redis close failed", "error", err)
	}
	pool.Close()
}
