package main

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"cardpress/internal/pkg/config"
	"cardpress/internal/pkg/logger"
	"cardpress/internal/pkg/shutdown"
	"cardpress/internal/repositories"
	"cardpress/internal/storage"
	"cardpress/internal/worker"
)

func main() {
	log := logger.NewDefault("cardpress-worker")

	cfg, err := config.LoadWorker()
	if err != nil {
		log.LogFatal("invalid configuration", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.LogFatal("failed to ping Redis", err)
	}

	sp, err := storage.NewProvider(ctx, cfg.Storage)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}

	deps := worker.Deps{
		Pool:   pool,
		RDB:    rdb,
		SP:     sp,
		Config: cfg,
		Log:    log,
	}

	// A worker that stops on its own, e.g. Redis gone, ends the process too.
	waitCtx, stopWaiting := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		defer stopWaiting()
		if err := worker.Run(ctx, deps); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("worker stopped", "error", err)
		}
	}()

	// Hooks run concurrently, so the connections are closed after Wait: the
	// current job must be able to record its outcome first.
	shutdownMgr := shutdown.NewManager(log, cfg.ShutdownTimeout)
	shutdownMgr.Register("worker", func(ctx context.Context) error {
		cancel()
		select {
		case <-finished:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	shutdownMgr.Wait(waitCtx)

	if err := rdb.Close(); err != nil {
		log.Warn("redis close failed", "error", err)
	}
	pool.Close()
}
