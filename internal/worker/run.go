package worker

import (
	"context"
	"time"

	"cardpress/internal/assets"
	"cardpress/internal/pkg/logger"
	"cardpress/internal/queue"
	"cardpress/internal/render"
	"cardpress/internal/repositories"
	"cardpress/internal/worker/processor"
)

// Source hands out queued job ids. *queue.RedisQueue satisfies it.
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) (string, error)
}

// Handler processes one job id.
type Handler func(ctx context.Context, jobID string) error

// Run consumes the job queue until ctx is done. Jobs run one at a time.
func Run(ctx context.Context, d Deps) error {
	log := d.Log
	if log == nil {
		log = logger.NewDefault("cardpress-worker")
	}
	log = log.WithComponent("worker")

	q := queue.NewRedisQueue(d.RDB, d.Config.Redis.QueueName)
	jobs := repositories.NewJobRepository(d.Pool)
	assetRepo := repositories.NewAssetRepository(d.Pool)

	dirs := append(append([]string(nil), d.Config.Render.FontDirs...), render.SystemFontDirs()...)
	var httpAssets *assets.HTTPResolver
	if d.Config.Render.HTTPAssets {
		httpAssets = assets.NewHTTPResolver(d.Config.Render.HTTPAssetTimeout)
	}

	p := processor.New(processor.Deps{
		Jobs:             jobs,
		Assets:           assetRepo,
		Events:           q,
		SP:               d.SP,
		Fonts:            render.NewFontCache(dirs...),
		HTTPAssets:       httpAssets,
		JPEGQuality:      d.Config.Render.JPEGQuality,
		AssetConcurrency: d.Config.Render.AssetConcurrency,
		Log:              log,
	})

	log.Info("worker started", "queue", q.Name(), "storage", d.SP.Provider())
	return Consume(ctx, q, d.Config.PopTimeout, p.ProcessJob, log)
}

// Consume pops job ids from src and hands each to handle until ctx is done.
// Pop errors are retried after a short pause.
func Consume(ctx context.Context, src Source, popTimeout time.Duration, handle Handler, log *logger.Logger) error {
	if popTimeout <= 0 {
		popTimeout = 30 * time.Second
	}
	for {
		if ctx.Err() != nil {
			log.Info("worker context canceled, stopping")
			return ctx.Err()
		}

		jobID, err := src.Pop(ctx, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("worker stopping due to context cancellation")
				return ctx.Err()
			}
			log.Warn("queue pop error, retrying", "error", err.Error())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		if jobID == "" {
			continue
		}

		jobCtx := logger.ContextWithJobID(ctx, jobID)
		jobLog := log.WithJobID(jobID)
		jobLog.Info("processing job")
		start := time.Now()

		if err := handle(jobCtx, jobID); err != nil {
			jobLog.Error("job failed",
				"error", err.Error(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		} else {
			jobLog.Info("job completed", "duration_ms", time.Since(start).Milliseconds())
		}
	}
}
