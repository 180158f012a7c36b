// Package processor executes one queued batch job: it renders every record
// of the stored job spec, stores the images and the archive, and keeps the
// job row and its event channel up to date.
package processor

import (
	"context"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"cardpress/internal/assets"
	"cardpress/internal/batch"
	v1 "cardpress/internal/contracts/batch/v1"
	"cardpress/internal/models"
	"cardpress/internal/pkg/errors"
	"cardpress/internal/pkg/logger"
	"cardpress/internal/ports"
	"cardpress/internal/queue"
	"cardpress/internal/render"
)

const maxErrorText = 2000

// JobStore is the part of the job repository the processor writes to.
type JobStore interface {
	GetWithSpec(ctx context.Context, id string) (*models.Job, error)
	MarkRunning(ctx context.Context, id string) (bool, error)
	UpdateProgress(ctx context.Context, id string, p models.JobProgress) error
	Finish(ctx context.Context, id string, status models.JobStatus, archiveAssetID, errText string) error
	SaveResults(ctx context.Context, jobID string, results []models.JobResult) error
}

type AssetStore interface {
	Create(ctx context.Context, a *models.Asset) error
	GetAsset(ctx context.Context, id string) (*models.Asset, error)
}

// Events is the Redis side of a job: its event channel and cancel flag.
type Events interface {
	Publish(ctx context.Context, m queue.Message) error
	CancelRequested(ctx context.Context, jobID string) (bool, error)
	ClearCancel(ctx context.Context, jobID string) error
}

type Deps struct {
	Jobs   JobStore
	Assets AssetStore
	Events Events
	SP     ports.StorageProvider
	Fonts  *render.FontCache

	// HTTPAssets enables http(s) image paths when set.
	HTTPAssets       *assets.HTTPResolver
	JPEGQuality      int
	AssetConcurrency int

	// CancelPoll is how often the cancel flag is checked. Defaults to 500ms.
	CancelPoll time.Duration
	Log        *logger.Logger
}

type Processor struct {
	jobs   JobStore
	assets AssetStore
	events Events
	sp     ports.StorageProvider
	fonts  *render.FontCache

	httpAssets       *assets.HTTPResolver
	jpegQuality      int
	assetConcurrency int
	cancelPoll       time.Duration
	log              *logger.Logger
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.NewNop()
	}
	poll := d.CancelPoll
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	return &Processor{
		jobs:             d.Jobs,
		assets:           d.Assets,
		events:           d.Events,
		sp:               d.SP,
		fonts:            d.Fonts,
		httpAssets:       d.HTTPAssets,
		jpegQuality:      d.JPEGQuality,
		assetConcurrency: d.AssetConcurrency,
		cancelPoll:       poll,
		log:              log.WithComponent("processor"),
	}
}

// ProcessJob runs the job to a terminal status. Jobs that are gone or no
// longer queued are skipped. The returned error is for logging; the job row
// already reflects it.
func (p *Processor) ProcessJob(ctx context.Context, jobID string) error {
	log := p.log.FromContext(ctx).WithJobID(jobID)

	job, err := p.jobs.GetWithSpec(ctx, jobID)
	if errors.Is(err, models.ErrNotFound) {
		log.Warn("job not found, skipping")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "processor.fetch", "failed to load job")
	}
	if job.Status != models.JobQueued {
		log.Info("job is not queued, skipping", "status", string(job.Status))
		return nil
	}

	started, err := p.jobs.MarkRunning(ctx, jobID)
	if err != nil {
		return p.failJob(ctx, jobID, errors.Wrap(err, "processor.status", "failed to mark job as running"))
	}
	if !started {
		log.Info("job was claimed or canceled before start, skipping")
		return nil
	}

	spec, err := v1.Parse(job.Spec)
	if err != nil {
		return p.failJob(ctx, jobID, errors.WrapWithCode(err, errors.CodeValidation, "processor.parse", "invalid job spec"))
	}
	bj, err := spec.BatchJob()
	if err != nil {
		return p.failJob(ctx, jobID, errors.WrapWithCode(err, errors.CodeValidation, "processor.parse", "invalid job template"))
	}
	log.Info("starting batch", "template_id", spec.Template.ID, "records", len(bj.Records), "format", string(bj.Format))

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	canceled := p.watchCancel(runCtx, jobID, stop)

	// Progress writes must land even while the job is being stopped.
	bg := context.WithoutCancel(ctx)
	events := make(chan batch.Event, 256)
	relayed := make(chan struct{})
	go func() {
		defer close(relayed)
		p.relay(bg, jobID, events)
	}()

	out := NewOutputHandler(p.assets, p.sp, jobID, bj.Format)
	var packErr atomic.Value
	runner := batch.NewRunner(p.newRenderer(),
		batch.WithPackager(out),
		batch.WithObserver(batch.Observers(
			batch.ChannelObserver(events),
			func(e batch.Event) {
				if e.Type == batch.EventError && e.Message != "" {
					packErr.Store(e.Message)
				}
			},
		)),
	)

	start := time.Now()
	outcome, runErr := runner.Run(runCtx, bj)
	close(events)
	<-relayed

	status := models.JobDone
	errText := ""
	switch {
	case errors.Is(runErr, batch.ErrAborted) && canceled.Load():
		status = models.JobCanceled
	case errors.Is(runErr, batch.ErrAborted):
		status = models.JobFailed
		errText = "interrupted by worker shutdown"
	case runErr != nil:
		return p.failJob(bg, jobID, errors.Wrap(runErr, "processor.run", "batch run failed"))
	default:
		if msg, ok := packErr.Load().(string); ok {
			errText = msg
		}
	}

	if status != models.JobDone {
		// The runner only packages completed runs; keep what was rendered.
		if err := out.StoreImages(bg, outcome.Results); err != nil {
			log.Warn("failed to store partial results", "error", err.Error())
		}
	}
	if err := p.jobs.SaveResults(bg, jobID, out.JobResults(outcome.Results)); err != nil {
		return p.failJob(bg, jobID, errors.Wrap(err, "processor.save", "failed to save job results"))
	}
	if err := p.jobs.Finish(bg, jobID, status, outcome.ArchiveRef, truncate(errText)); err != nil {
		return errors.Wrap(err, "processor.status", "failed to finish job")
	}

	final := batch.EventCompleted
	if status != models.JobDone {
		final = batch.EventError
	}
	p.publish(bg, log, queue.Message{
		JobID: jobID,
		Event: batch.Event{
			Type:       final,
			Processed:  outcome.Processed(),
			Total:      outcome.Total,
			Successful: outcome.Successful,
			Failed:     outcome.Failed,
			ArchiveRef: outcome.ArchiveRef,
			Message:    errText,
		},
		Status: string(status),
	})
	p.clearCancel(bg, log, jobID)

	log.Info("batch finished",
		"status", string(status),
		"processed", outcome.Processed(),
		"successful", outcome.Successful,
		"failed", outcome.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (p *Processor) newRenderer() *render.Renderer {
	router := &assets.Router{
		Store: assets.NewStoreResolver(p.assets, p.sp),
		HTTP:  p.httpAssets,
	}
	opts := []render.Option{render.WithJPEGQuality(p.jpegQuality)}
	if p.fonts != nil {
		opts = append(opts, render.WithFonts(p.fonts))
	}
	if p.assetConcurrency > 0 {
		opts = append(opts, render.WithLoadConcurrency(p.assetConcurrency))
	}
	return render.New(render.NewAssetCache(router), opts...)
}

// watchCancel polls the cancel flag until ctx is done and calls cancel when
// the flag is seen. The returned flag tells a user cancel from a shutdown.
func (p *Processor) watchCancel(ctx context.Context, jobID string, cancel context.CancelFunc) *atomic.Bool {
	var flagged atomic.Bool
	go func() {
		t := time.NewTicker(p.cancelPoll)
		defer t.Stop()
		for {
			ok, err := p.events.CancelRequested(ctx, jobID)
			if err != nil && ctx.Err() == nil {
				p.log.WithJobID(jobID).Warn("cancel check failed", "error", err.Error())
			}
			if ok {
				flagged.Store(true)
				cancel()
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()
	return &flagged
}

// relay writes progress to the job row and forwards runner events to the
// job channel. The completion event is left to ProcessJob, which knows the
// final status.
func (p *Processor) relay(ctx context.Context, jobID string, events <-chan batch.Event) {
	log := p.log.WithJobID(jobID)
	for e := range events {
		if e.Type == batch.EventCompleted {
			continue
		}
		if e.Type == batch.EventProgress {
			err := p.jobs.UpdateProgress(ctx, jobID, models.JobProgress{
				Processed:  e.Processed,
				Successful: e.Successful,
				Failed:     e.Failed,
			})
			if err != nil {
				log.Warn("failed to update progress", "error", err.Error())
			}
		}
		p.publish(ctx, log, queue.Message{JobID: jobID, Event: e})
	}
}

func (p *Processor) publish(ctx context.Context, log *logger.Logger, m queue.Message) {
	if err := p.events.Publish(ctx, m); err != nil {
		log.Debug("failed to publish job event", "type", string(m.Type), "error", err.Error())
	}
}

func (p *Processor) clearCancel(ctx context.Context, log *logger.Logger, jobID string) {
	if err := p.events.ClearCancel(ctx, jobID); err != nil {
		log.Debug("failed to clear cancel flag", "error", err.Error())
	}
}

func (p *Processor) failJob(ctx context.Context, jobID string, cause error) error {
	log := p.log.FromContext(ctx).WithJobID(jobID)
	ctx = context.WithoutCancel(ctx)

	msg := truncate(cause.Error())
	var appErr *errors.Error
	if errors.As(cause, &appErr) {
		log.Error("job failed",
			"code", string(appErr.Code),
			"op", appErr.Op,
			"message", appErr.Message,
			"error", msg,
		)
	} else {
		log.Error("job failed", "error", msg)
	}

	if err := p.jobs.Finish(ctx, jobID, models.JobFailed, "", msg); err != nil {
		log.Error("failed to mark job as failed", "error", err.Error())
	}
	p.publish(ctx, log, queue.Message{
		JobID:  jobID,
		Event:  batch.Event{Type: batch.EventError, Message: msg},
		Status: string(models.JobFailed),
	})
	p.clearCancel(ctx, log, jobID)
	return cause
}

// truncate cuts s to at most maxErrorText bytes without splitting a rune.
func truncate(s string) string {
	if len(s) <= maxErrorText {
		return s
	}
	i := maxErrorText
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i]
}
