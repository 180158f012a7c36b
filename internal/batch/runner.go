package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cardpress/internal/render"
)

var (
	// ErrAborted is returned with the partial outcome of a cancelled run.
	ErrAborted = errors.New("batch aborted")

	// ErrAlreadyStarted is returned when Run is called twice on one Runner.
	ErrAlreadyStarted = errors.New("batch runner already started")
)

// Renderer renders one record. *render.Renderer satisfies it.
type Renderer interface {
	Render(ctx context.Context, tpl render.Template, elements []render.Element, record render.Record, format render.Format) (*render.Output, error)
}

// Packager turns the results of a completed run into an archive and returns
// a reference to it. It receives every result, failed ones included.
type Packager interface {
	Package(ctx context.Context, results []Result) (string, error)
}

// PackagerFunc adapts a function to Packager.
type PackagerFunc func(ctx context.Context, results []Result) (string, error)

func (f PackagerFunc) Package(ctx context.Context, results []Result) (string, error) {
	return f(ctx, results)
}

// Job is the input of one batch run. The template and elements are shared by
// every record and must not change while the run is live.
type Job struct {
	Template         render.Template
	Elements         []render.Element
	Records          []render.Record
	FilenameTemplate string
	Format           render.Format
}

// Option configures a Runner.
type Option func(*Runner)

func WithPackager(p Packager) Option { return func(r *Runner) { r.packager = p } }
func WithObserver(o Observer) Option { return func(r *Runner) { r.observer = o } }

// Runner renders a Job record by record. A Runner performs a single run.
type Runner struct {
	renderer Renderer
	packager Packager
	observer Observer

	mu      sync.Mutex
	started bool
	track   tracker
}

// NewRunner returns an idle runner.
func NewRunner(renderer Renderer, opts ...Option) *Runner {
	r := &Runner{renderer: renderer}
	r.track.p.State = StateIdle
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Progress returns the current counts. It is safe to call from any
// goroutine while Run is executing.
func (r *Runner) Progress() Progress { return r.track.snapshot() }

// State returns the lifecycle state.
func (r *Runner) State() State { return r.track.snapshot().State }

// Run processes every record of job in order, one at a time. Cancelling ctx
// stops the run at the next record boundary: the record being rendered is
// always finished first. A cancelled run returns the partial outcome and
// ErrAborted. Record failures never abort the run.
func (r *Runner) Run(ctx context.Context, job Job) (*Outcome, error) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	r.started = true
	r.mu.Unlock()

	format := job.Format
	if format == "" {
		format = render.FormatPNG
	}

	total := len(job.Records)
	outcome := &Outcome{
		Results: make([]Result, 0, total),
		Total:   total,
		State:   StateRunning,
	}
	r.emit(r.progressEvent(r.track.set(func(p *Progress) {
		*p = Progress{State: StateRunning, Total: total}
	}), nil))

	// Records in flight finish even if ctx is cancelled mid-render.
	renderCtx := context.WithoutCancel(ctx)

	for i, record := range job.Records {
		if ctx.Err() != nil {
			return r.abort(outcome)
		}

		res := r.renderOne(renderCtx, job, format, i, record)
		outcome.Results = append(outcome.Results, res)
		if res.Success {
			outcome.Successful++
		} else {
			outcome.Failed++
		}

		snap := r.track.set(func(p *Progress) {
			p.Processed = len(outcome.Results)
			p.Successful = outcome.Successful
			p.Failed = outcome.Failed
		})
		r.emit(r.progressEvent(snap, &res))
	}

	return r.complete(renderCtx, outcome), nil
}

func (r *Runner) renderOne(ctx context.Context, job Job, format render.Format, index int, record render.Record) (res Result) {
	res = Result{
		Index:    index,
		Filename: Filename(job.FilenameTemplate, record, index, format),
	}
	defer func() {
		if p := recover(); p != nil {
			res.Success = false
			res.Data = nil
			res.Error = fmt.Sprintf("render panic: %v", p)
		}
	}()

	out, err := r.renderer.Render(ctx, job.Template, job.Elements, record, format)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	res.Data = out.Data
	res.Warnings = out.Warnings
	return res
}

func (r *Runner) abort(outcome *Outcome) (*Outcome, error) {
	outcome.State = StateAborted
	snap := r.track.set(func(p *Progress) { p.State = StateAborted })
	r.emit(Event{
		Type:       EventError,
		Processed:  snap.Processed,
		Total:      snap.Total,
		Successful: snap.Successful,
		Failed:     snap.Failed,
		Message:    fmt.Sprintf("aborted after %d of %d records", snap.Processed, snap.Total),
	})
	return outcome, ErrAborted
}

func (r *Runner) complete(ctx context.Context, outcome *Outcome) *Outcome {
	outcome.State = StateCompleted
	snap := r.track.set(func(p *Progress) { p.State = StateCompleted })

	if r.packager != nil {
		ref, err := r.packager.Package(ctx, outcome.Results)
		if err != nil {
			r.emit(Event{
				Type:       EventError,
				Processed:  snap.Processed,
				Total:      snap.Total,
				Successful: snap.Successful,
				Failed:     snap.Failed,
				Message:    "package results: " + err.Error(),
			})
		} else {
			outcome.ArchiveRef = ref
		}
	}

	r.emit(Event{
		Type:       EventCompleted,
		Processed:  snap.Processed,
		Total:      snap.Total,
		Successful: snap.Successful,
		Failed:     snap.Failed,
		ArchiveRef: outcome.ArchiveRef,
	})
	return outcome
}

func (r *Runner) progressEvent(p Progress, res *Result) Event {
	return Event{
		Type:       EventProgress,
		Processed:  p.Processed,
		Total:      p.Total,
		Successful: p.Successful,
		Failed:     p.Failed,
		Result:     res,
	}
}

func (r *Runner) emit(e Event) {
	if r.observer != nil {
		r.observer(e)
	}
}
