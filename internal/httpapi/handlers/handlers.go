// Package handlers implements the cardpress HTTP endpoints over store and
// queue interfaces so they can be exercised without Postgres or Redis.
package handlers

import (
	"context"

	"cardpress/internal/assets"
	"cardpress/internal/models"
	"cardpress/internal/pkg/logger"
	"cardpress/internal/ports"
	"cardpress/internal/queue"
	"cardpress/internal/render"
)

type TemplateStore interface {
	Create(ctx context.Context, t *models.Template) error
	List(ctx context.Context, limit int) ([]models.Template, error)
	Get(ctx context.Context, id string) (*models.Template, error)
	Update(ctx context.Context, t *models.Template) error
	Delete(ctx context.Context, id string) error
}

type AssetStore interface {
	Create(ctx context.Context, a *models.Asset) error
	GetAsset(ctx context.Context, id string) (*models.Asset, error)
	InUse(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}

type JobStore interface {
	Create(ctx context.Context, j *models.Job) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, status models.JobStatus, limit int) ([]models.Job, error)
	Get(ctx context.Context, id string) (*models.Job, error)
	CancelQueued(ctx context.Context, id string) (bool, error)
	ListResults(ctx context.Context, jobID string) ([]models.JobResult, error)
}

// JobQueue is the Redis side of jobs. *queue.RedisQueue satisfies it.
type JobQueue interface {
	Push(ctx context.Context, jobID string) error
	Publish(ctx context.Context, m queue.Message) error
	Subscribe(ctx context.Context, jobID string) (*queue.Subscription, error)
	RequestCancel(ctx context.Context, jobID string) error
	Ping(ctx context.Context) error
}

// Pinger is a dependency the deep health check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Templates TemplateStore
	Assets    AssetStore
	Jobs      JobStore
	Queue     JobQueue
	SP        ports.StorageProvider
	DB        Pinger

	Fonts            *render.FontCache
	HTTPAssets       *assets.HTTPResolver
	JPEGQuality      int
	AssetConcurrency int
	MaxUploadBytes   int64
	Log              *logger.Logger
}

type Handler struct {
	templates TemplateStore
	assets    AssetStore
	jobs      JobStore
	queue     JobQueue
	sp        ports.StorageProvider
	db        Pinger

	fonts            *render.FontCache
	httpAssets       *assets.HTTPResolver
	jpegQuality      int
	assetConcurrency int
	maxUpload        int64
	log              *logger.Logger
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewNop()
	}
	maxUpload := d.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 32 << 20
	}
	fonts := d.Fonts
	if fonts == nil {
		fonts = render.NewFontCache()
	}
	return &Handler{
		templates:        d.Templates,
		assets:           d.Assets,
		jobs:             d.Jobs,
		queue:            d.Queue,
		sp:               d.SP,
		db:               d.DB,
		fonts:            fonts,
		httpAssets:       d.HTTPAssets,
		jpegQuality:      d.JPEGQuality,
		assetConcurrency: d.AssetConcurrency,
		maxUpload:        maxUpload,
		log:              log.WithComponent("api"),
	}
}

// renderer returns a renderer with a request-scoped asset cache. Fonts are
// shared across requests.
func (h *Handler) renderer() *render.Renderer {
	router := &assets.Router{
		Store: assets.NewStoreResolver(h.assets, h.sp),
		HTTP:  h.httpAssets,
	}
	opts := []render.Option{
		render.WithFonts(h.fonts),
		render.WithJPEGQuality(h.jpegQuality),
	}
	if h.assetConcurrency > 0 {
		opts = append(opts, render.WithLoadConcurrency(h.assetConcurrency))
	}
	return render.New(render.NewAssetCache(router), opts...)
}
