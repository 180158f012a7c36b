// Package httpapi wires the cardpress HTTP surface: middleware chain,
// routes and the production dependencies behind the handlers.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"cardpress/internal/assets"
	"cardpress/internal/httpapi/handlers"
	"cardpress/internal/httpkit"
	"cardpress/internal/pkg/config"
	"cardpress/internal/pkg/logger"
	mw "cardpress/internal/pkg/middleware"
	"cardpress/internal/ports"
	"cardpress/internal/queue"
	"cardpress/internal/render"
	"cardpress/internal/repositories"
)

// RequestTimeout bounds every request except the job event stream.
const RequestTimeout = 60 * time.Second

var defaultOrigins = []string{
	"http://localhost:8081",
	"http://localhost:5173",
}

type Deps struct {
	Pool   *pgxpool.Pool
	RDB    *redis.Client
	SP     ports.StorageProvider
	Config config.API
	Log    *logger.Logger
}

// NewRouter builds the API handler on Postgres, Redis and the configured
// storage provider.
func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault("cardpress-api")
	}

	var httpAssets *assets.HTTPResolver
	if d.Config.Render.HTTPAssets {
		httpAssets = assets.NewHTTPResolver(d.Config.Render.HTTPAssetTimeout)
	}
	dirs := append(append([]string(nil), d.Config.Render.FontDirs...), render.SystemFontDirs()...)

	h := handlers.New(handlers.Deps{
		Templates:        repositories.NewTemplateRepository(d.Pool),
		Assets:           repositories.NewAssetRepository(d.Pool),
		Jobs:             repositories.NewJobRepository(d.Pool),
		Queue:            queue.NewRedisQueue(d.RDB, d.Config.Redis.QueueName),
		SP:               d.SP,
		DB:               d.Pool,
		Fonts:            render.NewFontCache(dirs...),
		HTTPAssets:       httpAssets,
		JPEGQuality:      d.Config.Render.JPEGQuality,
		AssetConcurrency: d.Config.Render.AssetConcurrency,
		MaxUploadBytes:   d.Config.MaxUploadBytes,
		Log:              log,
	})

	origins := d.Config.CORSOrigins
	if len(origins) == 0 {
		origins = defaultOrigins
	}
	return Routes(h, log, origins)
}

// Routes mounts the handlers behind the middleware chain.
func Routes(h *handlers.Handler, log *logger.Logger, corsOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.Logging(log))
	r.Use(mw.Recovery(log))
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", mw.RequestIDHeader},
		ExposedHeaders:   []string{mw.RequestIDHeader, handlers.RenderWarningsHeader, "Content-Disposition"},
		AllowCredentials: false,
		MaxAgeSeconds:    600,
	}))

	wrap := func(fn mw.HandlerFunc) http.HandlerFunc { return mw.Wrap(log, fn) }

	// Long-lived stream; no request timeout.
	r.Get("/jobs/{jobId}/events", wrap(h.JobEvents))

	r.Group(func(r chi.Router) {
		r.Use(mw.Timeout(RequestTimeout))

		r.Get("/health", wrap(h.Health))

		r.Post("/assets", wrap(h.PostAsset))
		r.Get("/assets/{assetId}", wrap(h.GetAsset))
		r.Get("/assets/{assetId}/url", wrap(h.GetAssetURL))
		r.Get("/assets/{assetId}/content", wrap(h.StreamAsset))
		r.Delete("/assets/{assetId}", wrap(h.DeleteAsset))

		r.Post("/templates", wrap(h.PostTemplate))
		r.Get("/templates", wrap(h.ListTemplates))
		r.Get("/templates/{templateId}", wrap(h.GetTemplate))
		r.Patch("/templates/{templateId}", wrap(h.PatchTemplate))
		r.Delete("/templates/{templateId}", wrap(h.DeleteTemplate))
		r.Post("/templates/{templateId}/preview", wrap(h.PreviewTemplate))

		r.Post("/jobs", wrap(h.PostJob))
		r.Get("/jobs", wrap(h.ListJobs))
		r.Get("/jobs/{jobId}", wrap(h.GetJob))
		r.Post("/jobs/{jobId}/cancel", wrap(h.CancelJob))
		r.Get("/jobs/{jobId}/archive", wrap(h.GetJobArchive))
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpkit.WriteErr(w, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpkit.WriteErr(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})
	return r
}
