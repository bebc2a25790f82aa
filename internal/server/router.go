package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Dexploarer/forge-sub003/internal/api"
	"github.com/Dexploarer/forge-sub003/internal/api/handlers"
	"github.com/Dexploarer/forge-sub003/internal/api/middleware"
)

// HealthChecker reports whether a backing dependency is reachable
type HealthChecker interface {
	Health(ctx context.Context) error
}

type RouterConfig struct {
	AuthValidator     middleware.AuthValidator
	EmbeddingsHandler *handlers.EmbeddingsHandler
	AIContextHandler  *handlers.AIContextHandler
	ManifestsHandler  *handlers.ManifestsHandler
	DatabaseHealth    HealthChecker
	VectorHealth      HealthChecker
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", healthHandler(cfg.DatabaseHealth, cfg.VectorHealth))

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.AuthValidator))

		r.Route("/api/embeddings", func(r chi.Router) {
			r.Get("/search", cfg.EmbeddingsHandler.Search)
			r.Post("/search", cfg.EmbeddingsHandler.Search)
			r.Post("/build-context", cfg.EmbeddingsHandler.BuildContext)
			r.Post("/embed", cfg.EmbeddingsHandler.Embed)
			r.Post("/batch", cfg.EmbeddingsHandler.Batch)
			r.Delete("/{contentType}/{contentId}", cfg.EmbeddingsHandler.Delete)
		})

		r.Route("/api/ai-context", func(r chi.Router) {
			r.Get("/preferences", cfg.AIContextHandler.GetPreferences)
			r.Put("/preferences", cfg.AIContextHandler.PutPreferences)
			r.Post("/build", cfg.AIContextHandler.Build)
		})

		r.Route("/api/manifests", func(r chi.Router) {
			r.Put("/", cfg.ManifestsHandler.Upsert)
			r.Get("/", cfg.ManifestsHandler.List)
			r.Get("/{manifestType}", cfg.ManifestsHandler.Get)
			r.Delete("/{id}", cfg.ManifestsHandler.Deactivate)
		})
	})

	return r
}

// healthHandler reports overall status plus per-dependency reachability. The
// endpoint returns 200 as long as the process is serving; degraded
// dependencies show up in the body.
func healthHandler(db, vector HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := map[string]string{"status": "ok"}
		if db != nil {
			if err := db.Health(ctx); err != nil {
				status["database"] = "unreachable"
				status["status"] = "degraded"
			} else {
				status["database"] = "ok"
			}
		}
		if vector != nil {
			if err := vector.Health(ctx); err != nil {
				status["vectorStore"] = "unreachable"
				status["status"] = "degraded"
			} else {
				status["vectorStore"] = "ok"
			}
		}

		api.JSON(w, http.StatusOK, status)
	}
}
