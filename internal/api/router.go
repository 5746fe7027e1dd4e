// Package api wires the HTTP surface over the engine, library and notices.
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vodvault/vodvault/internal/api/handler"
	mw "github.com/vodvault/vodvault/internal/api/middleware"
)

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(
	itemHandler *handler.ItemHandler,
	jobsHandler *handler.JobsHandler,
	noticeHandler *handler.NoticeHandler,
	healthHandler *handler.HealthHandler,
	apiKey string,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(mw.CORS)

	// Health endpoints (no auth)
	r.Get("/health", healthHandler.Live)
	r.Get("/ready", healthHandler.Ready)

	// API v1 (authenticated)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(apiKey))

		r.Get("/stats", healthHandler.Stats)

		// Item and download operations
		r.Get("/items", itemHandler.List)
		r.Post("/items", itemHandler.Add)
		r.Get("/items/{itemID}", itemHandler.Get)
		r.Post("/items/{itemID}/download", itemHandler.Download)
		r.Delete("/items/{itemID}/download", itemHandler.CancelDownload)
		r.Post("/items/{itemID}/comments", itemHandler.Comments)

		// Bulk batch
		r.Get("/bulk", jobsHandler.BulkStatus)
		r.Post("/bulk/start", jobsHandler.BulkStart)
		r.Post("/bulk/stop", jobsHandler.BulkStop)

		// Metadata queue
		r.Get("/metadata", jobsHandler.MetadataStatus)
		r.Post("/metadata/retry", jobsHandler.MetadataRetry)

		// Maintenance
		r.Post("/integrity/run", jobsHandler.IntegrityRun)
		r.Post("/library/relink", jobsHandler.Relink)
		r.Get("/errors", jobsHandler.Errors)

		// Notices
		r.Get("/notices", noticeHandler.List)
		r.Get("/notices/stream", noticeHandler.Stream)
	})

	return r
}
