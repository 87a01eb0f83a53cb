package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/engramdev/engram/internal/embedding"
	"github.com/engramdev/engram/internal/memory"
	"github.com/engramdev/engram/internal/metrics"
	"github.com/engramdev/engram/internal/store"
)

// NewRouter creates the Chi router with all routes and middleware.
func NewRouter(
	db *store.DB,
	svc *memory.Service,
	checker embedding.HealthChecker,
	m *metrics.Metrics,
	apiToken string,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (runs on ALL routes including /health)
	r.Use(CORS)
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recovery(logger))
	if m != nil {
		r.Use(Instrument(m))
	}

	healthH := NewHealthHandler(db, checker)
	memoryH := NewMemoryHandler(svc)
	retrievalH := NewRetrievalHandler(svc)
	batchH := NewBatchHandler(svc)
	factH := NewFactHandler(svc)
	connH := NewConnectionHandler(svc)

	// Unauthenticated routes
	r.Get("/health", healthH.Health)
	if m != nil {
		r.Method("GET", "/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	}

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(apiToken))

		r.Route("/memories", func(r chi.Router) {
			r.Get("/", memoryH.List)
			r.Post("/", memoryH.Store)
			r.Post("/retrieve", retrievalH.Retrieve)
			r.Post("/batch", batchH.Store)
			r.Patch("/batch", batchH.Update)
			r.Post("/batch/delete", batchH.Delete)
			r.Post("/batch/get", batchH.Get)
			r.Get("/{id}", memoryH.Get)
			r.Patch("/{id}", memoryH.Update)
			r.Delete("/{id}", memoryH.Delete)
			r.Get("/{id}/connections", connH.ForMemory)
		})

		r.Post("/feedback", retrievalH.Feedback)
		r.Get("/patterns", retrievalH.Patterns)
		r.Get("/cache/stats", retrievalH.CacheStats)

		r.Route("/facts", func(r chi.Router) {
			r.Get("/", factH.List)
			r.Post("/", factH.Store)
			r.Get("/{id}", factH.Get)
			r.Post("/{id}/confirm", factH.Confirm)
			r.Delete("/{id}", factH.Delete)
		})

		r.Route("/connections", func(r chi.Router) {
			r.Post("/", connH.Create)
			r.Delete("/{id}", connH.Delete)
		})
	})

	return r
}
