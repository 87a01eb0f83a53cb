package api

import (
	"net/http"

	"github.com/engramdev/engram/internal/embedding"
	"github.com/engramdev/engram/internal/models"
	"github.com/engramdev/engram/internal/store"
)

type HealthHandler struct {
	db      *store.DB
	checker embedding.HealthChecker
}

func NewHealthHandler(db *store.DB, checker embedding.HealthChecker) *HealthHandler {
	return &HealthHandler{db: db, checker: checker}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := models.HealthResponse{
		Status: "ok",
	}

	if h.checker != nil {
		if err := h.checker.HealthCheck(); err != nil {
			resp.Embedder = models.ServiceCheck{Status: "error", Message: err.Error()}
			resp.Status = "degraded"
		} else {
			resp.Embedder = models.ServiceCheck{Status: "ok"}
		}
	} else {
		resp.Embedder = models.ServiceCheck{Status: "ok", Message: "no external embedder"}
	}

	count, err := h.db.MemoryCount()
	if err != nil {
		resp.DB = models.ServiceCheck{Status: "error", Message: err.Error()}
		resp.Status = "degraded"
	} else {
		resp.DB = models.ServiceCheck{Status: "ok"}
		resp.MemoryCount = count
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
