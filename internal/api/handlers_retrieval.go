package api

import (
	"errors"
	"net/http"

	"github.com/engramdev/engram/internal/memory"
	"github.com/engramdev/engram/internal/models"
	"github.com/engramdev/engram/internal/retrieval"
)

type RetrievalHandler struct {
	svc *memory.Service
}

func NewRetrievalHandler(svc *memory.Service) *RetrievalHandler {
	return &RetrievalHandler{svc: svc}
}

// Retrieve handles POST /memories/retrieve
func (h *RetrievalHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req models.RetrieveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	resp, err := h.svc.Retrieve(&req)
	if err != nil {
		if errors.Is(err, retrieval.ErrMemoryUnavailable) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Feedback handles POST /feedback
func (h *RetrievalHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	var req models.FeedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.svc.RecordFeedback(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Patterns handles GET /patterns
func (h *RetrievalHandler) Patterns(w http.ResponseWriter, r *http.Request) {
	patterns, err := h.svc.Patterns()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"patterns": patterns})
}

// CacheStats handles GET /cache/stats
func (h *RetrievalHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.CacheStats())
}
