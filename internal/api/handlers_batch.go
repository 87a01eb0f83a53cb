package api

import (
	"net/http"

	"github.com/engramdev/engram/internal/batch"
	"github.com/engramdev/engram/internal/memory"
	"github.com/engramdev/engram/internal/models"
)

type BatchHandler struct {
	svc *memory.Service
}

func NewBatchHandler(svc *memory.Service) *BatchHandler {
	return &BatchHandler{svc: svc}
}

type batchStoreRequest struct {
	Items   []models.BatchItem `json:"items"`
	Options *batch.Options     `json:"options,omitempty"`
}

// Store handles POST /memories/batch
func (h *BatchHandler) Store(w http.ResponseWriter, r *http.Request) {
	var req batchStoreRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "items are required")
		return
	}
	writeJSON(w, http.StatusOK, h.svc.StoreBatch(req.Items, req.Options))
}

type batchUpdateRequest struct {
	Items []models.BatchUpdateItem `json:"items"`
}

// Update handles PATCH /memories/batch
func (h *BatchHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req batchUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "items are required")
		return
	}
	writeJSON(w, http.StatusOK, h.svc.UpdateBatch(req.Items))
}

type batchIDsRequest struct {
	IDs []string `json:"ids"`
}

// Delete handles POST /memories/batch/delete
func (h *BatchHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req batchIDsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids are required")
		return
	}
	writeJSON(w, http.StatusOK, h.svc.DeleteBatch(req.IDs))
}

// Get handles POST /memories/batch/get
func (h *BatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	var req batchIDsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids are required")
		return
	}

	memories, missing, err := h.svc.GetBatch(req.IDs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"memories": memories,
		"missing":  missing,
	})
}
