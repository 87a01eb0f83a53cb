package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/engramdev/engram/internal/memory"
	"github.com/engramdev/engram/internal/models"
)

type MemoryHandler struct {
	svc *memory.Service
}

func NewMemoryHandler(svc *memory.Service) *MemoryHandler {
	return &MemoryHandler{svc: svc}
}

// List handles GET /memories
func (h *MemoryHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("pageSize"))

	req := &models.ListRequest{
		Page:     page,
		PageSize: pageSize,
		Filters: models.QueryFilters{
			Source:           q.Get("source"),
			Context:          q.Get("context"),
			ContentSubstring: q.Get("q"),
		},
		SortByImportance: q.Get("sort") == "importance",
		IncludeTotal:     q.Get("includeTotal") == "true",
	}
	if v := q.Get("since"); v != "" {
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			req.Filters.Since = &ts
		}
	}
	if v := q.Get("until"); v != "" {
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			req.Filters.Until = &ts
		}
	}
	if v := q.Get("minImportance"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			req.Filters.MinImportance = &n
		}
	}
	if v := q.Get("maxImportance"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			req.Filters.MaxImportance = &n
		}
	}

	resp, err := h.svc.List(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Store handles POST /memories
func (h *MemoryHandler) Store(w http.ResponseWriter, r *http.Request) {
	var req models.StoreRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	mem, err := h.svc.Store(&req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, models.StoreResponse{ID: mem.ID, CreatedAt: mem.CreatedAt})
}

// Get handles GET /memories/{id}
func (h *MemoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	mem, err := h.svc.Get(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if mem == nil {
		writeError(w, http.StatusNotFound, "memory not found")
		return
	}
	writeJSON(w, http.StatusOK, mem)
}

// Update handles PATCH /memories/{id}
func (h *MemoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req models.UpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	mem, err := h.svc.Update(id, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if mem == nil {
		writeError(w, http.StatusNotFound, "memory not found")
		return
	}
	writeJSON(w, http.StatusOK, mem)
}

// Delete handles DELETE /memories/{id}
func (h *MemoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.svc.Delete(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
