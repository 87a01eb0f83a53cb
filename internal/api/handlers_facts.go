package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/engramdev/engram/internal/memory"
	"github.com/engramdev/engram/internal/models"
)

type FactHandler struct {
	svc *memory.Service
}

func NewFactHandler(svc *memory.Service) *FactHandler {
	return &FactHandler{svc: svc}
}

// Store handles POST /facts
func (h *FactHandler) Store(w http.ResponseWriter, r *http.Request) {
	var req models.FactRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	fact, err := h.svc.StoreFact(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, fact)
}

// Get handles GET /facts/{id}
func (h *FactHandler) Get(w http.ResponseWriter, r *http.Request) {
	fact, err := h.svc.GetFact(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if fact == nil {
		writeError(w, http.StatusNotFound, "fact not found")
		return
	}
	writeJSON(w, http.StatusOK, fact)
}

// List handles GET /facts
func (h *FactHandler) List(w http.ResponseWriter, r *http.Request) {
	minConfidence, _ := strconv.ParseFloat(r.URL.Query().Get("minConfidence"), 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	facts, err := h.svc.ListFacts(minConfidence, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"facts": facts})
}

type confirmRequest struct {
	Confidence float64 `json:"confidence"`
}

// Confirm handles POST /facts/{id}/confirm
func (h *FactHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.svc.ConfirmFact(chi.URLParam(r, "id"), req.Confidence); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /facts/{id}
func (h *FactHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteFact(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type ConnectionHandler struct {
	svc *memory.Service
}

func NewConnectionHandler(svc *memory.Service) *ConnectionHandler {
	return &ConnectionHandler{svc: svc}
}

// Create handles POST /connections
func (h *ConnectionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.ConnectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	conn, err := h.svc.Connect(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, conn)
}

// ForMemory handles GET /memories/{id}/connections
func (h *ConnectionHandler) ForMemory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	conns, err := h.svc.ConnectionsFor(chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connections": conns})
}

// Delete handles DELETE /connections/{id}
func (h *ConnectionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteConnection(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
