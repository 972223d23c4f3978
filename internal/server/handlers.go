package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/voxmem/voxmem/internal/engine"
	"github.com/voxmem/voxmem/pkg/types"
)

// APIHandlers bundles the HTTP handlers for the memory API.
type APIHandlers struct {
	engine *engine.Engine
	ring   *engine.RingSink
}

// NewAPIHandlers creates the handler set. ring may be nil; the debug trace
// endpoint then reports an empty buffer.
func NewAPIHandlers(eng *engine.Engine, ring *engine.RingSink) *APIHandlers {
	return &APIHandlers{engine: eng, ring: ring}
}

// storeResponse is the envelope for POST /api/store-memory.
type storeResponse struct {
	Success  bool   `json:"success"`
	MemoryID string `json:"memory_id"`
	Message  string `json:"message"`
}

// searchResponse is the envelope for POST /api/search-memory.
type searchResponse struct {
	Success  bool                 `json:"success"`
	Memories []types.SearchResult `json:"memories"`
	Count    int                  `json:"count"`
}

// errorResponse is the envelope for all failures.
type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// StoreMemory handles POST /api/store-memory.
func (h *APIHandlers) StoreMemory(w http.ResponseWriter, r *http.Request) {
	var req types.StoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	memory, err := h.engine.Store(r.Context(), req)
	if err != nil {
		writeEngineError(w, "error storing memory", err)
		return
	}

	writeJSON(w, http.StatusOK, storeResponse{
		Success:  true,
		MemoryID: memory.ID,
		Message:  "Memory stored successfully",
	})
}

// SearchMemory handles POST /api/search-memory.
func (h *APIHandlers) SearchMemory(w http.ResponseWriter, r *http.Request) {
	var req types.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	results, err := h.engine.Search(r.Context(), req)
	if err != nil {
		writeEngineError(w, "error searching memories", err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Success:  true,
		Memories: results,
		Count:    len(results),
	})
}

// Health handles GET /api/health. Always 200; an unhealthy engine is
// reported in the payload, not the status code, so monitors can read the
// cause.
func (h *APIHandlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Health(r.Context()))
}

// RecallTrace handles GET /api/debug/trace, returning the buffered trace
// events oldest first.
func (h *APIHandlers) RecallTrace(w http.ResponseWriter, r *http.Request) {
	events := []engine.TraceEvent{}
	if h.ring != nil {
		events = h.ring.Snapshot()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// Root handles GET /, a minimal liveness/info endpoint.
func (h *APIHandlers) Root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "voxmem memory store",
		"status":  "running",
	})
}

// writeEngineError maps engine failures onto HTTP statuses: validation to
// 400, deadline overruns to 504, everything else to a generic 500 carrying
// the cause string.
func writeEngineError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, types.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, message, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, message, err.Error())
	default:
		// Embedding and index failures all surface as internal errors with
		// the cause string attached.
		writeError(w, http.StatusInternalServerError, message, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("ERROR: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	writeJSON(w, status, errorResponse{Error: message, Detail: detail})
}
