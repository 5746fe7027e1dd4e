package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/vodvault/vodvault/internal/diskfree"
	"github.com/vodvault/vodvault/internal/engine"
	"github.com/vodvault/vodvault/internal/library"
)

var startTime = time.Now()

// HealthHandler handles health check and stats endpoints.
type HealthHandler struct {
	engine *engine.Engine
	store  *library.Store
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(eng *engine.Engine, store *library.Store) *HealthHandler {
	return &HealthHandler{
		engine: eng,
		store:  store,
	}
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Items     int    `json:"items,omitempty"`
}

// StatsResponse combines engine and process statistics.
type StatsResponse struct {
	Engine        engine.Stats `json:"engine"`
	Uptime        int64        `json:"uptime_seconds"`
	MemAllocMB    int64        `json:"mem_alloc_mb"`
	NumGoroutines int          `json:"num_goroutines"`
	DiskFreeBytes int64        `json:"disk_free_bytes"`
}

// Live handles GET /health - liveness probe.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready - readiness probe. The engine answering a stats
// round trip proves the dispatch loop is alive.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, err := h.engine.Stats(ctx); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(HealthResponse{
			Status:    "error",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Items:     h.store.Len(),
	})
}

// Stats handles GET /api/v1/stats
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": "engine unavailable"})
		return
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(StatsResponse{
		Engine:        stats,
		Uptime:        int64(time.Since(startTime).Seconds()),
		MemAllocMB:    int64(mem.Alloc / 1024 / 1024),
		NumGoroutines: runtime.NumGoroutine(),
		DiskFreeBytes: diskfree.Free(stats.LibraryDir),
	})
}
