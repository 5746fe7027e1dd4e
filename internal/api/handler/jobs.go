package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/vodvault/vodvault/internal/domain"
	"github.com/vodvault/vodvault/internal/engine"
	"github.com/vodvault/vodvault/internal/library"
)

// JobsHandler handles bulk, metadata and maintenance HTTP requests.
type JobsHandler struct {
	engine *engine.Engine
	store  *library.Store
	logger *slog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(eng *engine.Engine, store *library.Store, logger *slog.Logger) *JobsHandler {
	return &JobsHandler{
		engine: eng,
		store:  store,
		logger: logger,
	}
}

// RelinkRequest is the JSON request body for a library re-link.
type RelinkRequest struct {
	Dir string `json:"dir"`
}

// ErrorRecordResponse represents one error record in API responses.
type ErrorRecordResponse struct {
	Phase     string    `json:"phase"`
	Details   string    `json:"details"`
	Missing   bool      `json:"missing"`
	CreatedAt time.Time `json:"created_at"`
}

// ItemErrorsResponse aggregates an item's error records.
type ItemErrorsResponse struct {
	ItemID  string                `json:"item_id"`
	Title   string                `json:"title"`
	Records []ErrorRecordResponse `json:"records"`
}

// ErrorListResponse contains the aggregated error log.
type ErrorListResponse struct {
	Items []ItemErrorsResponse `json:"items"`
	Total int                  `json:"total"`
}

// BulkStart handles POST /api/v1/bulk/start
func (h *JobsHandler) BulkStart(w http.ResponseWriter, r *http.Request) {
	status, err := h.engine.StartBulk(r.Context())
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusAccepted, status)
	case errors.Is(err, domain.ErrBulkActive):
		h.writeError(w, http.StatusConflict, "bulk download already active")
	case errors.Is(err, domain.ErrNoLibraryDir):
		h.writeError(w, http.StatusPreconditionFailed, "no library directory configured")
	case errors.Is(err, domain.ErrToolMissing):
		h.writeError(w, http.StatusServiceUnavailable, "download tool not available")
	default:
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	}
}

// BulkStop handles POST /api/v1/bulk/stop
func (h *JobsHandler) BulkStop(w http.ResponseWriter, r *http.Request) {
	err := h.engine.StopBulk(r.Context())
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
	case errors.Is(err, domain.ErrBulkNotActive):
		h.writeError(w, http.StatusConflict, "no bulk download active")
	default:
		h.logger.Error("bulk stop failed", "error", err)
		h.writeError(w, http.StatusBadGateway, "failed to cancel active download")
	}
}

// BulkStatus handles GET /api/v1/bulk
func (h *JobsHandler) BulkStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "engine unavailable")
		return
	}
	h.writeJSON(w, http.StatusOK, stats.Bulk)
}

// MetadataStatus handles GET /api/v1/metadata
func (h *JobsHandler) MetadataStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "engine unavailable")
		return
	}
	h.writeJSON(w, http.StatusOK, stats.Metadata)
}

// MetadataRetry handles POST /api/v1/metadata/retry
func (h *JobsHandler) MetadataRetry(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RetryMetadata(r.Context()); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "engine unavailable")
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "resumed"})
}

// IntegrityRun handles POST /api/v1/integrity/run
func (h *JobsHandler) IntegrityRun(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.RunIntegrity(r.Context(), "")
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, report)
	case errors.Is(err, domain.ErrCheckRunning):
		h.writeError(w, http.StatusConflict, "integrity check already running")
	case errors.Is(err, domain.ErrNoLibraryDir):
		h.writeError(w, http.StatusPreconditionFailed, "no library directory configured")
	default:
		h.logger.Error("integrity check failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "library check failed")
	}
}

// Relink handles POST /api/v1/library/relink
func (h *JobsHandler) Relink(w http.ResponseWriter, r *http.Request) {
	var req RelinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Dir == "" {
		h.writeError(w, http.StatusBadRequest, "dir is required")
		return
	}

	report, err := h.engine.Relink(r.Context(), req.Dir)
	if err != nil {
		h.logger.Error("relink failed", "dir", req.Dir, "error", err)
		h.writeError(w, http.StatusInternalServerError, "library re-link failed")
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// Errors handles GET /api/v1/errors
func (h *JobsHandler) Errors(w http.ResponseWriter, r *http.Request) {
	aggregates := h.store.ErrorsByItem()
	out := make([]ItemErrorsResponse, 0, len(aggregates))
	for _, agg := range aggregates {
		resp := ItemErrorsResponse{
			ItemID: agg.ItemID.String(),
			Title:  agg.Title,
		}
		for _, rec := range agg.Records {
			resp.Records = append(resp.Records, ErrorRecordResponse{
				Phase:     string(rec.Phase),
				Details:   rec.Details,
				Missing:   rec.Missing,
				CreatedAt: rec.CreatedAt,
			})
		}
		out = append(out, resp)
	}
	h.writeJSON(w, http.StatusOK, ErrorListResponse{Items: out, Total: len(out)})
}

func (h *JobsHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *JobsHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
