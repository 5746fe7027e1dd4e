package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vodvault/vodvault/internal/domain"
	"github.com/vodvault/vodvault/internal/engine"
	"github.com/vodvault/vodvault/internal/library"
)

// ItemHandler handles item and download HTTP requests.
type ItemHandler struct {
	engine *engine.Engine
	store  *library.Store
	logger *slog.Logger
}

// NewItemHandler creates a new item handler.
func NewItemHandler(eng *engine.Engine, store *library.Store, logger *slog.Logger) *ItemHandler {
	return &ItemHandler{
		engine: eng,
		store:  store,
		logger: logger,
	}
}

// ItemResponse represents an item in list/get responses.
type ItemResponse struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Channel         string    `json:"channel"`
	Thumbnail       string    `json:"thumbnail,omitempty"`
	SourceURL       string    `json:"source_url"`
	DownloadStatus  string    `json:"download_status"`
	CommentsStatus  string    `json:"comments_status"`
	MetadataFetched bool      `json:"metadata_fetched"`
	LiveStatus      string    `json:"live_status,omitempty"`
	Availability    string    `json:"availability,omitempty"`
	AddedAt         time.Time `json:"added_at"`
}

func toItemResponse(item domain.Item) ItemResponse {
	return ItemResponse{
		ID:              item.ID.String(),
		Title:           item.Title,
		Channel:         item.Channel,
		Thumbnail:       item.Thumbnail,
		SourceURL:       item.SourceURL,
		DownloadStatus:  string(item.DownloadStatus),
		CommentsStatus:  string(item.CommentsStatus),
		MetadataFetched: item.MetadataFetched,
		LiveStatus:      string(item.LiveStatus),
		Availability:    item.Availability,
		AddedAt:         item.AddedAt,
	}
}

// ListResponse contains the item list.
type ListResponse struct {
	Items []ItemResponse `json:"items"`
	Total int            `json:"total"`
}

// AddRequest is the JSON request body for channel import.
type AddRequest struct {
	ChannelURL string `json:"channel_url"`
	Limit      int    `json:"limit,omitempty"`
}

// AddResponse reports how many items the import created.
type AddResponse struct {
	Added int `json:"added"`
}

// DownloadResponse is returned after a download request.
type DownloadResponse struct {
	ID     string `json:"id"`
	Queued bool   `json:"queued"`
	Status string `json:"status"`
}

// List handles GET /api/v1/items
func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	items := h.store.Snapshot()
	out := make([]ItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toItemResponse(item))
	}
	h.writeJSON(w, http.StatusOK, ListResponse{Items: out, Total: len(out)})
}

// Get handles GET /api/v1/items/{itemID}
func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := domain.ItemID(chi.URLParam(r, "itemID"))
	item, ok := h.store.Get(id)
	if !ok {
		h.writeError(w, http.StatusNotFound, "item not found")
		return
	}
	h.writeJSON(w, http.StatusOK, toItemResponse(item))
}

// Add handles POST /api/v1/items
func (h *ItemHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req AddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ChannelURL == "" {
		h.writeError(w, http.StatusBadRequest, "channel_url is required")
		return
	}

	added, err := h.engine.AddChannel(r.Context(), req.ChannelURL, req.Limit)
	if err != nil {
		h.logger.Error("channel import failed", "url", req.ChannelURL, "error", err)
		h.writeError(w, http.StatusBadGateway, "failed to list channel items")
		return
	}
	h.writeJSON(w, http.StatusOK, AddResponse{Added: added})
}

// Download handles POST /api/v1/items/{itemID}/download
func (h *ItemHandler) Download(w http.ResponseWriter, r *http.Request) {
	id := domain.ItemID(chi.URLParam(r, "itemID"))

	queued, err := h.engine.RequestDownload(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	status := "downloading"
	if queued {
		status = "queued"
	}
	h.writeJSON(w, http.StatusAccepted, DownloadResponse{
		ID:     id.String(),
		Queued: queued,
		Status: status,
	})
}

// CancelDownload handles DELETE /api/v1/items/{itemID}/download
func (h *ItemHandler) CancelDownload(w http.ResponseWriter, r *http.Request) {
	id := domain.ItemID(chi.URLParam(r, "itemID"))

	if err := h.engine.CancelDownload(r.Context(), id); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// Comments handles POST /api/v1/items/{itemID}/comments
func (h *ItemHandler) Comments(w http.ResponseWriter, r *http.Request) {
	id := domain.ItemID(chi.URLParam(r, "itemID"))

	if err := h.engine.RequestComments(r.Context(), id); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "downloading"})
}

func (h *ItemHandler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrItemNotFound):
		h.writeError(w, http.StatusNotFound, "item not found")
	case errors.Is(err, domain.ErrBatchInProgress):
		h.writeError(w, http.StatusConflict, "bulk download in progress")
	case errors.Is(err, domain.ErrNoLibraryDir):
		h.writeError(w, http.StatusPreconditionFailed, "no library directory configured")
	case errors.Is(err, domain.ErrLowDiskSpace):
		h.writeError(w, http.StatusInsufficientStorage, "insufficient free disk space")
	case errors.Is(err, domain.ErrItemLive):
		h.writeError(w, http.StatusConflict, "item is live or upcoming")
	case errors.Is(err, domain.ErrItemUnavailable):
		h.writeError(w, http.StatusConflict, "item is private or removed")
	case errors.Is(err, domain.ErrMetadataTimeout):
		h.writeError(w, http.StatusGatewayTimeout, "timed out waiting for item metadata")
	case errors.Is(err, domain.ErrToolMissing):
		h.writeError(w, http.StatusServiceUnavailable, "download tool not available")
	default:
		h.logger.Error("download request failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "download request failed")
	}
}

func (h *ItemHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *ItemHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
