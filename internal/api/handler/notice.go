package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/vodvault/vodvault/internal/notify"
)

// NoticeHandler handles notice HTTP requests.
type NoticeHandler struct {
	notices *notify.Service
	logger  *slog.Logger
}

// NewNoticeHandler creates a new notice handler.
func NewNoticeHandler(notices *notify.Service, logger *slog.Logger) *NoticeHandler {
	return &NoticeHandler{
		notices: notices,
		logger:  logger,
	}
}

// NoticeResponse represents a notice in API responses.
type NoticeResponse struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Severity  string    `json:"severity"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	ItemID    string    `json:"item_id,omitempty"`
	Sticky    bool      `json:"sticky"`
}

// NoticeListResponse contains recent notices, newest first.
type NoticeListResponse struct {
	Notices []NoticeResponse `json:"notices"`
	Total   int              `json:"total"`
}

// List handles GET /api/v1/notices
// Query parameters: limit (default 50)
func (h *NoticeHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	recent := h.notices.Recent(limit)
	out := make([]NoticeResponse, 0, len(recent))
	for _, n := range recent {
		out = append(out, NoticeResponse{
			ID:        string(n.ID),
			Timestamp: n.Timestamp,
			Severity:  string(n.Severity),
			Source:    n.Source,
			Message:   n.Message,
			ItemID:    n.ItemID.String(),
			Sticky:    n.Sticky(),
		})
	}
	h.writeJSON(w, http.StatusOK, NoticeListResponse{Notices: out, Total: len(out)})
}

// Stream handles GET /api/v1/notices/stream
// Server-Sent Events endpoint for real-time notice delivery.
func (h *NoticeHandler) Stream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	subID, noticeCh := h.notices.Subscribe()
	defer h.notices.Unsubscribe(subID)

	h.logger.Info("SSE client connected", "subscriber_id", subID, "remote_addr", r.RemoteAddr)

	fmt.Fprintf(w, "event: connected\ndata: {\"subscriber_id\": %d}\n\n", subID)
	flusher.Flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Info("SSE client disconnected", "subscriber_id", subID)
			return

		case notice, ok := <-noticeCh:
			if !ok {
				return
			}
			data, err := json.Marshal(NoticeResponse{
				ID:        string(notice.ID),
				Timestamp: notice.Timestamp,
				Severity:  string(notice.Severity),
				Source:    notice.Source,
				Message:   notice.Message,
				ItemID:    notice.ItemID.String(),
				Sticky:    notice.Sticky(),
			})
			if err != nil {
				h.logger.Warn("failed to serialize notice", "notice_id", notice.ID, "error", err)
				continue
			}
			fmt.Fprintf(w, "event: notice\ndata: %s\n\n", data)
			flusher.Flush()

		case <-keepalive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

func (h *NoticeHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *NoticeHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
