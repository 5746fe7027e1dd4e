// Package client is a thin HTTP client for the VodVault server API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client talks to a running VodVault server.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a client for the server at baseURL.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// BulkStatus mirrors the server's bulk download state.
type BulkStatus struct {
	Active            bool   `json:"active"`
	WaitingForSingles bool   `json:"waiting_for_singles"`
	StopRequested     bool   `json:"stop_requested"`
	Total             int    `json:"total"`
	Completed         int    `json:"completed"`
	Remaining         int    `json:"remaining"`
	CurrentID         string `json:"current_id,omitempty"`
	CurrentPhase      string `json:"current_phase,omitempty"`
}

// MetadataStatus mirrors the server's metadata queue state.
type MetadataStatus struct {
	ActiveID    string `json:"active_id,omitempty"`
	QueueLen    int    `json:"queue_len"`
	Paused      bool   `json:"paused"`
	PauseReason string `json:"pause_reason,omitempty"`
	Total       int    `json:"total"`
	Completed   int    `json:"completed"`
}

// EngineStats mirrors the engine portion of GET /api/v1/stats.
type EngineStats struct {
	LibraryDir       string            `json:"library_dir"`
	Items            int               `json:"items"`
	ActiveDownload   string            `json:"active_download,omitempty"`
	ActiveIsBulk     bool              `json:"active_is_bulk"`
	QueuedDownloads  []string          `json:"queued_downloads,omitempty"`
	PendingComments  []string          `json:"pending_comments,omitempty"`
	Progress         map[string]string `json:"progress,omitempty"`
	CommentsProgress map[string]string `json:"comments_progress,omitempty"`
	Bulk             BulkStatus        `json:"bulk"`
	Metadata         MetadataStatus    `json:"metadata"`
	IntegrityRunning bool              `json:"integrity_running"`
}

// Stats is the full GET /api/v1/stats response.
type Stats struct {
	Engine        EngineStats `json:"engine"`
	Uptime        int64       `json:"uptime_seconds"`
	MemAllocMB    int64       `json:"mem_alloc_mb"`
	NumGoroutines int         `json:"num_goroutines"`
	DiskFreeBytes int64       `json:"disk_free_bytes"`
}

// Notice is one entry from GET /api/v1/notices.
type Notice struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Severity  string    `json:"severity"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	ItemID    string    `json:"item_id,omitempty"`
	Sticky    bool      `json:"sticky"`
}

type noticeList struct {
	Notices []Notice `json:"notices"`
	Total   int      `json:"total"`
}

// Stats fetches the current server statistics.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := c.get(ctx, "/api/v1/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Notices fetches the most recent notices, newest first.
func (c *Client) Notices(ctx context.Context, limit int) ([]Notice, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var list noticeList
	if err := c.get(ctx, "/api/v1/notices", q, &list); err != nil {
		return nil, err
	}
	return list.Notices, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s for %s", resp.Status, path)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
