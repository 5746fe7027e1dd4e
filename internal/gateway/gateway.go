// Package gateway is the RPC façade over the external download, probe and
// listing tools. Long-running calls return as soon as the worker process is
// started; outcomes arrive later on the Events channel.
package gateway

import (
	"context"

	"github.com/vodvault/vodvault/internal/domain"
)

// DownloadRequest asks the worker to fetch an item's media.
type DownloadRequest struct {
	ID        domain.ItemID
	URL       string
	OutputDir string
	Quality   string
}

// CommentsRequest asks the worker to fetch an item's chat transcript.
type CommentsRequest struct {
	ID        domain.ItemID
	URL       string
	OutputDir string
}

// MetadataRequest asks the worker to fetch an item's descriptive metadata.
type MetadataRequest struct {
	ID        domain.ItemID
	URL       string
	OutputDir string
}

// VerifyTarget names which artifacts to check for one item.
type VerifyTarget struct {
	ID            domain.ItemID
	Title         string
	CheckVideo    bool
	CheckComments bool
}

// VerifyResult reports artifact presence for one item.
type VerifyResult struct {
	ID         domain.ItemID
	VideoOK    bool
	CommentsOK bool
}

// Gateway is the worker-process façade. Start* calls are fire-and-forget:
// a nil return means the job was handed to a worker, whose terminal outcome
// is reported on Events. The remaining calls are synchronous.
type Gateway interface {
	StartDownload(ctx context.Context, req DownloadRequest) error
	StopDownload(ctx context.Context, id domain.ItemID) error
	StartCommentsDownload(ctx context.Context, req CommentsRequest) error
	StartMetadataDownload(ctx context.Context, req MetadataRequest) error

	// ListChannelItems lists up to limit candidates at a channel or playlist
	// URL. Synchronous.
	ListChannelItems(ctx context.Context, url string, limit int) ([]domain.ItemCandidate, error)

	VideoFileExists(ctx context.Context, id domain.ItemID, title, outputDir string) (bool, error)
	CommentsFileExists(ctx context.Context, id domain.ItemID, outputDir string) (bool, error)

	// VerifyLocalFiles is the batched variant of the existence checks.
	// Callers fall back to per-item calls when it fails.
	VerifyLocalFiles(ctx context.Context, outputDir string, targets []VerifyTarget) ([]VerifyResult, error)

	// MetadataIndex lists ids with metadata and chat artifacts on disk.
	MetadataIndex(ctx context.Context, outputDir string) (*domain.MetadataIndex, error)

	// LocalMetadataByIDs reads already-fetched metadata from disk.
	LocalMetadataByIDs(ctx context.Context, outputDir string, ids []domain.ItemID) (map[domain.ItemID]domain.Metadata, error)

	// DeleteLiveMetadataFiles invalidates stale in-progress-live metadata so
	// the item can be re-fetched once the stream ends.
	DeleteLiveMetadataFiles(ctx context.Context, id domain.ItemID, outputDir string) error

	// ProbeMedia inspects a downloaded media file.
	ProbeMedia(ctx context.Context, filePath string) (*domain.MediaInfo, error)

	// ToolAvailable reports whether the required external tools are present.
	ToolAvailable() error

	// Events is the stream of asynchronous worker completions and progress.
	Events() <-chan Event
}
