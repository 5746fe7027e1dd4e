package domain

import "errors"

// Domain errors.
var (
	// ErrItemNotFound is returned when an item is not in the library.
	ErrItemNotFound = errors.New("item not found")

	// ErrNoLibraryDir is returned when no library directory is configured.
	ErrNoLibraryDir = errors.New("no library directory configured")

	// ErrLowDiskSpace is returned when the library volume is below the
	// configured free-space floor.
	ErrLowDiskSpace = errors.New("insufficient free disk space")

	// ErrToolMissing is returned when a required external tool is not found.
	ErrToolMissing = errors.New("download tool not available")

	// ErrItemLive is returned when downloading is rejected because the item
	// is live or upcoming.
	ErrItemLive = errors.New("item is live or upcoming")

	// ErrItemUnavailable is returned when the item is private or removed.
	ErrItemUnavailable = errors.New("item is private or removed")

	// ErrBatchInProgress is returned when an ad-hoc download is rejected
	// because a bulk batch is running.
	ErrBatchInProgress = errors.New("bulk download in progress")

	// ErrMetadataTimeout is returned when metadata could not be resolved
	// within the bounded wait before a download.
	ErrMetadataTimeout = errors.New("timed out waiting for item metadata")

	// ErrBulkNotActive is returned by bulk operations when no batch exists.
	ErrBulkNotActive = errors.New("no bulk download active")

	// ErrBulkActive is returned when starting a batch while one is running.
	ErrBulkActive = errors.New("bulk download already active")

	// ErrCheckRunning is returned when an integrity check is already running.
	ErrCheckRunning = errors.New("integrity check already running")

	// ErrEngineStopped is returned when the engine is not accepting commands.
	ErrEngineStopped = errors.New("engine stopped")
)
