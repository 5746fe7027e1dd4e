package gateway

import "github.com/vodvault/vodvault/internal/domain"

// Event is one asynchronous worker notification, keyed by item id.
type Event interface {
	EventItemID() domain.ItemID
}

// DownloadProgress carries one progress line from a media download.
// Later lines for the same id supersede earlier ones.
type DownloadProgress struct {
	ID   domain.ItemID
	Line string
}

// DownloadFinished is the terminal event of a media download.
type DownloadFinished struct {
	ID        domain.ItemID
	Success   bool
	Cancelled bool
	Stdout    string
	Stderr    string
}

// CommentsProgress carries one progress line from a chat download.
type CommentsProgress struct {
	ID   domain.ItemID
	Line string
}

// CommentsFinished is the terminal event of a chat download. A successful
// exit does not guarantee a transcript exists; callers re-verify on disk.
type CommentsFinished struct {
	ID      domain.ItemID
	Success bool
	Stdout  string
	Stderr  string
}

// MetadataFinished is the terminal event of a metadata fetch.
type MetadataFinished struct {
	ID          domain.ItemID
	Success     bool
	Metadata    *domain.Metadata
	HasLiveChat bool
	Stdout      string
	Stderr      string
}

func (e DownloadProgress) EventItemID() domain.ItemID { return e.ID }
func (e DownloadFinished) EventItemID() domain.ItemID { return e.ID }
func (e CommentsProgress) EventItemID() domain.ItemID { return e.ID }
func (e CommentsFinished) EventItemID() domain.ItemID { return e.ID }
func (e MetadataFinished) EventItemID() domain.ItemID { return e.ID }
