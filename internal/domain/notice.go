package domain

import "time"

// NoticeID is a unique identifier for a notice.
type NoticeID string

// NoticeSeverity represents the severity level of a user-facing notice.
type NoticeSeverity string

const (
	NoticeInfo    NoticeSeverity = "info"
	NoticeSuccess NoticeSeverity = "success"
	NoticeWarning NoticeSeverity = "warning"
	NoticeError   NoticeSeverity = "error"
)

// Notice is one transient user-facing notification. Low-severity notices
// auto-dismiss in clients; warnings and errors are treated as actionable.
type Notice struct {
	ID        NoticeID       `json:"id"`
	Severity  NoticeSeverity `json:"severity"`
	Source    string         `json:"source"`
	Message   string         `json:"message"`
	ItemID    ItemID         `json:"item_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Sticky reports whether clients should keep the notice on screen until
// dismissed.
func (n Notice) Sticky() bool {
	return n.Severity == NoticeWarning || n.Severity == NoticeError
}
