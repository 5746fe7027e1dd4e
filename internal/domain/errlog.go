package domain

import "time"

// ErrorPhase identifies which job a recorded error belongs to.
type ErrorPhase string

const (
	PhaseVideo    ErrorPhase = "video"
	PhaseComments ErrorPhase = "comments"
	PhaseMetadata ErrorPhase = "metadata"
)

// ErrorRecord is the durable per-item, per-phase error entry. A newer record
// for the same (item, phase) supersedes the older one.
type ErrorRecord struct {
	ItemID  ItemID     `json:"item_id"`
	Phase   ErrorPhase `json:"phase"`
	Details string     `json:"details"`
	// Missing marks integrity-drift records, which are cleared automatically
	// once the artifact reappears on disk.
	Missing   bool      `json:"missing"`
	CreatedAt time.Time `json:"created_at"`
}

// ItemErrors is the aggregation of recorded errors for one item, for display.
type ItemErrors struct {
	ItemID  ItemID        `json:"item_id"`
	Title   string        `json:"title"`
	Records []ErrorRecord `json:"records"`
	// Latest is the newest CreatedAt across Records, used for ordering.
	Latest time.Time `json:"latest"`
}
