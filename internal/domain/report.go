package domain

import "time"

// IntegrityIssue flags one item whose recorded state diverges from the
// filesystem.
type IntegrityIssue struct {
	ItemID          ItemID `json:"item_id"`
	Title           string `json:"title"`
	VideoMissing    bool   `json:"video_missing"`
	CommentsMissing bool   `json:"comments_missing"`
	MetadataMissing bool   `json:"metadata_missing"`
}

// IntegrityReport is the derived result of one reconciliation run. It is
// recomputed on each check and never persisted.
type IntegrityReport struct {
	Issues          []IntegrityIssue `json:"issues"`
	CheckedVideos   int              `json:"checked_videos"`
	CheckedComments int              `json:"checked_comments"`
	MissingVideos   int              `json:"missing_videos"`
	MissingComments int              `json:"missing_comments"`
	MissingMetadata int              `json:"missing_metadata"`
	RanAt           time.Time        `json:"ran_at"`
}

// Clean reports whether the check found no discrepancies.
func (r *IntegrityReport) Clean() bool {
	return len(r.Issues) == 0
}
