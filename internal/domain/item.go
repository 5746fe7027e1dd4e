package domain

import (
	"time"
)

// ItemID is the stable external identifier for a media item.
type ItemID string

// String returns the string representation of the ItemID.
func (id ItemID) String() string {
	return string(id)
}

// DownloadStatus represents the media download state of an item.
type DownloadStatus string

const (
	DownloadPending     DownloadStatus = "pending"
	DownloadDownloading DownloadStatus = "downloading"
	DownloadDownloaded  DownloadStatus = "downloaded"
	DownloadFailed      DownloadStatus = "failed"
)

// CommentsStatus represents the chat/comment transcript state of an item.
// It is independent of the media download state.
type CommentsStatus string

const (
	CommentsPending     CommentsStatus = "pending"
	CommentsDownloading CommentsStatus = "downloading"
	CommentsDownloaded  CommentsStatus = "downloaded"
	CommentsFailed      CommentsStatus = "failed"
	CommentsUnavailable CommentsStatus = "unavailable"
)

// LiveStatus is the broadcast state reported by the source.
type LiveStatus string

const (
	LiveStatusNone     LiveStatus = ""
	LiveStatusLive     LiveStatus = "is_live"
	LiveStatusUpcoming LiveStatus = "is_upcoming"
	LiveStatusPostLive LiveStatus = "post_live"
	LiveStatusWasLive  LiveStatus = "was_live"
)

// Availability flags items that cannot be fetched regardless of liveness.
const (
	AvailabilityPrivate = "private"
	AvailabilityRemoved = "removed"
)

// Item is one media entry tracked by the library.
type Item struct {
	ID             ItemID
	Title          string
	Channel        string
	Thumbnail      string
	SourceURL      string
	DownloadStatus DownloadStatus
	CommentsStatus CommentsStatus
	// MetadataFetched reports whether descriptive metadata has ever been
	// merged for this item.
	MetadataFetched bool
	IsLive          bool
	LiveStatus      LiveStatus
	Availability    string
	AddedAt         time.Time
}

// NewItem creates a pending item from a source candidate.
func NewItem(id ItemID, title, channel, sourceURL string) *Item {
	return &Item{
		ID:             id,
		Title:          title,
		Channel:        channel,
		SourceURL:      sourceURL,
		DownloadStatus: DownloadPending,
		CommentsStatus: CommentsPending,
		AddedAt:        time.Now(),
	}
}

// LiveOrUpcoming reports whether the item is currently live or scheduled,
// which excludes it from downloading.
func (i *Item) LiveOrUpcoming() bool {
	return i.IsLive || i.LiveStatus == LiveStatusLive || i.LiveStatus == LiveStatusUpcoming
}

// Unavailable reports whether the item is private or removed at the source.
func (i *Item) Unavailable() bool {
	return i.Availability == AvailabilityPrivate || i.Availability == AvailabilityRemoved
}

// ItemPatch is a partial update to an item. Nil fields are left untouched.
// Patches are the only write path into the library store.
type ItemPatch struct {
	Title           *string
	Channel         *string
	Thumbnail       *string
	SourceURL       *string
	DownloadStatus  *DownloadStatus
	CommentsStatus  *CommentsStatus
	MetadataFetched *bool
	IsLive          *bool
	LiveStatus      *LiveStatus
	Availability    *string
}

// IsZero reports whether the patch carries no changes.
func (p ItemPatch) IsZero() bool {
	return p == ItemPatch{}
}

// Merge overlays q onto p, later writes winning per field.
func (p ItemPatch) Merge(q ItemPatch) ItemPatch {
	if q.Title != nil {
		p.Title = q.Title
	}
	if q.Channel != nil {
		p.Channel = q.Channel
	}
	if q.Thumbnail != nil {
		p.Thumbnail = q.Thumbnail
	}
	if q.SourceURL != nil {
		p.SourceURL = q.SourceURL
	}
	if q.DownloadStatus != nil {
		p.DownloadStatus = q.DownloadStatus
	}
	if q.CommentsStatus != nil {
		p.CommentsStatus = q.CommentsStatus
	}
	if q.MetadataFetched != nil {
		p.MetadataFetched = q.MetadataFetched
	}
	if q.IsLive != nil {
		p.IsLive = q.IsLive
	}
	if q.LiveStatus != nil {
		p.LiveStatus = q.LiveStatus
	}
	if q.Availability != nil {
		p.Availability = q.Availability
	}
	return p
}

// ApplyTo mutates a copy of the item with the patch contents.
func (p ItemPatch) ApplyTo(item *Item) {
	if p.Title != nil {
		item.Title = *p.Title
	}
	if p.Channel != nil {
		item.Channel = *p.Channel
	}
	if p.Thumbnail != nil {
		item.Thumbnail = *p.Thumbnail
	}
	if p.SourceURL != nil {
		item.SourceURL = *p.SourceURL
	}
	if p.DownloadStatus != nil {
		item.DownloadStatus = *p.DownloadStatus
	}
	if p.CommentsStatus != nil {
		item.CommentsStatus = *p.CommentsStatus
	}
	if p.MetadataFetched != nil {
		item.MetadataFetched = *p.MetadataFetched
	}
	if p.IsLive != nil {
		item.IsLive = *p.IsLive
	}
	if p.LiveStatus != nil {
		item.LiveStatus = *p.LiveStatus
	}
	if p.Availability != nil {
		item.Availability = *p.Availability
	}
}

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T {
	return &v
}
