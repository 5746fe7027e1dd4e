package domain

// Metadata is the descriptive metadata fetched for an item from the source.
type Metadata struct {
	Title        string     `json:"title"`
	Channel      string     `json:"channel"`
	Thumbnail    string     `json:"thumbnail,omitempty"`
	DurationSec  float64    `json:"duration_sec,omitempty"`
	IsLive       bool       `json:"is_live"`
	LiveStatus   LiveStatus `json:"live_status,omitempty"`
	Availability string     `json:"availability,omitempty"`
	UploadDate   string     `json:"upload_date,omitempty"`
	HasLiveChat  bool       `json:"has_live_chat"`
}

// Patch converts fetched metadata into a store patch. Status fields are
// deliberately excluded; only queues transition statuses.
func (m Metadata) Patch() ItemPatch {
	p := ItemPatch{
		MetadataFetched: Ptr(true),
		IsLive:          Ptr(m.IsLive),
		LiveStatus:      Ptr(m.LiveStatus),
	}
	if m.Title != "" {
		p.Title = Ptr(m.Title)
	}
	if m.Channel != "" {
		p.Channel = Ptr(m.Channel)
	}
	if m.Thumbnail != "" {
		p.Thumbnail = Ptr(m.Thumbnail)
	}
	if m.Availability != "" {
		p.Availability = Ptr(m.Availability)
	}
	return p
}

// ItemCandidate is a listing entry returned by the channel lister before an
// item is added to the library.
type ItemCandidate struct {
	ID        ItemID  `json:"id"`
	Title     string  `json:"title"`
	Channel   string  `json:"channel"`
	SourceURL string  `json:"source_url"`
	Duration  float64 `json:"duration,omitempty"`
	IsLive    bool    `json:"is_live"`
}

// MetadataIndex lists the item ids for which artifacts already exist in the
// library directory.
type MetadataIndex struct {
	InfoIDs map[ItemID]bool
	ChatIDs map[ItemID]bool
}

// MediaInfo is the result of probing a downloaded media file.
type MediaInfo struct {
	VideoCodec  string  `json:"video_codec"`
	AudioCodec  string  `json:"audio_codec"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	DurationSec float64 `json:"duration_sec"`
	Container   string  `json:"container"`
	SizeBytes   int64   `json:"size_bytes"`
}
