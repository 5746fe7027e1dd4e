package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vodvault/vodvault/internal/domain"
)

// Artifact naming inside the library directory:
//
//	media        <title> [<id>].<ext>
//	chat         <id>.live_chat.json
//	metadata     <id>.info.json
//	thumbnail    <id>.<image ext>
var mediaExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".webm": true,
	".m4v":  true,
	".mov":  true,
	".ts":   true,
}

var thumbnailExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

func commentsPath(dir string, id domain.ItemID) string {
	return filepath.Join(dir, id.String()+".live_chat.json")
}

func infoPath(dir string, id domain.ItemID) string {
	return filepath.Join(dir, id.String()+".info.json")
}

// VideoFileExists reports whether a media artifact for the item is on disk.
// The title is advisory; matching keys on the [id] marker so renamed titles
// still resolve.
func (g *Exec) VideoFileExists(ctx context.Context, id domain.ItemID, title, outputDir string) (bool, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return false, fmt.Errorf("read library dir: %w", err)
	}

	marker := "[" + id.String() + "]"
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !mediaExtensions[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		if strings.Contains(name, marker) {
			return true, nil
		}
	}
	return false, nil
}

// CommentsFileExists reports whether a chat transcript for the item is on
// disk and non-empty.
func (g *Exec) CommentsFileExists(ctx context.Context, id domain.ItemID, outputDir string) (bool, error) {
	info, err := os.Stat(commentsPath(outputDir, id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat chat transcript: %w", err)
	}
	return info.Size() > 0, nil
}

// VerifyLocalFiles checks all targets in one directory scan.
func (g *Exec) VerifyLocalFiles(ctx context.Context, outputDir string, targets []VerifyTarget) ([]VerifyResult, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return nil, fmt.Errorf("read library dir: %w", err)
	}

	mediaMarkers := make(map[string]bool)
	chatFiles := make(map[string]int64)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".live_chat.json") {
			if fi, err := e.Info(); err == nil {
				chatFiles[strings.TrimSuffix(name, ".live_chat.json")] = fi.Size()
			}
			continue
		}
		if !mediaExtensions[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		if open := strings.LastIndex(name, "["); open >= 0 {
			if end := strings.Index(name[open:], "]"); end > 1 {
				mediaMarkers[name[open+1:open+end]] = true
			}
		}
	}

	results := make([]VerifyResult, 0, len(targets))
	for _, tgt := range targets {
		res := VerifyResult{ID: tgt.ID}
		if tgt.CheckVideo {
			res.VideoOK = mediaMarkers[tgt.ID.String()]
		}
		if tgt.CheckComments {
			res.CommentsOK = chatFiles[tgt.ID.String()] > 0
		}
		results = append(results, res)
	}
	return results, nil
}

// MetadataIndex scans the library directory for metadata and chat artifacts.
func (g *Exec) MetadataIndex(ctx context.Context, outputDir string) (*domain.MetadataIndex, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return nil, fmt.Errorf("read library dir: %w", err)
	}

	idx := &domain.MetadataIndex{
		InfoIDs: make(map[domain.ItemID]bool),
		ChatIDs: make(map[domain.ItemID]bool),
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".info.json"):
			idx.InfoIDs[domain.ItemID(strings.TrimSuffix(name, ".info.json"))] = true
		case strings.HasSuffix(name, ".live_chat.json"):
			idx.ChatIDs[domain.ItemID(strings.TrimSuffix(name, ".live_chat.json"))] = true
		}
	}
	return idx, nil
}

// LocalMetadataByIDs reads already-fetched metadata artifacts for the given
// ids. Ids without a readable artifact are omitted from the result.
func (g *Exec) LocalMetadataByIDs(ctx context.Context, outputDir string, ids []domain.ItemID) (map[domain.ItemID]domain.Metadata, error) {
	out := make(map[domain.ItemID]domain.Metadata, len(ids))
	for _, id := range ids {
		meta, hasChat, err := readLocalMetadata(outputDir, id)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			g.logger.Warn("skip unreadable metadata artifact", "item_id", id, "error", err)
			continue
		}
		meta.HasLiveChat = hasChat
		out[id] = meta
	}
	return out, nil
}

// DeleteLiveMetadataFiles removes the metadata and thumbnail artifacts for
// an item whose stream was captured mid-broadcast.
func (g *Exec) DeleteLiveMetadataFiles(ctx context.Context, id domain.ItemID, outputDir string) error {
	paths := []string{infoPath(outputDir, id)}
	for _, ext := range thumbnailExtensions {
		paths = append(paths, filepath.Join(outputDir, id.String()+ext))
	}

	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}

type infoJSON struct {
	Title        string                     `json:"title"`
	Channel      string                     `json:"channel"`
	Uploader     string                     `json:"uploader"`
	Thumbnail    string                     `json:"thumbnail"`
	Duration     float64                    `json:"duration"`
	IsLive       bool                       `json:"is_live"`
	LiveStatus   string                     `json:"live_status"`
	Availability string                     `json:"availability"`
	UploadDate   string                     `json:"upload_date"`
	Subtitles    map[string]json.RawMessage `json:"subtitles"`
}

// readLocalMetadata parses the on-disk info artifact for an item.
func readLocalMetadata(outputDir string, id domain.ItemID) (domain.Metadata, bool, error) {
	data, err := os.ReadFile(infoPath(outputDir, id))
	if err != nil {
		return domain.Metadata{}, false, err
	}

	var info infoJSON
	if err := json.Unmarshal(data, &info); err != nil {
		return domain.Metadata{}, false, fmt.Errorf("parse metadata artifact %s: %w", id, err)
	}

	channel := info.Channel
	if channel == "" {
		channel = info.Uploader
	}

	meta := domain.Metadata{
		Title:        info.Title,
		Channel:      channel,
		Thumbnail:    info.Thumbnail,
		DurationSec:  info.Duration,
		IsLive:       info.IsLive,
		LiveStatus:   domain.LiveStatus(info.LiveStatus),
		Availability: info.Availability,
		UploadDate:   info.UploadDate,
	}
	_, hasChat := info.Subtitles["live_chat"]
	meta.HasLiveChat = hasChat
	return meta, hasChat, nil
}
