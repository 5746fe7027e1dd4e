package engine

import (
	"github.com/vodvault/vodvault/internal/domain"
)

// Stats is a point-in-time snapshot of engine state for the API and the
// status board.
type Stats struct {
	LibraryDir       string                   `json:"library_dir"`
	Items            int                      `json:"items"`
	ActiveDownload   domain.ItemID            `json:"active_download,omitempty"`
	ActiveIsBulk     bool                     `json:"active_is_bulk"`
	QueuedDownloads  []domain.ItemID          `json:"queued_downloads,omitempty"`
	PendingComments  []domain.ItemID          `json:"pending_comments,omitempty"`
	Progress         map[domain.ItemID]string `json:"progress,omitempty"`
	CommentsProgress map[domain.ItemID]string `json:"comments_progress,omitempty"`
	Bulk             BulkStatus               `json:"bulk"`
	Metadata         MetadataStatus           `json:"metadata"`
	IntegrityRunning bool                     `json:"integrity_running"`
}

func (e *Engine) buildStats() Stats {
	queued := make([]domain.ItemID, len(e.single.queue))
	copy(queued, e.single.queue)

	pending := make([]domain.ItemID, 0, len(e.pendingComments))
	for id := range e.pendingComments {
		pending = append(pending, id)
	}

	progress := make(map[domain.ItemID]string, len(e.progress))
	for id, line := range e.progress {
		progress[id] = line
	}
	commentsProgress := make(map[domain.ItemID]string, len(e.commentsProgress))
	for id, line := range e.commentsProgress {
		commentsProgress[id] = line
	}

	return Stats{
		LibraryDir:       e.libraryDir,
		Items:            e.store.Len(),
		ActiveDownload:   e.single.activeID,
		ActiveIsBulk:     e.single.bulkOwned,
		QueuedDownloads:  queued,
		PendingComments:  pending,
		Progress:         progress,
		CommentsProgress: commentsProgress,
		Bulk:             e.bulkStatus(),
		Metadata:         e.metadataStatus(),
		IntegrityRunning: e.integrityRunning,
	}
}

// handleAddItems imports channel listing candidates not yet in the library
// and queues metadata fetches for the newcomers.
func (e *Engine) handleAddItems(candidates []domain.ItemCandidate) addItemsResult {
	added := 0
	var entries []metaEntry
	for _, c := range candidates {
		if c.ID == "" {
			continue
		}
		item := domain.NewItem(c.ID, c.Title, c.Channel, c.SourceURL)
		item.IsLive = c.IsLive

		ok, err := e.store.Add(e.ctx, item)
		if err != nil {
			e.logger.Error("add item", "item_id", c.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		added++
		entries = append(entries, metaEntry{id: c.ID, url: c.SourceURL})
	}

	if added > 0 {
		e.scheduleMetadata(entries)
		e.notifier.Info("library", "added new items from channel listing", "")
		e.logger.Info("channel items imported", "added", added, "listed", len(candidates))
	}
	return addItemsResult{added: added}
}

func (e *Engine) handleSetLibraryDir(dir string) error {
	if dir == "" {
		return domain.ErrNoLibraryDir
	}
	if dir == e.libraryDir {
		return nil
	}
	e.libraryDir = dir
	if e.dirChanged != nil {
		go e.dirChanged(dir)
	}
	e.notifier.Info("library", "library directory changed to "+dir, "")
	e.logger.Info("library directory changed", "dir", dir)
	return nil
}
