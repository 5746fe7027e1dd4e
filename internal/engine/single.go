package engine

import (
	"fmt"

	"github.com/vodvault/vodvault/internal/domain"
	"github.com/vodvault/vodvault/internal/gateway"
)

// handleRequestDownload runs the precondition chain and either dispatches,
// queues, or rejects the request. Preconditions are checked in a fixed
// order: unknown item, library dir, disk space, metadata, liveness,
// availability, tool presence.
func (e *Engine) handleRequestDownload(id domain.ItemID, opts requestOpts) requestResult {
	item, ok := e.store.Get(id)
	if !ok {
		return requestResult{err: domain.ErrItemNotFound}
	}

	if e.libraryDir == "" {
		e.notifier.Error("download", "no library directory configured", id)
		return requestResult{err: domain.ErrNoLibraryDir}
	}
	if e.cfg.MinFreeBytes > 0 && e.freeSpace(e.libraryDir) < e.cfg.MinFreeBytes {
		e.notifier.Error("download", "insufficient free disk space in library", id)
		return requestResult{err: domain.ErrLowDiskSpace}
	}

	if !item.MetadataFetched {
		wait := e.ensureMetadata(item)
		return requestResult{metadataWait: wait}
	}

	if item.LiveOrUpcoming() {
		e.notifier.Warning("download", "stream is live or upcoming; download refused", id)
		return requestResult{err: domain.ErrItemLive}
	}
	if item.Unavailable() {
		e.notifier.Warning("download", "item is private or removed at the source", id)
		return requestResult{err: domain.ErrItemUnavailable}
	}
	if err := e.gw.ToolAvailable(); err != nil {
		e.notifier.Error("download", "download tool not available", id)
		return requestResult{err: err}
	}

	if e.bulk.active && !e.bulk.waitingForSingles && !opts.allowDuringBulk {
		e.notifier.Warning("download", "bulk download in progress; request refused", id)
		return requestResult{err: domain.ErrBatchInProgress}
	}

	// Occupancy.
	if e.single.activeID == id {
		return requestResult{}
	}
	if e.single.activeID != "" {
		if !opts.trackInQueue {
			return requestResult{err: fmt.Errorf("download slot busy with %s", e.single.activeID)}
		}
		for _, queued := range e.single.queue {
			if queued == id {
				return requestResult{queued: true}
			}
		}
		e.single.queue = append(e.single.queue, id)
		e.notifier.Info("download", "queued behind active download", id)
		return requestResult{queued: true}
	}

	if err := e.dispatchDownload(item, opts.allowDuringBulk); err != nil {
		return requestResult{err: err}
	}
	return requestResult{}
}

// dispatchDownload claims the media slot and starts the worker. A dispatch
// error releases the slot and records the failure before returning.
func (e *Engine) dispatchDownload(item domain.Item, bulkOwned bool) error {
	e.single.activeID = item.ID
	e.single.bulkOwned = bulkOwned
	delete(e.progress, item.ID)

	status := domain.DownloadDownloading
	if err := e.store.Apply(e.ctx, item.ID, domain.ItemPatch{DownloadStatus: &status}); err != nil {
		e.logger.Error("mark downloading", "item_id", item.ID, "error", err)
	}
	e.store.ClearError(e.ctx, item.ID, domain.PhaseVideo)

	err := e.gw.StartDownload(e.ctx, gateway.DownloadRequest{
		ID:        item.ID,
		URL:       item.SourceURL,
		OutputDir: e.libraryDir,
		Quality:   e.cfg.Quality,
	})
	if err != nil {
		e.single.activeID = ""
		e.single.bulkOwned = false
		failed := domain.DownloadFailed
		if aerr := e.store.Apply(e.ctx, item.ID, domain.ItemPatch{DownloadStatus: &failed}); aerr != nil {
			e.logger.Error("mark failed", "item_id", item.ID, "error", aerr)
		}
		e.store.RecordError(e.ctx, item.ID, domain.PhaseVideo, err.Error(), false)
		e.notifier.Error("download", "failed to start download worker", item.ID)
		e.logger.Error("dispatch download", "item_id", item.ID, "error", err)
		return err
	}

	e.armWatchdog(item.ID, domain.PhaseVideo)
	e.logger.Info("download started", "item_id", item.ID, "bulk", bulkOwned)
	return nil
}

// advanceSingle pulls the next waiting request into the freed slot. Entries
// whose items vanished or whose dispatch fails are skipped.
func (e *Engine) advanceSingle() {
	for e.single.activeID == "" && len(e.single.queue) > 0 {
		id := e.single.queue[0]
		e.single.queue = e.single.queue[1:]

		item, ok := e.store.Get(id)
		if !ok {
			continue
		}
		if item.DownloadStatus == domain.DownloadDownloaded || item.LiveOrUpcoming() {
			continue
		}
		if err := e.dispatchDownload(item, false); err != nil {
			continue
		}
	}
}

// handleCancelDownload stops the active download for the item.
func (e *Engine) handleCancelDownload(id domain.ItemID) error {
	if e.single.activeID != id {
		// Not active. Remove a queued entry if present.
		for i, queued := range e.single.queue {
			if queued == id {
				e.single.queue = append(e.single.queue[:i], e.single.queue[i+1:]...)
				status := domain.DownloadPending
				if err := e.store.Apply(e.ctx, id, domain.ItemPatch{DownloadStatus: &status}); err != nil {
					e.logger.Error("reset queued item", "item_id", id, "error", err)
				}
				e.notifier.Info("download", "removed from download queue", id)
				return nil
			}
		}
		return domain.ErrItemNotFound
	}

	if err := e.gw.StopDownload(e.ctx, id); err != nil {
		return fmt.Errorf("cancel download: %w", err)
	}
	// The status transition happens when the cancelled terminal event lands.
	e.notifier.Info("download", "cancellation requested", id)
	return nil
}

// handleRequestComments starts a chat transcript download. Chat jobs track
// in pendingComments and never touch the media slot.
func (e *Engine) handleRequestComments(id domain.ItemID) error {
	item, ok := e.store.Get(id)
	if !ok {
		return domain.ErrItemNotFound
	}
	if e.libraryDir == "" {
		return domain.ErrNoLibraryDir
	}
	if item.CommentsStatus == domain.CommentsUnavailable {
		return fmt.Errorf("no chat transcript exists for %s", id)
	}
	if e.pendingComments[id] || item.CommentsStatus == domain.CommentsDownloading {
		return nil
	}
	return e.dispatchComments(item)
}

func (e *Engine) dispatchComments(item domain.Item) error {
	e.pendingComments[item.ID] = true
	delete(e.commentsProgress, item.ID)

	status := domain.CommentsDownloading
	if err := e.store.Apply(e.ctx, item.ID, domain.ItemPatch{CommentsStatus: &status}); err != nil {
		e.logger.Error("mark comments downloading", "item_id", item.ID, "error", err)
	}
	e.store.ClearError(e.ctx, item.ID, domain.PhaseComments)

	err := e.gw.StartCommentsDownload(e.ctx, gateway.CommentsRequest{
		ID:        item.ID,
		URL:       item.SourceURL,
		OutputDir: e.libraryDir,
	})
	if err != nil {
		delete(e.pendingComments, item.ID)
		failed := domain.CommentsFailed
		if aerr := e.store.Apply(e.ctx, item.ID, domain.ItemPatch{CommentsStatus: &failed}); aerr != nil {
			e.logger.Error("mark comments failed", "item_id", item.ID, "error", aerr)
		}
		e.store.RecordError(e.ctx, item.ID, domain.PhaseComments, err.Error(), false)
		e.notifier.Error("comments", "failed to start chat worker", item.ID)
		return err
	}

	e.armWatchdog(item.ID, domain.PhaseComments)
	e.logger.Info("chat download started", "item_id", item.ID)
	return nil
}

// handleAbandonRequest records the timeout of a metadata-gated request.
func (e *Engine) handleAbandonRequest(cmd cmdAbandonRequest) {
	e.store.RecordError(e.ctx, cmd.id, domain.PhaseVideo, cmd.details, false)
	e.notifier.Warning("download", "download abandoned: "+cmd.details, cmd.id)
}
