package engine

import (
	"fmt"

	"github.com/vodvault/vodvault/internal/domain"
)

// BulkStatus is the externally visible batch state.
type BulkStatus struct {
	Active            bool          `json:"active"`
	WaitingForSingles bool          `json:"waiting_for_singles"`
	StopRequested     bool          `json:"stop_requested"`
	Total             int           `json:"total"`
	Completed         int           `json:"completed"`
	Remaining         int           `json:"remaining"`
	CurrentID         domain.ItemID `json:"current_id,omitempty"`
	CurrentPhase      string        `json:"current_phase,omitempty"`
}

func (e *Engine) bulkStatus() BulkStatus {
	return BulkStatus{
		Active:            e.bulk.active,
		WaitingForSingles: e.bulk.waitingForSingles,
		StopRequested:     e.bulk.stopRequested,
		Total:             e.bulk.total,
		Completed:         e.bulk.completed,
		Remaining:         len(e.bulk.queue),
		CurrentID:         e.bulk.currentID,
		CurrentPhase:      string(e.bulk.currentPhase),
	}
}

// singleActivity reports whether any non-bulk work is outstanding: an active
// or queued single download, or an in-flight chat job.
func (e *Engine) singleActivity() bool {
	if e.single.activeID != "" && !e.single.bulkOwned {
		return true
	}
	return len(e.single.queue) > 0 || len(e.pendingComments) > 0
}

// handleBulkStart snapshots the eligible item set and either starts the
// first job or parks the batch until single-item activity drains.
func (e *Engine) handleBulkStart() bulkStartResult {
	if e.bulk.active {
		return bulkStartResult{status: e.bulkStatus(), err: domain.ErrBulkActive}
	}
	if e.libraryDir == "" {
		return bulkStartResult{err: domain.ErrNoLibraryDir}
	}
	if err := e.gw.ToolAvailable(); err != nil {
		return bulkStartResult{err: err}
	}

	var targets []domain.ItemID
	for _, item := range e.store.Snapshot() {
		if item.DownloadStatus == domain.DownloadDownloaded {
			continue
		}
		if item.LiveOrUpcoming() {
			continue
		}
		targets = append(targets, item.ID)
	}
	if len(targets) == 0 {
		return bulkStartResult{err: fmt.Errorf("nothing to download")}
	}

	e.bulk = bulkState{active: true, queue: targets, total: len(targets)}

	if e.singleActivity() {
		e.bulk.waitingForSingles = true
		e.notifier.Info("bulk", fmt.Sprintf("batch of %d queued; waiting for current downloads to finish", e.bulk.total), "")
		e.logger.Info("bulk waiting for single activity", "total", e.bulk.total)
	} else {
		e.notifier.Info("bulk", fmt.Sprintf("starting batch of %d items", e.bulk.total), "")
		e.bulkStartNext()
	}
	return bulkStartResult{status: e.bulkStatus()}
}

// checkBulkWatchdog promotes a parked batch once single activity drains.
// Called after every completion that can free the last outstanding job.
func (e *Engine) checkBulkWatchdog() {
	if e.bulk.active && e.bulk.waitingForSingles && !e.singleActivity() {
		e.bulk.waitingForSingles = false
		e.logger.Info("single activity drained; starting batch", "total", e.bulk.total)
		e.bulkStartNext()
	}
}

// bulkStartNext dispatches the next eligible queued item. Items that became
// downloaded, live or upcoming since the snapshot are skipped but still
// counted toward completion, so progress totals stay truthful.
func (e *Engine) bulkStartNext() {
	if !e.bulk.active {
		return
	}
	if e.bulk.stopRequested {
		e.bulkFinish(true)
		return
	}

	for len(e.bulk.queue) > 0 {
		id := e.bulk.queue[0]
		e.bulk.queue = e.bulk.queue[1:]

		item, ok := e.store.Get(id)
		if !ok {
			e.bulk.completed++
			continue
		}
		if item.DownloadStatus == domain.DownloadDownloaded || item.LiveOrUpcoming() {
			e.bulk.completed++
			continue
		}

		e.bulk.currentID = id
		e.bulk.currentPhase = bulkPhaseVideo
		if err := e.dispatchDownload(item, true); err != nil {
			e.bulk.completed++
			e.bulk.currentID = ""
			e.bulk.currentPhase = bulkPhaseNone
			continue
		}
		return
	}

	e.bulkFinish(false)
}

// bulkVideoDone runs after the batch's current item finished its media
// phase successfully; it moves the item into the chat phase when a
// transcript is still wanted.
func (e *Engine) bulkVideoDone(item domain.Item) {
	if !e.bulkOwns(item.ID) {
		return
	}
	needsChat := item.CommentsStatus == domain.CommentsPending || item.CommentsStatus == domain.CommentsFailed
	if needsChat && !e.pendingComments[item.ID] {
		if err := e.dispatchComments(item); err == nil {
			e.bulk.currentPhase = bulkPhaseComments
			return
		}
	}
	e.bulkItemDone(item.ID, false)
}

func (e *Engine) bulkOwns(id domain.ItemID) bool {
	return e.bulk.active && e.bulk.currentID == id
}

// bulkItemDone closes out the batch's current item and either continues or
// winds the batch down.
func (e *Engine) bulkItemDone(id domain.ItemID, cancelled bool) {
	if !e.bulkOwns(id) {
		return
	}
	e.bulk.completed++
	if e.bulk.completed > e.bulk.total {
		e.bulk.completed = e.bulk.total
	}
	e.bulk.currentID = ""
	e.bulk.currentPhase = bulkPhaseNone

	if e.bulk.stopRequested || cancelled {
		e.bulkFinish(true)
		return
	}
	e.bulkStartNext()
}

func (e *Engine) bulkFinish(stopped bool) {
	completed, total := e.bulk.completed, e.bulk.total
	e.bulk = bulkState{}

	if stopped {
		e.notifier.Info("bulk", fmt.Sprintf("batch stopped after %d of %d items", completed, total), "")
		e.logger.Info("bulk stopped", "completed", completed, "total", total)
	} else {
		e.notifier.Success("bulk", fmt.Sprintf("batch finished: %d of %d items processed", completed, total), "")
		e.logger.Info("bulk finished", "completed", completed, "total", total)
	}
}

// handleBulkStop requests cooperative cancellation. The stop flag is only
// committed once the current worker acknowledged the cancel, so a failed
// cancel leaves the batch running and retryable.
func (e *Engine) handleBulkStop() error {
	if !e.bulk.active {
		return domain.ErrBulkNotActive
	}
	if e.bulk.stopRequested {
		return nil
	}

	if e.bulk.currentID == "" {
		// Parked or between items; nothing in flight to cancel.
		e.bulkFinish(true)
		return nil
	}

	if e.bulk.currentPhase == bulkPhaseVideo {
		if err := e.gw.StopDownload(e.ctx, e.bulk.currentID); err != nil {
			return fmt.Errorf("cancel active download: %w", err)
		}
	}
	// Chat jobs have no cancel path; the batch ends after the current one.
	e.bulk.stopRequested = true
	e.notifier.Info("bulk", "batch stop requested; finishing current item", e.bulk.currentID)
	return nil
}
