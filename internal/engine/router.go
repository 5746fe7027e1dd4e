package engine

import (
	"strings"

	"github.com/vodvault/vodvault/internal/domain"
	"github.com/vodvault/vodvault/internal/gateway"
)

// handleEvent routes one gateway event. Every terminal handler first checks
// that the engine still owns the job for that id, so stale events from
// superseded or timed-out workers are dropped rather than corrupting state.
func (e *Engine) handleEvent(ev gateway.Event) {
	switch v := ev.(type) {
	case gateway.DownloadProgress:
		if e.single.activeID == v.ID {
			e.progress[v.ID] = v.Line
		}
	case gateway.DownloadFinished:
		e.handleDownloadFinished(v)
	case gateway.CommentsProgress:
		if e.pendingComments[v.ID] {
			e.commentsProgress[v.ID] = v.Line
		}
	case gateway.CommentsFinished:
		e.handleCommentsFinished(v)
	case gateway.MetadataFinished:
		e.handleMetadataFinished(v)
	default:
		e.logger.Warn("unknown gateway event", "event_id", ev.EventItemID())
	}
}

func (e *Engine) handleDownloadFinished(ev gateway.DownloadFinished) {
	if e.single.activeID != ev.ID {
		return
	}
	bulkOwned := e.single.bulkOwned
	e.single.activeID = ""
	e.single.bulkOwned = false
	e.stopWatchdog(ev.ID, domain.PhaseVideo)
	delete(e.progress, ev.ID)

	switch {
	case ev.Cancelled:
		status := domain.DownloadPending
		if err := e.store.Apply(e.ctx, ev.ID, domain.ItemPatch{DownloadStatus: &status}); err != nil {
			e.logger.Error("reset cancelled item", "item_id", ev.ID, "error", err)
		}
		e.store.ClearError(e.ctx, ev.ID, domain.PhaseVideo)
		e.notifier.Info("download", "download cancelled", ev.ID)
		e.logger.Info("download cancelled", "item_id", ev.ID)
		if bulkOwned {
			e.bulkItemDone(ev.ID, true)
		}

	case ev.Success:
		status := domain.DownloadDownloaded
		if err := e.store.Apply(e.ctx, ev.ID, domain.ItemPatch{DownloadStatus: &status}); err != nil {
			e.logger.Error("mark downloaded", "item_id", ev.ID, "error", err)
		}
		e.store.ClearError(e.ctx, ev.ID, domain.PhaseVideo)
		e.notifier.Success("download", "download complete", ev.ID)
		e.logger.Info("download complete", "item_id", ev.ID)

		item, ok := e.store.Get(ev.ID)
		if bulkOwned && e.bulkOwns(ev.ID) {
			if ok {
				e.bulkVideoDone(item)
			} else {
				e.bulkItemDone(ev.ID, false)
			}
		} else if ok {
			e.maybeAutoComments(item)
		}

	default:
		status := domain.DownloadFailed
		if err := e.store.Apply(e.ctx, ev.ID, domain.ItemPatch{DownloadStatus: &status}); err != nil {
			e.logger.Error("mark failed", "item_id", ev.ID, "error", err)
		}
		e.store.RecordError(e.ctx, ev.ID, domain.PhaseVideo, workerFailureDetails(ev.Stderr, ev.Stdout), false)
		e.notifier.Error("download", "download failed", ev.ID)
		e.logger.Warn("download failed", "item_id", ev.ID)
		if bulkOwned {
			e.bulkItemDone(ev.ID, false)
		}
	}

	e.advanceSingle()
	e.checkBulkWatchdog()
}

// maybeAutoComments chains a chat fetch after an ad-hoc download. The batch
// coordinator runs its own chat phase, so this fires only outside a running
// batch; a parked batch still waits for the chained job like any other
// single activity.
func (e *Engine) maybeAutoComments(item domain.Item) {
	if e.bulk.active && !e.bulk.waitingForSingles {
		return
	}
	switch item.CommentsStatus {
	case domain.CommentsDownloaded, domain.CommentsUnavailable, domain.CommentsDownloading:
		return
	}
	if e.pendingComments[item.ID] {
		return
	}
	if err := e.dispatchComments(item); err != nil {
		e.logger.Warn("auto chat fetch failed to start", "item_id", item.ID, "error", err)
	}
}

// handleCommentsFinished re-verifies the transcript on disk: workers exit
// zero for chat-less items, and only the file proves a transcript exists.
func (e *Engine) handleCommentsFinished(ev gateway.CommentsFinished) {
	if !e.pendingComments[ev.ID] {
		return
	}
	delete(e.pendingComments, ev.ID)
	delete(e.commentsProgress, ev.ID)
	e.stopWatchdog(ev.ID, domain.PhaseComments)

	if ev.Success {
		exists, err := e.gw.CommentsFileExists(e.ctx, ev.ID, e.libraryDir)
		switch {
		case err != nil:
			status := domain.CommentsFailed
			if aerr := e.store.Apply(e.ctx, ev.ID, domain.ItemPatch{CommentsStatus: &status}); aerr != nil {
				e.logger.Error("mark comments failed", "item_id", ev.ID, "error", aerr)
			}
			e.store.RecordError(e.ctx, ev.ID, domain.PhaseComments, "verify transcript: "+err.Error(), false)
			e.notifier.Error("comments", "could not verify chat transcript", ev.ID)
		case exists:
			status := domain.CommentsDownloaded
			if aerr := e.store.Apply(e.ctx, ev.ID, domain.ItemPatch{CommentsStatus: &status}); aerr != nil {
				e.logger.Error("mark comments downloaded", "item_id", ev.ID, "error", aerr)
			}
			e.store.ClearError(e.ctx, ev.ID, domain.PhaseComments)
			e.notifier.Success("comments", "chat transcript saved", ev.ID)
		default:
			status := domain.CommentsUnavailable
			if aerr := e.store.Apply(e.ctx, ev.ID, domain.ItemPatch{CommentsStatus: &status}); aerr != nil {
				e.logger.Error("mark comments unavailable", "item_id", ev.ID, "error", aerr)
			}
			e.store.ClearError(e.ctx, ev.ID, domain.PhaseComments)
			e.notifier.Info("comments", "no chat transcript exists for this item", ev.ID)
		}
	} else {
		status := domain.CommentsFailed
		if aerr := e.store.Apply(e.ctx, ev.ID, domain.ItemPatch{CommentsStatus: &status}); aerr != nil {
			e.logger.Error("mark comments failed", "item_id", ev.ID, "error", aerr)
		}
		e.store.RecordError(e.ctx, ev.ID, domain.PhaseComments, workerFailureDetails(ev.Stderr, ev.Stdout), false)
		e.notifier.Error("comments", "chat download failed", ev.ID)
	}

	if e.bulkOwns(ev.ID) && e.bulk.currentPhase == bulkPhaseComments {
		e.bulkItemDone(ev.ID, false)
	}
	e.checkBulkWatchdog()
}

// workerFailureDetails prefers the tail of stderr, which is where the tools
// print their actual error.
func workerFailureDetails(stderr, stdout string) string {
	if s := strings.TrimSpace(stderr); s != "" {
		return lastLines(s, 5)
	}
	if s := strings.TrimSpace(stdout); s != "" {
		return lastLines(s, 5)
	}
	return "worker exited with an error"
}

func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
