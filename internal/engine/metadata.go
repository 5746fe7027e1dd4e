package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/vodvault/vodvault/internal/domain"
	"github.com/vodvault/vodvault/internal/gateway"
)

// MetadataStatus is the externally visible metadata queue state.
type MetadataStatus struct {
	ActiveID    domain.ItemID `json:"active_id,omitempty"`
	QueueLen    int           `json:"queue_len"`
	Paused      bool          `json:"paused"`
	PauseReason string        `json:"pause_reason,omitempty"`
	Total       int           `json:"total"`
	Completed   int           `json:"completed"`
}

func (e *Engine) metadataStatus() MetadataStatus {
	return MetadataStatus{
		ActiveID:    e.meta.activeID,
		QueueLen:    len(e.meta.queue),
		Paused:      e.meta.paused,
		PauseReason: e.meta.pauseReason,
		Total:       e.meta.total,
		Completed:   e.meta.completed,
	}
}

func (e *Engine) handleScheduleMetadata(ids []domain.ItemID) int {
	var entries []metaEntry
	for _, id := range ids {
		item, ok := e.store.Get(id)
		if !ok {
			continue
		}
		entries = append(entries, metaEntry{id: id, url: item.SourceURL})
	}
	return e.scheduleMetadata(entries)
}

// scheduleMetadata appends new fetch entries, skipping ids already queued or
// in flight. Progress counters restart whenever the queue was fully drained.
func (e *Engine) scheduleMetadata(entries []metaEntry) int {
	if e.meta.activeID == "" && len(e.meta.queue) == 0 {
		e.meta.total = 0
		e.meta.completed = 0
	}

	accepted := 0
	for _, en := range entries {
		if en.id == e.meta.activeID || e.metaQueued(en.id) {
			continue
		}
		e.meta.queue = append(e.meta.queue, en)
		e.meta.total++
		accepted++
	}
	if accepted > 0 {
		e.logger.Debug("metadata scheduled", "accepted", accepted, "queue_len", len(e.meta.queue))
		e.armMetadataDispatch()
	}
	return accepted
}

func (e *Engine) metaQueued(id domain.ItemID) bool {
	for _, en := range e.meta.queue {
		if en.id == id {
			return true
		}
	}
	return false
}

// armMetadataDispatch schedules the next dispatch off the command path, so a
// burst of schedule calls coalesces into one kick.
func (e *Engine) armMetadataDispatch() {
	if e.meta.dispatchArmed || e.meta.paused {
		return
	}
	e.meta.dispatchArmed = true
	time.AfterFunc(e.cfg.MetadataDispatchDelay, func() {
		e.postInternal(cmdKickMetadata{})
	})
}

func (e *Engine) handleKickMetadata() {
	e.meta.dispatchArmed = false
	e.dispatchMetadataNext()
}

func (e *Engine) dispatchMetadataNext() {
	if e.meta.paused || e.meta.activeID != "" || len(e.meta.queue) == 0 {
		return
	}
	if e.libraryDir == "" {
		return
	}

	en := e.meta.queue[0]
	e.meta.queue = e.meta.queue[1:]
	e.meta.activeID = en.id

	err := e.gw.StartMetadataDownload(e.ctx, gateway.MetadataRequest{
		ID:        en.id,
		URL:       en.url,
		OutputDir: e.libraryDir,
	})
	if err != nil {
		e.meta.activeID = ""
		e.metadataFailed(en, err.Error())
	}
}

// metadataFailed requeues the entry at the front and pauses the queue until
// an explicit retry, so the failure is not retried in a tight loop.
func (e *Engine) metadataFailed(en metaEntry, details string) {
	e.meta.queue = append([]metaEntry{en}, e.meta.queue...)
	e.meta.paused = true
	e.meta.pauseReason = details

	e.store.RecordError(e.ctx, en.id, domain.PhaseMetadata, details, false)
	e.failWaiters(en.id, fmt.Errorf("metadata fetch failed: %s", details))
	e.notifier.Warning("metadata", "metadata fetch failed; queue paused", en.id)
	e.logger.Warn("metadata fetch failed", "item_id", en.id, "details", details)
}

func (e *Engine) handleRetryMetadata() error {
	if !e.meta.paused {
		return nil
	}
	e.meta.paused = false
	e.meta.pauseReason = ""
	e.notifier.Info("metadata", "metadata queue resumed", "")
	e.armMetadataDispatch()
	return nil
}

// ensureMetadata registers a resolution waiter and schedules a fetch. A
// paused queue fails the waiter immediately rather than letting the caller
// burn its whole wait budget on a queue that will not move.
func (e *Engine) ensureMetadata(item domain.Item) <-chan error {
	ch := make(chan error, 1)
	if e.meta.paused {
		ch <- fmt.Errorf("metadata queue paused: %s", e.meta.pauseReason)
		return ch
	}
	e.meta.waiters[item.ID] = append(e.meta.waiters[item.ID], ch)
	e.scheduleMetadata([]metaEntry{{id: item.ID, url: item.SourceURL}})
	return ch
}

func (e *Engine) resolveWaiters(id domain.ItemID) {
	for _, ch := range e.meta.waiters[id] {
		ch <- nil
	}
	delete(e.meta.waiters, id)
}

func (e *Engine) failWaiters(id domain.ItemID, err error) {
	for _, ch := range e.meta.waiters[id] {
		ch <- err
	}
	delete(e.meta.waiters, id)
}

// handleMetadataFinished is the terminal-event handler for metadata fetches.
// Waiter-backed resolutions apply the patch synchronously so a blocked
// download request observes the resolved item on its very next attempt;
// background fetches go through the coalescing buffer.
func (e *Engine) handleMetadataFinished(ev gateway.MetadataFinished) {
	if e.meta.activeID != ev.ID {
		return
	}
	e.meta.activeID = ""

	if !ev.Success || ev.Metadata == nil {
		item, _ := e.store.Get(ev.ID)
		e.metadataFailed(metaEntry{id: ev.ID, url: item.SourceURL}, firstLine(ev.Stderr))
		return
	}

	e.meta.completed++
	e.store.ClearError(e.ctx, ev.ID, domain.PhaseMetadata)

	patch := ev.Metadata.Patch()
	if item, ok := e.store.Get(ev.ID); ok {
		if !ev.HasLiveChat && item.CommentsStatus == domain.CommentsPending {
			unavailable := domain.CommentsUnavailable
			patch.CommentsStatus = &unavailable
		}
	}

	if _, waited := e.meta.waiters[ev.ID]; waited {
		if err := e.store.Apply(e.ctx, ev.ID, patch); err != nil {
			e.logger.Error("apply metadata", "item_id", ev.ID, "error", err)
		}
		e.resolveWaiters(ev.ID)
	} else {
		e.coalesce(ev.ID, patch)
	}

	e.logger.Debug("metadata resolved", "item_id", ev.ID)
	e.armMetadataDispatch()
}

// --- recovery scan ----------------------------------------------------------

type scanPlan struct {
	dir     string
	entries []metaEntry
}

// handleScanBegin gates a recovery scan: one at a time, and never while
// unresolved missing markers exist unless forced.
func (e *Engine) handleScanBegin(force bool) scanBeginResult {
	if e.meta.scanning {
		return scanBeginResult{err: fmt.Errorf("recovery scan already running")}
	}
	if e.libraryDir == "" {
		return scanBeginResult{err: domain.ErrNoLibraryDir}
	}
	if !force && e.store.HasAnyMissingMarker() {
		return scanBeginResult{err: fmt.Errorf("integrity issues outstanding; scan deferred")}
	}

	var entries []metaEntry
	for _, item := range e.store.Snapshot() {
		if item.MetadataFetched {
			continue
		}
		entries = append(entries, metaEntry{id: item.ID, url: item.SourceURL})
	}
	if len(entries) == 0 {
		return scanBeginResult{plan: scanPlan{dir: e.libraryDir}}
	}

	e.meta.scanning = true
	return scanBeginResult{plan: scanPlan{dir: e.libraryDir, entries: entries}}
}

// handleScanApply merges locally recovered metadata and schedules network
// fetches for the remainder.
func (e *Engine) handleScanApply(cmd cmdScanApply) {
	e.meta.scanning = false

	for id, meta := range cmd.metas {
		patch := meta.Patch()
		if item, ok := e.store.Get(id); ok {
			if !meta.HasLiveChat && item.CommentsStatus == domain.CommentsPending {
				unavailable := domain.CommentsUnavailable
				patch.CommentsStatus = &unavailable
			}
		}
		e.coalesce(id, patch)
	}

	var entries []metaEntry
	for _, id := range cmd.refetchIDs {
		item, ok := e.store.Get(id)
		if !ok {
			continue
		}
		entries = append(entries, metaEntry{id: id, url: item.SourceURL})
	}
	scheduled := e.scheduleMetadata(entries)

	e.logger.Info("recovery scan applied",
		"recovered_local", len(cmd.metas), "scheduled_fetches", scheduled)
}

// RecoverMetadata reconciles items lacking metadata against artifacts
// already on disk: local info files are merged without network traffic,
// stale in-progress-live files are invalidated, and everything else is
// queued for a fresh fetch. The filesystem work runs off the dispatch loop.
func (e *Engine) RecoverMetadata(ctx context.Context, force bool) error {
	begin := cmdScanBegin{force: force, reply: make(chan scanBeginResult, 1)}
	if err := e.post(ctx, begin); err != nil {
		return err
	}
	var res scanBeginResult
	select {
	case res = <-begin.reply:
	case <-ctx.Done():
		// The begin command is already queued; if it claimed the guard,
		// release it so later scans are not rejected forever.
		go func() {
			select {
			case r := <-begin.reply:
				if r.err == nil && len(r.plan.entries) > 0 {
					e.postInternal(cmdScanAbort{})
				}
			case <-e.ctx.Done():
			}
		}()
		return ctx.Err()
	}
	if res.err != nil {
		return res.err
	}
	if len(res.plan.entries) == 0 {
		return nil
	}

	abort := func() { e.postInternal(cmdScanAbort{}) }

	idx, err := e.gw.MetadataIndex(ctx, res.plan.dir)
	if err != nil {
		abort()
		return fmt.Errorf("index local metadata: %w", err)
	}

	var withLocal []domain.ItemID
	var refetch []domain.ItemID
	for _, en := range res.plan.entries {
		if idx.InfoIDs[en.id] {
			withLocal = append(withLocal, en.id)
		} else {
			refetch = append(refetch, en.id)
		}
	}

	metas, err := e.gw.LocalMetadataByIDs(ctx, res.plan.dir, withLocal)
	if err != nil {
		abort()
		return fmt.Errorf("read local metadata: %w", err)
	}

	// Metadata captured while a stream was still live describes a broadcast,
	// not the final recording. Drop it and fetch fresh.
	for id, meta := range metas {
		if meta.IsLive || meta.LiveStatus == domain.LiveStatusLive || meta.LiveStatus == domain.LiveStatusUpcoming {
			if derr := e.gw.DeleteLiveMetadataFiles(ctx, id, res.plan.dir); derr != nil {
				e.logger.Warn("invalidate live metadata", "item_id", id, "error", derr)
			}
			delete(metas, id)
			refetch = append(refetch, id)
		}
	}

	apply := cmdScanApply{metas: metas, refetchIDs: refetch, reply: make(chan struct{}, 1)}
	if err := e.post(ctx, apply); err != nil {
		abort()
		return err
	}
	select {
	case <-apply.reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' || s[i] == '\r' {
			return s[:i]
		}
	}
	if s == "" {
		return "metadata fetch failed"
	}
	return s
}
