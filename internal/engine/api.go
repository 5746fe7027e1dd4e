package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/vodvault/vodvault/internal/domain"
)

// RequestDownload enqueues or starts a download for a known item. When the
// item's metadata is unresolved it schedules a fetch and waits a bounded
// time for it before dispatching; on timeout the request is abandoned and
// recorded against the item. Returns true when the request was queued behind
// an active download rather than started.
func (e *Engine) RequestDownload(ctx context.Context, id domain.ItemID) (bool, error) {
	deadline := time.Now().Add(e.cfg.MetadataWaitTimeout)

	for {
		res, err := e.requestDownload(ctx, id, requestOpts{trackInQueue: true})
		if err != nil {
			return false, err
		}
		if res.err != nil {
			return false, res.err
		}
		if res.metadataWait == nil {
			return res.queued, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			e.abandonRequest(id, "timed out waiting for metadata")
			return false, domain.ErrMetadataTimeout
		}

		select {
		case werr := <-res.metadataWait:
			if werr != nil {
				return false, fmt.Errorf("resolve metadata for %s: %w", id, werr)
			}
			// Resolved; loop and re-run the preconditions.
		case <-time.After(remaining):
			e.abandonRequest(id, "timed out waiting for metadata")
			return false, domain.ErrMetadataTimeout
		case <-ctx.Done():
			return false, ctx.Err()
		case <-e.ctx.Done():
			return false, domain.ErrEngineStopped
		}
	}
}

func (e *Engine) requestDownload(ctx context.Context, id domain.ItemID, opts requestOpts) (requestResult, error) {
	cmd := cmdRequestDownload{id: id, opts: opts, reply: make(chan requestResult, 1)}
	if err := e.post(ctx, cmd); err != nil {
		return requestResult{}, err
	}
	select {
	case res := <-cmd.reply:
		return res, nil
	case <-ctx.Done():
		return requestResult{}, ctx.Err()
	}
}

func (e *Engine) abandonRequest(id domain.ItemID, details string) {
	e.postInternal(cmdAbandonRequest{id: id, details: details})
}

// CancelDownload stops the active download for the item, if any.
func (e *Engine) CancelDownload(ctx context.Context, id domain.ItemID) error {
	cmd := cmdCancelDownload{id: id, reply: make(chan error, 1)}
	if err := e.post(ctx, cmd); err != nil {
		return err
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequestComments starts a chat transcript download for the item. Chat jobs
// run alongside the media slot and never occupy it.
func (e *Engine) RequestComments(ctx context.Context, id domain.ItemID) error {
	cmd := cmdRequestComments{id: id, reply: make(chan error, 1)}
	if err := e.post(ctx, cmd); err != nil {
		return err
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartBulk begins a library-wide batch download.
func (e *Engine) StartBulk(ctx context.Context) (BulkStatus, error) {
	cmd := cmdBulkStart{reply: make(chan bulkStartResult, 1)}
	if err := e.post(ctx, cmd); err != nil {
		return BulkStatus{}, err
	}
	select {
	case res := <-cmd.reply:
		return res.status, res.err
	case <-ctx.Done():
		return BulkStatus{}, ctx.Err()
	}
}

// StopBulk requests cooperative cancellation of the running batch.
func (e *Engine) StopBulk(ctx context.Context) error {
	cmd := cmdBulkStop{reply: make(chan error, 1)}
	if err := e.post(ctx, cmd); err != nil {
		return err
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ScheduleMetadata enqueues metadata fetches for the given items, skipping
// ids already queued or in flight. Returns the number accepted.
func (e *Engine) ScheduleMetadata(ctx context.Context, ids []domain.ItemID) (int, error) {
	cmd := cmdScheduleMetadata{ids: ids, reply: make(chan int, 1)}
	if err := e.post(ctx, cmd); err != nil {
		return 0, err
	}
	select {
	case n := <-cmd.reply:
		return n, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// RetryMetadata unpauses the metadata queue after a failure.
func (e *Engine) RetryMetadata(ctx context.Context) error {
	cmd := cmdRetryMetadata{reply: make(chan error, 1)}
	if err := e.post(ctx, cmd); err != nil {
		return err
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AddChannel lists a channel's items via the gateway and imports the ones
// not yet in the library, scheduling metadata fetches for the newcomers.
func (e *Engine) AddChannel(ctx context.Context, channelURL string, limit int) (int, error) {
	candidates, err := e.gw.ListChannelItems(ctx, channelURL, limit)
	if err != nil {
		return 0, fmt.Errorf("list channel items: %w", err)
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	cmd := cmdAddItems{candidates: candidates, reply: make(chan addItemsResult, 1)}
	if err := e.post(ctx, cmd); err != nil {
		return 0, err
	}
	select {
	case res := <-cmd.reply:
		return res.added, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// SetLibraryDir re-points the engine at a new library directory.
func (e *Engine) SetLibraryDir(ctx context.Context, dir string) error {
	cmd := cmdSetLibraryDir{dir: dir, reply: make(chan error, 1)}
	if err := e.post(ctx, cmd); err != nil {
		return err
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Relink re-points the library directory and immediately re-runs the
// integrity check against it, so stale missing markers clear in one step.
func (e *Engine) Relink(ctx context.Context, dir string) (*domain.IntegrityReport, error) {
	if err := e.SetLibraryDir(ctx, dir); err != nil {
		return nil, err
	}
	return e.RunIntegrity(ctx, "")
}

// NotifyLibraryChanged triggers a background integrity check. Used by the
// filesystem watcher; overlapping triggers are dropped.
func (e *Engine) NotifyLibraryChanged() {
	go func() {
		if _, err := e.RunIntegrity(e.ctx, ""); err != nil {
			if err == domain.ErrCheckRunning || err == domain.ErrNoLibraryDir {
				e.logger.Debug("skipping watcher-triggered integrity check", "reason", err)
				return
			}
			e.logger.Warn("watcher-triggered integrity check failed", "error", err)
		}
	}()
}

// Stats returns a point-in-time snapshot of queue state.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	cmd := cmdStats{reply: make(chan Stats, 1)}
	if err := e.post(ctx, cmd); err != nil {
		return Stats{}, err
	}
	select {
	case s := <-cmd.reply:
		return s, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}
