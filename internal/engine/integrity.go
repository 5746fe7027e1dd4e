package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/vodvault/vodvault/internal/domain"
	"github.com/vodvault/vodvault/internal/gateway"
)

type integrityPlan struct {
	dir        string
	targets    []gateway.VerifyTarget
	expectMeta map[domain.ItemID]bool
	titles     map[domain.ItemID]string
}

// handleIntegrityBegin snapshots what to verify. Videos are checked when
// recorded as downloaded or when a missing marker might clear; transcripts
// when downloaded or failed, never when unavailable. Metadata presence is
// expected for every resolved item.
func (e *Engine) handleIntegrityBegin(overrideDir string) integrityBeginResult {
	if e.integrityRunning {
		return integrityBeginResult{err: domain.ErrCheckRunning}
	}
	dir := e.libraryDir
	if overrideDir != "" {
		dir = overrideDir
	}
	if dir == "" {
		return integrityBeginResult{err: domain.ErrNoLibraryDir}
	}

	plan := integrityPlan{
		dir:        dir,
		expectMeta: make(map[domain.ItemID]bool),
		titles:     make(map[domain.ItemID]string),
	}
	for _, item := range e.store.Snapshot() {
		checkVideo := item.DownloadStatus == domain.DownloadDownloaded ||
			e.store.HasMissingMarker(item.ID, domain.PhaseVideo)
		checkComments := item.CommentsStatus != domain.CommentsUnavailable &&
			(item.CommentsStatus == domain.CommentsDownloaded ||
				item.CommentsStatus == domain.CommentsFailed ||
				e.store.HasMissingMarker(item.ID, domain.PhaseComments))

		if item.MetadataFetched {
			plan.expectMeta[item.ID] = true
		}
		plan.titles[item.ID] = item.Title
		if !checkVideo && !checkComments && !item.MetadataFetched {
			continue
		}
		plan.targets = append(plan.targets, gateway.VerifyTarget{
			ID:            item.ID,
			Title:         item.Title,
			CheckVideo:    checkVideo,
			CheckComments: checkComments,
		})
	}

	e.integrityRunning = true
	return integrityBeginResult{plan: plan}
}

// handleIntegrityApply reconciles verify results into the store: missing
// artifacts downgrade status and record a missing marker; reappeared
// artifacts clear the marker and restore the downgraded status. Metadata
// absence is reported but never mutates state.
func (e *Engine) handleIntegrityApply(cmd cmdIntegrityApply) *domain.IntegrityReport {
	e.integrityRunning = false

	report := &domain.IntegrityReport{RanAt: time.Now()}

	for _, tgt := range cmd.plan.targets {
		res, checked := cmd.results[tgt.ID]
		issue := domain.IntegrityIssue{ItemID: tgt.ID, Title: cmd.plan.titles[tgt.ID]}

		if tgt.CheckVideo && checked {
			report.CheckedVideos++
			if !res.VideoOK {
				issue.VideoMissing = true
				report.MissingVideos++
				e.store.RecordError(e.ctx, tgt.ID, domain.PhaseVideo, "media file missing from library", true)
				if item, ok := e.store.Get(tgt.ID); ok && item.DownloadStatus == domain.DownloadDownloaded {
					status := domain.DownloadPending
					if err := e.store.Apply(e.ctx, tgt.ID, domain.ItemPatch{DownloadStatus: &status}); err != nil {
						e.logger.Error("downgrade missing video", "item_id", tgt.ID, "error", err)
					}
				}
			} else if e.store.HasMissingMarker(tgt.ID, domain.PhaseVideo) {
				e.store.ClearError(e.ctx, tgt.ID, domain.PhaseVideo)
				if item, ok := e.store.Get(tgt.ID); ok && item.DownloadStatus == domain.DownloadPending {
					status := domain.DownloadDownloaded
					if err := e.store.Apply(e.ctx, tgt.ID, domain.ItemPatch{DownloadStatus: &status}); err != nil {
						e.logger.Error("restore found video", "item_id", tgt.ID, "error", err)
					}
				}
			}
		}

		if tgt.CheckComments && checked {
			report.CheckedComments++
			if !res.CommentsOK {
				issue.CommentsMissing = true
				report.MissingComments++
				e.store.RecordError(e.ctx, tgt.ID, domain.PhaseComments, "chat transcript missing from library", true)
				if item, ok := e.store.Get(tgt.ID); ok && item.CommentsStatus == domain.CommentsDownloaded {
					status := domain.CommentsPending
					if err := e.store.Apply(e.ctx, tgt.ID, domain.ItemPatch{CommentsStatus: &status}); err != nil {
						e.logger.Error("downgrade missing transcript", "item_id", tgt.ID, "error", err)
					}
				}
			} else if e.store.HasMissingMarker(tgt.ID, domain.PhaseComments) {
				e.store.ClearError(e.ctx, tgt.ID, domain.PhaseComments)
				if item, ok := e.store.Get(tgt.ID); ok && item.CommentsStatus == domain.CommentsPending {
					status := domain.CommentsDownloaded
					if err := e.store.Apply(e.ctx, tgt.ID, domain.ItemPatch{CommentsStatus: &status}); err != nil {
						e.logger.Error("restore found transcript", "item_id", tgt.ID, "error", err)
					}
				}
			}
		}

		if cmd.plan.expectMeta[tgt.ID] && cmd.index != nil && !cmd.index.InfoIDs[tgt.ID] {
			issue.MetadataMissing = true
			report.MissingMetadata++
		}

		if issue.VideoMissing || issue.CommentsMissing || issue.MetadataMissing {
			report.Issues = append(report.Issues, issue)
		}
	}

	if report.Clean() {
		e.notifier.Success("integrity",
			fmt.Sprintf("library check clean: %d videos, %d transcripts verified",
				report.CheckedVideos, report.CheckedComments), "")
	} else {
		e.notifier.Warning("integrity",
			fmt.Sprintf("library check found %d items with missing files", len(report.Issues)), "")
	}
	e.logger.Info("integrity check done",
		"checked_videos", report.CheckedVideos,
		"checked_comments", report.CheckedComments,
		"issues", len(report.Issues))

	return report
}

// RunIntegrity reconciles recorded state against the filesystem. The
// filesystem walk runs off the dispatch loop between the begin and apply
// phases. A clean report additionally triggers a forced metadata recovery
// scan, so a healthy library converges without operator action.
func (e *Engine) RunIntegrity(ctx context.Context, overrideDir string) (*domain.IntegrityReport, error) {
	begin := cmdIntegrityBegin{overrideDir: overrideDir, reply: make(chan integrityBeginResult, 1)}
	if err := e.post(ctx, begin); err != nil {
		return nil, err
	}
	var res integrityBeginResult
	select {
	case res = <-begin.reply:
	case <-ctx.Done():
		// The begin command is already queued; if it claimed the guard,
		// release it so later checks are not rejected forever.
		go func() {
			select {
			case r := <-begin.reply:
				if r.err == nil {
					e.postInternal(cmdIntegrityAbort{})
				}
			case <-e.ctx.Done():
			}
		}()
		return nil, ctx.Err()
	}
	if res.err != nil {
		return nil, res.err
	}

	results, err := e.verifyTargets(ctx, res.plan)
	if err != nil {
		e.postInternal(cmdIntegrityAbort{})
		e.notifier.Error("integrity", "library check failed", "")
		return nil, fmt.Errorf("integrity check failed: %w", err)
	}

	index, err := e.gw.MetadataIndex(ctx, res.plan.dir)
	if err != nil {
		// Metadata presence is report-only; proceed without it.
		e.logger.Warn("metadata index unavailable during check", "error", err)
		index = nil
	}

	apply := cmdIntegrityApply{
		plan:    res.plan,
		results: results,
		index:   index,
		reply:   make(chan *domain.IntegrityReport, 1),
	}
	if err := e.post(ctx, apply); err != nil {
		e.postInternal(cmdIntegrityAbort{})
		return nil, err
	}
	var report *domain.IntegrityReport
	select {
	case report = <-apply.reply:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if report.Clean() {
		if err := e.RecoverMetadata(ctx, true); err != nil {
			e.logger.Debug("post-check recovery scan skipped", "reason", err)
		}
	}
	return report, nil
}

// verifyTargets prefers the batched filesystem walk and falls back to
// per-item checks if it fails. Items whose fallback also fails are left
// out of the result set, which the apply phase treats as unchecked.
func (e *Engine) verifyTargets(ctx context.Context, plan integrityPlan) (map[domain.ItemID]gateway.VerifyResult, error) {
	out := make(map[domain.ItemID]gateway.VerifyResult, len(plan.targets))

	results, err := e.gw.VerifyLocalFiles(ctx, plan.dir, plan.targets)
	if err == nil {
		for _, res := range results {
			out[res.ID] = res
		}
		return out, nil
	}
	e.logger.Warn("batched verify failed; falling back to per-item checks", "error", err)

	var lastErr error
	for _, tgt := range plan.targets {
		res := gateway.VerifyResult{ID: tgt.ID}
		skip := false
		if tgt.CheckVideo {
			ok, verr := e.gw.VideoFileExists(ctx, tgt.ID, tgt.Title, plan.dir)
			if verr != nil {
				lastErr = verr
				skip = true
			}
			res.VideoOK = ok
		}
		if tgt.CheckComments && !skip {
			ok, verr := e.gw.CommentsFileExists(ctx, tgt.ID, plan.dir)
			if verr != nil {
				lastErr = verr
				skip = true
			}
			res.CommentsOK = ok
		}
		if !skip {
			out[tgt.ID] = res
		}
	}
	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}
