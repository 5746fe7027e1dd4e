package engine

import (
	"errors"
	"testing"

	"github.com/vodvault/vodvault/internal/domain"
	"github.com/vodvault/vodvault/internal/gateway"
)

func TestBulkStartSnapshotsEligibleSet(t *testing.T) {
	rig := newTestRig(Config{})
	rig.addItem("v1")
	rig.addItem("v2", func(i *domain.Item) { i.DownloadStatus = domain.DownloadDownloaded })
	rig.addItem("v3", func(i *domain.Item) { i.LiveStatus = domain.LiveStatusUpcoming })
	rig.addItem("v4", func(i *domain.Item) { i.DownloadStatus = domain.DownloadFailed })

	res := rig.engine.handleBulkStart()
	if res.err != nil {
		t.Fatalf("bulk start: %v", res.err)
	}
	if res.status.Total != 2 {
		t.Fatalf("expected 2 eligible items, got %d", res.status.Total)
	}
	if res.status.CurrentID != "v1" {
		t.Fatalf("expected v1 first, got %s", res.status.CurrentID)
	}
	if !rig.engine.single.bulkOwned {
		t.Fatal("bulk dispatch must mark the slot bulk-owned")
	}
}

func TestBulkStartWhileActiveFails(t *testing.T) {
	rig := newTestRig(Config{})
	rig.addItem("v1")
	rig.engine.handleBulkStart()

	res := rig.engine.handleBulkStart()
	if !errors.Is(res.err, domain.ErrBulkActive) {
		t.Fatalf("expected ErrBulkActive, got %v", res.err)
	}
}

func TestBulkWaitsForSingleActivity(t *testing.T) {
	rig := newTestRig(Config{})
	rig.addItem("v1")
	rig.addItem("v2")
	rig.engine.handleRequestDownload("v1", requestOpts{trackInQueue: true})

	res := rig.engine.handleBulkStart()
	if res.err != nil {
		t.Fatalf("bulk start: %v", res.err)
	}
	if !res.status.WaitingForSingles {
		t.Fatal("expected batch to park behind the single download")
	}
	if rig.gw.downloadCount() != 1 {
		t.Fatal("parked batch must not dispatch")
	}

	// Single finishes; its auto chat fetch still counts as activity.
	rig.engine.handleDownloadFinished(gateway.DownloadFinished{ID: "v1", Success: true})
	if !rig.engine.bulk.waitingForSingles {
		t.Fatal("batch must stay parked while the chat job runs")
	}

	rig.engine.handleCommentsFinished(gateway.CommentsFinished{ID: "v1", Success: true})
	if rig.engine.bulk.waitingForSingles {
		t.Fatal("batch should promote once activity drained")
	}
	if rig.engine.bulk.currentID == "" {
		t.Fatal("promoted batch should have dispatched its first item")
	}
}

func TestBulkRunsVideoThenChatPerItem(t *testing.T) {
	rig := newTestRig(Config{})
	rig.addItem("v1")
	rig.addItem("v2")
	rig.gw.commentsExists["v1"] = true
	rig.gw.commentsExists["v2"] = true

	rig.engine.handleBulkStart()
	if rig.engine.bulk.currentPhase != bulkPhaseVideo {
		t.Fatalf("expected video phase, got %s", rig.engine.bulk.currentPhase)
	}

	rig.engine.handleDownloadFinished(gateway.DownloadFinished{ID: "v1", Success: true})
	if rig.engine.bulk.currentPhase != bulkPhaseComments {
		t.Fatalf("expected chat phase after video, got %s", rig.engine.bulk.currentPhase)
	}
	if rig.gw.downloadCount() != 1 {
		t.Fatal("next item must not start while the chat phase runs")
	}

	rig.engine.handleCommentsFinished(gateway.CommentsFinished{ID: "v1", Success: true})
	if rig.engine.bulk.currentID != "v2" {
		t.Fatalf("expected v2 after v1 completes, got %s", rig.engine.bulk.currentID)
	}
	if rig.engine.bulk.completed != 1 {
		t.Fatalf("expected 1 completed, got %d", rig.engine.bulk.completed)
	}

	rig.engine.handleDownloadFinished(gateway.DownloadFinished{ID: "v2", Success: true})
	rig.engine.handleCommentsFinished(gateway.CommentsFinished{ID: "v2", Success: true})
	if rig.engine.bulk.active {
		t.Fatal("batch should finish after the last item")
	}
}

func TestBulkSkipsItemsDownloadedSinceSnapshot(t *testing.T) {
	rig := newTestRig(Config{})
	rig.addItem("v1")
	rig.addItem("v2")
	rig.addItem("v3")
	rig.gw.commentsExists["v1"] = true
	rig.gw.commentsExists["v3"] = true

	rig.engine.handleBulkStart()

	// v2 becomes downloaded mid-batch; it is skipped but still counted.
	status := domain.DownloadDownloaded
	comments := domain.CommentsDownloaded
	if err := rig.store.Apply(rig.engine.ctx, "v2", domain.ItemPatch{DownloadStatus: &status, CommentsStatus: &comments}); err != nil {
		t.Fatalf("apply: %v", err)
	}

	rig.engine.handleDownloadFinished(gateway.DownloadFinished{ID: "v1", Success: true})
	rig.engine.handleCommentsFinished(gateway.CommentsFinished{ID: "v1", Success: true})

	if rig.engine.bulk.currentID != "v3" {
		t.Fatalf("expected skip to v3, got %s", rig.engine.bulk.currentID)
	}
	if rig.engine.bulk.completed != 2 {
		t.Fatalf("skipped item must count toward completion, got %d", rig.engine.bulk.completed)
	}
}

func TestBulkItemFailureContinuesBatch(t *testing.T) {
	rig := newTestRig(Config{})
	rig.addItem("v1")
	rig.addItem("v2")

	rig.engine.handleBulkStart()
	rig.engine.handleDownloadFinished(gateway.DownloadFinished{ID: "v1", Success: false, Stderr: "network error"})

	if rig.engine.bulk.currentID != "v2" {
		t.Fatalf("batch should continue past a failure, got %s", rig.engine.bulk.currentID)
	}
	item, _ := rig.store.Get("v1")
	if item.DownloadStatus != domain.DownloadFailed {
		t.Fatalf("expected failed, got %s", item.DownloadStatus)
	}
	if _, ok := rig.store.ErrorFor("v1", domain.PhaseVideo); !ok {
		t.Fatal("expected an error record for the failed item")
	}
}

func TestBulkStopIsCooperative(t *testing.T) {
	rig := newTestRig(Config{})
	rig.addItem("v1")
	rig.addItem("v2")
	rig.engine.handleBulkStart()

	if err := rig.engine.handleBulkStop(); err != nil {
		t.Fatalf("bulk stop: %v", err)
	}
	if !rig.engine.bulk.stopRequested {
		t.Fatal("stop flag should be set after a successful cancel RPC")
	}
	if len(rig.gw.stoppedDownloads) != 1 {
		t.Fatalf("expected one cancel RPC, got %d", len(rig.gw.stoppedDownloads))
	}

	rig.engine.handleDownloadFinished(gateway.DownloadFinished{ID: "v1", Cancelled: true})
	if rig.engine.bulk.active {
		t.Fatal("batch should end after the cancelled item settles")
	}
	if rig.gw.downloadCount() != 1 {
		t.Fatal("no further item may start after a stop")
	}
}

func TestBulkStopRollsBackWhenCancelFails(t *testing.T) {
	rig := newTestRig(Config{})
	rig.addItem("v1")
	rig.addItem("v2")
	rig.engine.handleBulkStart()

	rig.gw.stopDownloadErr = errors.New("worker unreachable")
	if err := rig.engine.handleBulkStop(); err == nil {
		t.Fatal("expected stop to fail")
	}
	if rig.engine.bulk.stopRequested {
		t.Fatal("failed cancel must not leave the stop flag set")
	}

	// The batch keeps running and a later stop can succeed.
	rig.gw.stopDownloadErr = nil
	if err := rig.engine.handleBulkStop(); err != nil {
		t.Fatalf("retried stop: %v", err)
	}
	if !rig.engine.bulk.stopRequested {
		t.Fatal("retried stop should set the flag")
	}
}

func TestBulkStopWithoutBatch(t *testing.T) {
	rig := newTestRig(Config{})
	if err := rig.engine.handleBulkStop(); !errors.Is(err, domain.ErrBulkNotActive) {
		t.Fatalf("expected ErrBulkNotActive, got %v", err)
	}
}

func TestBulkStopWhileParkedEndsImmediately(t *testing.T) {
	rig := newTestRig(Config{})
	rig.addItem("v1")
	rig.addItem("v2")
	rig.engine.handleRequestDownload("v1", requestOpts{trackInQueue: true})
	rig.engine.handleBulkStart()

	if err := rig.engine.handleBulkStop(); err != nil {
		t.Fatalf("stop parked batch: %v", err)
	}
	if rig.engine.bulk.active {
		t.Fatal("parked batch should end immediately on stop")
	}
	if len(rig.gw.stoppedDownloads) != 0 {
		t.Fatal("stopping a parked batch must not cancel the single download")
	}
}
