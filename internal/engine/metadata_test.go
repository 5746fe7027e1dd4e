package engine

import (
	"context"
	"testing"
	"time"

	"github.com/vodvault/vodvault/internal/domain"
	"github.com/vodvault/vodvault/internal/gateway"
)

func TestScheduleMetadataDedupes(t *testing.T) {
	rig := newTestRig(Config{})
	rig.addItem("v1", func(i *domain.Item) { i.MetadataFetched = false })
	rig.addItem("v2", func(i *domain.Item) { i.MetadataFetched = false })

	if n := rig.engine.handleScheduleMetadata([]domain.ItemID{"v1", "v2", "v1"}); n != 2 {
		t.Fatalf("expected 2 accepted, got %d", n)
	}
	if n := rig.engine.handleScheduleMetadata([]domain.ItemID{"v2"}); n != 0 {
		t.Fatalf("re-scheduling a queued id should be rejected, got %d", n)
	}
	if rig.engine.metadataStatus().QueueLen != 2 {
		t.Fatalf("expected queue of 2, got %d", rig.engine.metadataStatus().QueueLen)
	}
}

func TestMetadataDispatchOneAtATime(t *testing.T) {
	rig := newTestRig(Config{})
	rig.addItem("v1", func(i *domain.Item) { i.MetadataFetched = false })
	rig.addItem("v2", func(i *domain.Item) { i.MetadataFetched = false })
	rig.engine.handleScheduleMetadata([]domain.ItemID{"v1", "v2"})

	rig.engine.handleKickMetadata()
	if rig.gw.metadataCount() != 1 {
		t.Fatalf("expected one in-flight fetch, got %d", rig.gw.metadataCount())
	}
	if rig.engine.meta.activeID != "v1" {
		t.Fatalf("expected v1 active, got %s", rig.engine.meta.activeID)
	}

	// A second kick while one is in flight does nothing.
	rig.engine.handleKickMetadata()
	if rig.gw.metadataCount() != 1 {
		t.Fatal("dispatch must be serialized")
	}
}

func TestMetadataSuccessCoalescesPatch(t *testing.T) {
	rig := newTestRig(Config{})
	rig.addItem("v1", func(i *domain.Item) { i.MetadataFetched = false })
	rig.engine.handleScheduleMetadata([]domain.ItemID{"v1"})
	rig.engine.handleKickMetadata()

	rig.engine.handleMetadataFinished(gateway.MetadataFinished{
		ID:       "v1",
		Success:  true,
		Metadata: &domain.Metadata{Title: "resolved title", Channel: "chan"},
	})

	// Background resolutions buffer until the flush timer fires.
	item, _ := rig.store.Get("v1")
	if item.MetadataFetched {
		t.Fatal("patch must not apply before the flush")
	}

	rig.engine.flushPatches()
	item, _ = rig.store.Get("v1")
	if !item.MetadataFetched || item.Title != "resolved title" {
		t.Fatalf("patch not applied: %+v", item)
	}
	if item.CommentsStatus != domain.CommentsUnavailable {
		t.Fatalf("no-live-chat metadata should mark comments unavailable, got %s", item.CommentsStatus)
	}
}

func TestMetadataWithLiveChatKeepsCommentsPending(t *testing.T) {
	rig := newTestRig(Config{})
	rig.addItem("v1", func(i *domain.Item) { i.MetadataFetched = false })
	rig.engine.handleScheduleMetadata([]domain.ItemID{"v1"})
	rig.engine.handleKickMetadata()

	rig.engine.handleMetadataFinished(gateway.MetadataFinished{
		ID:          "v1",
		Success:     true,
		Metadata:    &domain.Metadata{Title: "t"},
		HasLiveChat: true,
	})
	rig.engine.flushPatches()

	item, _ := rig.store.Get("v1")
	if item.CommentsStatus != domain.CommentsPending {
		t.Fatalf("expected pending, got %s", item.CommentsStatus)
	}
}

func TestMetadataFailurePausesQueue(t *testing.T) {
	rig := newTestRig(Config{})
	rig.addItem("v1", func(i *domain.Item) { i.MetadataFetched = false })
	rig.addItem("v2", func(i *domain.Item) { i.MetadataFetched = false })
	rig.engine.handleScheduleMetadata([]domain.ItemID{"v1", "v2"})
	rig.engine.handleKickMetadata()

	rig.engine.handleMetadataFinished(gateway.MetadataFinished{ID: "v1", Success: false, Stderr: "403 forbidden\nmore context"})

	st := rig.engine.metadataStatus()
	if !st.Paused {
		t.Fatal("queue should pause on failure")
	}
	if st.PauseReason != "403 forbidden" {
		t.Fatalf("pause reason should be the first stderr line, got %q", st.PauseReason)
	}
	if rig.engine.meta.queue[0].id != "v1" {
		t.Fatalf("failed entry must requeue at the front, got %v", rig.engine.meta.queue)
	}
	if _, ok := rig.store.ErrorFor("v1", domain.PhaseMetadata); !ok {
		t.Fatal("expected a metadata error record")
	}

	// Paused queue never dispatches.
	rig.engine.handleKickMetadata()
	if rig.gw.metadataCount() != 1 {
		t.Fatal("paused queue must not dispatch")
	}
}

func TestRetryResumesWithFailedEntryFirst(t *testing.T) {
	rig := newTestRig(Config{})
	rig.addItem("v1", func(i *domain.Item) { i.MetadataFetched = false })
	rig.addItem("v2", func(i *domain.Item) { i.MetadataFetched = false })
	rig.engine.handleScheduleMetadata([]domain.ItemID{"v1", "v2"})
	rig.engine.handleKickMetadata()
	rig.engine.handleMetadataFinished(gateway.MetadataFinished{ID: "v1", Success: false, Stderr: "transient"})

	if err := rig.engine.handleRetryMetadata(); err != nil {
		t.Fatalf("retry: %v", err)
	}
	rig.engine.handleKickMetadata()
	if rig.engine.meta.activeID != "v1" {
		t.Fatalf("retry should dispatch the failed entry first, got %s", rig.engine.meta.activeID)
	}
}

func TestMetadataGatedRequestResolvesAndDispatches(t *testing.T) {
	rig := newTestRig(Config{})
	rig.addItem("v1", func(i *domain.Item) { i.MetadataFetched = false })

	res := rig.engine.handleRequestDownload("v1", requestOpts{trackInQueue: true})
	if res.err != nil {
		t.Fatalf("unexpected error: %v", res.err)
	}
	if res.metadataWait == nil {
		t.Fatal("unresolved item should hand back a metadata waiter")
	}
	if rig.engine.metadataStatus().QueueLen != 1 {
		t.Fatal("the request should have scheduled a metadata fetch")
	}

	rig.engine.handleKickMetadata()
	rig.engine.handleMetadataFinished(gateway.MetadataFinished{
		ID:       "v1",
		Success:  true,
		Metadata: &domain.Metadata{Title: "t"},
	})

	select {
	case err := <-res.metadataWait:
		if err != nil {
			t.Fatalf("waiter should resolve cleanly, got %v", err)
		}
	default:
		t.Fatal("waiter was not resolved")
	}

	// Waiter-backed resolution applies synchronously; the retried request
	// dispatches without waiting for a flush.
	res = rig.engine.handleRequestDownload("v1", requestOpts{trackInQueue: true})
	if res.err != nil || res.metadataWait != nil {
		t.Fatalf("expected clean dispatch after resolution, got %+v", res)
	}
	if rig.gw.downloadCount() != 1 {
		t.Fatalf("expected dispatch, got %d workers", rig.gw.downloadCount())
	}
}

func TestMetadataGatedRequestFailsFastWhenPaused(t *testing.T) {
	rig := newTestRig(Config{})
	rig.addItem("v1", func(i *domain.Item) { i.MetadataFetched = false })
	rig.engine.meta.paused = true
	rig.engine.meta.pauseReason = "previous failure"

	res := rig.engine.handleRequestDownload("v1", requestOpts{trackInQueue: true})
	if res.metadataWait == nil {
		t.Fatal("expected a waiter")
	}
	select {
	case err := <-res.metadataWait:
		if err == nil {
			t.Fatal("paused queue should fail the waiter")
		}
	default:
		t.Fatal("paused queue should fail the waiter immediately")
	}
}

func TestMetadataFailureFailsWaiters(t *testing.T) {
	rig := newTestRig(Config{})
	rig.addItem("v1", func(i *domain.Item) { i.MetadataFetched = false })

	res := rig.engine.handleRequestDownload("v1", requestOpts{trackInQueue: true})
	rig.engine.handleKickMetadata()
	rig.engine.handleMetadataFinished(gateway.MetadataFinished{ID: "v1", Success: false, Stderr: "gone"})

	select {
	case err := <-res.metadataWait:
		if err == nil {
			t.Fatal("waiter should carry the failure")
		}
	default:
		t.Fatal("waiter was not failed")
	}
}

func TestRecoveryScanMergesLocalAndSchedulesRest(t *testing.T) {
	rig := newTestRig(Config{})
	rig.addItem("v1", func(i *domain.Item) { i.MetadataFetched = false })
	rig.addItem("v2", func(i *domain.Item) { i.MetadataFetched = false })
	rig.addItem("v3") // already resolved; out of scope

	rig.gw.metaIndex = &domain.MetadataIndex{
		InfoIDs: map[domain.ItemID]bool{"v1": true},
		ChatIDs: map[domain.ItemID]bool{},
	}
	rig.gw.localMetas["v1"] = domain.Metadata{Title: "recovered", HasLiveChat: true}

	eng := rig.engine
	eng.Start()
	defer eng.Stop(time.Second)

	if err := eng.RecoverMetadata(context.Background(), false); err != nil {
		t.Fatalf("recovery scan: %v", err)
	}

	// Local metadata is merged without a network fetch.
	waitUntil(t, func() bool {
		item, _ := rig.store.Get("v1")
		return item.MetadataFetched && item.Title == "recovered"
	})
	// The rest is queued for a fresh fetch.
	waitUntil(t, func() bool { return rig.gw.metadataCount() == 1 })
}

func TestRecoveryScanInvalidatesLiveMetadata(t *testing.T) {
	rig := newTestRig(Config{})
	rig.addItem("v1", func(i *domain.Item) { i.MetadataFetched = false })

	rig.gw.metaIndex = &domain.MetadataIndex{
		InfoIDs: map[domain.ItemID]bool{"v1": true},
		ChatIDs: map[domain.ItemID]bool{},
	}
	rig.gw.localMetas["v1"] = domain.Metadata{Title: "broadcast", IsLive: true}

	eng := rig.engine
	eng.Start()
	defer eng.Stop(time.Second)

	if err := eng.RecoverMetadata(context.Background(), false); err != nil {
		t.Fatalf("recovery scan: %v", err)
	}

	waitUntil(t, func() bool {
		rig.gw.mu.Lock()
		defer rig.gw.mu.Unlock()
		return len(rig.gw.deletedLiveMeta) == 1
	})
	item, _ := rig.store.Get("v1")
	if item.MetadataFetched {
		t.Fatal("invalidated live metadata must not be merged")
	}
	waitUntil(t, func() bool { return rig.gw.metadataCount() == 1 })
}

func TestRecoveryScanDeferredByMissingMarkers(t *testing.T) {
	rig := newTestRig(Config{})
	rig.addItem("v1", func(i *domain.Item) { i.MetadataFetched = false })
	rig.store.RecordError(context.Background(), "v1", domain.PhaseVideo, "media file missing from library", true)

	res := rig.engine.handleScanBegin(false)
	if res.err == nil {
		t.Fatal("scan should defer while missing markers exist")
	}

	forced := rig.engine.handleScanBegin(true)
	if forced.err != nil {
		t.Fatalf("forced scan should proceed: %v", forced.err)
	}
	if len(forced.plan.entries) != 1 {
		t.Fatalf("expected one scan entry, got %d", len(forced.plan.entries))
	}
}

func TestRecoveryScanGuardReleasedAfterAbandonedRun(t *testing.T) {
	rig := newTestRig(Config{})
	rig.addItem("m1", func(i *domain.Item) { i.MetadataFetched = false })
	rig.gw.metaIndex = &domain.MetadataIndex{
		InfoIDs: map[domain.ItemID]bool{},
		ChatIDs: map[domain.ItemID]bool{},
	}

	eng := rig.engine
	eng.Start()
	defer eng.Stop(time.Second)

	// Abandon scans mid-flight repeatedly; the guard must come back every
	// time or later scans are rejected until restart.
	for i := 0; i < 5; i++ {
		before := rig.gw.indexCallCount()
		wait := make(chan struct{})
		rig.gw.setIndexWait(wait)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			eng.RecoverMetadata(ctx, true)
			close(done)
		}()

		// Block between the guard claim and the apply, then walk away.
		waitUntil(t, func() bool { return rig.gw.indexCallCount() > before })
		cancel()
		close(wait)
		<-done
		rig.gw.setIndexWait(nil)

		waitUntil(t, func() bool {
			return eng.RecoverMetadata(context.Background(), true) == nil
		})
	}
}

func TestScanGuardIsExclusive(t *testing.T) {
	rig := newTestRig(Config{})
	rig.addItem("v1", func(i *domain.Item) { i.MetadataFetched = false })

	first := rig.engine.handleScanBegin(false)
	if first.err != nil {
		t.Fatalf("first scan begin: %v", first.err)
	}
	second := rig.engine.handleScanBegin(false)
	if second.err == nil {
		t.Fatal("overlapping scan must be rejected")
	}

	rig.engine.handleScanApply(cmdScanApply{})
	third := rig.engine.handleScanBegin(false)
	if third.err != nil {
		t.Fatalf("scan after apply should proceed: %v", third.err)
	}
}
