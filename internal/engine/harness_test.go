package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/vodvault/vodvault/internal/domain"
	"github.com/vodvault/vodvault/internal/gateway"
	"github.com/vodvault/vodvault/internal/library"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGateway records every call and returns configurable results. Events
// are never emitted by the fake; tests feed handlers directly instead.
type fakeGateway struct {
	mu sync.Mutex

	startedDownloads []gateway.DownloadRequest
	stoppedDownloads []domain.ItemID
	startedComments  []gateway.CommentsRequest
	startedMetadata  []gateway.MetadataRequest
	deletedLiveMeta  []domain.ItemID

	startDownloadErr error
	stopDownloadErr  error
	startCommentsErr error
	startMetadataErr error
	toolErr          error

	channelItems    []domain.ItemCandidate
	channelItemsErr error

	commentsExists    map[domain.ItemID]bool
	commentsExistsErr error

	verifyResults []gateway.VerifyResult
	verifyErr     error
	verifyWait    chan struct{}
	videoExists   map[domain.ItemID]bool
	videoErr      error

	metaIndex    *domain.MetadataIndex
	metaIndexErr error
	indexWait    chan struct{}
	indexCalls   int
	localMetas   map[domain.ItemID]domain.Metadata

	events chan gateway.Event
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		commentsExists: make(map[domain.ItemID]bool),
		videoExists:    make(map[domain.ItemID]bool),
		localMetas:     make(map[domain.ItemID]domain.Metadata),
		events:         make(chan gateway.Event, 16),
	}
}

func (g *fakeGateway) StartDownload(_ context.Context, req gateway.DownloadRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.startDownloadErr != nil {
		return g.startDownloadErr
	}
	g.startedDownloads = append(g.startedDownloads, req)
	return nil
}

func (g *fakeGateway) StopDownload(_ context.Context, id domain.ItemID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopDownloadErr != nil {
		return g.stopDownloadErr
	}
	g.stoppedDownloads = append(g.stoppedDownloads, id)
	return nil
}

func (g *fakeGateway) StartCommentsDownload(_ context.Context, req gateway.CommentsRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.startCommentsErr != nil {
		return g.startCommentsErr
	}
	g.startedComments = append(g.startedComments, req)
	return nil
}

func (g *fakeGateway) StartMetadataDownload(_ context.Context, req gateway.MetadataRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.startMetadataErr != nil {
		return g.startMetadataErr
	}
	g.startedMetadata = append(g.startedMetadata, req)
	return nil
}

func (g *fakeGateway) ListChannelItems(_ context.Context, _ string, _ int) ([]domain.ItemCandidate, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.channelItems, g.channelItemsErr
}

func (g *fakeGateway) VideoFileExists(_ context.Context, id domain.ItemID, _, _ string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.videoExists[id], g.videoErr
}

func (g *fakeGateway) CommentsFileExists(_ context.Context, id domain.ItemID, _ string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.commentsExists[id], g.commentsExistsErr
}

func (g *fakeGateway) VerifyLocalFiles(_ context.Context, _ string, _ []gateway.VerifyTarget) ([]gateway.VerifyResult, error) {
	g.mu.Lock()
	wait := g.verifyWait
	g.mu.Unlock()
	if wait != nil {
		<-wait
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.verifyResults, g.verifyErr
}

func (g *fakeGateway) setVerifyWait(ch chan struct{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyWait = ch
}

func (g *fakeGateway) MetadataIndex(_ context.Context, _ string) (*domain.MetadataIndex, error) {
	g.mu.Lock()
	g.indexCalls++
	wait := g.indexWait
	g.mu.Unlock()
	if wait != nil {
		<-wait
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.metaIndexErr != nil {
		return nil, g.metaIndexErr
	}
	if g.metaIndex == nil {
		return &domain.MetadataIndex{
			InfoIDs: make(map[domain.ItemID]bool),
			ChatIDs: make(map[domain.ItemID]bool),
		}, nil
	}
	return g.metaIndex, nil
}

func (g *fakeGateway) LocalMetadataByIDs(_ context.Context, _ string, ids []domain.ItemID) (map[domain.ItemID]domain.Metadata, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[domain.ItemID]domain.Metadata)
	for _, id := range ids {
		if meta, ok := g.localMetas[id]; ok {
			out[id] = meta
		}
	}
	return out, nil
}

func (g *fakeGateway) DeleteLiveMetadataFiles(_ context.Context, id domain.ItemID, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deletedLiveMeta = append(g.deletedLiveMeta, id)
	return nil
}

func (g *fakeGateway) ProbeMedia(_ context.Context, _ string) (*domain.MediaInfo, error) {
	return &domain.MediaInfo{}, nil
}

func (g *fakeGateway) ToolAvailable() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.toolErr
}

func (g *fakeGateway) Events() <-chan gateway.Event {
	return g.events
}

func (g *fakeGateway) downloadCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.startedDownloads)
}

func (g *fakeGateway) commentsCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.startedComments)
}

func (g *fakeGateway) setIndexWait(ch chan struct{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.indexWait = ch
}

func (g *fakeGateway) indexCallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.indexCalls
}

func (g *fakeGateway) metadataCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.startedMetadata)
}

func (g *fakeGateway) lastMetadata() gateway.MetadataRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.startedMetadata[len(g.startedMetadata)-1]
}

func (g *fakeGateway) lastDownload() gateway.DownloadRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.startedDownloads[len(g.startedDownloads)-1]
}

// fakeNotifier records emitted notices.
type fakeNotifier struct {
	mu      sync.Mutex
	notices []string
}

func (n *fakeNotifier) record(severity, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, severity+": "+message)
}

func (n *fakeNotifier) Info(_, message string, _ domain.ItemID)    { n.record("info", message) }
func (n *fakeNotifier) Success(_, message string, _ domain.ItemID) { n.record("success", message) }
func (n *fakeNotifier) Warning(_, message string, _ domain.ItemID) { n.record("warning", message) }
func (n *fakeNotifier) Error(_, message string, _ domain.ItemID)   { n.record("error", message) }

type testRig struct {
	engine   *Engine
	store    *library.Store
	gw       *fakeGateway
	notifier *fakeNotifier
}

// newTestRig builds an engine whose loop is not running; tests drive the
// loop handlers directly for determinism. Disk-space checks are disabled.
func newTestRig(cfg Config) *testRig {
	if cfg.LibraryDir == "" {
		cfg.LibraryDir = "/library"
	}
	store := library.NewStore(nil, testLogger())
	gw := newFakeGateway()
	notifier := &fakeNotifier{}
	eng := New(cfg, store, gw, notifier, testLogger())
	eng.freeSpace = func(string) int64 { return 1 << 40 }
	return &testRig{engine: eng, store: store, gw: gw, notifier: notifier}
}

// waitUntil polls a condition with a generous deadline; used only by tests
// that exercise the running dispatch loop.
func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func (r *testRig) addItem(id domain.ItemID, mutate ...func(*domain.Item)) domain.Item {
	item := domain.NewItem(id, "title "+id.String(), "channel", "https://example.invalid/watch?v="+id.String())
	item.MetadataFetched = true
	for _, fn := range mutate {
		fn(item)
	}
	if _, err := r.store.Add(context.Background(), item); err != nil {
		panic(err)
	}
	got, _ := r.store.Get(id)
	return got
}
