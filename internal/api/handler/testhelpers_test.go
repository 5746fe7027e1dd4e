package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/vodvault/vodvault/internal/domain"
	"github.com/vodvault/vodvault/internal/engine"
	"github.com/vodvault/vodvault/internal/gateway"
	"github.com/vodvault/vodvault/internal/library"
	"github.com/vodvault/vodvault/internal/notify"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubGateway is a minimal gateway whose workers never report back. Handler
// tests only exercise the request path, not worker completion.
type stubGateway struct {
	mu        sync.Mutex
	downloads int
	stops     int
	listing   []domain.ItemCandidate
	events    chan gateway.Event
}

func newStubGateway() *stubGateway {
	return &stubGateway{events: make(chan gateway.Event, 16)}
}

func (g *stubGateway) StartDownload(_ context.Context, _ gateway.DownloadRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.downloads++
	return nil
}

func (g *stubGateway) StopDownload(_ context.Context, _ domain.ItemID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stops++
	return nil
}

func (g *stubGateway) StartCommentsDownload(_ context.Context, _ gateway.CommentsRequest) error {
	return nil
}

func (g *stubGateway) StartMetadataDownload(_ context.Context, _ gateway.MetadataRequest) error {
	return nil
}

func (g *stubGateway) ListChannelItems(_ context.Context, _ string, _ int) ([]domain.ItemCandidate, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.listing, nil
}

func (g *stubGateway) VideoFileExists(_ context.Context, _ domain.ItemID, _, _ string) (bool, error) {
	return false, nil
}

func (g *stubGateway) CommentsFileExists(_ context.Context, _ domain.ItemID, _ string) (bool, error) {
	return false, nil
}

func (g *stubGateway) VerifyLocalFiles(_ context.Context, _ string, targets []gateway.VerifyTarget) ([]gateway.VerifyResult, error) {
	out := make([]gateway.VerifyResult, 0, len(targets))
	for _, tgt := range targets {
		out = append(out, gateway.VerifyResult{ID: tgt.ID})
	}
	return out, nil
}

func (g *stubGateway) MetadataIndex(_ context.Context, _ string) (*domain.MetadataIndex, error) {
	return &domain.MetadataIndex{
		InfoIDs: make(map[domain.ItemID]bool),
		ChatIDs: make(map[domain.ItemID]bool),
	}, nil
}

func (g *stubGateway) LocalMetadataByIDs(_ context.Context, _ string, _ []domain.ItemID) (map[domain.ItemID]domain.Metadata, error) {
	return map[domain.ItemID]domain.Metadata{}, nil
}

func (g *stubGateway) DeleteLiveMetadataFiles(_ context.Context, _ domain.ItemID, _ string) error {
	return nil
}

func (g *stubGateway) ProbeMedia(_ context.Context, _ string) (*domain.MediaInfo, error) {
	return &domain.MediaInfo{}, nil
}

func (g *stubGateway) ToolAvailable() error { return nil }

func (g *stubGateway) Events() <-chan gateway.Event { return g.events }

type testEnv struct {
	store   *library.Store
	gw      *stubGateway
	engine  *engine.Engine
	notices *notify.Service
}

// newTestEnv assembles a running engine over a stub gateway plus an
// in-memory notice service.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := library.NewStore(nil, testLogger())
	gw := newStubGateway()
	notices, err := notify.NewService(notify.ServiceConfig{RingSize: 32}, testLogger())
	if err != nil {
		t.Fatalf("notice service: %v", err)
	}
	t.Cleanup(func() { notices.Close() })

	eng := engine.New(engine.Config{
		LibraryDir:          t.TempDir(),
		MetadataWaitTimeout: 100 * time.Millisecond,
	}, store, gw, notices, testLogger())
	eng.Start()
	t.Cleanup(func() { eng.Stop(time.Second) })

	return &testEnv{store: store, gw: gw, engine: eng, notices: notices}
}

func (env *testEnv) addItem(t *testing.T, id domain.ItemID) {
	t.Helper()
	item := domain.NewItem(id, "title "+id.String(), "channel", "https://example.invalid/watch?v="+id.String())
	item.MetadataFetched = true
	if _, err := env.store.Add(context.Background(), item); err != nil {
		t.Fatalf("add item: %v", err)
	}
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func doRequest(h http.HandlerFunc, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, r)
	return rec
}
