package library

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/vodvault/vodvault/internal/domain"
)

func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "library.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository error: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository_ItemRoundTrip(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	item := domain.NewItem("v1", "A Stream", "Channel", "https://example.com/v1")
	item.DownloadStatus = domain.DownloadDownloaded
	item.MetadataFetched = true
	item.LiveStatus = domain.LiveStatusWasLive

	if err := repo.SaveItem(ctx, item); err != nil {
		t.Fatalf("SaveItem error: %v", err)
	}

	items, err := repo.LoadItems(ctx)
	if err != nil {
		t.Fatalf("LoadItems error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("LoadItems len = %d, want 1", len(items))
	}

	got := items[0]
	if got.ID != "v1" || got.Title != "A Stream" {
		t.Errorf("item = %+v", got)
	}
	if got.DownloadStatus != domain.DownloadDownloaded {
		t.Errorf("DownloadStatus = %s, want downloaded", got.DownloadStatus)
	}
	if !got.MetadataFetched {
		t.Error("MetadataFetched should survive the round trip")
	}
	if got.LiveStatus != domain.LiveStatusWasLive {
		t.Errorf("LiveStatus = %s, want was_live", got.LiveStatus)
	}
}

func TestSQLiteRepository_SaveItemUpsert(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	item := domain.NewItem("v1", "Before", "Channel", "u")
	if err := repo.SaveItem(ctx, item); err != nil {
		t.Fatalf("SaveItem error: %v", err)
	}
	item.Title = "After"
	item.DownloadStatus = domain.DownloadFailed
	if err := repo.SaveItem(ctx, item); err != nil {
		t.Fatalf("SaveItem upsert error: %v", err)
	}

	items, err := repo.LoadItems(ctx)
	if err != nil {
		t.Fatalf("LoadItems error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("LoadItems len = %d, want 1 after upsert", len(items))
	}
	if items[0].Title != "After" || items[0].DownloadStatus != domain.DownloadFailed {
		t.Errorf("item = %+v, upsert not applied", items[0])
	}
}

func TestSQLiteRepository_LoadItemsOrder(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, id := range []domain.ItemID{"first", "second", "third"} {
		item := domain.NewItem(id, string(id), "c", "u")
		item.AddedAt = base.Add(time.Duration(i) * time.Minute)
		if err := repo.SaveItem(ctx, item); err != nil {
			t.Fatalf("SaveItem(%s) error: %v", id, err)
		}
	}

	items, err := repo.LoadItems(ctx)
	if err != nil {
		t.Fatalf("LoadItems error: %v", err)
	}
	want := []domain.ItemID{"first", "second", "third"}
	for i := range want {
		if items[i].ID != want[i] {
			t.Errorf("items[%d].ID = %s, want %s", i, items[i].ID, want[i])
		}
	}
}

func TestSQLiteRepository_ErrorRoundTrip(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	rec := domain.ErrorRecord{
		ItemID:    "v1",
		Phase:     domain.PhaseComments,
		Details:   "worker exited 1",
		Missing:   true,
		CreatedAt: time.Now(),
	}
	if err := repo.SaveError(ctx, rec); err != nil {
		t.Fatalf("SaveError error: %v", err)
	}

	recs, err := repo.LoadErrors(ctx)
	if err != nil {
		t.Fatalf("LoadErrors error: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("LoadErrors len = %d, want 1", len(recs))
	}
	if recs[0].Details != "worker exited 1" || !recs[0].Missing {
		t.Errorf("record = %+v", recs[0])
	}

	if err := repo.DeleteError(ctx, "v1", domain.PhaseComments); err != nil {
		t.Fatalf("DeleteError error: %v", err)
	}
	recs, err = repo.LoadErrors(ctx)
	if err != nil {
		t.Fatalf("LoadErrors error: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("LoadErrors len = %d after delete, want 0", len(recs))
	}
}
