package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vodvault/vodvault/internal/domain"
	"github.com/vodvault/vodvault/internal/engine"
)

func TestBulkStartAndStatus(t *testing.T) {
	env := newTestEnv(t)
	env.addItem(t, "v1")
	env.addItem(t, "v2")
	h := NewJobsHandler(env.engine, env.store, testLogger())

	rec := doRequest(h.BulkStart, httptest.NewRequest(http.MethodPost, "/api/v1/bulk/start", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var status engine.BulkStatus
	decodeJSON(t, rec, &status)
	if !status.Active || status.Total != 2 {
		t.Fatalf("unexpected status: %+v", status)
	}

	// Starting again conflicts.
	rec = doRequest(h.BulkStart, httptest.NewRequest(http.MethodPost, "/api/v1/bulk/start", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	rec = doRequest(h.BulkStatus, httptest.NewRequest(http.MethodGet, "/api/v1/bulk", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	decodeJSON(t, rec, &status)
	if !status.Active {
		t.Fatalf("status should report the running batch: %+v", status)
	}
}

func TestBulkStopWithoutBatch(t *testing.T) {
	env := newTestEnv(t)
	h := NewJobsHandler(env.engine, env.store, testLogger())

	rec := doRequest(h.BulkStop, httptest.NewRequest(http.MethodPost, "/api/v1/bulk/stop", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestBulkStartEmptyLibrary(t *testing.T) {
	env := newTestEnv(t)
	h := NewJobsHandler(env.engine, env.store, testLogger())

	rec := doRequest(h.BulkStart, httptest.NewRequest(http.MethodPost, "/api/v1/bulk/start", nil))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty library, got %d", rec.Code)
	}
}

func TestMetadataStatusAndRetry(t *testing.T) {
	env := newTestEnv(t)
	h := NewJobsHandler(env.engine, env.store, testLogger())

	rec := doRequest(h.MetadataStatus, httptest.NewRequest(http.MethodGet, "/api/v1/metadata", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var status engine.MetadataStatus
	decodeJSON(t, rec, &status)
	if status.Paused || status.QueueLen != 0 {
		t.Fatalf("fresh queue should be idle: %+v", status)
	}

	rec = doRequest(h.MetadataRetry, httptest.NewRequest(http.MethodPost, "/api/v1/metadata/retry", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
}

func TestIntegrityRun(t *testing.T) {
	env := newTestEnv(t)
	env.addItem(t, "v1")
	h := NewJobsHandler(env.engine, env.store, testLogger())

	rec := doRequest(h.IntegrityRun, httptest.NewRequest(http.MethodPost, "/api/v1/integrity/run", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var report domain.IntegrityReport
	decodeJSON(t, rec, &report)
	if report.RanAt.IsZero() {
		t.Fatal("report should carry a run timestamp")
	}
}

func TestRelinkValidation(t *testing.T) {
	env := newTestEnv(t)
	h := NewJobsHandler(env.engine, env.store, testLogger())

	rec := doRequest(h.Relink, httptest.NewRequest(http.MethodPost, "/api/v1/library/relink", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing dir, got %d", rec.Code)
	}
}

func TestRelinkRunsCheck(t *testing.T) {
	env := newTestEnv(t)
	env.addItem(t, "v1")
	h := NewJobsHandler(env.engine, env.store, testLogger())

	rec := doRequest(h.Relink, httptest.NewRequest(http.MethodPost, "/api/v1/library/relink",
		strings.NewReader(`{"dir":"`+t.TempDir()+`"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var report domain.IntegrityReport
	decodeJSON(t, rec, &report)
	if report.RanAt.IsZero() {
		t.Fatal("relink should return the fresh check report")
	}
}

func TestErrorsAggregates(t *testing.T) {
	env := newTestEnv(t)
	env.addItem(t, "v1")
	env.store.RecordError(context.Background(), "v1", domain.PhaseVideo, "network error", false)
	env.store.RecordError(context.Background(), "v1", domain.PhaseComments, "no transcript", false)
	h := NewJobsHandler(env.engine, env.store, testLogger())

	rec := doRequest(h.Errors, httptest.NewRequest(http.MethodGet, "/api/v1/errors", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp ErrorListResponse
	decodeJSON(t, rec, &resp)
	if resp.Total != 1 {
		t.Fatalf("records for one item should aggregate once, got %d", resp.Total)
	}
	if len(resp.Items[0].Records) != 2 {
		t.Fatalf("expected both phases, got %+v", resp.Items[0])
	}
}
