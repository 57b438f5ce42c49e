package store_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"clipd/internal/entity"
	"clipd/internal/store"
)

func newTestStore(t *testing.T, path string) store.Store {
	t.Helper()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))

	stg, err := store.New(log, path)
	if err != nil {
		t.Fatalf("store new: %v", err)
	}

	return stg
}

func testRecord(id string, status entity.Status) entity.Record {
	return entity.Record{
		Progress: entity.Progress{
			DownloadID: id,
			Status:     status,
			Progress:   100,
			StartTime:  time.Now(),
		},
		URL:         "https://example.com/watch?v=" + id,
		Options:     entity.Options{Quality: "1080", Format: "mp4"},
		CompletedAt: time.Now(),
	}
}

func TestAddRemoveList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "downloads.json")
	stg := newTestStore(t, path)

	ctx := t.Context()

	if err := stg.Add(ctx, testRecord("a", entity.StatusCompleted)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := stg.Add(ctx, testRecord("b", entity.StatusFailed)); err != nil {
		t.Fatalf("add: %v", err)
	}

	recs, err := stg.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}

	removed, err := stg.Remove(ctx, "a")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !removed {
		t.Error("expected first remove to report true")
	}

	removed, err = stg.Remove(ctx, "a")
	if err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if removed {
		t.Error("expected second remove to report false")
	}

	recs, _ = stg.List(ctx)
	if len(recs) != 1 || recs[0].Progress.DownloadID != "b" {
		t.Errorf("expected only record b to remain, got %v", recs)
	}
}

func TestAddEmptyID(t *testing.T) {
	stg := newTestStore(t, filepath.Join(t.TempDir(), "downloads.json"))

	if err := stg.Add(t.Context(), entity.Record{}); err == nil {
		t.Error("expected error for record without download id")
	}
}

func TestReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "downloads.json")
	ctx := t.Context()

	stg := newTestStore(t, path)
	if err := stg.Add(ctx, testRecord("survivor", entity.StatusCompleted)); err != nil {
		t.Fatalf("add: %v", err)
	}

	// Simulate a process restart.
	reopened := newTestStore(t, path)

	recs, err := reopened.List(ctx)
	if err != nil {
		t.Fatalf("list after reopen: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record after reopen, got %d", len(recs))
	}
	if recs[0].Progress.DownloadID != "survivor" {
		t.Errorf("expected original download id, got %q", recs[0].Progress.DownloadID)
	}
	if recs[0].Options.Quality != "1080" {
		t.Errorf("expected options to survive restart, got %+v", recs[0].Options)
	}
}

func TestMissingFileIsFreshStart(t *testing.T) {
	stg := newTestStore(t, filepath.Join(t.TempDir(), "nope", "downloads.json"))

	recs, err := stg.List(t.Context())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("expected empty store, got %d records", len(recs))
	}
}

func TestCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "downloads.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))
	if _, err := store.New(log, path); err == nil {
		t.Error("expected error for corrupt store file")
	}
}
