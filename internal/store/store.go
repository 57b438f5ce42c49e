// Package store persists terminal download records across process restarts.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"clipd/internal/entity"
)

// Store is the keyed persistence boundary for terminal download records.
// Queued and active jobs are never persisted; a restart loses in-flight work.
type Store interface {
	Add(ctx context.Context, rec entity.Record) error
	Remove(ctx context.Context, downloadID string) (bool, error)
	List(ctx context.Context) ([]entity.Record, error)
}

type fileStore struct {
	log  *slog.Logger
	path string

	mu      sync.Mutex
	records map[string]entity.Record
}

// New creates a file-backed store, loading any records persisted by a
// previous run. A missing file is a fresh start, not an error.
func New(log *slog.Logger, path string) (Store, error) {
	stg := &fileStore{
		log:     log.With(slog.String("package", "store")),
		path:    path,
		records: make(map[string]entity.Record),
	}

	err := stg.load()
	if err != nil {
		return nil, fmt.Errorf("load store: %w", err)
	}

	return stg, nil
}

func (s *fileStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", s.path, err)
	}

	if err := json.Unmarshal(data, &s.records); err != nil {
		return fmt.Errorf("parse %s: %w", s.path, err)
	}

	s.log.Debug("records loaded", slog.Int("count", len(s.records)))

	return nil
}

// save writes the record set atomically via a temp file rename.
// Caller must hold mu.
func (s *fileStore) save() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent for %s: %w", s.path, err)
	}

	tmp, err := os.CreateTemp(dir, ".clipd-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", s.path, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)

		return fmt.Errorf("write temp file for %s: %w", s.path, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("close temp file for %s: %w", s.path, err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("atomic rename for %s: %w", s.path, err)
	}

	return nil
}

func (s *fileStore) Add(ctx context.Context, rec entity.Record) error {
	if rec.Progress.DownloadID == "" {
		return fmt.Errorf("record has empty download id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.Progress.DownloadID] = rec

	if err := s.save(); err != nil {
		return fmt.Errorf("persist record %s: %w", rec.Progress.DownloadID, err)
	}

	s.log.DebugContext(ctx, "record persisted",
		slog.String("download_id", rec.Progress.DownloadID),
		slog.String("status", string(rec.Progress.Status)))

	return nil
}

func (s *fileStore) Remove(ctx context.Context, downloadID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[downloadID]; !ok {
		return false, nil
	}

	delete(s.records, downloadID)

	if err := s.save(); err != nil {
		return true, fmt.Errorf("persist removal of %s: %w", downloadID, err)
	}

	s.log.DebugContext(ctx, "record removed", slog.String("download_id", downloadID))

	return true, nil
}

func (s *fileStore) List(_ context.Context) ([]entity.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := make([]entity.Record, 0, len(s.records))
	for _, rec := range s.records {
		recs = append(recs, rec)
	}

	return recs, nil
}
