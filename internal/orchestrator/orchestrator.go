// Package orchestrator manages the download job lifecycle: queueing,
// concurrency, engine correlation, events and persistence of finished jobs.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"clipd/internal/config"
	"clipd/internal/engine"
	"clipd/internal/entity"
	"clipd/internal/errs"
	"clipd/internal/observability"
	"clipd/internal/store"
	"clipd/pkg/urls"

	"github.com/google/uuid"
)

// Filter selects which downloads listings return.
type Filter string

// Listing filters. FilterActive covers everything still in memory, queued
// included.
const (
	FilterAll       Filter = "all"
	FilterActive    Filter = "active"
	FilterCompleted Filter = "completed"
	FilterFailed    Filter = "failed"
)

// ParseFilter validates a filter string. Empty means all.
func ParseFilter(s string) (Filter, error) {
	switch Filter(s) {
	case "":
		return FilterAll, nil
	case FilterAll, FilterActive, FilterCompleted, FilterFailed:
		return Filter(s), nil
	default:
		return "", fmt.Errorf("%w: %q", errs.ErrInvalidFilter, s)
	}
}

// Stats summarizes the download population across memory and the store.
type Stats struct {
	Total     int `json:"total"`
	Queued    int `json:"queued"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Orchestrator owns all download jobs. One coarse mutex guards the registry
// and the subscriber set; engine calls happen outside it.
type Orchestrator struct {
	log     *slog.Logger
	cfg     *config.Config
	engine  engine.Engine
	store   store.Store
	metrics *observability.Metrics

	mu            sync.Mutex
	reg           *registry
	maxConcurrent int
	dispatching   bool
	subs          map[chan entity.Event]struct{}

	kick      chan struct{}
	startOnce sync.Once
	closed    atomic.Bool
}

// New creates an orchestrator. Call Start to run the scheduler and the
// engine event loop.
func New(log *slog.Logger, cfg *config.Config, eng engine.Engine, stg store.Store, metrics *observability.Metrics) *Orchestrator {
	maxConcurrent := cfg.Job.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	return &Orchestrator{
		log:           log.With(slog.String("package", "orchestrator")),
		cfg:           cfg,
		engine:        eng,
		store:         stg,
		metrics:       metrics,
		reg:           newRegistry(),
		maxConcurrent: maxConcurrent,
		subs:          make(map[chan entity.Event]struct{}),
		kick:          make(chan struct{}, 1),
	}
}

// Start launches the scheduler and engine event loops. Both stop when ctx is
// cancelled. Safe to call more than once; only the first call has effect.
func (o *Orchestrator) Start(ctx context.Context) {
	o.startOnce.Do(func() {
		go o.schedule(ctx)
		go o.consumeEvents(ctx)
	})
}

// Close stops accepting new downloads. In-flight jobs keep running until the
// Start context is cancelled.
func (o *Orchestrator) Close() {
	o.closed.Store(true)
}

// StartDownload validates the url, resolves metadata through the engine,
// creates a queued job and wakes the scheduler. A metadata failure surfaces
// here and registers no job.
func (o *Orchestrator) StartDownload(ctx context.Context, rawURL string, opts entity.Options) (entity.Progress, error) {
	if o.closed.Load() {
		return entity.Progress{}, errs.ErrServiceClosed
	}

	if !urls.IsURLValid(rawURL) {
		return entity.Progress{}, fmt.Errorf("%w: %q", errs.ErrInvalidURL, rawURL)
	}

	url := urls.Normalize(rawURL)
	opts.StripTrim()

	info, err := o.engine.FetchInfo(ctx, url)
	if err != nil {
		return entity.Progress{}, fmt.Errorf("%w: %w", errs.ErrFetchInfo, err)
	}

	now := time.Now()
	job := &entity.Job{
		ID:        uuid.NewString(),
		URL:       url,
		Title:     info.Title,
		Channel:   info.Channel,
		Options:   opts,
		CreatedAt: now,
		Progress: entity.Progress{
			Status:    entity.StatusQueued,
			StartTime: now,
		},
	}
	job.Progress.DownloadID = job.ID

	o.mu.Lock()
	o.reg.enqueue(job)
	o.emitLocked(entity.Event{Type: entity.EventQueued, Progress: job.Progress})
	snapshot := job.Progress
	o.mu.Unlock()

	o.metrics.DownloadsCreated.Inc()
	o.log.Info("download queued", slog.Any("job", *job))

	o.wake()

	return snapshot, nil
}

// CancelDownload cancels an active download. Queued jobs cannot be cancelled,
// only deleted. Cancellation is best effort: if the engine cannot honor it
// the job stays active untouched and false is returned.
func (o *Orchestrator) CancelDownload(ctx context.Context, downloadID string) (bool, error) {
	o.mu.Lock()
	job, ok := o.reg.active[downloadID]
	if !ok {
		o.mu.Unlock()

		return false, fmt.Errorf("cancel: %w", errs.ErrDownloadNotFound)
	}

	engineID := job.EngineID
	o.mu.Unlock()

	if !o.engine.Cancel(engineID) {
		o.log.Warn("engine refused cancellation, download stays active",
			slog.String("download_id", downloadID))

		return false, nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	// The job may have finished while we were talking to the engine.
	job, ok = o.reg.active[downloadID]
	if !ok || job.EngineID != engineID {
		return false, nil
	}

	o.reg.removeActive(downloadID)

	job.Progress.Status = entity.StatusCancelled
	job.CompletedAt = time.Now()

	o.metrics.DownloadsCancelled.Inc()
	o.metrics.SetQueueSizes(len(o.reg.active), len(o.reg.queue))
	o.log.Info("download cancelled", slog.Any("job", *job))

	o.emitLocked(entity.Event{Type: entity.EventCancelled, Progress: job.Progress})
	o.wake()

	return true, nil
}

// DeleteDownload removes a download wherever it lives: queue, active set and
// the store. Active downloads are cancelled first. The store is swept in every
// case, since an active job may turn terminal and get persisted during the
// cancel window. Idempotent; false means nothing was found.
func (o *Orchestrator) DeleteDownload(ctx context.Context, downloadID string) (bool, error) {
	o.mu.Lock()

	_, found := o.reg.removeQueued(downloadID)

	if !found {
		if job, ok := o.reg.active[downloadID]; ok {
			found = true
			engineID := job.EngineID
			o.mu.Unlock()

			// Best effort; the slot frees up either way since the job is dropped.
			o.engine.Cancel(engineID)

			o.mu.Lock()
			o.reg.removeActive(downloadID)
		}
	}

	o.mu.Unlock()

	removed, err := o.store.Remove(ctx, downloadID)
	if err != nil {
		return false, fmt.Errorf("delete download: %w", err)
	}

	if !found && !removed {
		return false, nil
	}

	o.mu.Lock()
	o.finishDeleteLocked(downloadID)
	o.mu.Unlock()

	o.wake()

	return true, nil
}

func (o *Orchestrator) finishDeleteLocked(downloadID string) {
	o.metrics.DownloadsDeleted.Inc()
	o.metrics.SetQueueSizes(len(o.reg.active), len(o.reg.queue))
	o.log.Info("download deleted", slog.String("download_id", downloadID))

	o.emitLocked(entity.Event{Type: entity.EventDeleted, Progress: entity.Progress{DownloadID: downloadID}})
}

// RetryDownload re-queues a failed download as a fresh job with a new id and
// an incremented retry count. The failed record is removed; looking up the
// old id afterwards reports not found.
func (o *Orchestrator) RetryDownload(ctx context.Context, downloadID string) (entity.Progress, error) {
	if o.closed.Load() {
		return entity.Progress{}, errs.ErrServiceClosed
	}

	rec, ok, err := o.findRecord(ctx, downloadID)
	if err != nil {
		return entity.Progress{}, fmt.Errorf("retry download: %w", err)
	}

	if !ok || rec.Progress.Status != entity.StatusFailed {
		return entity.Progress{}, fmt.Errorf("retry: %w", errs.ErrNotRetryable)
	}

	if _, err := o.store.Remove(ctx, downloadID); err != nil {
		return entity.Progress{}, fmt.Errorf("retry download: %w", err)
	}

	now := time.Now()
	job := &entity.Job{
		ID:        uuid.NewString(),
		URL:       rec.URL,
		Title:     rec.Title,
		Channel:   rec.Channel,
		Options:   rec.Options,
		CreatedAt: now,
		Progress: entity.Progress{
			Status:     entity.StatusRetrying,
			RetryCount: rec.Progress.RetryCount + 1,
			StartTime:  now,
		},
	}
	job.Progress.DownloadID = job.ID

	o.mu.Lock()
	o.reg.enqueue(job)
	o.emitLocked(entity.Event{Type: entity.EventQueued, Progress: job.Progress})
	snapshot := job.Progress
	o.mu.Unlock()

	o.metrics.DownloadsRetried.Inc()
	o.log.Info("download retried", slog.String("failed_id", downloadID), slog.Any("job", *job))

	o.wake()

	return snapshot, nil
}

// GetProgress returns the current snapshot for a download, in-memory state
// winning over the store.
func (o *Orchestrator) GetProgress(ctx context.Context, downloadID string) (entity.Progress, error) {
	o.mu.Lock()

	if job, ok := o.reg.active[downloadID]; ok {
		snapshot := job.Progress
		o.mu.Unlock()

		return snapshot, nil
	}

	if job, ok := o.reg.queuedJob(downloadID); ok {
		snapshot := job.Progress
		o.mu.Unlock()

		return snapshot, nil
	}

	o.mu.Unlock()

	rec, ok, err := o.findRecord(ctx, downloadID)
	if err != nil {
		return entity.Progress{}, fmt.Errorf("get progress: %w", err)
	}

	if !ok {
		return entity.Progress{}, fmt.Errorf("get progress: %w", errs.ErrDownloadNotFound)
	}

	return rec.Progress, nil
}

// ListByFilter returns download snapshots matching the filter, newest first.
// In-memory jobs win over persisted records with the same id. The memory
// snapshot is taken first: a job completing in between then shows up in the
// store read instead of falling through the gap.
func (o *Orchestrator) ListByFilter(ctx context.Context, filter Filter) ([]entity.Progress, error) {
	o.mu.Lock()

	seen := make(map[string]struct{}, len(o.reg.active)+len(o.reg.queue))
	out := make([]entity.Progress, 0, len(o.reg.active)+len(o.reg.queue))

	if filter == FilterAll || filter == FilterActive {
		for _, job := range o.reg.active {
			out = append(out, job.Progress)
			seen[job.ID] = struct{}{}
		}

		for _, job := range o.reg.queue {
			out = append(out, job.Progress)
			seen[job.ID] = struct{}{}
		}
	}

	o.mu.Unlock()

	records, err := o.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list downloads: %w", err)
	}

	for _, rec := range records {
		if _, dup := seen[rec.Progress.DownloadID]; dup {
			continue
		}

		switch filter {
		case FilterCompleted:
			if rec.Progress.Status != entity.StatusCompleted {
				continue
			}
		case FilterFailed:
			if rec.Progress.Status != entity.StatusFailed {
				continue
			}
		case FilterActive:
			continue
		case FilterAll:
		}

		out = append(out, rec.Progress)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})

	return out, nil
}

// GetStats returns counts across the queue, the active set and the store.
// Memory is counted before the store is read, same as ListByFilter.
func (o *Orchestrator) GetStats(ctx context.Context) (Stats, error) {
	o.mu.Lock()

	stats := Stats{
		Queued: len(o.reg.queue),
		Active: len(o.reg.active),
	}

	seen := make(map[string]struct{}, len(o.reg.active)+len(o.reg.queue))
	for id := range o.reg.active {
		seen[id] = struct{}{}
	}

	for _, job := range o.reg.queue {
		seen[job.ID] = struct{}{}
	}

	o.mu.Unlock()

	records, err := o.store.List(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("get stats: %w", err)
	}

	for _, rec := range records {
		if _, dup := seen[rec.Progress.DownloadID]; dup {
			continue
		}

		switch rec.Progress.Status {
		case entity.StatusCompleted:
			stats.Completed++
		case entity.StatusFailed:
			stats.Failed++
		}
	}

	stats.Total = stats.Queued + stats.Active + stats.Completed + stats.Failed

	return stats, nil
}

// SetMaxConcurrent adjusts the concurrency ceiling at runtime. Raising it
// wakes the scheduler; lowering it never interrupts running downloads, the
// active set just drains below the new ceiling on its own.
func (o *Orchestrator) SetMaxConcurrent(n int) {
	if n < 1 {
		n = 1
	}

	o.mu.Lock()
	o.maxConcurrent = n
	o.mu.Unlock()

	o.log.Info("concurrency ceiling updated", slog.Int("max_concurrent", n))

	o.wake()
}

// ClearCompleted removes all completed records from the store, returning how
// many were removed.
func (o *Orchestrator) ClearCompleted(ctx context.Context) (int, error) {
	records, err := o.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}

	cleared := 0

	for _, rec := range records {
		if rec.Progress.Status != entity.StatusCompleted {
			continue
		}

		removed, err := o.store.Remove(ctx, rec.Progress.DownloadID)
		if err != nil {
			return cleared, fmt.Errorf("clear completed: %w", err)
		}

		if removed {
			cleared++

			o.mu.Lock()
			o.finishDeleteLocked(rec.Progress.DownloadID)
			o.mu.Unlock()
		}
	}

	return cleared, nil
}

// FetchInfo resolves video metadata for a URL without creating a job.
func (o *Orchestrator) FetchInfo(ctx context.Context, rawURL string) (entity.VideoInfo, error) {
	if !urls.IsURLValid(rawURL) {
		return entity.VideoInfo{}, fmt.Errorf("%w: %q", errs.ErrInvalidURL, rawURL)
	}

	info, err := o.engine.FetchInfo(ctx, urls.Normalize(rawURL))
	if err != nil {
		return entity.VideoInfo{}, fmt.Errorf("%w: %w", errs.ErrFetchInfo, err)
	}

	return info, nil
}

// Subscribe registers a new lifecycle event channel. Events are dropped, not
// blocked on, when the subscriber falls behind.
func (o *Orchestrator) Subscribe() chan entity.Event {
	ch := make(chan entity.Event, o.cfg.Job.EventBuffer)

	o.mu.Lock()
	o.subs[ch] = struct{}{}
	o.mu.Unlock()

	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (o *Orchestrator) Unsubscribe(ch chan entity.Event) {
	o.mu.Lock()
	_, ok := o.subs[ch]
	delete(o.subs, ch)
	o.mu.Unlock()

	if ok {
		close(ch)
	}
}

func (o *Orchestrator) emitLocked(ev entity.Event) {
	for ch := range o.subs {
		select {
		case ch <- ev:
		default:
			o.metrics.DroppedEvents.Inc()
			o.log.Warn("subscriber behind, event dropped", slog.Any("event", ev))
		}
	}
}

// wake nudges the scheduler without waiting for the next tick.
func (o *Orchestrator) wake() {
	select {
	case o.kick <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) findRecord(ctx context.Context, downloadID string) (entity.Record, bool, error) {
	records, err := o.store.List(ctx)
	if err != nil {
		return entity.Record{}, false, err
	}

	for _, rec := range records {
		if rec.Progress.DownloadID == downloadID {
			return rec, true, nil
		}
	}

	return entity.Record{}, false, nil
}

func recordFromJob(job *entity.Job) entity.Record {
	return entity.Record{
		Progress:    job.Progress,
		URL:         job.URL,
		Title:       job.Title,
		Channel:     job.Channel,
		Options:     job.Options,
		CompletedAt: job.CompletedAt,
	}
}
