package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"clipd/internal/engine"
	"clipd/internal/entity"
)

// consumeEvents drains the engine event stream until ctx is cancelled.
func (o *Orchestrator) consumeEvents(ctx context.Context) {
	events := o.engine.Events()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			o.handleEngineEvent(ctx, ev)
		}
	}
}

// handleEngineEvent translates an engine event into job state. Events with
// engine ids no job claims are logged and dropped; the engine id itself never
// reaches subscribers.
func (o *Orchestrator) handleEngineEvent(ctx context.Context, ev engine.Event) {
	o.mu.Lock()

	downloadID, ok := o.reg.resolve(ev.EngineID)
	if !ok {
		o.metrics.OrphanEvents.Inc()
		o.log.Warn("orphan engine event dropped",
			slog.String("engine_id", ev.EngineID), slog.String("kind", string(ev.Kind)))
		o.mu.Unlock()

		return
	}

	job, ok := o.reg.active[downloadID]
	if !ok {
		// Bridge says the id exists but the active set disagrees. Drop the
		// binding so later events for it count as orphans.
		delete(o.reg.engineIDs, ev.EngineID)
		o.log.Warn("engine binding without active job dropped",
			slog.String("engine_id", ev.EngineID), slog.String("download_id", downloadID))
		o.mu.Unlock()

		return
	}

	switch ev.Kind {
	case engine.EventProgress:
		o.applyProgressLocked(job, ev)
		o.mu.Unlock()

	case engine.EventCompleted:
		o.completeLocked(job, ev)
		o.metrics.SetQueueSizes(len(o.reg.active), len(o.reg.queue))
		o.mu.Unlock()
		o.wake()

	case engine.EventFailed:
		job.Progress.Progress = ev.Progress
		job.Progress.DownloadedBytes = ev.DownloadedBytes
		o.failLocked(job, ev.Error)
		o.metrics.SetQueueSizes(len(o.reg.active), len(o.reg.queue))
		o.log.Warn("download failed", slog.Any("job", *job))
		o.mu.Unlock()
		o.wake()
	}
}

// applyProgressLocked overwrites the job snapshot with engine numbers. The
// download id stays the job's own; engine ids never leak into it.
func (o *Orchestrator) applyProgressLocked(job *entity.Job, ev engine.Event) {
	if delta := ev.DownloadedBytes - job.Progress.DownloadedBytes; delta > 0 {
		o.metrics.DownloadBytes.Add(float64(delta))
	}

	job.Progress.Status = ev.Status
	job.Progress.Progress = ev.Progress
	job.Progress.DownloadedBytes = ev.DownloadedBytes
	job.Progress.TotalBytes = ev.TotalBytes
	job.Progress.Speed = ev.Speed
	job.Progress.ETA = ev.ETA

	o.emitLocked(entity.Event{Type: entity.EventProgress, Progress: job.Progress})
}

// completeLocked finalizes a successful download: terminal snapshot,
// persisted record, completion event.
func (o *Orchestrator) completeLocked(job *entity.Job, ev engine.Event) {
	o.reg.removeActive(job.ID)

	job.Progress.Status = entity.StatusCompleted
	job.Progress.Progress = ev.Progress
	job.Progress.Speed = 0
	job.Progress.ETA = 0
	job.Progress.FilePath = ev.FilePath
	job.CompletedAt = time.Now()

	if ev.DownloadedBytes > 0 {
		job.Progress.DownloadedBytes = ev.DownloadedBytes
		job.Progress.TotalBytes = ev.TotalBytes
	}

	if err := o.store.Add(context.Background(), recordFromJob(job)); err != nil {
		o.log.Error("persist completed download", slog.Any("job", *job), slog.Any("error", err))
	}

	o.metrics.DownloadsCompleted.Inc()
	o.log.Info("download completed", slog.Any("job", *job), slog.String("file_path", ev.FilePath))

	o.emitLocked(entity.Event{Type: entity.EventCompleted, Progress: job.Progress})
}
