package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"clipd/internal/entity"
)

// schedule promotes queued jobs on a fixed tick and whenever wake is called.
// The tick is the safety net; wake keeps slot turnover snappy.
func (o *Orchestrator) schedule(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.Job.SchedulerTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-o.kick:
		}

		o.dispatch(ctx)
	}
}

// dispatch fills free download slots from the head of the queue. A flag
// makes overlapping calls collapse into one pass; the mutex is released
// around each engine start so progress events keep flowing meanwhile.
func (o *Orchestrator) dispatch(ctx context.Context) {
	o.mu.Lock()

	if o.dispatching {
		o.mu.Unlock()

		return
	}

	o.dispatching = true

	for len(o.reg.active) < o.maxConcurrent {
		job, ok := o.reg.dequeue()
		if !ok {
			break
		}

		job.Progress.Status = entity.StatusInitializing
		job.StartedAt = time.Now()
		o.reg.promote(job)

		o.mu.Unlock()
		engineID, err := o.engine.Start(ctx, job.URL, job.Options)
		o.mu.Lock()

		// The job may have been deleted while the engine was starting. Its
		// run belongs to no one then: stop it instead of binding it, and a
		// start failure must not resurrect the job as a failed record.
		if _, held := o.reg.active[job.ID]; !held {
			if err == nil {
				o.mu.Unlock()
				o.engine.Cancel(engineID)
				o.mu.Lock()
			}

			o.log.Warn("download deleted during engine start", slog.Any("job", *job))

			continue
		}

		if err != nil {
			o.log.Error("engine rejected download", slog.Any("job", *job), slog.Any("error", err))
			o.failLocked(job, fmt.Sprintf("engine start: %v", err))

			continue
		}

		job.EngineID = engineID
		o.reg.bind(engineID, job.ID)

		o.log.Debug("download dispatched", slog.Any("job", *job), slog.String("engine_id", engineID))
	}

	o.dispatching = false
	o.metrics.SetQueueSizes(len(o.reg.active), len(o.reg.queue))
	o.mu.Unlock()
}

// failLocked moves an active job to failed, persists the record and notifies
// subscribers. Caller holds the mutex.
func (o *Orchestrator) failLocked(job *entity.Job, errMsg string) {
	o.reg.removeActive(job.ID)

	job.Progress.Status = entity.StatusFailed
	job.Progress.Error = errMsg
	job.CompletedAt = time.Now()

	if err := o.store.Add(context.Background(), recordFromJob(job)); err != nil {
		o.log.Error("persist failed download", slog.Any("job", *job), slog.Any("error", err))
	}

	o.metrics.DownloadsFailed.Inc()

	o.emitLocked(entity.Event{Type: entity.EventFailed, Progress: job.Progress})
}
