package orchestrator

import "clipd/internal/entity"

// registry holds the in-memory job state: the FIFO queue, the active set
// capped by the concurrency ceiling, and the engine-id to job-id bridge.
// It is not self-locking; the orchestrator's mutex guards every call.
type registry struct {
	queue  []*entity.Job
	active map[string]*entity.Job // job id : job

	engineIDs map[string]string // engine id : job id
}

func newRegistry() *registry {
	return &registry{
		active:    make(map[string]*entity.Job),
		engineIDs: make(map[string]string),
	}
}

// enqueue appends a job to the tail of the queue.
func (r *registry) enqueue(job *entity.Job) {
	r.queue = append(r.queue, job)
}

// dequeue pops the head of the queue.
func (r *registry) dequeue() (*entity.Job, bool) {
	if len(r.queue) == 0 {
		return nil, false
	}

	job := r.queue[0]
	r.queue = r.queue[1:]

	return job, true
}

// queuedJob finds a queued job by id without removing it.
func (r *registry) queuedJob(downloadID string) (*entity.Job, bool) {
	for _, job := range r.queue {
		if job.ID == downloadID {
			return job, true
		}
	}

	return nil, false
}

// removeQueued removes a job from the queue by id.
func (r *registry) removeQueued(downloadID string) (*entity.Job, bool) {
	for i, job := range r.queue {
		if job.ID == downloadID {
			r.queue = append(r.queue[:i], r.queue[i+1:]...)

			return job, true
		}
	}

	return nil, false
}

// promote places a job in the active set.
func (r *registry) promote(job *entity.Job) {
	r.active[job.ID] = job
}

// removeActive removes a job from the active set by id, dropping its engine
// binding if one exists.
func (r *registry) removeActive(downloadID string) (*entity.Job, bool) {
	job, ok := r.active[downloadID]
	if !ok {
		return nil, false
	}

	delete(r.active, downloadID)

	if job.EngineID != "" {
		delete(r.engineIDs, job.EngineID)
	}

	return job, true
}

// bind records the engine-id to job-id mapping for an active job.
func (r *registry) bind(engineID, downloadID string) {
	r.engineIDs[engineID] = downloadID
}

// resolve translates an engine id to the owning job id.
func (r *registry) resolve(engineID string) (string, bool) {
	downloadID, ok := r.engineIDs[engineID]

	return downloadID, ok
}
