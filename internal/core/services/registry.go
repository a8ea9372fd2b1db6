package services

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cortexlab/pathfinder/internal/core/domain"
)

// JobRegistry is the single source of truth for job status. It owns a
// mutex-guarded map of records; there is no package-level state, the registry
// is constructed at process start and dies with it.
//
// Each record has exactly one writer (the executor goroutine that owns the
// id); readers always get copies, never aliases into the map.
type JobRegistry struct {
	logger *slog.Logger

	mu   sync.RWMutex
	jobs map[domain.JobID]domain.Job
	seq  uint64
}

func NewJobRegistry(logger *slog.Logger) *JobRegistry {
	return &JobRegistry{
		logger: logger,
		jobs:   make(map[domain.JobID]domain.Job),
	}
}

// Allocate mints a fresh identifier and inserts a Queued record for it.
// The record is visible to Get before the id is returned, so a status query
// racing with submission can never observe "not found". Identifiers follow
// the original wire convention: task_<n> / search_<n> over one shared,
// monotonically increasing counter.
func (r *JobRegistry) Allocate(kind domain.JobKind, payload domain.Payload) domain.JobID {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	id := domain.JobID(fmt.Sprintf("%s_%d", kind.IDPrefix(), r.seq))
	r.jobs[id] = domain.Job{
		ID:        id,
		Kind:      kind,
		Status:    domain.JobStatusQueued,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
	r.logger.Info("job allocated", "job_id", id, "kind", kind)
	return id
}

// Get returns a copy of the record, or ErrJobNotFound for an id the registry
// never held. Safe to call while the owning executor updates the record.
func (r *JobRegistry) Get(id domain.JobID) (domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return domain.Job{}, domain.ErrJobNotFound
	}
	return job, nil
}

// Update applies mutate to the record under the write lock. Only the executor
// that owns the id may call this; two concurrent updates on the same id are a
// programming error. A mutation against a terminal record is refused so
// terminal states stay absorbing.
func (r *JobRegistry) Update(id domain.JobID, mutate func(*domain.Job)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.Status.Terminal() {
		r.logger.Warn("update refused, record already terminal", "job_id", id, "status", job.Status)
		return nil
	}
	mutate(&job)
	r.jobs[id] = job
	return nil
}

// List returns a snapshot copy of all records. Iteration never exposes the
// live map, so a concurrent insert cannot surface a record mid-write.
func (r *JobRegistry) List() []domain.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, job)
	}
	return out
}

// ActiveCount reports how many records are not yet terminal.
func (r *JobRegistry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, job := range r.jobs {
		if !job.Status.Terminal() {
			n++
		}
	}
	return n
}
