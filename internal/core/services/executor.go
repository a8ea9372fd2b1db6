package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/cortexlab/pathfinder/internal/core/domain"
	"github.com/cortexlab/pathfinder/internal/core/ports"
)

// ExecutorConfig bounds background execution. MaxConcurrentJobs <= 0 means
// no cap at this layer; admission control, if any, lives above.
type ExecutorConfig struct {
	MaxConcurrentJobs int64
}

// JobExecutor runs submitted jobs in the background and writes their outcome
// back into the registry. Every accepted submission resolves to a terminal
// record, success or failure — a job can never silently vanish or stay stuck
// in Running, including when the runner panics.
type JobExecutor struct {
	logger   *slog.Logger
	registry *JobRegistry
	runner   ports.AgentRunner
	bus      *EventBus
	sem      *semaphore.Weighted
	wg       sync.WaitGroup
}

func NewJobExecutor(logger *slog.Logger, registry *JobRegistry, runner ports.AgentRunner, bus *EventBus, cfg ExecutorConfig) *JobExecutor {
	var sem *semaphore.Weighted
	if cfg.MaxConcurrentJobs > 0 {
		sem = semaphore.NewWeighted(cfg.MaxConcurrentJobs)
	}
	return &JobExecutor{
		logger:   logger,
		registry: registry,
		runner:   runner,
		bus:      bus,
		sem:      sem,
	}
}

// Submit registers the job and schedules it for background execution,
// returning the id immediately. The Queued record is already visible to
// readers when this returns.
func (e *JobExecutor) Submit(kind domain.JobKind, payload domain.Payload) domain.JobID {
	id := e.registry.Allocate(kind, payload)
	e.bus.Publish(JobEvent{JobID: id, Status: domain.JobStatusQueued})

	e.wg.Add(1)
	go e.execute(id)
	return id
}

// execute owns the record for id: it is the only writer for the job's whole
// lifetime. The job deliberately runs on a detached context — it must outlive
// the submitting request/response cycle.
func (e *JobExecutor) execute(id domain.JobID) {
	defer e.wg.Done()
	ctx := context.Background()

	if e.sem != nil {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			e.finalize(id, nil, fmt.Errorf("acquiring execution slot: %w", err))
			return
		}
		defer e.sem.Release(1)
	}

	// The runner is opaque code; a panic there must land in the record's
	// error field instead of escaping.
	defer func() {
		if r := recover(); r != nil {
			e.finalize(id, nil, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := e.registry.Update(id, func(j *domain.Job) {
		j.Status = domain.JobStatusRunning
	}); err != nil {
		e.logger.Error("cannot mark job running", "job_id", id, "error", err)
		return
	}
	e.bus.Publish(JobEvent{JobID: id, Status: domain.JobStatusRunning})
	e.logger.Info("job running", "job_id", id)

	job, err := e.registry.Get(id)
	if err != nil {
		e.logger.Error("job record disappeared", "job_id", id, "error", err)
		return
	}

	result, runErr := e.runner.Run(ctx, job)
	if runErr == nil && !result.Matches(job.Kind) {
		result = nil
		runErr = fmt.Errorf("runner returned a malformed result for kind %q", job.Kind)
	}
	e.finalize(id, result, runErr)
}

// finalize performs the single Running -> terminal transition. The registry
// refuses mutations on terminal records, so a stray second call (e.g. a panic
// after a clean finalize) cannot re-transition the job.
func (e *JobExecutor) finalize(id domain.JobID, result *domain.Result, runErr error) {
	now := time.Now()

	if runErr != nil {
		msg := fmt.Sprintf("Error: %s", runErr.Error())
		if err := e.registry.Update(id, func(j *domain.Job) {
			j.Status = domain.JobStatusFailed
			j.Error = &msg
			j.Result = nil
			j.FinishedAt = &now
		}); err != nil {
			e.logger.Error("failed to record job failure", "job_id", id, "error", err)
			return
		}
		e.bus.Publish(JobEvent{JobID: id, Status: domain.JobStatusFailed, Message: msg})
		e.logger.Error("job failed", "job_id", id, "error", runErr)
		return
	}

	if err := e.registry.Update(id, func(j *domain.Job) {
		j.Status = domain.JobStatusCompleted
		j.Result = result
		j.Error = nil
		j.FinishedAt = &now
	}); err != nil {
		e.logger.Error("failed to record job completion", "job_id", id, "error", err)
		return
	}
	e.bus.Publish(JobEvent{JobID: id, Status: domain.JobStatusCompleted})
	e.logger.Info("job completed", "job_id", id)
}

// Drain blocks until all in-flight jobs have written their terminal records,
// or the timeout elapses. Returns true when everything finished.
func (e *JobExecutor) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
