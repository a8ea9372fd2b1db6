package ports

import (
	"context"

	"github.com/cortexlab/pathfinder/internal/core/domain"
)

// AgentRunner abstracts the external browser-agent engine. A call blocks for
// the whole run and returns either a structured result or an error; the
// executor owns turning that outcome into a terminal job record.
//
// Implementations are expected to honor cooperative cancellation by checking
// the stop signal between their own steps, and to return an error when they
// abandon a run because of it.
type AgentRunner interface {
	// Run executes the operation for the given job and returns its result.
	// The result's populated branch must match job.Kind.
	Run(ctx context.Context, job domain.Job) (*domain.Result, error)
}
