package client

import (
	"errors"
	"fmt"
)

var (
	// ErrPollTimeout means the job did not reach a terminal status within
	// the poller's wait budget. The job may still be running server-side.
	ErrPollTimeout = errors.New("client: poll wait budget exceeded")

	// ErrRetriesExhausted means too many consecutive transient failures
	// (network errors, 5xx responses, malformed bodies) without a single
	// well-formed response in between.
	ErrRetriesExhausted = errors.New("client: transient retries exhausted")
)

// APIError is a non-retryable HTTP error response, typically a 4xx.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("client: api error %d: %s", e.StatusCode, e.Message)
}

// NotFound reports whether the server does not know the task id.
func (e *APIError) NotFound() bool { return e.StatusCode == 404 }

// JobFailedError means the job reached a terminal error status. The
// terminal snapshot is still returned alongside it.
type JobFailedError struct {
	TaskID  string
	Message string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("client: task %s failed: %s", e.TaskID, e.Message)
}

// transientError marks failures the poller is allowed to retry.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
