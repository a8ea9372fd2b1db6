package domain

import (
	"errors"
	"time"
)

type JobID string

type JobKind string

const (
	JobKindAgentRun   JobKind = "agent_run"
	JobKindDeepSearch JobKind = "deep_search"
)

// IDPrefix returns the identifier prefix used for jobs of this kind.
func (k JobKind) IDPrefix() string {
	if k == JobKindDeepSearch {
		return "search"
	}
	return "task"
}

type JobStatus string

const (
	JobStatusQueued    JobStatus = "QUEUED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
)

// Terminal reports whether the status is absorbing: a job that reached it
// never transitions again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Payload is the caller-supplied task description and execution
// configuration. The registry never interprets it; only the runner does.
type Payload struct {
	Task                 string      `json:"task"`
	AddInfos             string      `json:"add_infos,omitempty"`
	MaxSearchIterations  int         `json:"max_search_iterations,omitempty"`
	MaxQueryPerIteration int         `json:"max_query_per_iteration,omitempty"`
	Config               AgentConfig `json:"config"`
}

// AgentRunResult is the structured output of a browser agent run.
// ModelActions and ModelThoughts stay structured here; the status service
// flattens them for callers whose representation cannot carry lists.
type AgentRunResult struct {
	FinalResult   string   `json:"final_result"`
	Errors        string   `json:"errors"`
	ModelActions  []string `json:"model_actions"`
	ModelThoughts []string `json:"model_thoughts"`
	LatestVideo   *string  `json:"latest_video,omitempty"`
	TraceFile     *string  `json:"trace_file,omitempty"`
	HistoryFile   *string  `json:"history_file,omitempty"`
}

// DeepSearchResult is the structured output of a deep search run.
type DeepSearchResult struct {
	MarkdownContent string  `json:"markdown_content"`
	FilePath        *string `json:"file_path,omitempty"`
}

// Result is a tagged variant: exactly one branch is set, matching the kind
// of the job that produced it.
type Result struct {
	AgentRun   *AgentRunResult   `json:"agent_run,omitempty"`
	DeepSearch *DeepSearchResult `json:"deep_search,omitempty"`
}

// Matches reports whether the populated branch agrees with the job kind.
func (r *Result) Matches(kind JobKind) bool {
	if r == nil {
		return false
	}
	switch kind {
	case JobKindAgentRun:
		return r.AgentRun != nil && r.DeepSearch == nil
	case JobKindDeepSearch:
		return r.DeepSearch != nil && r.AgentRun == nil
	}
	return false
}

// Job is one submitted unit of long-running work.
// Exactly one of Result/Error is set once Status is terminal; neither is set
// while the job is queued or running.
type Job struct {
	ID         JobID      `json:"id"`
	Kind       JobKind    `json:"kind"`
	Status     JobStatus  `json:"status"`
	Payload    Payload    `json:"payload"`
	Result     *Result    `json:"result,omitempty"`
	Error      *string    `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

var (
	ErrJobNotFound = errors.New("job not found")
)
