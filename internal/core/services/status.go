package services

import (
	"encoding/json"
	"fmt"

	"github.com/cortexlab/pathfinder/internal/core/domain"
)

// RunningView is the minimal in-flight shape. No speculative partial results
// ever leak out before the record is terminal.
type RunningView struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// AgentRunView is the caller-facing shape of a completed agent run. Action
// and thought logs are flattened to JSON strings because the original wire
// format cannot carry structure in those fields; the flattening is lossy but
// deterministic.
type AgentRunView struct {
	TaskID        string  `json:"task_id"`
	FinalResult   string  `json:"final_result"`
	Errors        string  `json:"errors"`
	ModelActions  string  `json:"model_actions"`
	ModelThoughts string  `json:"model_thoughts"`
	LatestVideo   *string `json:"latest_video"`
	TraceFile     *string `json:"trace_file"`
	HistoryFile   *string `json:"history_file"`
	Status        string  `json:"status"`
}

// DeepSearchView is the caller-facing shape of a completed deep search.
type DeepSearchView struct {
	TaskID          string  `json:"task_id"`
	MarkdownContent string  `json:"markdown_content"`
	FilePath        *string `json:"file_path"`
	Status          string  `json:"status"`
}

// ErrorView is the caller-facing shape of a failed job of either kind.
// Error and Errors carry the same message: "error" is the canonical field,
// "errors" is kept for callers of the historical agent-run shape.
type ErrorView struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
	Error  string `json:"error"`
	Errors string `json:"errors"`
}

const (
	wireStatusRunning   = "running"
	wireStatusCompleted = "completed"
	wireStatusError     = "error"
)

// StatusService is the read-only query surface over the registry. It never
// mutates records; it only normalizes them into wire shapes.
type StatusService struct {
	registry *JobRegistry
}

func NewStatusService(registry *JobRegistry) *StatusService {
	return &StatusService{registry: registry}
}

// Query returns the normalized view for the job: RunningView while in
// flight, AgentRunView / DeepSearchView on completion, ErrorView on failure,
// or domain.ErrJobNotFound. A terminal record always normalizes to the same
// view on every call.
func (s *StatusService) Query(id domain.JobID) (any, error) {
	job, err := s.registry.Get(id)
	if err != nil {
		return nil, err
	}

	switch job.Status {
	case domain.JobStatusQueued, domain.JobStatusRunning:
		return RunningView{
			Status:  wireStatusRunning,
			Message: fmt.Sprintf("Task %s is still initializing", job.ID),
		}, nil
	case domain.JobStatusFailed:
		msg := ""
		if job.Error != nil {
			msg = *job.Error
		}
		return ErrorView{
			TaskID: string(job.ID),
			Status: wireStatusError,
			Error:  msg,
			Errors: msg,
		}, nil
	}

	// Completed. The executor guarantees the result branch matches the kind.
	switch job.Kind {
	case domain.JobKindDeepSearch:
		res := job.Result.DeepSearch
		return DeepSearchView{
			TaskID:          string(job.ID),
			MarkdownContent: res.MarkdownContent,
			FilePath:        res.FilePath,
			Status:          wireStatusCompleted,
		}, nil
	default:
		res := job.Result.AgentRun
		return AgentRunView{
			TaskID:        string(job.ID),
			FinalResult:   res.FinalResult,
			Errors:        res.Errors,
			ModelActions:  flattenLog(res.ModelActions),
			ModelThoughts: flattenLog(res.ModelThoughts),
			LatestVideo:   res.LatestVideo,
			TraceFile:     res.TraceFile,
			HistoryFile:   res.HistoryFile,
			Status:        wireStatusCompleted,
		}, nil
	}
}

// flattenLog serializes a structured log to a single JSON string. Same input
// always yields the same output; a nil log flattens like an empty one.
func flattenLog(entries []string) string {
	if entries == nil {
		entries = []string{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		// []string cannot fail to marshal; keep the record readable anyway.
		return fmt.Sprintf("%v", entries)
	}
	return string(data)
}
