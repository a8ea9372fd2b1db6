// Package agentd talks to the external browser-agent engine over HTTP. The
// engine owns the actual browser/LLM work; this adapter only starts runs,
// polls for progress and relays cooperative stop requests.
package agentd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/cortexlab/pathfinder/internal/core/domain"
)

// StopSignal is the cooperative stop contract the runner honors between its
// polling checkpoints. Clearing a stale flag at run start is this runner's
// policy: each run begins unsignalled.
type StopSignal interface {
	ShouldStop() bool
	Clear()
}

type Options struct {
	// PollInterval is the gap between progress checks. Default 500ms.
	PollInterval time.Duration
	// MaxRunTime caps one engine run. Default 30m.
	MaxRunTime time.Duration
	// StopGrace is how long to keep polling for a terminal state after a
	// stop was relayed, before giving up on the engine. Default 10s.
	StopGrace time.Duration
}

// Runner implements ports.AgentRunner against the engine's run API.
type Runner struct {
	baseURL string
	client  *http.Client
	stop    StopSignal
	opts    Options
}

func NewRunner(baseURL string, stop StopSignal, opts Options) *Runner {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.MaxRunTime <= 0 {
		opts.MaxRunTime = 30 * time.Minute
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = 10 * time.Second
	}
	return &Runner{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		stop:    stop,
		opts:    opts,
	}
}

type startRunRequest struct {
	ClientRunID          string             `json:"client_run_id"`
	Kind                 domain.JobKind     `json:"kind"`
	Task                 string             `json:"task"`
	AddInfos             string             `json:"add_infos,omitempty"`
	MaxSearchIterations  int                `json:"max_search_iterations,omitempty"`
	MaxQueryPerIteration int                `json:"max_query_per_iteration,omitempty"`
	Config               domain.AgentConfig `json:"config"`
}

type startRunResponse struct {
	RunID string `json:"run_id"`
}

type runStateResponse struct {
	State      string                   `json:"state"` // pending | running | done | error
	Error      string                   `json:"error,omitempty"`
	AgentRun   *domain.AgentRunResult   `json:"agent_run,omitempty"`
	DeepSearch *domain.DeepSearchResult `json:"deep_search,omitempty"`
}

// Run blocks for the whole engine run, polling for progress and checking the
// stop flag at every tick. It returns the structured result or an error; the
// executor turns either into the terminal record.
func (r *Runner) Run(ctx context.Context, job domain.Job) (*domain.Result, error) {
	r.stop.Clear()

	runID, err := r.startRun(ctx, job)
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()
	deadline := time.After(r.opts.MaxRunTime)

	stopRelayed := false
	var stopDeadline <-chan time.Time
	consecutiveFailures := 0

	for {
		select {
		case <-ctx.Done():
			r.stopRun(runID)
			return nil, ctx.Err()
		case <-deadline:
			r.stopRun(runID)
			return nil, fmt.Errorf("run exceeded maximum duration %s", r.opts.MaxRunTime)
		case <-stopDeadline:
			return nil, fmt.Errorf("stopped by request")
		case <-ticker.C:
			if !stopRelayed && r.stop.ShouldStop() {
				r.stopRun(runID)
				stopRelayed = true
				stopDeadline = time.After(r.opts.StopGrace)
			}

			state, err := r.getRunState(ctx, runID)
			if err != nil {
				// One flaky poll must not kill a long run.
				consecutiveFailures++
				if consecutiveFailures >= 5 {
					return nil, fmt.Errorf("engine unreachable: %w", err)
				}
				continue
			}
			consecutiveFailures = 0

			switch state.State {
			case "done":
				// Reached also after a relayed stop: the engine may choose a
				// degraded completion with partial results, and we honor it.
				return buildResult(job.Kind, state)
			case "error":
				msg := state.Error
				if msg == "" {
					msg = "engine reported failure without detail"
				}
				if stopRelayed {
					return nil, fmt.Errorf("stopped by request")
				}
				return nil, fmt.Errorf("%s", msg)
			}
		}
	}
}

func buildResult(kind domain.JobKind, state *runStateResponse) (*domain.Result, error) {
	switch kind {
	case domain.JobKindDeepSearch:
		if state.DeepSearch == nil {
			return nil, fmt.Errorf("engine returned no deep search result")
		}
		return &domain.Result{DeepSearch: state.DeepSearch}, nil
	default:
		if state.AgentRun == nil {
			return nil, fmt.Errorf("engine returned no agent run result")
		}
		return &domain.Result{AgentRun: state.AgentRun}, nil
	}
}

func (r *Runner) startRun(ctx context.Context, job domain.Job) (string, error) {
	body := startRunRequest{
		ClientRunID:          uuid.New().String(),
		Kind:                 job.Kind,
		Task:                 job.Payload.Task,
		AddInfos:             job.Payload.AddInfos,
		MaxSearchIterations:  job.Payload.MaxSearchIterations,
		MaxQueryPerIteration: job.Payload.MaxQueryPerIteration,
		Config:               job.Payload.Config,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/runs", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("engine connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("engine rejected run: status %d", resp.StatusCode)
	}

	var started startRunResponse
	if err := json.NewDecoder(resp.Body).Decode(&started); err != nil {
		return "", fmt.Errorf("failed to decode engine response: %w", err)
	}
	if started.RunID == "" {
		return "", fmt.Errorf("engine returned empty run id")
	}
	return started.RunID, nil
}

func (r *Runner) getRunState(ctx context.Context, runID string) (*runStateResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/v1/runs/"+runID, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("engine connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("engine returned status %d", resp.StatusCode)
	}

	var state runStateResponse
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("failed to decode engine response: %w", err)
	}
	return &state, nil
}

// stopRun relays a stop to the engine. Best effort: the flag can only ask.
func (r *Runner) stopRun(runID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/runs/"+runID+"/stop", nil)
	if err != nil {
		return
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}
