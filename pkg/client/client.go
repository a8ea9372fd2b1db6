// Package client is a Go client for the Pathfinder API: submission helpers
// plus a polling loop that waits for a job's terminal status with a bounded
// transient-retry budget.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// idDelimiter separates the human-readable preamble from the job id in
// submission acknowledgements ("Agent run started with ID: task_7").
const idDelimiter = "ID: "

type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AgentRunRequest describes a browser-agent task submission.
type AgentRunRequest struct {
	Task     string          `json:"task"`
	AddInfos string          `json:"add_infos,omitempty"`
	Config   json.RawMessage `json:"config,omitempty"`
}

// DeepSearchRequest describes a deep-search task submission.
type DeepSearchRequest struct {
	ResearchTask         string          `json:"research_task"`
	MaxSearchIterations  int             `json:"max_search_iterations,omitempty"`
	MaxQueryPerIteration int             `json:"max_query_per_iteration,omitempty"`
	Config               json.RawMessage `json:"config,omitempty"`
}

// Ack is the immediate acknowledgement for submissions and stop requests.
type Ack struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	TaskID  string `json:"task_id,omitempty"`
}

// StatusSnapshot is one poll observation. Which fields are set depends on
// the job's kind and status; Status is always present.
type StatusSnapshot struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	TaskID  string `json:"task_id,omitempty"`

	// Agent run terminal fields.
	FinalResult   string  `json:"final_result,omitempty"`
	Errors        string  `json:"errors,omitempty"`
	ModelActions  string  `json:"model_actions,omitempty"`
	ModelThoughts string  `json:"model_thoughts,omitempty"`
	LatestVideo   *string `json:"latest_video,omitempty"`
	TraceFile     *string `json:"trace_file,omitempty"`
	HistoryFile   *string `json:"history_file,omitempty"`

	// Deep search terminal fields.
	MarkdownContent string  `json:"markdown_content,omitempty"`
	FilePath        *string `json:"file_path,omitempty"`

	// Failure detail.
	Error string `json:"error,omitempty"`
}

// Terminal reports whether this snapshot is final.
func (s *StatusSnapshot) Terminal() bool {
	return s.Status == "completed" || s.Status == "error"
}

// PollOptions controls WaitForAgent / WaitForDeepSearch.
type PollOptions struct {
	// Interval between polls; ignored when Backoff is set.
	Interval time.Duration
	// Backoff overrides the constant interval.
	Backoff Backoff
	// MaxWait bounds the total wait. Zero means 10 minutes.
	MaxWait time.Duration
	// MaxTransientRetries bounds consecutive transient failures. The
	// counter resets on every well-formed response. Zero means 5.
	MaxTransientRetries int
}

func (o PollOptions) withDefaults() PollOptions {
	if o.Interval <= 0 {
		o.Interval = 2 * time.Second
	}
	if o.Backoff == nil {
		o.Backoff = Constant(o.Interval)
	}
	if o.MaxWait <= 0 {
		o.MaxWait = 10 * time.Minute
	}
	if o.MaxTransientRetries <= 0 {
		o.MaxTransientRetries = 5
	}
	return o
}

// SubmitAgentRun submits a task and returns the allocated id without
// waiting for the run to finish.
func (c *Client) SubmitAgentRun(ctx context.Context, req AgentRunRequest) (string, error) {
	return c.submit(ctx, "/agent/run", req)
}

// SubmitDeepSearch submits a research task and returns the allocated id.
func (c *Client) SubmitDeepSearch(ctx context.Context, req DeepSearchRequest) (string, error) {
	return c.submit(ctx, "/deep-search/run", req)
}

func (c *Client) submit(ctx context.Context, path string, body any) (string, error) {
	var ack Ack
	if err := c.postJSON(ctx, path, body, &ack); err != nil {
		return "", err
	}
	if ack.TaskID != "" {
		return ack.TaskID, nil
	}
	// Older servers only carry the id inside the message text.
	_, id, found := strings.Cut(ack.Message, idDelimiter)
	if !found || id == "" {
		return "", fmt.Errorf("client: no task id in acknowledgement %q", ack.Message)
	}
	return id, nil
}

// AgentStatus fetches the current status of an agent run.
func (c *Client) AgentStatus(ctx context.Context, id string) (*StatusSnapshot, error) {
	snap, err := c.fetchStatus(ctx, "/agent/status/"+id)
	if err != nil {
		return nil, unwrapTransient(err)
	}
	return snap, nil
}

// DeepSearchStatus fetches the current status of a deep search.
func (c *Client) DeepSearchStatus(ctx context.Context, id string) (*StatusSnapshot, error) {
	snap, err := c.fetchStatus(ctx, "/deep-search/status/"+id)
	if err != nil {
		return nil, unwrapTransient(err)
	}
	return snap, nil
}

// WaitForAgent polls an agent run until it reaches a terminal status. On a
// terminal error status the snapshot is returned together with a
// *JobFailedError.
func (c *Client) WaitForAgent(ctx context.Context, id string, opts PollOptions) (*StatusSnapshot, error) {
	return c.poll(ctx, "/agent/status/"+id, id, opts)
}

// WaitForDeepSearch polls a deep search until it reaches a terminal status.
func (c *Client) WaitForDeepSearch(ctx context.Context, id string, opts PollOptions) (*StatusSnapshot, error) {
	return c.poll(ctx, "/deep-search/status/"+id, id, opts)
}

// RunAgent submits and waits in one call.
func (c *Client) RunAgent(ctx context.Context, req AgentRunRequest, opts PollOptions) (*StatusSnapshot, error) {
	id, err := c.SubmitAgentRun(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.WaitForAgent(ctx, id, opts)
}

// RunDeepSearch submits and waits in one call.
func (c *Client) RunDeepSearch(ctx context.Context, req DeepSearchRequest, opts PollOptions) (*StatusSnapshot, error) {
	id, err := c.SubmitDeepSearch(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.WaitForDeepSearch(ctx, id, opts)
}

func (c *Client) poll(ctx context.Context, statusPath, id string, opts PollOptions) (*StatusSnapshot, error) {
	opts = opts.withDefaults()
	deadline := time.Now().Add(opts.MaxWait)

	retries := 0
	for attempt := 1; ; attempt++ {
		snap, err := c.fetchStatus(ctx, statusPath)
		switch {
		case err == nil:
			if snap.Terminal() {
				if snap.Status == "error" {
					msg := snap.Error
					if msg == "" {
						msg = snap.Errors
					}
					return snap, &JobFailedError{TaskID: id, Message: msg}
				}
				return snap, nil
			}
			// A healthy non-terminal poll restores the full retry budget.
			retries = 0
		case isTransient(err):
			if retries >= opts.MaxTransientRetries {
				return nil, fmt.Errorf("%w: %v", ErrRetriesExhausted, unwrapTransient(err))
			}
			retries++
		default:
			return nil, err
		}

		delay := opts.Backoff.Next(attempt)
		if time.Now().Add(delay).After(deadline) {
			return nil, ErrPollTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// StopAgent requests cooperative cancellation of the running agent.
func (c *Client) StopAgent(ctx context.Context) (*Ack, error) {
	var ack Ack
	if err := c.postJSON(ctx, "/agent/stop", nil, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// StopDeepSearch requests cooperative cancellation of the running search.
func (c *Client) StopDeepSearch(ctx context.Context) (*Ack, error) {
	var ack Ack
	if err := c.postJSON(ctx, "/deep-search/stop", nil, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// Health checks the API root.
func (c *Client) Health(ctx context.Context) (*Ack, error) {
	var ack Ack
	if err := c.getJSON(ctx, "/", &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// DefaultConfig fetches the server's default agent configuration.
func (c *Client) DefaultConfig(ctx context.Context) (map[string]any, error) {
	var cfg map[string]any
	if err := c.getJSON(ctx, "/config/default", &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Recording is one entry from the recordings listing.
type Recording struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// Recordings lists the recorded run videos.
func (c *Client) Recordings(ctx context.Context) ([]Recording, error) {
	var recs []Recording
	if err := c.getJSON(ctx, "/recordings", &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// HistoryFiles lists the stored agent history file names.
func (c *Client) HistoryFiles(ctx context.Context) ([]string, error) {
	var out struct {
		Files []string `json:"files"`
	}
	if err := c.getJSON(ctx, "/agent/history-files", &out); err != nil {
		return nil, err
	}
	return out.Files, nil
}

// fetchStatus classifies failures for the poll loop: network errors, 5xx
// responses and malformed bodies come back wrapped as transient; 4xx come
// back as *APIError.
func (c *Client) fetchStatus(ctx context.Context, path string) (*StatusSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &transientError{err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transientError{err: err}
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, &transientError{err: fmt.Errorf("server error %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))}
	case resp.StatusCode >= 400:
		return nil, &APIError{StatusCode: resp.StatusCode, Message: apiMessage(raw)}
	}

	var snap StatusSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, &transientError{err: fmt.Errorf("malformed status body: %w", err)}
	}
	return &snap, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Message: apiMessage(raw)}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// apiMessage pulls the error text out of {"error": "..."} bodies, falling
// back to the raw body.
func apiMessage(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}

func unwrapTransient(err error) error {
	var te *transientError
	if errors.As(err, &te) {
		return te.err
	}
	return err
}
