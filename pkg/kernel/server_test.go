package kernel

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexlab/pathfinder/internal/adapters/recordings"
	"github.com/cortexlab/pathfinder/internal/config"
	"github.com/cortexlab/pathfinder/internal/core/domain"
	"github.com/cortexlab/pathfinder/internal/core/services"
)

type stubRunner struct {
	run func(ctx context.Context, job domain.Job) (*domain.Result, error)
}

func (s *stubRunner) Run(ctx context.Context, job domain.Job) (*domain.Result, error) {
	return s.run(ctx, job)
}

type testEnv struct {
	srv      *httptest.Server
	registry *services.JobRegistry
	stop     *services.GlobalStopSignal
	recDir   string
	histDir  string
}

func newTestEnv(t *testing.T, runner *stubRunner) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	registry := services.NewJobRegistry(logger)
	bus := services.NewEventBus(logger)
	stop := services.NewGlobalStopSignal()
	executor := services.NewJobExecutor(logger, registry, runner, bus, services.ExecutorConfig{})
	status := services.NewStatusService(registry)
	recDir := t.TempDir()
	histDir := t.TempDir()
	files := recordings.NewStore(logger, recDir, histDir)
	defaults := config.NewAgentDefaults(logger)

	server := NewServer(logger, executor, registry, status, stop, bus, files, defaults)
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, registry: registry, stop: stop, recDir: recDir, histDir: histDir}
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func getJSON(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

// extractID recovers the job id from the human-readable message, the way
// historical clients do.
func extractID(t *testing.T, message string) string {
	t.Helper()
	_, after, found := strings.Cut(message, "ID: ")
	require.True(t, found, "message %q carries no id", message)
	return after
}

func TestServer_Root(t *testing.T) {
	env := newTestEnv(t, &stubRunner{run: func(ctx context.Context, job domain.Job) (*domain.Result, error) {
		return nil, errors.New("unused")
	}})

	resp, body := getJSON(t, env.srv.URL+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestServer_DefaultConfig(t *testing.T) {
	env := newTestEnv(t, &stubRunner{run: func(ctx context.Context, job domain.Job) (*domain.Result, error) {
		return nil, errors.New("unused")
	}})

	resp, body := getJSON(t, env.srv.URL+"/config/default")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "anthropic", body["llm_provider"])
	assert.Equal(t, float64(100), body["max_steps"])
}

func TestServer_AgentRunLifecycle(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	env := newTestEnv(t, &stubRunner{run: func(ctx context.Context, job domain.Job) (*domain.Result, error) {
		close(started)
		<-release
		return &domain.Result{AgentRun: &domain.AgentRunResult{
			FinalResult:   "booked the flight",
			ModelActions:  []string{"click"},
			ModelThoughts: []string{"go to site"},
		}}, nil
	}})

	resp, body := postJSON(t, env.srv.URL+"/agent/run", map[string]any{"task": "book a flight"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "started", body["status"])
	assert.Contains(t, body["message"], "Agent run started with ID: ")

	id := extractID(t, body["message"].(string))
	assert.Equal(t, body["task_id"], id)

	// A status query racing the submission sees running, never not-found.
	resp, body = getJSON(t, env.srv.URL+"/agent/status/"+id)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, fmt.Sprintf("Task %s is still initializing", id), body["message"])

	<-started
	close(release)

	require.Eventually(t, func() bool {
		_, body := getJSON(t, env.srv.URL+"/agent/status/"+id)
		return body["status"] == "completed"
	}, 3*time.Second, 10*time.Millisecond)

	_, body = getJSON(t, env.srv.URL+"/agent/status/"+id)
	assert.Equal(t, "booked the flight", body["final_result"])
	assert.Equal(t, `["click"]`, body["model_actions"])
	assert.Equal(t, `["go to site"]`, body["model_thoughts"])
	assert.Equal(t, id, body["task_id"])
}

func TestServer_FailedJobStatusIsStable(t *testing.T) {
	env := newTestEnv(t, &stubRunner{run: func(ctx context.Context, job domain.Job) (*domain.Result, error) {
		return nil, errors.New("boom")
	}})

	_, body := postJSON(t, env.srv.URL+"/agent/run", map[string]any{"task": "explode"})
	id := extractID(t, body["message"].(string))

	require.Eventually(t, func() bool {
		_, body := getJSON(t, env.srv.URL+"/agent/status/"+id)
		return body["status"] == "error"
	}, 3*time.Second, 10*time.Millisecond)

	_, first := getJSON(t, env.srv.URL+"/agent/status/"+id)
	assert.Equal(t, "Error: boom", first["error"])
	assert.Equal(t, "Error: boom", first["errors"])

	_, second := getJSON(t, env.srv.URL+"/agent/status/"+id)
	assert.Equal(t, first, second)
}

func TestServer_DeepSearchLifecycle(t *testing.T) {
	env := newTestEnv(t, &stubRunner{run: func(ctx context.Context, job domain.Job) (*domain.Result, error) {
		assert.Equal(t, domain.JobKindDeepSearch, job.Kind)
		assert.Equal(t, 3, job.Payload.MaxSearchIterations)
		assert.Equal(t, 1, job.Payload.MaxQueryPerIteration)
		return &domain.Result{DeepSearch: &domain.DeepSearchResult{MarkdownContent: "# Findings"}}, nil
	}})

	resp, body := postJSON(t, env.srv.URL+"/deep-search/run", map[string]any{"research_task": "study gophers"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body["message"], "Deep search started with ID: ")

	id := extractID(t, body["message"].(string))
	assert.True(t, strings.HasPrefix(id, "search_"))

	require.Eventually(t, func() bool {
		_, body := getJSON(t, env.srv.URL+"/deep-search/status/"+id)
		return body["status"] == "completed"
	}, 3*time.Second, 10*time.Millisecond)

	_, body = getJSON(t, env.srv.URL+"/deep-search/status/"+id)
	assert.Equal(t, "# Findings", body["markdown_content"])
}

func TestServer_StatusUnknownID(t *testing.T) {
	env := newTestEnv(t, &stubRunner{run: func(ctx context.Context, job domain.Job) (*domain.Result, error) {
		return nil, errors.New("unused")
	}})

	resp, body := getJSON(t, env.srv.URL+"/agent/status/task_999")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Task task_999 not found", body["error"])
}

func TestServer_ValidationRejectsBeforeJobCreation(t *testing.T) {
	env := newTestEnv(t, &stubRunner{run: func(ctx context.Context, job domain.Job) (*domain.Result, error) {
		return nil, errors.New("unused")
	}})

	resp, _ := postJSON(t, env.srv.URL+"/agent/run", map[string]any{"task": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, env.registry.List(), "no record may exist for a rejected submission")

	resp, _ = postJSON(t, env.srv.URL+"/deep-search/run", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_AgentStop(t *testing.T) {
	release := make(chan struct{})
	env := newTestEnv(t, &stubRunner{run: func(ctx context.Context, job domain.Job) (*domain.Result, error) {
		<-release
		return nil, errors.New("stopped by request")
	}})
	defer close(release)

	// Nothing in flight: soft warning, not an error.
	resp, body := postJSON(t, env.srv.URL+"/agent/stop", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "warning", body["status"])
	assert.Equal(t, "No agent is currently running", body["message"])
	assert.False(t, env.stop.ShouldStop())

	postJSON(t, env.srv.URL+"/agent/run", map[string]any{"task": "long haul"})

	resp, body = postJSON(t, env.srv.URL+"/agent/stop", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "Agent stop requested", body["message"])
	assert.True(t, env.stop.ShouldStop())
}

func TestServer_DeepSearchStopAlwaysSucceeds(t *testing.T) {
	env := newTestEnv(t, &stubRunner{run: func(ctx context.Context, job domain.Job) (*domain.Result, error) {
		return nil, errors.New("unused")
	}})

	resp, body := postJSON(t, env.srv.URL+"/deep-search/stop", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body["status"])
	assert.True(t, env.stop.ShouldStop())
}

func TestServer_Recordings(t *testing.T) {
	env := newTestEnv(t, &stubRunner{run: func(ctx context.Context, job domain.Job) (*domain.Result, error) {
		return nil, errors.New("unused")
	}})
	require.NoError(t, os.WriteFile(filepath.Join(env.recDir, "run.webm"), []byte("video-bytes"), 0o644))

	resp, err := http.Get(env.srv.URL + "/recordings")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var recs []recordings.Recording
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "1. run.webm", recs[0].Name)

	fileResp, err := http.Get(env.srv.URL + "/recordings/run.webm")
	require.NoError(t, err)
	defer fileResp.Body.Close()
	require.Equal(t, http.StatusOK, fileResp.StatusCode)
	raw, err := io.ReadAll(fileResp.Body)
	require.NoError(t, err)
	assert.Equal(t, "video-bytes", string(raw))

	missing, err := http.Get(env.srv.URL + "/recordings/missing.webm")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestServer_HistoryFiles(t *testing.T) {
	env := newTestEnv(t, &stubRunner{run: func(ctx context.Context, job domain.Job) (*domain.Result, error) {
		return nil, errors.New("unused")
	}})
	require.NoError(t, os.WriteFile(filepath.Join(env.histDir, "h.json"), []byte(`{"steps":[]}`), 0o644))

	resp, body := getJSON(t, env.srv.URL+"/agent/history-files")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"h.json"}, body["files"])

	fileResp, fileBody := getJSON(t, env.srv.URL+"/agent/history/h.json")
	require.Equal(t, http.StatusOK, fileResp.StatusCode)
	assert.Equal(t, []any{}, fileBody["steps"])
}

func TestServer_JobEventStream(t *testing.T) {
	release := make(chan struct{})
	env := newTestEnv(t, &stubRunner{run: func(ctx context.Context, job domain.Job) (*domain.Result, error) {
		<-release
		return &domain.Result{AgentRun: &domain.AgentRunResult{FinalResult: "done"}}, nil
	}})

	_, body := postJSON(t, env.srv.URL+"/agent/run", map[string]any{"task": "stream me"})
	id := extractID(t, body["message"].(string))

	resp, err := http.Get(env.srv.URL + "/agent/events/" + id)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()

	var statuses []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var e services.JobEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e))
		statuses = append(statuses, string(e.Status))
	}

	// Stream closes on its own after the terminal event.
	require.NotEmpty(t, statuses)
	assert.Equal(t, "COMPLETED", statuses[len(statuses)-1])
}

func TestServer_EventStreamOnFinishedJob(t *testing.T) {
	// The job reaches its terminal state before the stream attaches. The
	// snapshot event must already carry that terminal status and the stream
	// must close on its own instead of waiting for a transition that will
	// never be published again.
	env := newTestEnv(t, &stubRunner{run: func(ctx context.Context, job domain.Job) (*domain.Result, error) {
		return &domain.Result{AgentRun: &domain.AgentRunResult{FinalResult: "done"}}, nil
	}})

	_, body := postJSON(t, env.srv.URL+"/agent/run", map[string]any{"task": "fast"})
	id := extractID(t, body["message"].(string))

	require.Eventually(t, func() bool {
		_, body := getJSON(t, env.srv.URL+"/agent/status/"+id)
		return body["status"] == "completed"
	}, 3*time.Second, 10*time.Millisecond)

	streamCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, env.srv.URL+"/agent/events/"+id, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var statuses []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var e services.JobEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e))
		statuses = append(statuses, string(e.Status))
	}
	require.NoError(t, streamCtx.Err(), "stream must end before the deadline")
	require.Equal(t, []string{"COMPLETED"}, statuses)
}

func TestServer_EventStreamUnknownJob(t *testing.T) {
	env := newTestEnv(t, &stubRunner{run: func(ctx context.Context, job domain.Job) (*domain.Result, error) {
		return nil, errors.New("unused")
	}})

	resp, err := http.Get(env.srv.URL + "/agent/events/task_404")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
