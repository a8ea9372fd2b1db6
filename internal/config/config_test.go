package config

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexlab/pathfinder/internal/core/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8000", cfg.ListenAddr())
	assert.Equal(t, "http://localhost:7788", cfg.AgentEngineURL)
	assert.Equal(t, int64(0), cfg.MaxConcurrentJobs)
	assert.Equal(t, 500*time.Millisecond, cfg.RunnerPollInterval)
	assert.Equal(t, 30*time.Minute, cfg.RunnerMaxRunTime)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PATHFINDER_HOST", "0.0.0.0")
	t.Setenv("PATHFINDER_PORT", "9001")
	t.Setenv("PATHFINDER_MAX_CONCURRENT_JOBS", "4")
	t.Setenv("PATHFINDER_RUNNER_POLL_INTERVAL", "2s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9001", cfg.ListenAddr())
	assert.Equal(t, int64(4), cfg.MaxConcurrentJobs)
	assert.Equal(t, 2*time.Second, cfg.RunnerPollInterval)
}

func TestLoad_MalformedEnv(t *testing.T) {
	t.Setenv("PATHFINDER_PORT", "not-a-port")

	_, err := Load()
	assert.Error(t, err)
}

func TestAgentDefaults(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	defaults := NewAgentDefaults(logger)

	cfg := defaults.Get()
	assert.Equal(t, "anthropic", cfg.LLMProvider)
	assert.Equal(t, 100, cfg.MaxSteps)
	assert.True(t, cfg.EnableRecording)

	cfg.LLMProvider = "ollama"
	cfg.Headless = true
	defaults.Set(cfg)

	got := defaults.Get()
	assert.Equal(t, "ollama", got.LLMProvider)
	assert.True(t, got.Headless)

	// Set stores a copy of the document, not shared state.
	cfg.LLMProvider = "changed-after-set"
	assert.Equal(t, "ollama", defaults.Get().LLMProvider)

	assert.Equal(t, domain.DefaultAgentConfig().MaxSteps, got.MaxSteps)
}
