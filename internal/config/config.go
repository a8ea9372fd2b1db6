package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the process configuration, loaded from the environment with an
// optional .env file on top.
type Config struct {
	Host string `env:"PATHFINDER_HOST" envDefault:"127.0.0.1"`
	Port int    `env:"PATHFINDER_PORT" envDefault:"8000"`

	// Base URL of the external browser-agent engine the runner talks to.
	AgentEngineURL string `env:"PATHFINDER_AGENT_ENGINE_URL" envDefault:"http://localhost:7788"`

	// <= 0 means no concurrency cap at this layer.
	MaxConcurrentJobs int64 `env:"PATHFINDER_MAX_CONCURRENT_JOBS" envDefault:"0"`

	RecordingPath string `env:"PATHFINDER_RECORDING_PATH" envDefault:"./tmp/record_videos"`
	HistoryPath   string `env:"PATHFINDER_HISTORY_PATH" envDefault:"./tmp/agent_history"`

	// How often the runner polls the engine for progress.
	RunnerPollInterval time.Duration `env:"PATHFINDER_RUNNER_POLL_INTERVAL" envDefault:"500ms"`
	// Hard ceiling on a single run before the runner gives up on the engine.
	RunnerMaxRunTime time.Duration `env:"PATHFINDER_RUNNER_MAX_RUN_TIME" envDefault:"30m"`

	ShutdownTimeout time.Duration `env:"PATHFINDER_SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads .env (if present) and then the environment.
func Load() (Config, error) {
	// Missing .env is the normal case outside dev.
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}
	return cfg, nil
}
