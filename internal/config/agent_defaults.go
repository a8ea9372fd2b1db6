package config

import (
	"log/slog"
	"sync"

	"github.com/cortexlab/pathfinder/internal/core/domain"
)

// AgentDefaults holds the default agent configuration served at
// /config/default. Reads vastly outnumber writes; a write only happens when
// an operator swaps the baseline at runtime.
type AgentDefaults struct {
	logger *slog.Logger
	mu     sync.RWMutex
	cfg    domain.AgentConfig
}

func NewAgentDefaults(logger *slog.Logger) *AgentDefaults {
	return &AgentDefaults{
		logger: logger,
		cfg:    domain.DefaultAgentConfig(),
	}
}

// Get returns a copy of the current defaults.
func (d *AgentDefaults) Get() domain.AgentConfig {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// Set replaces the defaults for subsequent submissions.
func (d *AgentDefaults) Set(cfg domain.AgentConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg
	d.logger.Info("agent defaults updated", "llm_provider", cfg.LLMProvider, "llm_model", cfg.LLMModelName)
}
