package domain

// AgentConfig is the execution configuration carried inside a job payload.
// Field names and defaults mirror the public config document served at
// /config/default, so callers can fetch it, tweak a field and submit.
type AgentConfig struct {
	AgentType            string  `json:"agent_type"`
	MaxSteps             int     `json:"max_steps"`
	MaxActionsPerStep    int     `json:"max_actions_per_step"`
	UseVision            bool    `json:"use_vision"`
	ToolCallingMethod    string  `json:"tool_calling_method"`
	LLMProvider          string  `json:"llm_provider"`
	LLMModelName         string  `json:"llm_model_name"`
	LLMNumCtx            int     `json:"llm_num_ctx"`
	LLMTemperature       float64 `json:"llm_temperature"`
	LLMBaseURL           string  `json:"llm_base_url"`
	LLMAPIKey            string  `json:"llm_api_key"`
	UseOwnBrowser        bool    `json:"use_own_browser"`
	KeepBrowserOpen      bool    `json:"keep_browser_open"`
	Headless             bool    `json:"headless"`
	DisableSecurity      bool    `json:"disable_security"`
	EnableRecording      bool    `json:"enable_recording"`
	WindowW              int     `json:"window_w"`
	WindowH              int     `json:"window_h"`
	SaveRecordingPath    string  `json:"save_recording_path"`
	SaveTracePath        string  `json:"save_trace_path"`
	SaveAgentHistoryPath string  `json:"save_agent_history_path"`
}

// DefaultAgentConfig returns the baseline configuration used when the caller
// does not override anything.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		AgentType:            "custom",
		MaxSteps:             100,
		MaxActionsPerStep:    10,
		UseVision:            true,
		ToolCallingMethod:    "auto",
		LLMProvider:          "anthropic",
		LLMModelName:         "claude-3-5-sonnet-20241022",
		LLMNumCtx:            32000,
		LLMTemperature:       1.0,
		UseOwnBrowser:        false,
		KeepBrowserOpen:      false,
		Headless:             false,
		DisableSecurity:      true,
		EnableRecording:      true,
		WindowW:              1280,
		WindowH:              1100,
		SaveRecordingPath:    "./tmp/record_videos",
		SaveTracePath:        "./tmp/traces",
		SaveAgentHistoryPath: "./tmp/agent_history",
	}
}
