// Package config loads the YAML configuration surface for the agent runner.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	// Provider selects the transport: "openai" or "anthropic".
	Provider string `yaml:"provider"`

	// Model overrides the provider's default model.
	Model string `yaml:"model"`

	// SystemPrompt is enqueued once at the start of a run.
	SystemPrompt string `yaml:"system_prompt"`

	MaxIterations   int    `yaml:"max_iterations"`
	ToolChoice      string `yaml:"tool_choice"`
	RequireDoneTool bool   `yaml:"require_done_tool"`

	// Compaction is the compaction policy. An explicit `compaction: null`
	// disables the service entirely; an absent key means defaults.
	Compaction CompactionSection `yaml:"compaction"`

	ToolOutputCache ToolOutputCacheConfig `yaml:"tool_output_cache"`

	// HTTP retry policy, owned by the provider transports.
	LLMMaxRetries           int   `yaml:"llm_max_retries"`
	LLMRetryBaseDelayMs     int   `yaml:"llm_retry_base_delay_ms"`
	LLMRetryMaxDelayMs      int   `yaml:"llm_retry_max_delay_ms"`
	LLMRetryableStatusCodes []int `yaml:"llm_retryable_status_codes"`

	OpenAI    OpenAIConfig    `yaml:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic"`

	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
}

// CompactionConfig mirrors the compaction service policy.
type CompactionConfig struct {
	Enabled         *bool    `yaml:"enabled"`
	Auto            *bool    `yaml:"auto"`
	ThresholdRatio  float64  `yaml:"threshold_ratio"`
	Model           string   `yaml:"model"`
	SummaryPrompt   string   `yaml:"summary_prompt"`
	RetainPrompt    string   `yaml:"retain_prompt"`
	RetainLastTurns int      `yaml:"retain_last_turns"`
	Directives      []string `yaml:"directives"`
}

// CompactionSection distinguishes an explicit null (service disabled) from an
// absent or populated mapping.
type CompactionSection struct {
	// Null is true when the key was present with a null value.
	Null bool

	Config CompactionConfig
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *CompactionSection) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!null" {
		s.Null = true
		return nil
	}
	return node.Decode(&s.Config)
}

// ToolOutputCacheConfig mirrors the tool-output cache policy.
type ToolOutputCacheConfig struct {
	Enabled             *bool `yaml:"enabled"`
	ContextBudgetTokens int   `yaml:"context_budget_tokens"`
	TotalBudgetTrim     *bool `yaml:"total_budget_trim"`
	MaxMessageBytes     int   `yaml:"max_message_bytes"`
	MaxLineLength       int   `yaml:"max_line_length"`
}

// OpenAIConfig is the OpenAI transport section.
type OpenAIConfig struct {
	APIKey          string `yaml:"api_key"`
	BaseURL         string `yaml:"base_url"`
	DefaultModel    string `yaml:"default_model"`
	ReasoningEffort string `yaml:"reasoning_effort"`

	WebsocketMode                  string `yaml:"websocket_mode"`
	WebsocketAPIVersion            string `yaml:"websocket_api_version"`
	WebsocketConnectTimeoutMs      int    `yaml:"websocket_connect_timeout_ms"`
	WebsocketResponseIdleTimeoutMs int    `yaml:"websocket_response_idle_timeout_ms"`
}

// AnthropicConfig is the Anthropic transport section.
type AnthropicConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
	MaxTokens    int    `yaml:"max_tokens"`
}

// StoreConfig selects the tool-output store backend.
type StoreConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend"`

	// Path is the SQLite database file for the sqlite backend.
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a config file, expanding ${ENV} references before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse([]byte(os.ExpandEnv(string(data))))
}

// Parse decodes config bytes, applies defaults, and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Provider == "" {
		cfg.Provider = "anthropic"
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = 200
	}
	if cfg.LLMMaxRetries == 0 {
		cfg.LLMMaxRetries = 3
	}
	if cfg.LLMRetryBaseDelayMs == 0 {
		cfg.LLMRetryBaseDelayMs = 500
	}
	if cfg.LLMRetryMaxDelayMs == 0 {
		cfg.LLMRetryMaxDelayMs = 30000
	}
	if cfg.OpenAI.WebsocketMode == "" {
		cfg.OpenAI.WebsocketMode = "off"
	}
	if cfg.OpenAI.WebsocketAPIVersion == "" {
		cfg.OpenAI.WebsocketAPIVersion = "v2"
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Validate rejects values the runner cannot act on.
func (c *Config) Validate() error {
	switch c.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("config: unknown provider %q", c.Provider)
	}
	switch c.OpenAI.WebsocketMode {
	case "off", "auto", "on":
	default:
		return fmt.Errorf("config: openai.websocket_mode must be off, auto, or on")
	}
	switch c.OpenAI.WebsocketAPIVersion {
	case "v1", "v2":
	default:
		return fmt.Errorf("config: openai.websocket_api_version must be v1 or v2")
	}
	switch c.Store.Backend {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("config: store.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	if r := c.Compaction.Config.ThresholdRatio; r < 0 || r > 1 {
		return fmt.Errorf("config: compaction.threshold_ratio must be within [0, 1]")
	}
	return nil
}
