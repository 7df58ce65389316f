// Package config loads and validates the engine configuration from YAML
// (or JSON5) files with $include resolution and environment variable
// expansion.
package config

import (
	"fmt"
	"os"
	"time"
)

// Config is the root configuration for the reasoning engine.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	LLM           LLMConfig           `yaml:"llm"`
	Storage       StorageConfig       `yaml:"storage"`
	Search        SearchConfig        `yaml:"search"`
	Planner       PlannerConfig       `yaml:"planner"`
	Features      FeaturesConfig      `yaml:"features"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig configures the websocket/REST listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// MaxConcurrentConnections limits simultaneous websocket clients.
	MaxConcurrentConnections int `yaml:"max_concurrent_connections"`

	// HeartbeatInterval is the server ping cadence.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// HeartbeatMaxMissed pongs before the connection is considered dead.
	HeartbeatMaxMissed int `yaml:"heartbeat_max_missed"`

	// AuthSecret enables bearer-JWT verification on connect when set.
	AuthSecret string `yaml:"auth_secret"`
}

// LLMConfig configures the planner and validator model endpoints. Both
// speak the OpenAI chat-completions protocol (OpenAI or self-hosted vLLM).
type LLMConfig struct {
	Planner   LLMEndpointConfig `yaml:"planner"`
	Validator LLMEndpointConfig `yaml:"validator"`
}

// LLMEndpointConfig describes one OpenAI-compatible endpoint.
type LLMEndpointConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// StorageConfig selects and configures the conversation store.
type StorageConfig struct {
	// Driver is "redis" or "memory".
	Driver string `yaml:"driver"`

	// RedisURL in redis://host:port/db form.
	RedisURL string `yaml:"redis_url"`

	// TTL applied uniformly to all conversation keys.
	TTL time.Duration `yaml:"ttl"`
}

// SearchConfig configures the web and task-block search backends.
type SearchConfig struct {
	// WebBackend is "perplexity" or "integrated".
	WebBackend string `yaml:"web_backend"`

	// TaskBlockBackend is "legacy" or "integrated".
	TaskBlockBackend string `yaml:"task_block_backend"`

	Perplexity PerplexityConfig      `yaml:"perplexity"`
	TaskBlock  TaskBlockSearchConfig `yaml:"task_block"`
	Integrated IntegratedConfig      `yaml:"integrated"`
}

// PerplexityConfig configures the Perplexity-style web search endpoint.
type PerplexityConfig struct {
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

// TaskBlockSearchConfig configures the legacy task block catalog API.
type TaskBlockSearchConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	MaxResults int           `yaml:"max_results"`
	Timeout    time.Duration `yaml:"timeout"`
}

// IntegratedConfig configures the combined search endpoint used when a
// backend is set to "integrated".
type IntegratedConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`

	WebMaxResults int    `yaml:"web_max_results"`
	WebModelType  string `yaml:"web_model_type"`

	// TaskBlockSearchType is "llm" or "elastic".
	TaskBlockSearchType  string `yaml:"task_block_search_type"`
	TaskBlockReason      bool   `yaml:"task_block_is_reason_required"`
	ElasticTaskBlockSize int    `yaml:"elastic_task_block_size"`
}

// PlannerConfig bounds the planner loop.
type PlannerConfig struct {
	MaxIterations int `yaml:"max_iterations"`

	// TokenSummarizationLimit triggers history summarization when the
	// estimated prompt size crosses it.
	TokenSummarizationLimit int `yaml:"token_summarization_limit"`

	// MaxToolConcurrency bounds parallel tool execution.
	MaxToolConcurrency int `yaml:"max_tool_concurrency"`

	// FewShotAPIURL/Key configure the remote example retriever; empty
	// falls back to built-in examples.
	FewShotAPIURL string `yaml:"few_shot_api_url"`
	FewShotAPIKey string `yaml:"few_shot_api_key"`
}

// FeaturesConfig holds feature flags.
type FeaturesConfig struct {
	// QueryRefinementMode is "disabled", "inline", or "separate".
	QueryRefinementMode string `yaml:"query_refinement_mode"`

	// EnableReferencing turns on the referencing agent after validation.
	EnableReferencing bool `yaml:"enable_referencing"`

	// StrictValidation promotes structural warnings to errors.
	StrictValidation bool `yaml:"strict_validation"`
}

// ObservabilityConfig configures logging, metrics, and tracing.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// MetricsEnabled exposes Prometheus metrics on /metrics.
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OTLPEndpoint enables trace export when set.
	OTLPEndpoint   string  `yaml:"otlp_endpoint"`
	TraceSampling  float64 `yaml:"trace_sampling"`
	TraceInsecure  bool    `yaml:"trace_insecure"`
	Environment    string  `yaml:"environment"`
	ServiceVersion string  `yaml:"service_version"`
}

// Default returns a configuration with working local-development values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                     "0.0.0.0",
			Port:                     8765,
			MaxConcurrentConnections: 50,
			HeartbeatInterval:        20 * time.Second,
			HeartbeatMaxMissed:       3,
		},
		LLM: LLMConfig{
			Planner: LLMEndpointConfig{
				BaseURL: "http://localhost:8000/v1",
				Model:   "default-model",
				Timeout: 120 * time.Second,
			},
			Validator: LLMEndpointConfig{
				BaseURL: "http://localhost:8000/v1",
				Model:   "default-model",
				Timeout: 120 * time.Second,
			},
		},
		Storage: StorageConfig{
			Driver:   "memory",
			RedisURL: "redis://localhost:6379",
			TTL:      24 * time.Hour,
		},
		Search: SearchConfig{
			WebBackend:       "perplexity",
			TaskBlockBackend: "legacy",
			Perplexity: PerplexityConfig{
				BaseURL:   "https://api.perplexity.ai",
				Model:     "llama-3.1-sonar-small-128k-online",
				MaxTokens: 1024,
				Timeout:   30 * time.Second,
			},
			TaskBlock: TaskBlockSearchConfig{
				BaseURL:    "http://localhost:8000/api/task-blocks",
				MaxResults: 10,
				Timeout:    30 * time.Second,
			},
			Integrated: IntegratedConfig{
				Timeout:              30 * time.Second,
				WebMaxResults:        3,
				WebModelType:         "big",
				TaskBlockSearchType:  "llm",
				TaskBlockReason:      true,
				ElasticTaskBlockSize: 5,
			},
		},
		Planner: PlannerConfig{
			MaxIterations:           10,
			TokenSummarizationLimit: 100000,
			MaxToolConcurrency:      5,
		},
		Features: FeaturesConfig{
			QueryRefinementMode: "disabled",
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			LogFormat:      "json",
			MetricsEnabled: true,
			TraceSampling:  1.0,
		},
	}
}

// Load reads the config file at path, merges it over defaults, applies
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := LoadRaw(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		if err := decodeRawConfig(raw, cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets secrets come from the environment rather than
// the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PLANNER_LLM_API_KEY"); v != "" {
		c.LLM.Planner.APIKey = v
	}
	if v := os.Getenv("VALIDATOR_LLM_API_KEY"); v != "" {
		c.LLM.Validator.APIKey = v
	}
	if v := os.Getenv("WEB_SEARCH_API_KEY"); v != "" {
		c.Search.Perplexity.APIKey = v
	}
	if v := os.Getenv("TASK_BLOCK_SEARCH_API_KEY"); v != "" {
		c.Search.TaskBlock.APIKey = v
	}
	if v := os.Getenv("INTEGRATED_SEARCH_API_KEY"); v != "" {
		c.Search.Integrated.APIKey = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Storage.RedisURL = v
	}
	if v := os.Getenv("GATEWAY_AUTH_SECRET"); v != "" {
		c.Server.AuthSecret = v
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.MaxConcurrentConnections <= 0 {
		return fmt.Errorf("server.max_concurrent_connections must be positive")
	}
	switch c.Storage.Driver {
	case "redis", "memory":
	default:
		return fmt.Errorf("storage.driver must be redis or memory, got %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "redis" && c.Storage.RedisURL == "" {
		return fmt.Errorf("storage.redis_url is required with the redis driver")
	}
	switch c.Features.QueryRefinementMode {
	case "", "disabled", "inline", "separate":
	default:
		return fmt.Errorf("features.query_refinement_mode must be disabled, inline, or separate, got %q", c.Features.QueryRefinementMode)
	}
	switch c.Search.WebBackend {
	case "perplexity", "integrated":
	default:
		return fmt.Errorf("search.web_backend must be perplexity or integrated, got %q", c.Search.WebBackend)
	}
	switch c.Search.TaskBlockBackend {
	case "legacy", "integrated":
	default:
		return fmt.Errorf("search.task_block_backend must be legacy or integrated, got %q", c.Search.TaskBlockBackend)
	}
	if (c.Search.WebBackend == "integrated" || c.Search.TaskBlockBackend == "integrated") && c.Search.Integrated.URL == "" {
		return fmt.Errorf("search.integrated.url is required when an integrated backend is selected")
	}
	if c.Planner.MaxIterations <= 0 {
		return fmt.Errorf("planner.max_iterations must be positive")
	}
	if c.Planner.TokenSummarizationLimit <= 0 {
		return fmt.Errorf("planner.token_summarization_limit must be positive")
	}
	return nil
}
