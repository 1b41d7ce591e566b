package config

// Config holds quarry configuration.
// Loaded from ./quarry.yaml or $HOME/.quarry/config.yaml.
type Config struct {
	Provider   ProviderCfg   `mapstructure:"provider" yaml:"provider"`
	Extraction ExtractionCfg `mapstructure:"extraction" yaml:"extraction"`
	Batch      BatchCfg      `mapstructure:"batch" yaml:"batch"`
}

// ProviderCfg configures the LLM provider used for extraction requests.
type ProviderCfg struct {
	Model          string  `mapstructure:"model" yaml:"model"`                     // Model name
	APIKey         string  `mapstructure:"api_key" yaml:"api_key"`                 // API key (supports ${ENV_VAR} syntax)
	BaseURL        string  `mapstructure:"base_url" yaml:"base_url"`               // Override for OpenAI-compatible gateways
	Temperature    float64 `mapstructure:"temperature" yaml:"temperature"`         // Sampling temperature
	MaxTokens      int     `mapstructure:"max_tokens" yaml:"max_tokens"`           // Response token cap (0 = provider default)
	RateLimit      float64 `mapstructure:"rate_limit" yaml:"rate_limit"`           // Requests per minute (0 = unlimited)
	TimeoutSeconds int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"` // Per-request HTTP timeout
}

// ExtractionCfg configures per-document extraction behavior.
type ExtractionCfg struct {
	MaxRetries          int `mapstructure:"max_retries" yaml:"max_retries"`                     // Extra attempts after the first
	RetryBaseDelayMS    int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`     // Linear backoff unit
	MaxFieldsPerRequest int `mapstructure:"max_fields_per_request" yaml:"max_fields_per_request"` // 0 = all fields in one request
	FuzzyMaxEdits       int `mapstructure:"fuzzy_max_edits" yaml:"fuzzy_max_edits"`             // -1 = length-based default

	IncludeChunks  bool `mapstructure:"include_chunks" yaml:"include_chunks"`
	IncludeRaw     bool `mapstructure:"include_raw" yaml:"include_raw"`
	ChunkReasoning bool `mapstructure:"chunk_reasoning" yaml:"chunk_reasoning"`
	ChunkMetrics   bool `mapstructure:"chunk_metrics" yaml:"chunk_metrics"`
}

// BatchCfg configures batch dispatch.
type BatchCfg struct {
	Parallel int `mapstructure:"parallel" yaml:"parallel"` // Concurrent document extractions
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderCfg{
			Model:          "gpt-4o-mini",
			APIKey:         "${OPENAI_API_KEY}",
			Temperature:    0.0,
			RateLimit:      0,
			TimeoutSeconds: 120,
		},
		Extraction: ExtractionCfg{
			MaxRetries:       3,
			RetryBaseDelayMS: 1000,
			FuzzyMaxEdits:    -1,
			IncludeChunks:    true,
			IncludeRaw:       true,
			ChunkReasoning:   true,
			ChunkMetrics:     true,
		},
		Batch: BatchCfg{
			Parallel: 4,
		},
	}
}
