package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"memengine/internal/logging"

	"gopkg.in/yaml.v3"
)

// Config holds all engine configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	LLM       LLMConfig       `yaml:"llm"`
	Memory    MemoryConfig    `yaml:"memory"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Storage   StorageConfig   `yaml:"storage"`
	CodeIndex CodeIndexConfig `yaml:"code_index"`
	Cache     CacheConfig     `yaml:"cache"`
	Operation OperationConfig `yaml:"operation"`
	Circuit   CircuitBreakerConfig `yaml:"circuit_breaker"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "memengine",
		Version: "0.1.0",

		LLM: LLMConfig{
			Provider: "anthropic",
			Model:    "claude-sonnet-4",
			Timeout:  "120s",
		},

		Memory: MemoryConfig{
			WorkingMemorySize: 20000,
			DatabasePath:      "data/engine.db",
			SessionTTL:        "24h",
			ContextWindow:     DefaultContextWindowConfig(),
		},

		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
			TaskType:       "SEMANTIC_SIMILARITY",
		},

		Storage:   DefaultStorageConfig(),
		CodeIndex: DefaultCodeIndexConfig(),
		Cache:     DefaultCacheConfig(),
		Operation: DefaultOperationConfig(),
		Circuit:   DefaultCircuitBreakerConfig(),

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "engine.log",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults when
// the file does not exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	logging.BootDebug("Loading config from: %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Boot("Config file not found, using defaults: %s", path)
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		logging.BootError("Failed to read config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		logging.BootError("Failed to parse config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	logging.Boot("Config loaded: provider=%s model=%s", cfg.LLM.Provider, cfg.LLM.Model)

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("ZAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "zai"
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "anthropic"
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "openai"
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}
	if key := os.Getenv("XAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "xai"
	}
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "openrouter"
	}

	if path := os.Getenv("ENGINE_DB"); path != "" {
		c.Memory.DatabasePath = path
		c.Storage.DatabasePath = path
	}

	if key := os.Getenv("GENAI_API_KEY"); key != "" {
		c.Embedding.GenAIAPIKey = key
		if c.Embedding.Provider == "" || c.Embedding.Provider == "ollama" {
			c.Embedding.Provider = "genai"
		}
	}
	if endpoint := os.Getenv("OLLAMA_ENDPOINT"); endpoint != "" {
		c.Embedding.OllamaEndpoint = endpoint
	}
	if model := os.Getenv("OLLAMA_EMBEDDING_MODEL"); model != "" {
		c.Embedding.OllamaModel = model
	}
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetSessionTTL returns the session TTL as a duration.
func (c *Config) GetSessionTTL() time.Duration {
	d, err := time.ParseDuration(c.Memory.SessionTTL)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// GetCacheTTL returns the prompt-cache warm TTL as a duration.
func (c *Config) GetCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Cache.TTL)
	if err != nil {
		return 300 * time.Second
	}
	return d
}

// GetOperationHardTimeout returns the per-operation hard timeout.
func (c *Config) GetOperationHardTimeout() time.Duration {
	d, err := time.ParseDuration(c.Operation.HardTimeout)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// GetOperationStepTimeout returns the per-step soft timeout.
func (c *Config) GetOperationStepTimeout() time.Duration {
	d, err := time.ParseDuration(c.Operation.StepTimeout)
	if err != nil {
		return 90 * time.Second
	}
	return d
}

// GetCircuitWindow returns the circuit breaker's failure-counting window.
func (c *Config) GetCircuitWindow() time.Duration {
	d, err := time.ParseDuration(c.Circuit.Window)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// GetCircuitCooldown returns the circuit breaker's open-state cooldown.
func (c *Config) GetCircuitCooldown() time.Duration {
	d, err := time.ParseDuration(c.Circuit.Cooldown)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetWatcherDebounce returns the filesystem watcher's debounce duration.
func (c *Config) GetWatcherDebounce() time.Duration {
	d, err := time.ParseDuration(c.CodeIndex.WatcherDebounce)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// GetWatcherBatchWindow returns the filesystem watcher's batch window.
func (c *Config) GetWatcherBatchWindow() time.Duration {
	d, err := time.ParseDuration(c.CodeIndex.WatcherBatchWindow)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// GetGitSuppressionWindow returns the post-git-mutation suppression window.
func (c *Config) GetGitSuppressionWindow() time.Duration {
	d, err := time.ParseDuration(c.CodeIndex.GitSuppressionWindow)
	if err != nil {
		return 3 * time.Second
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set ANTHROPIC_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY, XAI_API_KEY, ZAI_API_KEY, or OPENROUTER_API_KEY)")
	}

	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	return nil
}
