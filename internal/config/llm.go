package config

// LLMConfig configures the external LLM vendor client consumed through the
// engine's narrow LLMClient interface. The engine never speaks HTTP to a
// vendor directly; it only needs enough configuration to pick a model and
// bound a call.
type LLMConfig struct {
	Provider string `yaml:"provider"` // anthropic, openai, gemini, xai, zai, openrouter
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`

	// CodegenModel is delegated to for generate_code/modify_code/refactor_code/
	// fix_code/debug_code tool invocations. Falls back to Model when empty.
	CodegenModel string `yaml:"codegen_model"`

	// EscalationModel is the stronger (and costlier) model an operation is
	// handed to on escalation. Falls back to Model when empty.
	EscalationModel string `yaml:"escalation_model"`
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"anthropic", "openai", "gemini", "xai", "zai", "openrouter"}
