package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides_LLM(t *testing.T) {
	t.Run("ZAI_API_KEY sets provider if empty", func(t *testing.T) {
		t.Setenv("ZAI_API_KEY", "zai-key")
		t.Setenv("ANTHROPIC_API_KEY", "")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "zai-key", cfg.LLM.APIKey)
		assert.Equal(t, "zai", cfg.LLM.Provider)
	})

	t.Run("ANTHROPIC_API_KEY overrides provider", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "ant-key")

		cfg := &Config{
			LLM: LLMConfig{Provider: "initial"},
		}
		cfg.applyEnvOverrides()

		assert.Equal(t, "ant-key", cfg.LLM.APIKey)
		assert.Equal(t, "anthropic", cfg.LLM.Provider)
	})

	t.Run("Precedence: Full Chain", func(t *testing.T) {
		t.Run("All Set -> OpenRouter", func(t *testing.T) {
			setAllLLMKeys(t)
			cfg := &Config{}
			cfg.applyEnvOverrides()
			assert.Equal(t, "or", cfg.LLM.APIKey)
			assert.Equal(t, "openrouter", cfg.LLM.Provider)
		})

		t.Run("No OpenRouter -> XAI", func(t *testing.T) {
			setAllLLMKeys(t)
			t.Setenv("OPENROUTER_API_KEY", "")
			cfg := &Config{}
			cfg.applyEnvOverrides()
			assert.Equal(t, "xai", cfg.LLM.APIKey)
			assert.Equal(t, "xai", cfg.LLM.Provider)
		})

		t.Run("No XAI -> Gemini", func(t *testing.T) {
			setAllLLMKeys(t)
			t.Setenv("OPENROUTER_API_KEY", "")
			t.Setenv("XAI_API_KEY", "")
			cfg := &Config{}
			cfg.applyEnvOverrides()
			assert.Equal(t, "gem", cfg.LLM.APIKey)
			assert.Equal(t, "gemini", cfg.LLM.Provider)
		})

		t.Run("No Gemini -> OpenAI", func(t *testing.T) {
			setAllLLMKeys(t)
			t.Setenv("OPENROUTER_API_KEY", "")
			t.Setenv("XAI_API_KEY", "")
			t.Setenv("GEMINI_API_KEY", "")
			cfg := &Config{}
			cfg.applyEnvOverrides()
			assert.Equal(t, "oa", cfg.LLM.APIKey)
			assert.Equal(t, "openai", cfg.LLM.Provider)
		})

		t.Run("No OpenAI -> Anthropic", func(t *testing.T) {
			setAllLLMKeys(t)
			t.Setenv("OPENROUTER_API_KEY", "")
			t.Setenv("XAI_API_KEY", "")
			t.Setenv("GEMINI_API_KEY", "")
			t.Setenv("OPENAI_API_KEY", "")
			cfg := &Config{}
			cfg.applyEnvOverrides()
			assert.Equal(t, "ant", cfg.LLM.APIKey)
			assert.Equal(t, "anthropic", cfg.LLM.Provider)
		})

		t.Run("No Anthropic -> ZAI", func(t *testing.T) {
			setAllLLMKeys(t)
			t.Setenv("OPENROUTER_API_KEY", "")
			t.Setenv("XAI_API_KEY", "")
			t.Setenv("GEMINI_API_KEY", "")
			t.Setenv("OPENAI_API_KEY", "")
			t.Setenv("ANTHROPIC_API_KEY", "")
			cfg := &Config{}
			cfg.applyEnvOverrides()
			assert.Equal(t, "zai", cfg.LLM.APIKey)
			assert.Equal(t, "zai", cfg.LLM.Provider)
		})
	})
}

func setAllLLMKeys(t *testing.T) {
	t.Setenv("ZAI_API_KEY", "zai")
	t.Setenv("ANTHROPIC_API_KEY", "ant")
	t.Setenv("OPENAI_API_KEY", "oa")
	t.Setenv("GEMINI_API_KEY", "gem")
	t.Setenv("XAI_API_KEY", "xai")
	t.Setenv("OPENROUTER_API_KEY", "or")
}

func TestEnvOverrides_Embedding(t *testing.T) {
	t.Run("GENAI_API_KEY sets provider if empty", func(t *testing.T) {
		t.Setenv("GENAI_API_KEY", "gen-key")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "gen-key", cfg.Embedding.GenAIAPIKey)
		assert.Equal(t, "genai", cfg.Embedding.Provider)
	})

	t.Run("GENAI_API_KEY sets provider if ollama", func(t *testing.T) {
		t.Setenv("GENAI_API_KEY", "gen-key")

		cfg := &Config{
			Embedding: EmbeddingConfig{Provider: "ollama"},
		}
		cfg.applyEnvOverrides()

		assert.Equal(t, "gen-key", cfg.Embedding.GenAIAPIKey)
		assert.Equal(t, "genai", cfg.Embedding.Provider)
	})

	t.Run("GENAI_API_KEY does not override other providers", func(t *testing.T) {
		t.Setenv("GENAI_API_KEY", "gen-key")

		cfg := &Config{
			Embedding: EmbeddingConfig{Provider: "openai"},
		}
		cfg.applyEnvOverrides()

		assert.Equal(t, "gen-key", cfg.Embedding.GenAIAPIKey)
		assert.Equal(t, "openai", cfg.Embedding.Provider)
	})

	t.Run("Ollama Overrides", func(t *testing.T) {
		t.Setenv("OLLAMA_ENDPOINT", "http://custom:11434")
		t.Setenv("OLLAMA_EMBEDDING_MODEL", "custom-model")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "http://custom:11434", cfg.Embedding.OllamaEndpoint)
		assert.Equal(t, "custom-model", cfg.Embedding.OllamaModel)
	})
}

func TestEnvOverrides_DatabasePath(t *testing.T) {
	t.Setenv("ENGINE_DB", "/tmp/test.db")

	cfg := &Config{}
	cfg.applyEnvOverrides()

	assert.Equal(t, "/tmp/test.db", cfg.Memory.DatabasePath)
	assert.Equal(t, "/tmp/test.db", cfg.Storage.DatabasePath)
}
