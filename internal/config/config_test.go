package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "memengine" {
		t.Errorf("expected Name=memengine, got %s", cfg.Name)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("expected Provider=anthropic, got %s", cfg.LLM.Provider)
	}
	if cfg.Circuit.FailureThreshold != 3 {
		t.Errorf("expected FailureThreshold=3, got %d", cfg.Circuit.FailureThreshold)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("ZAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	cfg := DefaultConfig()
	cfg.LLM.Provider = "anthropic"
	cfg.LLM.APIKey = "sk-test"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.LLM.Provider != "anthropic" {
		t.Errorf("expected Provider=anthropic, got %s", loaded.LLM.Provider)
	}
	if loaded.LLM.APIKey != "sk-test" {
		t.Errorf("expected APIKey=sk-test, got %s", loaded.LLM.APIKey)
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	os.Setenv("ANTHROPIC_API_KEY", "env-anthropic-key")
	defer os.Unsetenv("ANTHROPIC_API_KEY")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	if cfg.LLM.APIKey != "env-anthropic-key" {
		t.Errorf("expected APIKey=env-anthropic-key, got %s", cfg.LLM.APIKey)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("expected Provider=anthropic, got %s", cfg.LLM.Provider)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for missing API key")
	}

	cfg.LLM.APIKey = "test-key"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got error: %v", err)
	}

	cfg.LLM.Provider = "invalid-provider"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for invalid provider")
	}
}

func TestConfig_Helpers(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.GetLLMTimeout() == 0 {
		t.Error("GetLLMTimeout should return non-zero duration")
	}
	if cfg.GetCacheTTL() != 300*1e9 {
		t.Errorf("expected cache TTL=300s, got %v", cfg.GetCacheTTL())
	}
	if cfg.GetOperationHardTimeout() != 5*60*1e9 {
		t.Errorf("expected operation hard timeout=5m, got %v", cfg.GetOperationHardTimeout())
	}
	if cfg.GetCircuitCooldown() != 120*1e9 {
		t.Errorf("expected circuit cooldown=120s, got %v", cfg.GetCircuitCooldown())
	}
	if cfg.GetWatcherDebounce() != 500*1e6 {
		t.Errorf("expected watcher debounce=500ms, got %v", cfg.GetWatcherDebounce())
	}
	if cfg.GetWatcherBatchWindow() != 2*1e9 {
		t.Errorf("expected watcher batch window=2s, got %v", cfg.GetWatcherBatchWindow())
	}
	if cfg.GetGitSuppressionWindow() != 3*1e9 {
		t.Errorf("expected git suppression window=3s, got %v", cfg.GetGitSuppressionWindow())
	}
}
