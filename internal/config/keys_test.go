package config

import (
	"testing"
)

func TestGetAPIKey(t *testing.T) {
	t.Run("from environment variable", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test-key")

		key, err := GetAPIKey(&Config{})
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if key != "sk-ant-test-key" {
			t.Errorf("expected 'sk-ant-test-key', got %q", key)
		}
	})

	t.Run("from config", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")

		cfg := &Config{Anthropic: AnthropicConfig{APIKey: "sk-ant-config-key"}}
		key, err := GetAPIKey(cfg)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if key != "sk-ant-config-key" {
			t.Errorf("expected 'sk-ant-config-key', got %q", key)
		}
	})

	t.Run("unexpanded reference", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")
		t.Setenv("PAIRLINE_UNSET_KEY", "")

		cfg := &Config{Anthropic: AnthropicConfig{APIKey: "${PAIRLINE_UNSET_KEY}"}}
		if _, err := GetAPIKey(cfg); err != ErrNoAPIKey {
			t.Errorf("expected ErrNoAPIKey, got %v", err)
		}
	})

	t.Run("no key configured", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")

		if _, err := GetAPIKey(&Config{}); err != ErrNoAPIKey {
			t.Errorf("expected ErrNoAPIKey, got %v", err)
		}
	})
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{"valid key", "sk-ant-REDACTED", "sk-ant-...wxyz"},
		{"empty key", "", "(not set)"},
		{"short key", "short", "***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := MaskAPIKey(tt.key); result != tt.expected {
				t.Errorf("MaskAPIKey() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestGetKeySource(t *testing.T) {
	t.Run("bedrock wins", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "test-key")

		cfg := &Config{Anthropic: AnthropicConfig{UseBedrock: true}}
		if source := GetKeySource(cfg); source != KeySourceBedrock {
			t.Errorf("expected KeySourceBedrock, got %v", source)
		}
	})

	t.Run("from environment", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "test-key")

		if source := GetKeySource(&Config{}); source != KeySourceEnv {
			t.Errorf("expected KeySourceEnv, got %v", source)
		}
	})

	t.Run("from config", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")

		cfg := &Config{Anthropic: AnthropicConfig{APIKey: "sk-ant-config-key"}}
		if source := GetKeySource(cfg); source != KeySourceConfig {
			t.Errorf("expected KeySourceConfig, got %v", source)
		}
	})

	t.Run("no key", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "")

		if source := GetKeySource(&Config{}); source != KeySourceNone {
			t.Errorf("expected KeySourceNone, got %v", source)
		}
	})
}
