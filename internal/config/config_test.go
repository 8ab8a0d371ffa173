package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Stream.KeepAlive != 30*time.Second {
		t.Errorf("expected keepalive 30s, got %v", cfg.Stream.KeepAlive)
	}
	if cfg.Workers.MaxConcurrent != 4 {
		t.Errorf("expected 4 workers, got %d", cfg.Workers.MaxConcurrent)
	}
	if cfg.Pipeline.ExpandThreshold != 5 {
		t.Errorf("expected expand threshold 5, got %v", cfg.Pipeline.ExpandThreshold)
	}
	if cfg.State.Driver != "sqlite" {
		t.Errorf("expected sqlite driver, got %q", cfg.State.Driver)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
anthropic:
  api_key: test-key
  model: claude-haiku-4-5-20251001
server:
  addr: 127.0.0.1:8080
stream:
  keepalive: 5s
workers:
  max_concurrent: 2
  max_queued: 0
pipeline:
  default_tasks: 5
state:
  enabled: true
  driver: sqlite3
log:
  level: debug
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Anthropic.APIKey != "test-key" {
		t.Errorf("expected api_key 'test-key', got %q", cfg.Anthropic.APIKey)
	}
	if cfg.Anthropic.Model != "claude-haiku-4-5-20251001" {
		t.Errorf("unexpected model %q", cfg.Anthropic.Model)
	}
	if cfg.Server.Addr != "127.0.0.1:8080" {
		t.Errorf("unexpected addr %q", cfg.Server.Addr)
	}
	if cfg.Stream.KeepAlive != 5*time.Second {
		t.Errorf("expected keepalive 5s, got %v", cfg.Stream.KeepAlive)
	}
	if cfg.Workers.MaxConcurrent != 2 || cfg.Workers.MaxQueued != 0 {
		t.Errorf("unexpected workers config %+v", cfg.Workers)
	}
	if !cfg.State.Enabled || cfg.State.Driver != "sqlite3" {
		t.Errorf("unexpected state config %+v", cfg.State)
	}
	// Unset keys keep their defaults.
	if cfg.Generation.Timeout != 5*time.Minute {
		t.Errorf("expected default generation timeout, got %v", cfg.Generation.Timeout)
	}
}

func TestLoadFromPath_EnvOverride(t *testing.T) {
	t.Setenv("PAIRLINE_SERVER_ADDR", ":9999")

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("server:\n  addr: \":5000\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("expected env override :9999, got %q", cfg.Server.Addr)
	}
}

func TestLoadFromPath_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"zero workers", "workers:\n  max_concurrent: 0\n", "max_concurrent"},
		{"bad driver", "state:\n  driver: postgres\n", "state.driver"},
		{"bad level", "log:\n  level: loud\n", "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := LoadFromPath(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "expanded-value")

	if result := expandEnv("prefix-${TEST_VAR}-suffix"); result != "prefix-expanded-value-suffix" {
		t.Errorf("expected 'prefix-expanded-value-suffix', got %q", result)
	}
}

func TestGetUserConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	if dir := getUserConfigDir(); dir != "/custom/config/pairline" {
		t.Errorf("expected /custom/config/pairline, got %q", dir)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: info\n"), 0644); err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan *Config, 4)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w, err := Watch(path, logger, func(cfg *Config) { reloaded <- cfg })
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-reloaded:
			if cfg.Log.Level == "debug" {
				return
			}
		case <-deadline:
			t.Fatal("config change was not observed")
		}
	}
}
