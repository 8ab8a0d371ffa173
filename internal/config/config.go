// Package config handles configuration loading and management for pairline.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for pairline.
type Config struct {
	Anthropic  AnthropicConfig  `mapstructure:"anthropic"`
	Server     ServerConfig     `mapstructure:"server"`
	Stream     StreamConfig     `mapstructure:"stream"`
	Workers    WorkersConfig    `mapstructure:"workers"`
	Generation GenerationConfig `mapstructure:"generation"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Workspace  WorkspaceConfig  `mapstructure:"workspace"`
	State      StateConfig      `mapstructure:"state"`
	Sessions   SessionsConfig   `mapstructure:"sessions"`
	Log        LogConfig        `mapstructure:"log"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	UseBedrock  bool    `mapstructure:"use_bedrock"`
	AWSRegion   string  `mapstructure:"aws_region"`
	AWSProfile  string  `mapstructure:"aws_profile"`
	MaxTokens   int64   `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// APIKey enables bearer auth when non-empty.
	APIKey          string        `mapstructure:"api_key"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StreamConfig holds event delivery settings.
type StreamConfig struct {
	// KeepAlive is the idle period after which a keep-alive record is sent.
	KeepAlive time.Duration `mapstructure:"keepalive"`
}

// WorkersConfig bounds concurrent generation runs.
type WorkersConfig struct {
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// MaxQueued caps runs waiting for a slot; zero means unbounded.
	MaxQueued int `mapstructure:"max_queued"`
}

// GenerationConfig holds limits applied to every backend call.
type GenerationConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// PipelineConfig holds task decomposition settings.
type PipelineConfig struct {
	DefaultTasks      int     `mapstructure:"default_tasks"`
	ExpandConcurrency int     `mapstructure:"expand_concurrency"`
	ExpandThreshold   float64 `mapstructure:"expand_threshold"`
}

// WorkspaceConfig points at the git repository sessions work in.
type WorkspaceConfig struct {
	Path string `mapstructure:"path"`
}

// StateConfig controls sqlite persistence of sessions.
type StateConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Driver is "sqlite" (pure Go) or "sqlite3" (cgo).
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

// SessionsConfig holds session lifecycle settings.
type SessionsConfig struct {
	// IdleTTL evicts idle sessions when positive.
	IdleTTL time.Duration `mapstructure:"idle_ttl"`
	// Retention purges persisted sessions older than this at startup when positive.
	Retention time.Duration `mapstructure:"retention"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, PAIRLINE_*)
// 2. Project config (.pairline.yaml in current directory or parent)
// 3. User config (~/.config/pairline/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	bindEnv(v)

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	bindEnv(v)

	return unmarshal(v)
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("PAIRLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY", "PAIRLINE_ANTHROPIC_API_KEY")
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	cfg.Server.APIKey = expandEnv(cfg.Server.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail at runtime.
func (c *Config) Validate() error {
	if c.Workers.MaxConcurrent < 1 {
		return fmt.Errorf("workers.max_concurrent must be positive, got %d", c.Workers.MaxConcurrent)
	}
	if c.Workers.MaxQueued < 0 {
		return fmt.Errorf("workers.max_queued must not be negative, got %d", c.Workers.MaxQueued)
	}
	if c.Stream.KeepAlive <= 0 {
		return fmt.Errorf("stream.keepalive must be positive, got %v", c.Stream.KeepAlive)
	}
	if c.Pipeline.DefaultTasks < 1 {
		return fmt.Errorf("pipeline.default_tasks must be positive, got %d", c.Pipeline.DefaultTasks)
	}
	if c.Pipeline.ExpandConcurrency < 1 {
		return fmt.Errorf("pipeline.expand_concurrency must be positive, got %d", c.Pipeline.ExpandConcurrency)
	}
	switch c.State.Driver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("state.driver must be sqlite or sqlite3, got %q", c.State.Driver)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.aws_region", "")
	v.SetDefault("anthropic.aws_profile", "")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("anthropic.temperature", 0.7)

	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("stream.keepalive", "30s")

	v.SetDefault("workers.max_concurrent", 4)
	v.SetDefault("workers.max_queued", 64)

	v.SetDefault("generation.timeout", "5m")

	v.SetDefault("pipeline.default_tasks", 10)
	v.SetDefault("pipeline.expand_concurrency", 3)
	v.SetDefault("pipeline.expand_threshold", 5.0)

	v.SetDefault("workspace.path", ".")

	v.SetDefault("state.enabled", false)
	v.SetDefault("state.driver", "sqlite")
	v.SetDefault("state.path", defaultStatePath())

	v.SetDefault("sessions.idle_ttl", "0s")
	v.SetDefault("sessions.retention", "720h")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// getUserConfigDir returns the XDG config directory for pairline.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "pairline")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "pairline")
	}
	return filepath.Join(home, ".config", "pairline")
}

func defaultStatePath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "pairline", "sessions.db")
}

// findProjectConfig searches for .pairline.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".pairline.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   8192,
			Temperature: 0.7,
		},
		Server: ServerConfig{
			Addr:            ":5000",
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Stream: StreamConfig{
			KeepAlive: 30 * time.Second,
		},
		Workers: WorkersConfig{
			MaxConcurrent: 4,
			MaxQueued:     64,
		},
		Generation: GenerationConfig{
			Timeout: 5 * time.Minute,
		},
		Pipeline: PipelineConfig{
			DefaultTasks:      10,
			ExpandConcurrency: 3,
			ExpandThreshold:   5,
		},
		Workspace: WorkspaceConfig{
			Path: ".",
		},
		State: StateConfig{
			Driver: "sqlite",
			Path:   defaultStatePath(),
		},
		Sessions: SessionsConfig{
			Retention: 720 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
