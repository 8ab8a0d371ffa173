package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/pairline/internal/config"
	"github.com/ShayCichocki/pairline/internal/llm"
	"github.com/ShayCichocki/pairline/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "pairline",
	Short: "Streaming pair-programming sessions and PRD task decomposition",
	Long: `Pairline hosts pair-programming sessions against a git workspace and
streams generated output to clients as it arrives.

Core capabilities:
- Per-client sessions with chat history, file selection and undo
- Ordered event streams over SSE or WebSocket with keep-alives
- Edits applied from the model's replies and committed to git
- PRD generation and decomposition into scored, dependency-ordered tasks`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: user config plus .pairline.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads --config when given, otherwise the layered config.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}

// watchedConfigPath returns the file whose edits should be applied live.
func watchedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if p := config.GetProjectConfigPath(); p != "" {
		return p
	}
	if _, err := os.Stat(config.GetUserConfigPath()); err == nil {
		return config.GetUserConfigPath()
	}
	return ""
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(os.Stderr, cfg.Log.Format, level)
}

func newClient(cfg *config.Config) (*llm.Client, error) {
	client, err := llm.NewClient(llm.ClientConfig{
		Model:         cfg.Anthropic.Model,
		APIKey:        cfg.Anthropic.APIKey,
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
		MaxTokens:     cfg.Anthropic.MaxTokens,
		Temperature:   cfg.Anthropic.Temperature,
		Timeout:       cfg.Generation.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create API client: %w", err)
	}
	return client, nil
}
