package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/pairline/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Display the configuration pairline would run with, after merging
defaults, the user config, the project config and the environment.

Configuration is stored at ~/.config/pairline/config.yaml
Project-specific overrides can be placed in .pairline.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		displayAllConfig(cmd.OutOrStdout(), cfg)
		return nil
	},
}

// displayAllConfig prints all configuration values with secrets masked.
func displayAllConfig(w io.Writer, cfg *config.Config) {
	key, _ := config.GetAPIKey(cfg)
	serverKey := "(not set)"
	if cfg.Server.APIKey != "" {
		serverKey = "****"
	}

	fmt.Fprintf(w, "config.user: %s\n", config.GetUserConfigPath())
	if p := config.GetProjectConfigPath(); p != "" {
		fmt.Fprintf(w, "config.project: %s\n", p)
	}
	fmt.Fprintf(w, "anthropic.api_key: %s (source: %s)\n", config.MaskAPIKey(key), config.GetKeySource(cfg))
	fmt.Fprintf(w, "anthropic.model: %s\n", cfg.Anthropic.Model)
	fmt.Fprintf(w, "anthropic.use_bedrock: %t\n", cfg.Anthropic.UseBedrock)
	fmt.Fprintf(w, "anthropic.max_tokens: %d\n", cfg.Anthropic.MaxTokens)
	fmt.Fprintf(w, "server.addr: %s\n", cfg.Server.Addr)
	fmt.Fprintf(w, "server.api_key: %s\n", serverKey)
	fmt.Fprintf(w, "stream.keepalive: %s\n", cfg.Stream.KeepAlive)
	fmt.Fprintf(w, "workers.max_concurrent: %d\n", cfg.Workers.MaxConcurrent)
	fmt.Fprintf(w, "workers.max_queued: %d\n", cfg.Workers.MaxQueued)
	fmt.Fprintf(w, "generation.timeout: %s\n", cfg.Generation.Timeout)
	fmt.Fprintf(w, "pipeline.default_tasks: %d\n", cfg.Pipeline.DefaultTasks)
	fmt.Fprintf(w, "pipeline.expand_concurrency: %d\n", cfg.Pipeline.ExpandConcurrency)
	fmt.Fprintf(w, "pipeline.expand_threshold: %.1f\n", cfg.Pipeline.ExpandThreshold)
	fmt.Fprintf(w, "workspace.path: %s\n", cfg.Workspace.Path)
	fmt.Fprintf(w, "state.enabled: %t\n", cfg.State.Enabled)
	fmt.Fprintf(w, "state.driver: %s\n", cfg.State.Driver)
	fmt.Fprintf(w, "state.path: %s\n", cfg.State.Path)
	fmt.Fprintf(w, "sessions.idle_ttl: %s\n", cfg.Sessions.IdleTTL)
	fmt.Fprintf(w, "sessions.retention: %s\n", cfg.Sessions.Retention)
	fmt.Fprintf(w, "log.level: %s\n", cfg.Log.Level)
	fmt.Fprintf(w, "log.format: %s\n", cfg.Log.Format)
}
