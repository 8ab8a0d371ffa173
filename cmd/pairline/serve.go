package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/pairline/internal/coder"
	"github.com/ShayCichocki/pairline/internal/config"
	"github.com/ShayCichocki/pairline/internal/exec"
	"github.com/ShayCichocki/pairline/internal/logging"
	"github.com/ShayCichocki/pairline/internal/pipeline"
	"github.com/ShayCichocki/pairline/internal/scrape"
	"github.com/ShayCichocki/pairline/internal/server"
	"github.com/ShayCichocki/pairline/internal/session"
	"github.com/ShayCichocki/pairline/internal/state"
	"github.com/ShayCichocki/pairline/internal/worker"
	"github.com/ShayCichocki/pairline/internal/workspace"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Start the pairline HTTP server for the git repository at workspace.path.

Sessions are created on first use by client-supplied id. Generation runs on a
bounded worker pool and their progress is delivered on /api/events (SSE) or
/api/ws (WebSocket). With state.enabled, sessions survive restarts.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	repo, err := workspace.OpenRepo(ctx, cfg.Workspace.Path, exec.NewRunner())
	if err != nil {
		return fmt.Errorf("open workspace: %w", err)
	}
	factory := func(ctx context.Context) (*coder.Coder, error) {
		return coder.New(client, repo.NewWorkspace(), client.Model()), nil
	}

	storeOpts := []session.Option{session.WithLogger(logger)}
	if cfg.State.Enabled {
		db, err := openState(cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		storeOpts = append(storeOpts, session.WithPersistence(db))
	}
	store := session.NewStore(factory, storeOpts...)
	if ttl := cfg.Sessions.IdleTTL; ttl > 0 {
		go store.RunJanitor(ctx, ttl, janitorInterval(ttl))
	}

	pool := worker.NewPool(worker.PoolConfig{
		MaxConcurrent: cfg.Workers.MaxConcurrent,
		MaxQueued:     cfg.Workers.MaxQueued,
		Logger:        logger,
	})
	pipe := pipeline.New(client,
		pipeline.WithExpandConcurrency(cfg.Pipeline.ExpandConcurrency),
		pipeline.WithExpandThreshold(cfg.Pipeline.ExpandThreshold),
		pipeline.WithLogger(logger),
	)

	api := server.New(server.Deps{
		Store:    store,
		Runner:   worker.NewRunner(pool, pipe, logger),
		Pipeline: pipe,
		Scraper:  scrape.New(),
		Usage:    client.Tracker().Snapshot,
	}, server.Config{
		APIKey:       cfg.Server.APIKey,
		KeepAlive:    cfg.Stream.KeepAlive,
		DefaultTasks: cfg.Pipeline.DefaultTasks,
	}, logger)

	if path := watchedConfigPath(); path != "" {
		w, err := config.Watch(path, logger, func(c *config.Config) {
			if level, err := config.ParseLevel(c.Log.Level); err == nil {
				logging.SetLevel(level)
			}
		})
		if err != nil {
			logger.Warn("config watch disabled", "path", path, "error", err)
		} else {
			defer w.Close()
		}
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		IdleTimeout:       120 * time.Second,
	}
	srv.RegisterOnShutdown(api.CloseStreams)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("pairline server starting",
			"addr", cfg.Server.Addr,
			"workspace", repo.Root(),
			"model", client.Model(),
			"version", Version(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		logger.Warn("runs cancelled at shutdown deadline", "error", err)
	}
	logger.Info("server stopped", "usage", client.Tracker().Snapshot())
	return nil
}

// openState opens and migrates the session database and purges sessions
// past the retention period.
func openState(cfg *config.Config, logger *slog.Logger) (*state.DB, error) {
	db, err := state.Open(cfg.State.Driver, cfg.State.Path)
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate state: %w", err)
	}
	if cfg.Sessions.Retention > 0 {
		n, err := db.PurgeOldSessions(cfg.Sessions.Retention)
		if err != nil {
			logger.Warn("purge old sessions failed", "error", err)
		} else if n > 0 {
			logger.Info("purged old sessions", "count", n)
		}
	}
	logger.Info("session persistence enabled", "driver", db.Driver(), "path", db.Path())
	return db, nil
}

// janitorInterval checks often enough that sessions outlive ttl by at most
// half of it, and at least once a minute.
func janitorInterval(ttl time.Duration) time.Duration {
	return max(min(ttl/2, time.Minute), time.Second)
}
