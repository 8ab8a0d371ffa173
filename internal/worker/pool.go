// Package worker runs generation work on a bounded pool and turns its
// progress into session events.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/ShayCichocki/pairline/internal/apperr"
	"github.com/ShayCichocki/pairline/internal/logging"
)

// Defaults used when PoolConfig leaves a field zero.
const (
	DefaultMaxConcurrent = 4
)

// Job is one unit of work. ctx is cancelled when the pool shuts down.
type Job func(ctx context.Context)

// PoolConfig contains configuration options for the Pool.
type PoolConfig struct {
	// MaxConcurrent bounds jobs running at once.
	MaxConcurrent int
	// MaxQueued bounds jobs waiting for a slot; zero means unbounded.
	MaxQueued int
	Logger    *slog.Logger
}

// Pool runs submitted jobs with bounded concurrency. Submit never blocks:
// jobs wait for a slot on their own goroutine, and admission fails once too
// many are waiting.
type Pool struct {
	sem       *semaphore.Weighted
	maxQueued int64
	logger    *slog.Logger

	queued  atomic.Int64
	running atomic.Int64

	mu     sync.Mutex
	closed bool

	// ctx and cancel for pool lifecycle
	ctx    context.Context
	cancel context.CancelFunc

	// wg tracks submitted jobs
	wg sync.WaitGroup
}

// NewPool creates a new Pool.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		maxQueued: int64(cfg.MaxQueued),
		logger:    logging.ComponentLogger(cfg.Logger, "worker"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Submit schedules job and returns its run id. kind and sessionID are only
// used for logging.
func (p *Pool) Submit(kind, sessionID string, job Job) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return "", apperr.New(apperr.KindOverloaded, "worker.Submit", "worker pool is shutting down")
	}
	if p.maxQueued > 0 && p.queued.Load() >= p.maxQueued {
		return "", apperr.New(apperr.KindOverloaded, "worker.Submit",
			"too many queued runs (%d), try again later", p.maxQueued)
	}

	runID := uuid.New().String()[:8]
	logger := p.logger.With("run_id", runID, "kind", kind, "session_id", sessionID)

	p.queued.Add(1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		err := p.sem.Acquire(p.ctx, 1)
		p.queued.Add(-1)
		if err != nil {
			logger.Warn("run dropped before start", "error", err)
			return
		}
		defer p.sem.Release(1)

		p.running.Add(1)
		defer p.running.Add(-1)

		start := time.Now()
		logger.Debug("run started")
		defer func() {
			if r := recover(); r != nil {
				logger.Error("run panicked", "panic", r)
			}
		}()
		job(p.ctx)
		logger.Info("run finished", "duration_ms", time.Since(start).Milliseconds())
	}()

	return runID, nil
}

// Queued returns the number of jobs waiting for a slot.
func (p *Pool) Queued() int {
	return int(p.queued.Load())
}

// Running returns the number of jobs holding a slot.
func (p *Pool) Running() int {
	return int(p.running.Load())
}

// Shutdown stops admission and waits for submitted jobs. If ctx ends first,
// the jobs' context is cancelled and ctx's error is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}
