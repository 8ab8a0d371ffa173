package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ShayCichocki/pairline/internal/apperr"
	"github.com/ShayCichocki/pairline/internal/llm"
	"github.com/ShayCichocki/pairline/internal/logging"
	"github.com/ShayCichocki/pairline/pkg/models"
)

// Defaults used when options are not given.
const (
	DefaultExpandConcurrency = 3
	DefaultExpandThreshold   = 5.0
	DefaultProjectName       = "Project"
)

// Pipeline runs decomposition, scoring and expansion against a generator.
type Pipeline struct {
	gen         llm.Generator
	concurrency int64
	threshold   float64
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithExpandConcurrency bounds concurrent expansion calls.
func WithExpandConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = int64(n)
		}
	}
}

// WithExpandThreshold sets the score above which tasks are expanded.
func WithExpandThreshold(score float64) Option {
	return func(p *Pipeline) { p.threshold = score }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithClock overrides time.Now for the generated-at timestamp.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a Pipeline.
func New(gen llm.Generator, opts ...Option) *Pipeline {
	p := &Pipeline{
		gen:         gen,
		concurrency: DefaultExpandConcurrency,
		threshold:   DefaultExpandThreshold,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.ComponentLogger(p.logger, "pipeline")
	return p
}

// Run turns prd into n scored tasks. Tasks scoring above the threshold are
// expanded into subtasks; an expansion failure is recorded on that task and
// never affects the others.
func (p *Pipeline) Run(ctx context.Context, prd string, n int, projectName string) (*models.TaskList, error) {
	if err := validateInput(prd, n); err != nil {
		return nil, err
	}
	tasks, err := p.Decompose(ctx, prd, n)
	if err != nil {
		return nil, err
	}
	return p.Finish(ctx, tasks, projectName)
}

// Finish scores decomposed tasks, expands the complex ones and attaches run
// metadata.
func (p *Pipeline) Finish(ctx context.Context, tasks []models.Task, projectName string) (*models.TaskList, error) {
	if projectName == "" {
		projectName = DefaultProjectName
	}
	if err := ValidateDependencies(tasks); err != nil {
		return nil, apperr.Wrap(apperr.KindSchema, "pipeline.Finish", err)
	}

	start := time.Now()
	var expandable []int
	for i := range tasks {
		tasks[i].ComplexityScore = Score(tasks[i])
		if tasks[i].ComplexityScore > p.threshold {
			expandable = append(expandable, i)
		}
	}

	p.expandAll(ctx, tasks, expandable)

	p.logger.Info("pipeline complete",
		"tasks", len(tasks),
		"complex_tasks", len(expandable),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &models.TaskList{
		Tasks: tasks,
		Metadata: models.TaskMetadata{
			ProjectName:  projectName,
			TotalTasks:   len(tasks),
			ComplexTasks: len(expandable),
			GeneratedAt:  p.now(),
		},
	}, nil
}

func validateInput(prd string, n int) error {
	if strings.TrimSpace(prd) == "" {
		return apperr.New(apperr.KindValidation, "pipeline.Run", "PRD is required")
	}
	if n < 1 {
		return apperr.New(apperr.KindValidation, "pipeline.Run", "num_tasks must be positive, got %d", n)
	}
	return nil
}

// expandAll expands tasks[i] for every i in indices. Each goroutine writes
// only its own element.
func (p *Pipeline) expandAll(ctx context.Context, tasks []models.Task, indices []int) {
	sem := semaphore.NewWeighted(p.concurrency)
	var wg sync.WaitGroup

	for _, i := range indices {
		wg.Add(1)
		go func(t *models.Task) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				t.Subtasks = []models.Subtask{}
				t.SubtaskError = fmt.Sprintf("expansion cancelled: %v", err)
				return
			}
			defer sem.Release(1)

			subtasks, err := p.expand(ctx, *t)
			if err != nil {
				p.logger.Warn("subtask expansion failed", "task_id", t.ID, "error", err)
				t.Subtasks = []models.Subtask{}
				t.SubtaskError = err.Error()
				return
			}
			t.Subtasks = subtasks
		}(&tasks[i])
	}

	wg.Wait()
}
