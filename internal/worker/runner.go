package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ShayCichocki/pairline/internal/apperr"
	"github.com/ShayCichocki/pairline/internal/events"
	"github.com/ShayCichocki/pairline/internal/logging"
	"github.com/ShayCichocki/pairline/internal/pipeline"
	"github.com/ShayCichocki/pairline/internal/session"
	"github.com/ShayCichocki/pairline/pkg/models"
)

// Run kinds, used in logs.
const (
	KindChat          = "chat"
	KindTaskExecution = "task_execution"
	KindPRD           = "prd"
	KindTasks         = "tasks"
)

// prdPrompt takes the product description.
const prdPrompt = `Create a detailed Product Requirements Document for:
%s

Include:
1. Overview
2. Objectives
3. Target users
4. Features and requirements
5. Technical specifications
6. Success metrics
`

// taskPrompt takes the task description.
const taskPrompt = `
I need you to implement this task:
%s

Please write or modify the necessary code to complete this task.
`

// Runner starts session runs on a Pool. Runs for the same session are
// serialized; every outcome, including failure, is reported as events on the
// session's channel.
type Runner struct {
	pool     *Pool
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(pool *Pool, pipe *pipeline.Pipeline, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		pool:     pool,
		pipeline: pipe,
		logger:   logging.ComponentLogger(logger, "runner"),
	}
}

// Chat starts a chat turn for prompt.
func (r *Runner) Chat(s *session.Session, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", apperr.New(apperr.KindValidation, "worker.Chat", "message is required")
	}
	return r.submit(KindChat, s, func(ctx context.Context) {
		s.RecordInput(prompt)
		r.chat(ctx, s, prompt)
	})
}

// ExecuteTasks runs each task, or each subtask of a task that has them, as a
// chat turn and records the results on the session.
func (r *Runner) ExecuteTasks(s *session.Session, tasks []models.ExecTask) (string, error) {
	if len(tasks) == 0 {
		return "", apperr.New(apperr.KindValidation, "worker.ExecuteTasks", "tasks are required")
	}
	undo := s.BeginResults()
	id, err := r.submit(KindTaskExecution, s, func(ctx context.Context) {
		r.executeTasks(ctx, s, tasks)
	})
	if err != nil {
		undo()
		return "", err
	}
	return id, nil
}

// GeneratePRD streams a requirements document for description.
func (r *Runner) GeneratePRD(s *session.Session, description string) (string, error) {
	if strings.TrimSpace(description) == "" {
		return "", apperr.New(apperr.KindValidation, "worker.GeneratePRD", "description is required")
	}
	return r.submit(KindPRD, s, func(ctx context.Context) {
		r.generatePRD(ctx, s, description)
	})
}

// GenerateTasks streams the decomposition of prd into n tasks, then scores
// and expands them.
func (r *Runner) GenerateTasks(s *session.Session, prd string, n int, projectName string) (string, error) {
	if strings.TrimSpace(prd) == "" {
		return "", apperr.New(apperr.KindValidation, "worker.GenerateTasks", "PRD is required")
	}
	if n < 1 {
		return "", apperr.New(apperr.KindValidation, "worker.GenerateTasks", "num_tasks must be positive, got %d", n)
	}
	return r.submit(KindTasks, s, func(ctx context.Context) {
		r.generateTasks(ctx, s, prd, n, projectName)
	})
}

// submit holds the session for the lifetime of the run and serializes it
// with the session's other runs.
func (r *Runner) submit(kind string, s *session.Session, run func(ctx context.Context)) (string, error) {
	release := s.Hold()
	id, err := r.pool.Submit(kind, s.ID, func(ctx context.Context) {
		defer release()
		unlock := s.LockRun()
		defer unlock()
		run(ctx)
	})
	if err != nil {
		release()
		return "", err
	}
	return id, nil
}

// pushError reports err on the session's channel.
func (r *Runner) pushError(s *session.Session, op string, err error) {
	r.logger.Warn("run failed", "session_id", s.ID, "op", op, "error", err)
	s.Events().Push(events.Error(s.ID, err.Error(), apperr.KindOf(err).String(), apperr.IsRetryable(err)))
}

func (r *Runner) chat(ctx context.Context, s *session.Session, prompt string) {
	ch := s.Events()
	c := s.Coder()

	var reply strings.Builder
	for fragment, err := range c.RunStream(ctx, prompt) {
		if err != nil {
			r.pushError(s, "chat", err)
			return
		}
		reply.WriteString(fragment)
		ch.Push(events.Chunk(s.ID, fragment))
	}

	ch.Push(events.Complete(s.ID))
	s.AppendMessage(models.RoleAssistant, reply.String())

	if files := c.EditedFiles(); len(files) > 0 {
		ch.Push(events.FilesEdited(s.ID, files))
	}
	r.reportCommit(ctx, s)
}

// reportCommit pushes a commit event when the coder's latest commit is new
// to the session and stores it.
func (r *Runner) reportCommit(ctx context.Context, s *session.Session) {
	latest := s.Coder().LastCommit()
	prev := s.CommitHash()
	if latest.Hash == "" || latest.Hash == prev {
		return
	}

	from := prev
	if from == "" {
		from = latest.Hash + "~1"
	}
	diff, err := s.Workspace().Diff(ctx, from, latest.Hash)
	if err != nil {
		r.pushError(s, "diff", fmt.Errorf("diff %s: %w", latest.Hash, err))
		return
	}

	s.Events().Push(events.Commit(s.ID, latest.Hash, latest.Message, diff))
	s.SetCommit(latest.Hash, latest.Message)
}

func (r *Runner) executeTasks(ctx context.Context, s *session.Session, tasks []models.ExecTask) {
	ch := s.Events()
	ch.Push(events.TasksExecutionStarted(s.ID, len(tasks)))

	results := []models.TaskResult{}
	for _, task := range tasks {
		if len(task.Subtasks) == 0 {
			results = append(results, r.executeTask(ctx, s, task.Name, task.Description))
			continue
		}
		for _, sub := range task.Subtasks {
			name := task.Name + " - " + sub.Name
			description := task.Description + " - " + sub.Description
			results = append(results, r.executeTask(ctx, s, name, description))
		}
	}

	ch.Push(events.TasksExecutionCompleted(s.ID, results))
}

// executeTask runs one task as a chat turn. A failed task is still recorded
// so later tasks run and the client sees every outcome.
func (r *Runner) executeTask(ctx context.Context, s *session.Session, name, description string) models.TaskResult {
	ch := s.Events()
	c := s.Coder()
	ch.Push(events.TaskStarted(s.ID, name, description))

	var output strings.Builder
	for fragment, err := range c.RunStream(ctx, fmt.Sprintf(taskPrompt, description)) {
		if err != nil {
			r.pushError(s, "execute task "+name, err)
			break
		}
		output.WriteString(fragment)
		ch.Push(events.TaskChunk(s.ID, name, fragment))
	}

	result := models.TaskResult{
		TaskName:    name,
		Description: description,
		Result:      output.String(),
		EditedFiles: c.EditedFiles(),
	}
	if result.EditedFiles == nil {
		result.EditedFiles = []string{}
	}
	if len(result.EditedFiles) > 0 {
		last := c.LastCommit()
		result.CommitHash = last.Hash
		result.CommitMessage = last.Message
		r.reportCommit(ctx, s)
	}

	s.AppendResult(result)
	ch.Push(events.TaskCompleted(s.ID, result))
	return result
}

func (r *Runner) generatePRD(ctx context.Context, s *session.Session, description string) {
	ch := s.Events()
	prompt := fmt.Sprintf(prdPrompt, description)
	s.RecordInput(prompt)

	var prd strings.Builder
	for fragment, err := range s.Coder().RunStream(ctx, prompt) {
		if err != nil {
			r.pushError(s, "generate prd", err)
			return
		}
		prd.WriteString(fragment)
		ch.Push(events.PRDChunk(s.ID, fragment))
	}

	ch.Push(events.PRDComplete(s.ID, prd.String()))
	s.AppendMessage(models.RoleAssistant, prd.String())
}

func (r *Runner) generateTasks(ctx context.Context, s *session.Session, prd string, n int, projectName string) {
	ch := s.Events()
	s.RecordInput(pipeline.DecompositionPrompt(prd, n))

	tasks, raw, err := r.pipeline.DecomposeStream(ctx, prd, n, func(fragment string) {
		ch.Push(events.TasksChunk(s.ID, fragment))
	})
	switch {
	case apperr.KindOf(err) == apperr.KindSchema:
		r.logger.Info("task list not parseable, sending raw text", "session_id", s.ID, "error", err)
		ch.Push(events.TasksComplete(s.ID, nil, raw))
	case err != nil:
		r.pushError(s, "generate tasks", err)
		return
	default:
		list, err := r.pipeline.Finish(ctx, tasks, projectName)
		if err != nil {
			r.pushError(s, "generate tasks", err)
			return
		}
		ch.Push(events.TasksComplete(s.ID, list, ""))
	}
	s.AppendMessage(models.RoleAssistant, raw)
}
