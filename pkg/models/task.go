package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress indicates the task is being worked on.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusDone indicates the task completed successfully.
	TaskStatusDone TaskStatus = "done"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusDone, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Priority ranks how urgent a task is.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid returns true if the priority is one of the three known levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// Weight returns the numeric weight used by complexity scoring.
// Unknown priorities weigh the same as medium.
func (p Priority) Weight() float64 {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityLow:
		return 1
	default:
		return 2
	}
}

// Task is one unit of work produced by decomposing a requirements document.
type Task struct {
	// ID is sequential within one pipeline run, starting at 1.
	ID int `json:"id" yaml:"id"`
	// Title is the short description of the task.
	Title string `json:"title" yaml:"title"`
	// Description provides detailed information about the task.
	Description string `json:"description" yaml:"description"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status" yaml:"status"`
	// Dependencies lists ids of earlier tasks that must complete first.
	Dependencies []int `json:"dependencies" yaml:"dependencies"`
	// Priority is one of high, medium or low.
	Priority Priority `json:"priority" yaml:"priority"`
	// Details holds implementation notes.
	Details string `json:"details" yaml:"details"`
	// TestStrategy describes how the task will be verified.
	TestStrategy string `json:"testStrategy" yaml:"test_strategy"`
	// ComplexityScore is in [0,10] with one decimal place.
	ComplexityScore float64 `json:"complexityScore" yaml:"complexity_score"`
	// Subtasks is set only for tasks that went through expansion.
	Subtasks []Subtask `json:"subtasks,omitempty" yaml:"subtasks,omitempty"`
	// SubtaskError records why expansion failed for this task.
	SubtaskError string `json:"subtaskError,omitempty" yaml:"subtask_error,omitempty"`
}

// Subtask is a smaller unit produced by expanding a complex task.
type Subtask struct {
	// ID has the form "<parent>.<n>".
	ID             string  `json:"id" yaml:"id"`
	Title          string  `json:"title" yaml:"title"`
	Description    string  `json:"description" yaml:"description"`
	Details        string  `json:"details" yaml:"details"`
	EstimatedHours float64 `json:"estimatedHours" yaml:"estimated_hours"`
}

// TaskMetadata describes a pipeline run.
type TaskMetadata struct {
	ProjectName  string    `json:"projectName" yaml:"project_name"`
	TotalTasks   int       `json:"totalTasks" yaml:"total_tasks"`
	ComplexTasks int       `json:"complexTasks" yaml:"complex_tasks"`
	GeneratedAt  time.Time `json:"generatedAt" yaml:"generated_at"`
}

// TaskList is the full output of a pipeline run.
type TaskList struct {
	Tasks    []Task       `json:"tasks" yaml:"tasks"`
	Metadata TaskMetadata `json:"metadata" yaml:"metadata"`
}

// ExecTask is a task submitted for execution against a workspace.
// It is looser than Task because clients may build it by hand.
type ExecTask struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Subtasks    []ExecSubtask `json:"subtasks,omitempty"`
}

// ExecSubtask is one step of an ExecTask.
type ExecSubtask struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// TaskResult records the outcome of executing one task or subtask.
type TaskResult struct {
	TaskName      string   `json:"task_name"`
	Description   string   `json:"description"`
	Result        string   `json:"result"`
	EditedFiles   []string `json:"edited_files"`
	CommitHash    string   `json:"commit_hash,omitempty"`
	CommitMessage string   `json:"commit_message,omitempty"`
}
