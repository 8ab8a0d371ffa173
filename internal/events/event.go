// Package events defines the session event stream: the typed events runs
// produce and the per-session channel transports drain.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/ShayCichocki/pairline/pkg/models"
)

// Type names an event variant. The value is what clients see.
type Type string

const (
	TypeChunk                   Type = "chunk"
	TypeComplete                Type = "complete"
	TypeFilesEdited             Type = "files_edited"
	TypeCommit                  Type = "commit"
	TypeError                   Type = "error"
	TypeTaskStarted             Type = "task_started"
	TypeTaskChunk               Type = "task_chunk"
	TypeTaskCompleted           Type = "task_completed"
	TypeTasksExecutionStarted   Type = "tasks_execution_started"
	TypeTasksExecutionCompleted Type = "tasks_execution_completed"
	TypePRDChunk                Type = "prd_chunk"
	TypePRDComplete             Type = "prd_complete"
	TypeTasksChunk              Type = "tasks_chunk"
	TypeTasksComplete           Type = "tasks_complete"

	// TypeKeepAlive is synthesized by the channel when a pull times out. It
	// is never pushed by a producer.
	TypeKeepAlive Type = "keep-alive"
)

// Event is one entry of a session's stream.
type Event struct {
	Type      Type
	SessionID string
	// Data is the variant payload; nil for complete and keep-alive.
	Data any
}

// Payload returns the JSON object sent to clients: the variant's fields plus
// session_id.
func (e Event) Payload() ([]byte, error) {
	fields := map[string]any{}
	if e.Data != nil {
		raw, err := json.Marshal(e.Data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", e.Type, err)
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("%s payload is not an object: %w", e.Type, err)
		}
	}
	if e.SessionID != "" {
		fields["session_id"] = e.SessionID
	}
	return json.Marshal(fields)
}

// ChunkData carries one streamed fragment.
type ChunkData struct {
	Chunk string `json:"chunk"`
}

// FilesEditedData lists files changed by a turn.
type FilesEditedData struct {
	Files []string `json:"files"`
}

// CommitData describes a commit created by a turn.
type CommitData struct {
	Hash    string `json:"hash"`
	Message string `json:"message"`
	Diff    string `json:"diff"`
}

// ErrorData carries a failure from an asynchronous run.
type ErrorData struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
	// Retryable is set for transient backend failures the client may retry.
	Retryable bool `json:"retryable"`
}

// TaskStartedData announces one task of an execution run.
type TaskStartedData struct {
	TaskName    string `json:"task_name"`
	Description string `json:"description"`
}

// TaskChunkData is a fragment of a task's generated output.
type TaskChunkData struct {
	TaskName string `json:"task_name"`
	Chunk    string `json:"chunk"`
}

// TaskCompletedData carries the result of one task.
type TaskCompletedData struct {
	TaskResult models.TaskResult `json:"task_result"`
}

// ExecutionStartedData opens an execution run.
type ExecutionStartedData struct {
	NumTasks int `json:"num_tasks"`
}

// ExecutionCompletedData closes an execution run.
type ExecutionCompletedData struct {
	Results []models.TaskResult `json:"results"`
}

// PRDCompleteData carries a generated requirements document.
type PRDCompleteData struct {
	PRD string `json:"prd"`
}

// TasksCompleteData carries generated tasks, or the raw text when it could
// not be parsed.
type TasksCompleteData struct {
	Tasks     *models.TaskList `json:"tasks,omitempty"`
	TasksText string           `json:"tasks_text,omitempty"`
}

func Chunk(sid, text string) Event {
	return Event{Type: TypeChunk, SessionID: sid, Data: ChunkData{Chunk: text}}
}

func Complete(sid string) Event {
	return Event{Type: TypeComplete, SessionID: sid}
}

func FilesEdited(sid string, files []string) Event {
	return Event{Type: TypeFilesEdited, SessionID: sid, Data: FilesEditedData{Files: files}}
}

func Commit(sid, hash, message, diff string) Event {
	return Event{Type: TypeCommit, SessionID: sid, Data: CommitData{Hash: hash, Message: message, Diff: diff}}
}

// Error builds an error event; kind is the apperr kind name, may be empty.
func Error(sid, message, kind string, retryable bool) Event {
	return Event{Type: TypeError, SessionID: sid, Data: ErrorData{Message: message, Kind: kind, Retryable: retryable}}
}

func TaskStarted(sid, name, description string) Event {
	return Event{Type: TypeTaskStarted, SessionID: sid, Data: TaskStartedData{TaskName: name, Description: description}}
}

func TaskChunk(sid, name, text string) Event {
	return Event{Type: TypeTaskChunk, SessionID: sid, Data: TaskChunkData{TaskName: name, Chunk: text}}
}

func TaskCompleted(sid string, result models.TaskResult) Event {
	return Event{Type: TypeTaskCompleted, SessionID: sid, Data: TaskCompletedData{TaskResult: result}}
}

func TasksExecutionStarted(sid string, n int) Event {
	return Event{Type: TypeTasksExecutionStarted, SessionID: sid, Data: ExecutionStartedData{NumTasks: n}}
}

func TasksExecutionCompleted(sid string, results []models.TaskResult) Event {
	return Event{Type: TypeTasksExecutionCompleted, SessionID: sid, Data: ExecutionCompletedData{Results: results}}
}

func PRDChunk(sid, text string) Event {
	return Event{Type: TypePRDChunk, SessionID: sid, Data: ChunkData{Chunk: text}}
}

func PRDComplete(sid, prd string) Event {
	return Event{Type: TypePRDComplete, SessionID: sid, Data: PRDCompleteData{PRD: prd}}
}

func TasksChunk(sid, text string) Event {
	return Event{Type: TypeTasksChunk, SessionID: sid, Data: ChunkData{Chunk: text}}
}

func TasksComplete(sid string, tasks *models.TaskList, raw string) Event {
	return Event{Type: TypeTasksComplete, SessionID: sid, Data: TasksCompleteData{Tasks: tasks, TasksText: raw}}
}

func KeepAlive(sid string) Event {
	return Event{Type: TypeKeepAlive, SessionID: sid}
}
