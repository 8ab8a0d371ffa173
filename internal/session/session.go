// Package session holds per-client conversation state and the registry that
// creates it exactly once per id.
package session

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ShayCichocki/pairline/internal/apperr"
	"github.com/ShayCichocki/pairline/internal/coder"
	"github.com/ShayCichocki/pairline/internal/events"
	"github.com/ShayCichocki/pairline/internal/state"
	"github.com/ShayCichocki/pairline/internal/workspace"
	"github.com/ShayCichocki/pairline/pkg/models"
)

const (
	greeting     = "How can I help you?"
	clearedLine  = "Cleared chat history. Now the LLM can't see anything before this line."
	bootstrapLen = 2
)

// Session is one client's conversation against the workspace.
//
// The message log, stored commit and task results are guarded by an internal
// mutex. Generation runs are serialized separately with LockRun.
type Session struct {
	ID        string
	CreatedAt time.Time

	coder  *coder.Coder
	events *events.Channel

	runMu sync.Mutex
	busy  atomic.Int32

	mu            sync.Mutex
	messages      []models.Message
	inputHistory  []string
	initialFiles  []string
	commitHash    string
	commitMessage string
	results       []models.TaskResult
	// resultsStarted is set once task execution has been requested.
	resultsStarted bool
	lastActive     time.Time

	now      func() time.Time
	onChange func(*Session)
}

func newSession(id string, c *coder.Coder, now func() time.Time) *Session {
	created := now()
	return &Session{
		ID:         id,
		CreatedAt:  created,
		coder:      c,
		events:     events.NewChannel(id, events.WithClock(now)),
		lastActive: created,
		now:        now,
	}
}

// Coder returns the session's coder.
func (s *Session) Coder() *coder.Coder {
	return s.coder
}

// Workspace returns the workspace the session edits.
func (s *Session) Workspace() workspace.Workspace {
	return s.coder.Workspace()
}

// Events returns the session's event channel.
func (s *Session) Events() *events.Channel {
	return s.events
}

// Hold marks the session busy until the returned func is called. A busy
// session is never evicted.
func (s *Session) Hold() (release func()) {
	s.busy.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() { s.busy.Add(-1) })
	}
}

// LockRun serializes generation runs on this session.
func (s *Session) LockRun() (unlock func()) {
	s.runMu.Lock()
	return s.runMu.Unlock
}

// Busy reports whether a run holds the session.
func (s *Session) Busy() bool {
	return s.busy.Load() > 0
}

// Messages returns a copy of the display log.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// InputHistory returns a copy of the prompts the client has sent.
func (s *Session) InputHistory() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.inputHistory)
}

// InitialFiles returns the in-chat files recorded when the session was created.
func (s *Session) InitialFiles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.initialFiles)
}

// AppendMessage adds one entry to the display log.
func (s *Session) AppendMessage(role models.Role, content string) {
	s.mu.Lock()
	s.messages = append(s.messages, models.Message{Role: role, Content: content})
	s.mu.Unlock()
	s.changed()
}

// RecordInput logs a user prompt and adds it to the input history.
func (s *Session) RecordInput(prompt string) {
	s.mu.Lock()
	s.messages = append(s.messages, models.Message{Role: models.RoleUser, Content: prompt})
	s.inputHistory = append(s.inputHistory, prompt)
	s.mu.Unlock()
	s.changed()
}

// CommitHash returns the last commit reported to the client, empty if none.
func (s *Session) CommitHash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitHash
}

// SetCommit stores the last commit reported to the client.
func (s *Session) SetCommit(hash, message string) {
	s.mu.Lock()
	s.commitHash = hash
	s.commitMessage = message
	s.mu.Unlock()
	s.changed()
}

// BeginResults marks that task execution was requested. Earlier results are
// kept. The returned func restores the previous mark for a request that was
// not accepted.
func (s *Session) BeginResults() (undo func()) {
	s.mu.Lock()
	prev := s.resultsStarted
	s.resultsStarted = true
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.resultsStarted = prev
		s.mu.Unlock()
	}
}

// AppendResult records the outcome of one executed task.
func (s *Session) AppendResult(r models.TaskResult) {
	s.mu.Lock()
	s.resultsStarted = true
	s.results = append(s.results, r)
	s.mu.Unlock()
	s.changed()
}

// Results returns the task results. ok is false when task execution was
// never requested.
func (s *Session) Results() (results []models.TaskResult, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.resultsStarted {
		return nil, false
	}
	if s.results == nil {
		return []models.TaskResult{}, true
	}
	return slices.Clone(s.results), true
}

// ClearHistory makes the model forget the conversation and truncates the log
// to the bootstrap messages plus a marker line.
func (s *Session) ClearHistory() {
	s.coder.ClearHistory()

	s.mu.Lock()
	if len(s.messages) > bootstrapLen {
		s.messages = s.messages[:bootstrapLen]
	}
	s.messages = append(slices.Clip(s.messages), models.Message{Role: models.RoleInfo, Content: clearedLine})
	s.mu.Unlock()
	s.changed()
}

// AddFiles adds names to the conversation and returns those that were not
// already present.
func (s *Session) AddFiles(names []string) ([]string, error) {
	ws := s.Workspace()
	added := []string{}
	for _, name := range names {
		ok, err := ws.AddFile(name)
		if err != nil {
			return added, err
		}
		if !ok {
			continue
		}
		added = append(added, name)
		s.AppendMessage(models.RoleInfo, fmt.Sprintf("Added %s to the chat", name))
	}
	return added, nil
}

// RemoveFiles drops names from the conversation and returns those that were
// present.
func (s *Session) RemoveFiles(names []string) []string {
	ws := s.Workspace()
	removed := []string{}
	for _, name := range names {
		if !ws.RemoveFile(name) {
			continue
		}
		removed = append(removed, name)
		s.AppendMessage(models.RoleInfo, fmt.Sprintf("Removed %s from the chat", name))
	}
	return removed
}

// AddWebPage logs fetched page text and returns the logged content.
func (s *Session) AddWebPage(url, text string) string {
	content := url + "\n\n" + text
	s.AppendMessage(models.RoleText, content)
	return content
}

// Undo reverts hash, which must be the stored commit. On success the stored
// commit is cleared and the undo report is logged.
func (s *Session) Undo(ctx context.Context, hash string) (string, error) {
	unlock := s.LockRun()
	defer unlock()

	if s.CommitHash() != hash {
		return "", apperr.New(apperr.KindConflict, "session.Undo", "Commit %s is not the latest commit", hash)
	}

	report, err := s.coder.Undo(ctx, hash)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.messages = append(s.messages, models.Message{Role: models.RoleInfo, Content: report})
	s.commitHash = ""
	s.commitMessage = ""
	s.mu.Unlock()
	s.changed()
	return report, nil
}

// Touch records client activity.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastActive = now
	s.mu.Unlock()
}

// idle reports whether the session can be evicted at now. Undelivered
// events keep a session alive until a consumer drains them.
func (s *Session) idle(now time.Time, ttl time.Duration) bool {
	if s.Busy() || s.events.Attached() || s.events.Len() > 0 {
		return false
	}
	s.mu.Lock()
	last := s.lastActive
	s.mu.Unlock()
	if a := s.events.LastActivity(); a.After(last) {
		last = a
	}
	return now.Sub(last) > ttl
}

func (s *Session) changed() {
	s.mu.Lock()
	s.lastActive = s.now()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// record snapshots the session for persistence.
func (s *Session) record() *state.SessionRecord {
	conversation := s.coder.History()

	s.mu.Lock()
	defer s.mu.Unlock()
	return &state.SessionRecord{
		ID:            s.ID,
		CommitHash:    s.commitHash,
		CommitMessage: s.commitMessage,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.lastActive,
		Messages:      slices.Clone(s.messages),
		InputHistory:  slices.Clone(s.inputHistory),
		Conversation:  conversation,
		Results:       slices.Clone(s.results),
	}
}

// restore loads persisted state into a freshly created session.
func (s *Session) restore(rec *state.SessionRecord) {
	s.mu.Lock()
	s.CreatedAt = rec.CreatedAt
	s.messages = slices.Clone(rec.Messages)
	s.inputHistory = slices.Clone(rec.InputHistory)
	s.commitHash = rec.CommitHash
	s.commitMessage = rec.CommitMessage
	s.results = slices.Clone(rec.Results)
	s.resultsStarted = len(rec.Results) > 0
	s.mu.Unlock()

	s.coder.RestoreHistory(rec.Conversation)
}
