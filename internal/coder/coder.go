// Package coder drives one conversation against the generation backend and
// turns the replies into file edits and commits in the workspace.
package coder

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"

	"github.com/ShayCichocki/pairline/internal/apperr"
	"github.com/ShayCichocki/pairline/internal/git"
	"github.com/ShayCichocki/pairline/internal/llm"
	"github.com/ShayCichocki/pairline/internal/workspace"
	"github.com/ShayCichocki/pairline/pkg/models"
)

// Coder holds the conversation state for one session.
//
// A Coder is not meant for concurrent RunStream calls; callers serialize
// runs per session. The accessors are safe to call at any time.
type Coder struct {
	gen   llm.Generator
	ws    workspace.Workspace
	model string

	mu          sync.Mutex
	history     []models.Message
	editedFiles []string
	lastCommit  git.Commit
}

// New creates a Coder. model is only used for announcements.
func New(gen llm.Generator, ws workspace.Workspace, model string) *Coder {
	return &Coder{gen: gen, ws: ws, model: model}
}

// Workspace returns the workspace the coder edits.
func (c *Coder) Workspace() workspace.Workspace {
	return c.ws
}

// Announcements returns the lines shown when a session starts.
func (c *Coder) Announcements(ctx context.Context) []string {
	lines := []string{fmt.Sprintf("Model: %s with diff edit format", c.model)}
	return append(lines, c.ws.Announcements(ctx)...)
}

// RunStream sends prompt and yields the reply as it arrives. When the reply
// is complete its SEARCH/REPLACE blocks are applied and committed; edits
// that cannot be applied are reported as a trailing fragment.
func (c *Coder) RunStream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		c.mu.Lock()
		c.editedFiles = nil
		history := slices.Clone(c.history)
		c.mu.Unlock()

		system := c.systemPrompt()

		var reply strings.Builder
		for fragment, err := range c.gen.GenerateStream(ctx, llm.Request{
			Prompt:  prompt,
			System:  system,
			History: history,
		}) {
			if err != nil {
				yield("", err)
				return
			}
			reply.WriteString(fragment)
			if !yield(fragment, nil) {
				return
			}
		}

		c.mu.Lock()
		c.history = append(c.history,
			models.Message{Role: models.RoleUser, Content: prompt},
			models.Message{Role: models.RoleAssistant, Content: reply.String()},
		)
		c.mu.Unlock()

		report, err := c.applyEdits(ctx, reply.String(), prompt)
		if err != nil {
			yield("", err)
			return
		}
		if report != "" {
			yield(report, nil)
		}
	}
}

func (c *Coder) systemPrompt() string {
	names := c.ws.InChatFiles()
	files := make(map[string]string, len(names))
	for _, name := range names {
		content, err := c.ws.ReadFile(name)
		if err != nil {
			// A file added to the chat before it exists is created by an edit.
			content = ""
		}
		files[name] = content
	}
	return buildSystem(files, names)
}

// applyEdits writes every applicable edit, commits the touched files and
// returns a report of the edits that failed.
func (c *Coder) applyEdits(ctx context.Context, reply, prompt string) (string, error) {
	edits := ParseEdits(reply)
	if len(edits) == 0 {
		return "", nil
	}

	inChat := make(map[string]bool)
	for _, f := range c.ws.InChatFiles() {
		inChat[f] = true
	}

	var edited []string
	var failures []string
	for _, e := range edits {
		content, readErr := c.ws.ReadFile(e.Path)
		exists := readErr == nil

		if !inChat[e.Path] && (exists || e.Search != "") {
			failures = append(failures, fmt.Sprintf("%s is not in the chat", e.Path))
			continue
		}

		updated, err := apply(content, exists, e)
		if err != nil {
			failures = append(failures, err.Error())
			continue
		}
		if err := c.ws.WriteFile(e.Path, updated); err != nil {
			failures = append(failures, fmt.Sprintf("write %s: %v", e.Path, err))
			continue
		}
		if !inChat[e.Path] {
			if _, err := c.ws.AddFile(e.Path); err == nil {
				inChat[e.Path] = true
			}
		}
		if !slices.Contains(edited, e.Path) {
			edited = append(edited, e.Path)
		}
	}

	if len(edited) > 0 {
		commit, err := c.ws.Commit(ctx, edited, commitMessage(prompt))
		if err != nil {
			return "", fmt.Errorf("commit edits: %w", err)
		}
		c.mu.Lock()
		c.editedFiles = edited
		c.lastCommit = commit
		c.mu.Unlock()
	}

	if len(failures) == 0 {
		return "", nil
	}
	return "\n\nSome edits could not be applied:\n- " + strings.Join(failures, "\n- ") + "\n", nil
}

// EditedFiles returns the files changed by the most recent run.
func (c *Coder) EditedFiles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.editedFiles)
}

// LastCommit returns the most recent commit made by this coder, zero if none.
func (c *Coder) LastCommit() git.Commit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCommit
}

// Undo reverts the coder's last commit. hash must name it.
func (c *Coder) Undo(ctx context.Context, hash string) (string, error) {
	c.mu.Lock()
	last := c.lastCommit
	c.mu.Unlock()

	if last.Hash == "" || last.Hash != hash {
		return "", apperr.New(apperr.KindConflict, "coder.Undo", "Commit %s is not the latest commit", hash)
	}

	report, err := c.ws.Undo(ctx, hash)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.lastCommit = git.Commit{}
	c.mu.Unlock()
	return report, nil
}

// RestoreLastCommit sets the commit Undo will accept, used when a persisted
// session is reloaded.
func (c *Coder) RestoreLastCommit(commit git.Commit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastCommit = commit
}

// ClearHistory forgets the conversation so the model no longer sees it.
func (c *Coder) ClearHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
}

// History returns the conversation sent to the model.
func (c *Coder) History() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.history)
}

// RestoreHistory replaces the conversation, used when a persisted session is
// reloaded.
func (c *Coder) RestoreHistory(history []models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = slices.Clone(history)
}
