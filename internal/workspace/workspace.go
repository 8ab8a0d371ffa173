package workspace

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/ShayCichocki/pairline/internal/apperr"
	"github.com/ShayCichocki/pairline/internal/git"
)

// Workspace is what a session needs from version control.
type Workspace interface {
	// HeadCommit returns the latest commit, zero when there is none.
	HeadCommit(ctx context.Context) (git.Commit, error)
	// Diff returns the diff between two revisions.
	Diff(ctx context.Context, from, to string) (string, error)
	// AllFiles lists every tracked file.
	AllFiles(ctx context.Context) ([]string, error)
	// InChatFiles lists the files the conversation may edit, sorted.
	InChatFiles() []string
	// AddFile adds name to the conversation. It reports false if name was
	// already present.
	AddFile(name string) (bool, error)
	// RemoveFile drops name from the conversation. It reports false if name
	// was absent.
	RemoveFile(name string) bool
	// Announcements describes the workspace for the bootstrap message.
	Announcements(ctx context.Context) []string

	ReadFile(name string) (string, error)
	WriteFile(name, content string) error
	// Commit stages files and commits them.
	Commit(ctx context.Context, files []string, message string) (git.Commit, error)
	// Undo reverts hash, which must be HEAD, and returns a textual report.
	Undo(ctx context.Context, hash string) (string, error)
}

// GitWorkspace is one session's view of a Repo.
type GitWorkspace struct {
	repo *Repo

	mu     sync.Mutex
	inChat map[string]struct{}
}

// HeadCommit returns the repository's HEAD.
func (w *GitWorkspace) HeadCommit(ctx context.Context) (git.Commit, error) {
	return w.repo.HeadCommit(ctx)
}

// Diff returns the diff between two revisions.
func (w *GitWorkspace) Diff(ctx context.Context, from, to string) (string, error) {
	return w.repo.Diff(ctx, from, to)
}

// AllFiles lists tracked files.
func (w *GitWorkspace) AllFiles(ctx context.Context) ([]string, error) {
	return w.repo.AllFiles(ctx)
}

// InChatFiles returns the sorted in-conversation file set.
func (w *GitWorkspace) InChatFiles() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	files := make([]string, 0, len(w.inChat))
	for f := range w.inChat {
		files = append(files, f)
	}
	slices.Sort(files)
	return files
}

// AddFile adds a file to the conversation.
func (w *GitWorkspace) AddFile(name string) (bool, error) {
	rel, err := w.repo.relName(name)
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.inChat[rel]; ok {
		return false, nil
	}
	w.inChat[rel] = struct{}{}
	return true, nil
}

// RemoveFile drops a file from the conversation.
func (w *GitWorkspace) RemoveFile(name string) bool {
	rel, err := w.repo.relName(name)
	if err != nil {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.inChat[rel]; !ok {
		return false
	}
	delete(w.inChat, rel)
	return true
}

// Announcements describes the repository and the files in the chat.
func (w *GitWorkspace) Announcements(ctx context.Context) []string {
	var lines []string

	if files, err := w.repo.AllFiles(ctx); err == nil {
		lines = append(lines, fmt.Sprintf("Git repo: %s with %d files", w.repo.Root(), len(files)))
	} else {
		lines = append(lines, fmt.Sprintf("Git repo: %s", w.repo.Root()))
	}
	for _, f := range w.InChatFiles() {
		lines = append(lines, fmt.Sprintf("Added %s to the chat.", f))
	}
	return lines
}

// ReadFile returns the content of a repo-relative file.
func (w *GitWorkspace) ReadFile(name string) (string, error) {
	return w.repo.readFile(name)
}

// WriteFile replaces the content of a repo-relative file.
func (w *GitWorkspace) WriteFile(name, content string) error {
	return w.repo.writeFile(name, content)
}

// Commit stages files and commits them.
func (w *GitWorkspace) Commit(ctx context.Context, files []string, message string) (git.Commit, error) {
	return w.repo.commit(ctx, files, message)
}

// Undo reverts the commit hash, which must be HEAD. Files touched by the
// commit are restored to their parent revision and HEAD moves back one
// commit. Files with uncommitted changes block the undo.
func (w *GitWorkspace) Undo(ctx context.Context, hash string) (string, error) {
	const op = "workspace.Undo"

	r := w.repo
	r.mu.Lock()
	defer r.mu.Unlock()

	head, err := r.git.HeadCommit(ctx)
	if err != nil {
		return "", apperr.Wrap(apperr.KindConflict, op, err)
	}
	if head.Hash != hash {
		return "", apperr.New(apperr.KindConflict, op, "Commit %s is not the latest commit", hash)
	}

	parent := hash + "~1"
	files, err := r.git.ChangedFilesBetween(ctx, parent, hash)
	if err != nil {
		return "", &apperr.Error{Kind: apperr.KindConflict, Op: op, Msg: "the first commit cannot be undone", Err: err}
	}

	if len(files) > 0 {
		dirty, err := r.git.DirtyFiles(ctx, files...)
		if err != nil {
			return "", fmt.Errorf("check uncommitted changes: %w", err)
		}
		if len(dirty) > 0 {
			return "", apperr.New(apperr.KindConflict, op,
				"The file %s has uncommitted changes. Please stash them before undoing.", dirty[0])
		}
	}

	for _, f := range files {
		if r.git.PathExists(ctx, parent, f) {
			err = r.git.CheckoutPath(ctx, parent, f)
		} else {
			err = r.git.Remove(ctx, f)
		}
		if err != nil {
			return "", fmt.Errorf("restore %s: %w", f, err)
		}
	}

	if err := r.git.ResetSoft(ctx, parent); err != nil {
		return "", fmt.Errorf("reset: %w", err)
	}

	now, err := r.git.HeadCommit(ctx)
	if err != nil {
		return "", fmt.Errorf("read new HEAD: %w", err)
	}

	return fmt.Sprintf("Removed: %s %s\nNow at:  %s %s",
		shortHash(head.Hash), head.Message, shortHash(now.Hash), now.Message), nil
}

func shortHash(h string) string {
	if len(h) > 7 {
		return h[:7]
	}
	return h
}

var _ Workspace = (*GitWorkspace)(nil)
