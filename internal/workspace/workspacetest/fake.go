// Package workspacetest provides an in-memory Workspace for tests.
package workspacetest

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"maps"
	"os"
	"slices"
	"sync"

	"github.com/ShayCichocki/pairline/internal/apperr"
	"github.com/ShayCichocki/pairline/internal/git"
	"github.com/ShayCichocki/pairline/internal/workspace"
)

// Fake is an in-memory Workspace. Commits get deterministic hashes and Diff
// returns a one-line description of the range.
type Fake struct {
	mu      sync.Mutex
	files   map[string]string
	inChat  map[string]bool
	commits []git.Commit

	// DiffErr, when set, is returned by Diff.
	DiffErr error
	// DiffCalls records the (from, to) pairs Diff was asked for.
	DiffCalls [][2]string
}

// New returns a Fake holding files, with one initial commit.
func New(files map[string]string) *Fake {
	f := &Fake{
		files:  maps.Clone(files),
		inChat: make(map[string]bool),
	}
	if f.files == nil {
		f.files = make(map[string]string)
	}
	f.commits = append(f.commits, git.Commit{Hash: hash(0), Message: "initial"})
	return f
}

func hash(n int) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("commit-%d", n)))
	return hex.EncodeToString(sum[:])
}

func (f *Fake) HeadCommit(ctx context.Context) (git.Commit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commits[len(f.commits)-1], nil
}

func (f *Fake) Diff(ctx context.Context, from, to string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DiffCalls = append(f.DiffCalls, [2]string{from, to})
	if f.DiffErr != nil {
		return "", f.DiffErr
	}
	return fmt.Sprintf("diff %s..%s", from, to), nil
}

func (f *Fake) AllFiles(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Sorted(maps.Keys(f.files)), nil
}

func (f *Fake) InChatFiles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Sorted(maps.Keys(f.inChat))
}

func (f *Fake) AddFile(name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inChat[name] {
		return false, nil
	}
	f.inChat[name] = true
	return true, nil
}

func (f *Fake) RemoveFile(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.inChat[name] {
		return false
	}
	delete(f.inChat, name)
	return true
}

func (f *Fake) Announcements(ctx context.Context) []string {
	return []string{fmt.Sprintf("Git repo: fake with %d files", len(f.files))}
}

func (f *Fake) ReadFile(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.files[name]
	if !ok {
		return "", fmt.Errorf("open %s: %w", name, os.ErrNotExist)
	}
	return content, nil
}

func (f *Fake) WriteFile(name, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[name] = content
	return nil
}

func (f *Fake) Commit(ctx context.Context, files []string, message string) (git.Commit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := git.Commit{Hash: hash(len(f.commits)), Message: message}
	f.commits = append(f.commits, c)
	return c, nil
}

func (f *Fake) Undo(ctx context.Context, h string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	head := f.commits[len(f.commits)-1]
	if head.Hash != h || len(f.commits) == 1 {
		return "", apperr.New(apperr.KindConflict, "workspacetest.Undo", "Commit %s is not the latest commit", h)
	}
	f.commits = f.commits[:len(f.commits)-1]
	return fmt.Sprintf("Removed: %s %s", h[:7], head.Message), nil
}

// Content returns the current content of a file.
func (f *Fake) Content(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.files[name]
}

// Commits returns the commit history, oldest first.
func (f *Fake) Commits() []git.Commit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.commits)
}

var _ workspace.Workspace = (*Fake)(nil)
