// Package workspace is the version-control collaborator sessions work against:
// a git repository plus the set of files a conversation is allowed to edit.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ShayCichocki/pairline/internal/apperr"
	"github.com/ShayCichocki/pairline/internal/exec"
	"github.com/ShayCichocki/pairline/internal/git"
)

// Repo is a git repository shared by every session. Mutating git operations
// are serialized so concurrent sessions never fight over the index lock.
type Repo struct {
	root string
	git  git.Runner

	mu sync.Mutex
}

// OpenRepo resolves path to a git work tree. It fails with an initialization
// error when path is not inside a repository.
func OpenRepo(ctx context.Context, path string, cmd exec.CommandRunner) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInitialization, "workspace.OpenRepo", err)
	}

	root, err := git.NewRunner(abs, cmd).Root(ctx)
	if err != nil || root == "" {
		return nil, &apperr.Error{
			Kind: apperr.KindInitialization,
			Op:   "workspace.OpenRepo",
			Msg:  "pairline can currently only be used inside a git repo",
			Err:  err,
		}
	}

	return &Repo{root: root, git: git.NewRunner(root, cmd)}, nil
}

// NewRepo wraps an already-resolved repository. It is used by tests that
// supply their own git runner.
func NewRepo(root string, runner git.Runner) *Repo {
	return &Repo{root: root, git: runner}
}

// Root returns the work tree's top-level directory.
func (r *Repo) Root() string {
	return r.root
}

// HeadCommit returns HEAD, or a zero Commit when the repository is empty.
func (r *Repo) HeadCommit(ctx context.Context) (git.Commit, error) {
	c, err := r.git.HeadCommit(ctx)
	if errors.Is(err, git.ErrNoCommits) {
		return git.Commit{}, nil
	}
	return c, err
}

// Diff returns the textual diff between two revisions.
func (r *Repo) Diff(ctx context.Context, from, to string) (string, error) {
	return r.git.DiffBetween(ctx, from, to)
}

// AllFiles lists tracked files relative to the root.
func (r *Repo) AllFiles(ctx context.Context) ([]string, error) {
	return r.git.ListFiles(ctx)
}

// NewWorkspace returns an empty per-session view of the repository.
func (r *Repo) NewWorkspace() *GitWorkspace {
	return &GitWorkspace{repo: r, inChat: make(map[string]struct{})}
}

// resolve maps a repo-relative name to an absolute path, rejecting names that
// escape the work tree.
func (r *Repo) resolve(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) {
		rel, err := filepath.Rel(r.root, clean)
		if err != nil {
			return "", err
		}
		clean = rel
	}
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", apperr.New(apperr.KindValidation, "workspace.resolve", "path %q is outside the repository", name)
	}
	return filepath.Join(r.root, clean), nil
}

// relName normalizes name to the slash-separated form git reports.
func (r *Repo) relName(name string) (string, error) {
	abs, err := r.resolve(name)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(r.root, abs)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func (r *Repo) readFile(name string) (string, error) {
	path, err := r.resolve(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (r *Repo) writeFile(name, content string) error {
	path, err := r.resolve(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create parent of %s: %w", name, err)
	}
	return os.WriteFile(path, []byte(content), 0644)
}

// commit stages files and commits them under the repo lock.
func (r *Repo) commit(ctx context.Context, files []string, message string) (git.Commit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.git.Add(ctx, files...); err != nil {
		return git.Commit{}, fmt.Errorf("stage files: %w", err)
	}
	c, err := r.git.Commit(ctx, message)
	if err != nil {
		return git.Commit{}, fmt.Errorf("commit: %w", err)
	}
	return c, nil
}
