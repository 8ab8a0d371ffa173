// Package git provides an interface for git operations.
package git

import (
	"context"
	"errors"
)

// ErrNoCommits is returned by HeadCommit in a repository without commits.
var ErrNoCommits = errors.New("repository has no commits")

// Commit identifies a commit by hash and subject line.
type Commit struct {
	Hash    string `json:"hash"`
	Message string `json:"message"`
}

// RepoOperations defines the interface for repository discovery.
type RepoOperations interface {
	// Root returns the top-level directory of the work tree.
	Root(ctx context.Context) (string, error)
	// ListFiles returns the tracked files relative to the root.
	ListFiles(ctx context.Context) ([]string, error)
	// DirtyFiles returns the paths among paths with uncommitted changes.
	DirtyFiles(ctx context.Context, paths ...string) ([]string, error)
}

// HistoryOperations defines the interface for reading commits and diffs.
type HistoryOperations interface {
	// HeadCommit returns the commit HEAD points at.
	HeadCommit(ctx context.Context) (Commit, error)
	// DiffBetween returns the diff between two refs.
	DiffBetween(ctx context.Context, ref1, ref2 string) (string, error)
	// ChangedFilesBetween returns files changed between two refs.
	ChangedFilesBetween(ctx context.Context, ref1, ref2 string) ([]string, error)
	// PathExists reports whether path exists in the tree of ref.
	PathExists(ctx context.Context, ref, path string) bool
}

// CommitOperations defines the interface for git commit operations.
type CommitOperations interface {
	// Add stages the specified files for commit.
	Add(ctx context.Context, paths ...string) error
	// Commit creates a new commit with the given message and returns it.
	Commit(ctx context.Context, message string) (Commit, error)
	// ResetSoft moves HEAD to ref, keeping the index and work tree.
	ResetSoft(ctx context.Context, ref string) error
	// CheckoutPath restores path in the index and work tree from ref.
	CheckoutPath(ctx context.Context, ref, path string) error
	// Remove deletes path from the index and work tree.
	Remove(ctx context.Context, path string) error
}

// Runner defines the complete interface for git operations.
// Consumers should prefer using focused interfaces when possible.
type Runner interface {
	RepoOperations
	HistoryOperations
	CommitOperations
}
