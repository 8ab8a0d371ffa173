package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/ShayCichocki/pairline/internal/exec"
)

// ExecRunner implements Runner by shelling out to the git binary.
type ExecRunner struct {
	repoPath string
	cmd      exec.CommandRunner
}

// NewRunner creates a new git runner for the repository at the given path.
// A nil cmd uses the os/exec backed runner.
func NewRunner(repoPath string, cmd exec.CommandRunner) *ExecRunner {
	if cmd == nil {
		cmd = exec.NewRunner()
	}
	return &ExecRunner{repoPath: repoPath, cmd: cmd}
}

// run executes a git command and returns its trimmed output.
func (r *ExecRunner) run(ctx context.Context, args ...string) (string, error) {
	out, err := r.cmd.Run(ctx, r.repoPath, "git", args...)
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// runSilent executes a git command and ignores output.
func (r *ExecRunner) runSilent(ctx context.Context, args ...string) error {
	_, err := r.run(ctx, args...)
	return err
}

// Root returns the top-level directory of the work tree.
func (r *ExecRunner) Root(ctx context.Context) (string, error) {
	return r.run(ctx, "rev-parse", "--show-toplevel")
}

// ListFiles returns the tracked files.
func (r *ExecRunner) ListFiles(ctx context.Context) ([]string, error) {
	out, err := r.run(ctx, "ls-files")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// DirtyFiles returns the given paths that differ from HEAD in the index or
// work tree.
func (r *ExecRunner) DirtyFiles(ctx context.Context, paths ...string) ([]string, error) {
	args := append([]string{"diff", "--name-only", "HEAD", "--"}, paths...)
	out, err := r.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// HeadCommit returns the hash and subject of HEAD.
func (r *ExecRunner) HeadCommit(ctx context.Context) (Commit, error) {
	if _, err := r.run(ctx, "rev-parse", "--verify", "--quiet", "HEAD"); err != nil {
		return Commit{}, ErrNoCommits
	}
	out, err := r.run(ctx, "log", "-1", "--format=%H%n%s", "HEAD")
	if err != nil {
		return Commit{}, err
	}
	hash, subject, _ := strings.Cut(out, "\n")
	return Commit{Hash: hash, Message: subject}, nil
}

// DiffBetween returns the diff between two refs.
func (r *ExecRunner) DiffBetween(ctx context.Context, ref1, ref2 string) (string, error) {
	return r.run(ctx, "diff", ref1, ref2)
}

// ChangedFilesBetween returns files changed between two refs.
func (r *ExecRunner) ChangedFilesBetween(ctx context.Context, ref1, ref2 string) ([]string, error) {
	out, err := r.run(ctx, "diff", "--name-only", ref1, ref2)
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// PathExists reports whether path exists in the tree of ref.
func (r *ExecRunner) PathExists(ctx context.Context, ref, path string) bool {
	return r.runSilent(ctx, "cat-file", "-e", ref+":"+path) == nil
}

// Add stages the specified files for commit.
func (r *ExecRunner) Add(ctx context.Context, paths ...string) error {
	args := append([]string{"add", "--"}, paths...)
	return r.runSilent(ctx, args...)
}

// Commit creates a new commit with the given message.
func (r *ExecRunner) Commit(ctx context.Context, message string) (Commit, error) {
	if err := r.runSilent(ctx, "commit", "-m", message); err != nil {
		return Commit{}, err
	}
	return r.HeadCommit(ctx)
}

// ResetSoft moves HEAD to ref without touching the index or work tree.
func (r *ExecRunner) ResetSoft(ctx context.Context, ref string) error {
	return r.runSilent(ctx, "reset", "--soft", ref)
}

// CheckoutPath restores a path from ref.
func (r *ExecRunner) CheckoutPath(ctx context.Context, ref, path string) error {
	return r.runSilent(ctx, "checkout", ref, "--", path)
}

// Remove deletes a path from the index and work tree.
func (r *ExecRunner) Remove(ctx context.Context, path string) error {
	return r.runSilent(ctx, "rm", "-q", "-f", "--", path)
}

func splitLines(out string) []string {
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

// Verify ExecRunner implements Runner at compile time.
var _ Runner = (*ExecRunner)(nil)
