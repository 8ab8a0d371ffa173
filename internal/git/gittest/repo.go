// Package gittest creates throwaway git repositories for tests.
package gittest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ShayCichocki/pairline/internal/exec"
)

// Env isolates git from the user's global configuration and supplies an
// identity so commits succeed on bare CI machines.
var Env = []string{
	"GIT_CONFIG_GLOBAL=/dev/null",
	"GIT_CONFIG_NOSYSTEM=1",
	"GIT_AUTHOR_NAME=pairline-test",
	"GIT_AUTHOR_EMAIL=test@example.com",
	"GIT_COMMITTER_NAME=pairline-test",
	"GIT_COMMITTER_EMAIL=test@example.com",
}

// Runner returns a command runner using Env.
func Runner() *exec.ExecRunner {
	return &exec.ExecRunner{Env: Env}
}

// NewRepo initializes a repository in a temp dir, writes files and commits
// them. It skips the test when git is not installed.
func NewRepo(t *testing.T, files map[string]string) string {
	t.Helper()

	r := Runner()
	if _, err := r.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	dir := t.TempDir()
	Git(t, dir, "init", "-q")

	if len(files) == 0 {
		return dir
	}
	for name, content := range files {
		WriteFile(t, dir, name, content)
	}
	Git(t, dir, "add", "-A")
	Git(t, dir, "commit", "-q", "-m", "initial")
	return dir
}

// WriteFile writes content to name under dir, creating parent directories.
func WriteFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// Git runs a git command in dir and fails the test on error.
func Git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := Runner().Run(context.Background(), dir, "git", args...)
	if err != nil {
		t.Fatalf("git %v: %v: %s", args, err, out)
	}
	return string(out)
}
