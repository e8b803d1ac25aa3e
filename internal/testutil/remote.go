// Package testutil provides fixtures shared by tests that need a real git
// remote.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// Remote is a local repository acting as the remote of a working copy
type Remote struct {
	Dir    string
	Branch string
}

// NewRemote initializes an empty repository on branch in a temp directory.
// The test is skipped when git is not installed.
func NewRemote(t *testing.T, branch string) *Remote {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}

	r := &Remote{Dir: t.TempDir(), Branch: branch}
	r.git(t, "init", "-b", branch, r.Dir)
	r.git(t, "-C", r.Dir, "config", "user.email", "test@test.com")
	r.git(t, "-C", r.Dir, "config", "user.name", "Test")
	return r
}

// Commit writes files (path relative to the repository root → content) and
// commits them in one commit.
func (r *Remote) Commit(t *testing.T, msg string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(r.Dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		r.git(t, "-C", r.Dir, "add", name)
	}
	r.git(t, "-C", r.Dir, "commit", "-m", msg)
}

// Remove deletes files and commits the removal
func (r *Remote) Remove(t *testing.T, msg string, names ...string) {
	t.Helper()
	args := append([]string{"-C", r.Dir, "rm", "-q"}, names...)
	r.git(t, args...)
	r.git(t, "-C", r.Dir, "commit", "-m", msg)
}

func (r *Remote) git(t *testing.T, args ...string) {
	t.Helper()
	if out, err := exec.Command("git", args...).CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v: %s", args, err, out)
	}
}
