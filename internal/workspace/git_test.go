package workspace

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not on PATH")
	}
}

// initRepo creates a repository with one commit so worktrees can detach.
func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
	run("init")
	run("-c", "user.name=test", "-c", "user.email=test@example.invalid", "commit", "--allow-empty", "-m", "init")
	return dir
}

func TestAvailableFalseOutsideRepository(t *testing.T) {
	requireGit(t)

	iso := NewGitIsolator(t.TempDir(), "", nil)
	if iso.Available(context.Background()) {
		t.Fatalf("Available() = true for a plain directory")
	}
}

func TestAvailableTrueInsideRepository(t *testing.T) {
	requireGit(t)

	iso := NewGitIsolator(initRepo(t), "", nil)
	if !iso.Available(context.Background()) {
		t.Fatalf("Available() = false inside a repository")
	}
}

func TestAcquireReleaseRoundtrip(t *testing.T) {
	requireGit(t)

	repo := initRepo(t)
	base := t.TempDir()
	iso := NewGitIsolator(repo, base, nil)
	ctx := context.Background()

	h, err := iso.Acquire(ctx, "0123456789abcdef", 1)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if info, err := os.Stat(h.Dir); err != nil || !info.IsDir() {
		t.Fatalf("acquired workspace %s is not a directory: %v", h.Dir, err)
	}
	if filepath.Dir(h.Dir) != base {
		t.Fatalf("workspace %s placed outside base %s", h.Dir, base)
	}
	name := filepath.Base(h.Dir)
	if !strings.HasPrefix(name, "ws-01234567-d1-") {
		t.Fatalf("workspace name = %q, want trace and depth encoded", name)
	}

	// The copy is a working tree of the repository, not a bare directory.
	cmd := exec.Command("git", "-C", h.Dir, "rev-parse", "--is-inside-work-tree")
	if out, err := cmd.CombinedOutput(); err != nil || strings.TrimSpace(string(out)) != "true" {
		t.Fatalf("workspace is not a work tree: %v: %s", err, out)
	}

	if err := iso.Release(ctx, h); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if _, err := os.Stat(h.Dir); !os.IsNotExist(err) {
		t.Fatalf("workspace %s survived release", h.Dir)
	}
}

func TestReleaseRecoversManuallyDeletedWorkspace(t *testing.T) {
	requireGit(t)

	repo := initRepo(t)
	iso := NewGitIsolator(repo, t.TempDir(), nil)
	ctx := context.Background()

	h, err := iso.Acquire(ctx, "trace", 0)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	// Simulate a child process deleting its own working copy.
	if err := os.RemoveAll(h.Dir); err != nil {
		t.Fatalf("remove workspace: %v", err)
	}
	if err := iso.Release(ctx, h); err != nil {
		t.Fatalf("Release() after manual deletion error = %v", err)
	}
}

func TestReleaseNilHandleIsNoOp(t *testing.T) {
	iso := NewGitIsolator(t.TempDir(), "", nil)
	if err := iso.Release(context.Background(), nil); err != nil {
		t.Fatalf("Release(nil) error = %v", err)
	}
}

func TestSiblingWorkspacesDoNotCollide(t *testing.T) {
	requireGit(t)

	repo := initRepo(t)
	iso := NewGitIsolator(repo, t.TempDir(), nil)
	ctx := context.Background()

	a, err := iso.Acquire(ctx, "same-trace", 1)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	b, err := iso.Acquire(ctx, "same-trace", 1)
	if err != nil {
		t.Fatalf("Acquire() sibling error = %v", err)
	}
	if a.Dir == b.Dir {
		t.Fatalf("sibling calls share workspace %s", a.Dir)
	}
	_ = iso.Release(ctx, a)
	_ = iso.Release(ctx, b)
}
