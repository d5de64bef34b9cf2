package workspace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// gitIsolator provisions detached git worktrees under a scratch directory.
type gitIsolator struct {
	repoRoot string
	baseDir  string
	logger   *slog.Logger
}

var _ Isolator = (*gitIsolator)(nil)

// NewGitIsolator creates a worktree-backed isolator rooted at repoRoot.
// Worktrees are materialized under baseDir; empty baseDir falls back to the
// system temp directory.
func NewGitIsolator(repoRoot, baseDir string, logger *slog.Logger) Isolator {
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "recurse-ws")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &gitIsolator{
		repoRoot: filepath.Clean(repoRoot),
		baseDir:  filepath.Clean(baseDir),
		logger:   logger,
	}
}

// Available probes for the tool on PATH and for a repository at repoRoot.
// Both probes failing is an expected condition, reported as false and never
// as an error.
func (g *gitIsolator) Available(ctx context.Context) bool {
	if _, err := exec.LookPath("git"); err != nil {
		return false
	}
	cmd := exec.CommandContext(ctx, "git", "-C", g.repoRoot, "rev-parse", "--git-dir")
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Run() == nil
}

// Acquire adds a detached worktree owned by one call.
func (g *gitIsolator) Acquire(ctx context.Context, traceID string, depth int) (*Handle, error) {
	if err := os.MkdirAll(g.baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace base directory: %w", err)
	}

	id := workspaceID(traceID, depth)
	dir := filepath.Join(g.baseDir, id)

	out, err := g.git(ctx, "worktree", "add", "--detach", dir)
	if err != nil {
		return nil, fmt.Errorf("add worktree: %w: %s", err, strings.TrimSpace(out))
	}

	g.logger.Debug("workspace acquired", "dir", dir, "trace_id", traceID, "depth", depth)
	return &Handle{Dir: dir, id: id}, nil
}

// Release removes the worktree. A failed removal falls back to deleting the
// directory and pruning stale registrations so nothing survives the call.
func (g *gitIsolator) Release(ctx context.Context, h *Handle) error {
	if h == nil {
		return nil
	}

	if out, err := g.git(ctx, "worktree", "remove", "--force", h.Dir); err != nil {
		g.logger.Warn("worktree remove failed, deleting directly", "dir", h.Dir, "output", strings.TrimSpace(out))
		if rmErr := os.RemoveAll(h.Dir); rmErr != nil {
			return fmt.Errorf("remove workspace %s: %w", h.Dir, rmErr)
		}
		if out, err := g.git(ctx, "worktree", "prune"); err != nil {
			return fmt.Errorf("prune worktrees: %w: %s", err, strings.TrimSpace(out))
		}
	}

	g.logger.Debug("workspace released", "dir", h.Dir)
	return nil
}

func (g *gitIsolator) git(ctx context.Context, args ...string) (string, error) {
	full := append([]string{"-C", g.repoRoot}, args...)
	cmd := exec.CommandContext(ctx, "git", full...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func workspaceID(traceID string, depth int) string {
	short := traceID
	if len(short) > 8 {
		short = short[:8]
	}
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	return fmt.Sprintf("ws-%s-d%d-%s", short, depth, hex.EncodeToString(buf[:]))
}
