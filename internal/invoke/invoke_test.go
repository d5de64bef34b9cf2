package invoke

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRunCapturesOutputAndExitCode(t *testing.T) {
	res, err := Run(context.Background(), Invocation{
		Argv: []string{"/bin/sh", "-c", "echo out; echo err >&2; exit 0"},
	}, 0, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.ExitCode != 0 {
		t.Fatalf("Run() exit code = %d, want 0", res.ExitCode)
	}
	if strings.TrimSpace(string(res.Stdout)) != "out" {
		t.Fatalf("Run() stdout = %q", res.Stdout)
	}
	if strings.TrimSpace(string(res.Stderr)) != "err" {
		t.Fatalf("Run() stderr = %q", res.Stderr)
	}
}

func TestRunPropagatesNonZeroExit(t *testing.T) {
	res, err := Run(context.Background(), Invocation{
		Argv: []string{"/bin/sh", "-c", "echo diagnostics >&2; exit 42"},
	}, 0, nil)
	if err != nil {
		t.Fatalf("Run() error = %v, non-zero exit must not be an error", err)
	}

	if res.ExitCode != 42 {
		t.Fatalf("Run() exit code = %d, want 42 unchanged", res.ExitCode)
	}
	if res.TimedOut {
		t.Fatalf("Run() reported timeout for a plain failure")
	}
	if !strings.Contains(string(res.Stderr), "diagnostics") {
		t.Fatalf("Run() lost stderr of failing child: %q", res.Stderr)
	}
}

func TestRunKillsChildAtDeadline(t *testing.T) {
	start := time.Now()
	res, err := Run(context.Background(), Invocation{
		Argv: []string{"/bin/sh", "-c", "sleep 5"},
	}, 200*time.Millisecond, nil)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.TimedOut {
		t.Fatalf("Run() did not flag timeout")
	}
	if res.ExitCode != TimeoutExitCode {
		t.Fatalf("Run() exit code = %d, want synthetic %d", res.ExitCode, TimeoutExitCode)
	}
	// Deadline + grace, not the child's own runtime, bounds the return.
	if elapsed >= 4*time.Second {
		t.Fatalf("Run() took %s, dispatcher waited for the child", elapsed)
	}
}

func TestRunDeadlineKillReachesGrandchildren(t *testing.T) {
	// The background sleep inherits the stdout/stderr pipes; unless the whole
	// process group is signaled, Wait blocks until it exits on its own.
	start := time.Now()
	res, err := Run(context.Background(), Invocation{
		Argv: []string{"/bin/sh", "-c", "sleep 5 & sleep 5"},
	}, 200*time.Millisecond, nil)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.TimedOut || res.ExitCode != TimeoutExitCode {
		t.Fatalf("Run() result = %+v, want timeout kill", res)
	}
	if elapsed >= 4*time.Second {
		t.Fatalf("Run() took %s, a grandchild kept the dispatcher waiting", elapsed)
	}
}

func TestRunPassesEnvAndDir(t *testing.T) {
	dir := t.TempDir()
	res, err := Run(context.Background(), Invocation{
		Argv: []string{"/bin/sh", "-c", "pwd; printf '%s' \"$MARKER\""},
		Dir:  dir,
		Env:  []string{"PATH=/usr/bin:/bin", "MARKER=present"},
	}, 0, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	out := string(res.Stdout)
	if !strings.Contains(out, dir) {
		t.Fatalf("Run() child dir not applied: %q", out)
	}
	if !strings.HasSuffix(out, "present") {
		t.Fatalf("Run() child env not applied: %q", out)
	}
}

func TestRunRejectsEmptyArgv(t *testing.T) {
	if _, err := Run(context.Background(), Invocation{}, 0, nil); err == nil {
		t.Fatalf("Run() accepted empty argv")
	}
}
