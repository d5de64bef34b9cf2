// Package invoke runs the wrapped agent as a genuine child process under an
// enforced deadline. The dispatcher always waits for the child rather than
// replacing its own process image: control has to return here so cleanup and
// trace emission can run with the captured exit code.
package invoke

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"syscall"
	"time"
)

const (
	// maxStderrBytes caps the amount of stderr retained from the child.
	maxStderrBytes = 64 * 1024

	// terminationGracePeriod is the time between SIGTERM and SIGKILL once
	// the deadline fires. The invocation returns within this bound no
	// matter how long the child would otherwise run.
	terminationGracePeriod = 2 * time.Second

	// TimeoutExitCode is the synthetic status reported when the child is
	// killed for exceeding its deadline. 124 follows timeout(1) and stays
	// distinguishable from ordinary agent exit codes.
	TimeoutExitCode = 124
)

// Invocation describes one child process run.
type Invocation struct {
	Argv  []string
	Dir   string
	Env   []string
	Stdin io.Reader
}

// Result captures how the child ended.
type Result struct {
	ExitCode int
	TimedOut bool
	Stdout   []byte
	Stderr   []byte
}

// Run starts the child and waits for completion or the deadline, whichever
// comes first. deadline <= 0 means unbounded. On deadline expiry the child
// gets SIGTERM, then SIGKILL after the grace period, and the result carries
// the synthetic timeout exit code. A child that exits non-zero is not an
// error here; its code is the result.
func Run(ctx context.Context, inv Invocation, deadline time.Duration, logger *slog.Logger) (*Result, error) {
	if len(inv.Argv) == 0 {
		return nil, fmt.Errorf("invocation argv is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.Command(inv.Argv[0], inv.Argv[1:]...)
	cmd.Dir = inv.Dir
	cmd.Env = inv.Env
	cmd.Stdin = inv.Stdin

	// The child gets its own process group so a termination signal reaches
	// grandchildren too; otherwise they keep the inherited pipe write ends
	// open and Wait blocks until their own exit. WaitDelay bounds Wait for
	// anything that escapes the group.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = terminationGracePeriod

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("spawning agent", "argv", inv.Argv, "dir", inv.Dir, "deadline", deadline)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start agent process: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	var deadlineC <-chan time.Time
	if deadline > 0 {
		timer := time.NewTimer(deadline)
		defer timer.Stop()
		deadlineC = timer.C
	}

	select {
	case <-ctx.Done():
		terminate(cmd, waitErr, logger)
		return &Result{
			ExitCode: TimeoutExitCode,
			TimedOut: true,
			Stdout:   stdout.Bytes(),
			Stderr:   capStderr(stderr.Bytes()),
		}, ctx.Err()

	case <-deadlineC:
		logger.Warn("agent exceeded deadline, terminating", "deadline", deadline)
		terminate(cmd, waitErr, logger)
		return &Result{
			ExitCode: TimeoutExitCode,
			TimedOut: true,
			Stdout:   stdout.Bytes(),
			Stderr:   capStderr(stderr.Bytes()),
		}, nil

	case err := <-waitErr:
		res := &Result{
			Stdout: stdout.Bytes(),
			Stderr: capStderr(stderr.Bytes()),
		}
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				res.ExitCode = exitErr.ExitCode()
				logger.Warn("agent exited non-zero", "exit_code", res.ExitCode)
				return res, nil
			}
			if errors.Is(err, exec.ErrWaitDelay) {
				// The agent itself exited; only abandoned pipes remained.
				res.ExitCode = cmd.ProcessState.ExitCode()
				return res, nil
			}
			return nil, fmt.Errorf("wait for agent process: %w", err)
		}
		return res, nil
	}
}

// terminate applies the SIGTERM, grace, SIGKILL ladder to the child's whole
// process group and waits for Wait to come back before returning.
func terminate(cmd *exec.Cmd, waitErr chan error, logger *slog.Logger) {
	if cmd.Process == nil {
		return
	}

	signalGroup(cmd, syscall.SIGTERM, logger)

	grace := time.NewTimer(terminationGracePeriod)
	defer grace.Stop()

	select {
	case <-waitErr:
		logger.Debug("agent exited after SIGTERM")
	case <-grace.C:
		logger.Warn("agent ignored SIGTERM, sending SIGKILL")
		signalGroup(cmd, syscall.SIGKILL, logger)
		<-waitErr
	}
}

// signalGroup signals the child's process group, falling back to the child
// alone when the group signal fails (the child may already be gone).
func signalGroup(cmd *exec.Cmd, sig syscall.Signal, logger *slog.Logger) {
	if err := syscall.Kill(-cmd.Process.Pid, sig); err != nil {
		logger.Debug("process group signal failed, signaling child directly", "signal", sig, "error", err)
		_ = cmd.Process.Signal(sig)
	}
}

func capStderr(b []byte) []byte {
	if len(b) > maxStderrBytes {
		return b[:maxStderrBytes]
	}
	return b
}
