package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rlmkit/recurse/internal/callenv"
	"github.com/rlmkit/recurse/internal/cleanup"
	"github.com/rlmkit/recurse/internal/config"
	"github.com/rlmkit/recurse/internal/guardrail"
	"github.com/rlmkit/recurse/internal/invoke"
	"github.com/rlmkit/recurse/internal/ledger"
	"github.com/rlmkit/recurse/internal/log"
	"github.com/rlmkit/recurse/internal/workspace"
)

// DeniedExitCode is returned when a guardrail refuses the call before any
// child process is spawned.
const DeniedExitCode = 2

// shimName is the command the wrapped agent resolves to re-enter the
// dispatcher from a non-leaf call.
const shimName = "rlm-subcall"

// Runner abstracts the child process invocation for tests.
type Runner func(ctx context.Context, inv invoke.Invocation, deadline time.Duration, logger *slog.Logger) (*invoke.Result, error)

// Dispatcher executes one wrapped-agent call per Run.
type Dispatcher struct {
	cfg      *config.Config
	isolator workspace.Isolator
	runner   Runner
	clock    func() time.Time
	logger   *slog.Logger
}

// New creates a dispatcher. isolator may be nil when isolation is disabled
// outright.
func New(cfg *config.Config, isolator workspace.Isolator) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		isolator: isolator,
		runner:   invoke.Run,
		clock:    time.Now,
		logger:   log.WithComponent("dispatch"),
	}
}

// Result is the outcome of one dispatched call.
type Result struct {
	ExitCode int
	TimedOut bool

	// Denied is set when a guardrail refused the call; ExitCode is then
	// DeniedExitCode and no child process ran.
	Denied *guardrail.DeniedError

	Stdout  []byte
	Stderr  []byte
	Elapsed time.Duration
}

// Run executes one call: the guardrail decision, optional isolation, the
// child process under the remaining deadline, cleanup, and trace emission.
// contextText, when non-nil, is materialized as a scratch file for the
// child; otherwise call.ContextFile is handed through as-is. agentArgs are
// appended to the configured agent command line.
//
// The returned error covers dispatcher-internal failures only; a child that
// ran and exited non-zero is a successful dispatch whose Result carries the
// child's code.
func (d *Dispatcher) Run(ctx context.Context, call *callenv.Call, contextText []byte, agentArgs []string) (*Result, error) {
	if err := call.Validate(); err != nil {
		return nil, fmt.Errorf("invalid call: %w", err)
	}

	callLogger := log.WithCall(call.TraceID, call.Depth)
	start := d.clock()

	decision := guardrail.Evaluate(call, start)

	var digest string
	if contextText != nil {
		digest = ledger.Digest(contextText)
	}

	if !decision.Allow {
		var denied *guardrail.DeniedError
		errors.As(decision.Err(), &denied)
		callLogger.Warn("call denied", "reason", string(decision.Reason), "detail", decision.Detail)
		res := &Result{
			ExitCode: DeniedExitCode,
			Denied:   denied,
			Elapsed:  d.clock().Sub(start),
		}
		d.report(call, res, digest)
		return res, nil
	}

	scope := cleanup.NewScope(callLogger)
	defer scope.Close()

	scratchDir, err := os.MkdirTemp("", "recurse-call-")
	if err != nil {
		return nil, fmt.Errorf("create call scratch directory: %w", err)
	}
	scope.Register("scratch dir", func() error { return os.RemoveAll(scratchDir) })

	if contextText != nil {
		path := filepath.Join(scratchDir, "context-"+ledger.ShortDigest(contextText)+".md")
		if err := os.WriteFile(path, contextText, 0o600); err != nil {
			return nil, fmt.Errorf("write context file: %w", err)
		}
		call.ContextFile = path
	}

	workDir := d.cfg.Agent.WorkDir
	if handle := d.acquireWorkspace(ctx, call, decision, scope, callLogger); handle != nil {
		workDir = handle.Dir
	}

	env := append(callenv.ScrubEnv(os.Environ()), callenv.ChildEnv(call, decision.NextCount, decision.Remaining, decision.HasDeadline)...)

	if !decision.Leaf {
		shimDir, err := d.installShim(scratchDir)
		if err != nil {
			return nil, err
		}
		// PATH appended last so the shim entry wins over any inherited value.
		env = append(env, "PATH="+shimDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}

	argv := append([]string{}, d.cfg.Agent.Command...)
	argv = append(argv, d.cfg.Agent.ProviderFlag, call.Provider, d.cfg.Agent.ModelFlag, call.Model)
	argv = append(argv, agentArgs...)

	var deadline time.Duration
	if decision.HasDeadline {
		deadline = decision.Remaining
	}

	out, err := d.runner(ctx, invoke.Invocation{
		Argv: argv,
		Dir:  workDir,
		Env:  env,
	}, deadline, callLogger)
	if err != nil {
		return nil, fmt.Errorf("invoke agent: %w", err)
	}

	res := &Result{
		ExitCode: out.ExitCode,
		TimedOut: out.TimedOut,
		Stdout:   out.Stdout,
		Stderr:   out.Stderr,
		Elapsed:  d.clock().Sub(start),
	}
	d.report(call, res, digest)

	callLogger.Info("call completed",
		"exit_code", res.ExitCode,
		"timed_out", res.TimedOut,
		"elapsed", res.Elapsed.Round(time.Millisecond))
	return res, nil
}

// acquireWorkspace provisions isolation when it applies: toggle on, call is
// non-leaf, tool available. Failure to acquire is recovered locally; the
// call proceeds against the shared tree.
func (d *Dispatcher) acquireWorkspace(ctx context.Context, call *callenv.Call, decision guardrail.Decision, scope *cleanup.Scope, logger *slog.Logger) *workspace.Handle {
	if !call.Isolation || decision.Leaf || d.isolator == nil {
		return nil
	}
	if !d.isolator.Available(ctx) {
		logger.Debug("isolation unavailable, continuing in shared working tree")
		return nil
	}

	handle, err := d.isolator.Acquire(ctx, call.TraceID, call.Depth)
	if err != nil {
		logger.Warn("workspace acquisition failed, continuing in shared working tree", "error", err)
		return nil
	}
	scope.Register("workspace", func() error {
		return d.isolator.Release(context.WithoutCancel(ctx), handle)
	})
	return handle
}

// installShim materializes the re-entry command for a non-leaf child. The
// shim exec's this very binary, so a sub-call passes through the same
// dispatcher with the environment the parent prepared.
func (d *Dispatcher) installShim(scratchDir string) (string, error) {
	self, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve dispatcher binary: %w", err)
	}

	shimDir := filepath.Join(scratchDir, "bin")
	if err := os.MkdirAll(shimDir, 0o755); err != nil {
		return "", fmt.Errorf("create shim directory: %w", err)
	}

	script := fmt.Sprintf("#!/bin/sh\nexec %q call \"$@\"\n", self)
	shimPath := filepath.Join(shimDir, shimName)
	if err := os.WriteFile(shimPath, []byte(script), 0o755); err != nil {
		return "", fmt.Errorf("write shim: %w", err)
	}
	return shimDir, nil
}

// report appends the call's single COMPLETED record when a ledger is
// configured. Reporting failures are logged, not propagated: the child's
// exit status must still reach the caller.
func (d *Dispatcher) report(call *callenv.Call, res *Result, digest string) {
	if call.TraceFile == "" {
		return
	}

	rec := ledger.Completed(call.TraceID, res.ExitCode, res.Elapsed)
	if call.Depth > 0 {
		rec = rec.WithDepthTransition(call.Depth-1, call.Depth)
	}
	if digest != "" {
		rec = rec.WithContextDigest(digest)
	}

	if err := ledger.Append(call.TraceFile, rec); err != nil {
		d.logger.Error("failed to append trace record", "error", err, "ledger", call.TraceFile)
	}
}
