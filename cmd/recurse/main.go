package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/rlmkit/recurse/internal/bridge"
	"github.com/rlmkit/recurse/internal/callenv"
	"github.com/rlmkit/recurse/internal/config"
	"github.com/rlmkit/recurse/internal/dispatch"
	"github.com/rlmkit/recurse/internal/ledger"
	"github.com/rlmkit/recurse/internal/lock"
	"github.com/rlmkit/recurse/internal/log"
	"github.com/rlmkit/recurse/internal/runlog"
	"github.com/rlmkit/recurse/internal/storage"
	"github.com/rlmkit/recurse/internal/tui/watch"
	"github.com/rlmkit/recurse/internal/workspace"
)

const version = "0.1.0"

func main() {
	// .env is optional; absence is the common case.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "call":
		os.Exit(runCall(args))
	case "serve":
		os.Exit(runServe(args))
	case "trace":
		os.Exit(runTraceNoun(args))
	case "version":
		fmt.Printf("recurse version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`recurse - recursive LLM call dispatcher

Usage:
  recurse <command> [flags]

Commands:
  call      Dispatch one wrapped-agent call (root or sub-call)
  serve     Run the HTTP bridge server
  trace     Inspect the completion ledger

Call:
  recurse call [flags] [-- agent args]

Trace Commands:
  trace show    Render one tree's ledger records
  trace list    List recent completed root calls
  trace watch   Live ledger viewer

General:
  version       Show version information
  help          Show this help message
`)
}

// loadConfig loads the configuration file, or defaults when no path is given
// and the well-known locations are empty.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	for _, candidate := range []string{"recurse.yaml", os.ExpandEnv("$HOME/.config/recurse/config.yaml")} {
		if _, err := os.Stat(candidate); err == nil {
			return config.Load(candidate)
		}
	}
	cfg := config.Default()
	// No file means no agent command; dispatching commands reject below.
	return cfg, nil
}

// requireAgent rejects configurations without a wrapped agent command before
// any dispatch work starts; trace inspection never needs one.
func requireAgent(cfg *config.Config) error {
	if len(cfg.Agent.Command) == 0 {
		return fmt.Errorf("agent.command is not configured\n" +
			"Hint: create recurse.yaml with an agent.command entry, or pass --config")
	}
	return nil
}

func newDispatcher(cfg *config.Config) *dispatch.Dispatcher {
	repoRoot := cfg.Isolation.RepoRoot
	if repoRoot == "" {
		repoRoot, _ = os.Getwd()
	}
	isolator := workspace.NewGitIsolator(repoRoot, cfg.Isolation.BaseDir, log.WithComponent("workspace"))
	return dispatch.New(cfg, isolator)
}

// --- call ---

func runCall(args []string) int {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	var (
		configPath  string
		contextFile string
		contextText string
		provider    string
		model       string
		maxDepth    int
		maxCalls    int
		timeoutSecs int
		ledgerPath  string
		noIsolation bool
	)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.StringVar(&contextFile, "context-file", "", "Context slice by file reference")
	fs.StringVar(&contextText, "context", "", "Context slice inline ('-' reads stdin)")
	fs.StringVar(&provider, "provider", "", "Override backend provider (root only)")
	fs.StringVar(&model, "model", "", "Override model (root only)")
	fs.IntVar(&maxDepth, "max-depth", -1, "Override recursion ceiling (root only)")
	fs.IntVar(&maxCalls, "max-calls", 0, "Override tree call budget (root only)")
	fs.IntVar(&timeoutSecs, "timeout", -1, "Override tree timeout in seconds (root only)")
	fs.StringVar(&ledgerPath, "ledger", "", "Override trace ledger path (root only)")
	fs.BoolVar(&noIsolation, "no-isolation", false, "Disable workspace isolation (root only)")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return 1
	}
	log.Setup(cfg.Service.LogLevel)

	if err := requireAgent(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return 1
	}

	call, err := dispatch.ResolveCall(cfg, callenv.OSLookup, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Call error: %v\n", err)
		return 1
	}

	if call.Root() {
		applyRootFlags(call, provider, model, maxDepth, maxCalls, timeoutSecs, ledgerPath, noIsolation)
	}

	var ctxBytes []byte
	switch {
	case contextText == "-":
		data, err := readAllStdin()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Context error: %v\n", err)
			return 1
		}
		ctxBytes = data
	case contextText != "":
		ctxBytes = []byte(contextText)
	case contextFile != "":
		call.ContextFile = contextFile
	}

	d := newDispatcher(cfg)
	res, err := d.Run(context.Background(), call, ctxBytes, fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Dispatch error: %v\n", err)
		return 1
	}

	// Child output passes through verbatim.
	_, _ = os.Stdout.Write(res.Stdout)
	_, _ = os.Stderr.Write(res.Stderr)

	if res.Denied != nil {
		fmt.Fprintln(os.Stderr, res.Denied.Error())
	}

	if call.Root() && cfg.RunLog.Path != "" {
		recordRootRun(cfg, call, res, ctxBytes)
	}

	return res.ExitCode
}

func applyRootFlags(call *callenv.Call, provider, model string, maxDepth, maxCalls, timeoutSecs int, ledgerPath string, noIsolation bool) {
	if provider != "" {
		call.Provider = provider
	}
	if model != "" {
		call.Model = model
	}
	if maxDepth >= 0 {
		call.MaxDepth = maxDepth
	}
	if maxCalls > 0 {
		call.MaxCalls = &maxCalls
	}
	if timeoutSecs >= 0 {
		call.TimeoutSeconds = &timeoutSecs
	}
	if ledgerPath != "" {
		call.TraceFile = ledgerPath
	}
	if noIsolation {
		call.Isolation = false
	}
}

func readAllStdin() ([]byte, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return data, nil
}

func recordRootRun(cfg *config.Config, call *callenv.Call, res *dispatch.Result, ctxBytes []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := storage.OpenSQLite(ctx, cfg.RunLog.Path)
	if err != nil {
		log.Warn("failed to open run log", "error", err)
		return
	}
	defer db.Close()

	entry := runlog.Entry{
		TraceID:   call.TraceID,
		Provider:  call.Provider,
		Model:     call.Model,
		ExitCode:  res.ExitCode,
		ElapsedMS: res.Elapsed.Milliseconds(),
	}
	if ctxBytes != nil {
		entry.ContextDigest = ledger.Digest(ctxBytes)
	}
	if err := runlog.NewStore(db).Record(ctx, entry); err != nil {
		log.Warn("failed to record run", "error", err)
	}
}

// --- serve ---

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	var (
		configPath string
		listen     string
	)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.StringVar(&listen, "listen", "", "Listen address override")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return 1
	}
	log.Setup(cfg.Service.LogLevel)
	if listen != "" {
		cfg.Bridge.Listen = listen
	}

	if err := requireAgent(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		return 1
	}

	if cfg.Bridge.LockPath != "" {
		pidLock, err := lock.AcquirePIDLock(cfg.Bridge.LockPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Lock error: %v\n", err)
			return 1
		}
		defer func() { _ = pidLock.Release() }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var runs *runlog.Store
	if cfg.RunLog.Path != "" {
		db, err := storage.OpenSQLite(ctx, cfg.RunLog.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Run log error: %v\n", err)
			return 1
		}
		defer db.Close()
		runs = runlog.NewStore(db)
	}

	server := bridge.New(cfg, newDispatcher(cfg), runs)
	if err := server.Start(ctx); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		return 1
	}
	return 0
}

// --- trace ---

func runTraceNoun(args []string) int {
	if len(args) < 1 {
		printTraceHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printTraceHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "show":
		return runTraceShow(actionArgs)
	case "list":
		return runTraceList(actionArgs)
	case "watch":
		return runTraceWatch(actionArgs)
	case "help":
		printTraceHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown trace action: %s\n", action)
		return 1
	}
}

func printTraceHelp(w *os.File) {
	fmt.Fprint(w, `Usage: recurse trace <action> [flags]

Actions:
  show    Render ledger records (--ledger, optional --trace filter)
  list    List recent completed root calls (--runlog, --limit)
  watch   Live ledger viewer (--ledger, optional --trace filter)
`)
}

func isHelpToken(s string) bool {
	switch strings.ToLower(s) {
	case "help", "--help", "-h":
		return true
	}
	return false
}

func resolveLedgerPath(configPath, flagPath string) (string, error) {
	if flagPath != "" {
		return flagPath, nil
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return "", err
	}
	if cfg.Trace.LedgerPath == "" {
		return "", fmt.Errorf("no ledger configured; pass --ledger or set trace.ledger_path")
	}
	return cfg.Trace.LedgerPath, nil
}

func runTraceShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	var configPath, ledgerPath, traceID string
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.StringVar(&ledgerPath, "ledger", "", "Ledger file path")
	fs.StringVar(&traceID, "trace", "", "Filter to one trace id")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	path, err := resolveLedgerPath(configPath, ledgerPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Trace error: %v\n", err)
		return 1
	}

	var records []ledger.Record
	if traceID != "" {
		records, err = ledger.ReadTrace(path, traceID)
	} else {
		records, err = ledger.Read(path)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Trace error: %v\n", err)
		return 1
	}

	fmt.Print(watch.RenderRecords(watch.NewDefaultTheme(), records))
	return 0
}

func runTraceList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	var configPath, runlogPath string
	var limit int
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.StringVar(&runlogPath, "runlog", "", "Run log database path")
	fs.IntVar(&limit, "limit", 20, "Maximum entries")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	if runlogPath == "" {
		cfg, err := loadConfig(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
			return 1
		}
		runlogPath = cfg.RunLog.Path
	}
	if runlogPath == "" {
		fmt.Fprintln(os.Stderr, "no run log configured; pass --runlog or set runlog.path")
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := storage.OpenSQLite(ctx, runlogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Run log error: %v\n", err)
		return 1
	}
	defer db.Close()

	entries, err := runlog.NewStore(db).Recent(ctx, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Run log error: %v\n", err)
		return 1
	}

	fmt.Printf("%-36s  %-12s  %-28s  %-6s  %-10s  %s\n", "TRACE", "PROVIDER", "MODEL", "EXIT", "ELAPSED", "AT")
	for _, e := range entries {
		fmt.Printf("%-36s  %-12s  %-28s  %-6d  %-10s  %s\n",
			e.TraceID, e.Provider, e.Model, e.ExitCode,
			(time.Duration(e.ElapsedMS) * time.Millisecond).String(),
			e.CreatedAt.Local().Format(time.DateTime))
	}
	return 0
}

func runTraceWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	var configPath, ledgerPath, traceID string
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.StringVar(&ledgerPath, "ledger", "", "Ledger file path")
	fs.StringVar(&traceID, "trace", "", "Filter to one trace id")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	path, err := resolveLedgerPath(configPath, ledgerPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Trace error: %v\n", err)
		return 1
	}

	program := tea.NewProgram(watch.New(path, traceID))
	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Watch error: %v\n", err)
		return 1
	}
	return 0
}
