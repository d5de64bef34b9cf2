package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/rlmkit/recurse/internal/dispatch"
	"github.com/rlmkit/recurse/internal/invoke"
	"github.com/rlmkit/recurse/internal/ledger"
)

// RenderRecords formats ledger records as a styled table, oldest first.
// Shared by the static trace inspection command and the live viewer.
func RenderRecords(theme Theme, records []ledger.Record) string {
	if len(records) == 0 {
		return theme.Dim.Render("no trace records") + "\n"
	}

	var b strings.Builder
	b.WriteString(theme.Header.Render(fmt.Sprintf("%-12s  %-8s  %-10s  %-10s  %s",
		"TRACE", "HOP", "EXIT", "ELAPSED", "AT")))
	b.WriteString("\n")

	for _, rec := range records {
		b.WriteString(renderRecord(theme, rec))
		b.WriteString("\n")
	}
	return b.String()
}

func renderRecord(theme Theme, rec ledger.Record) string {
	hop := rec.DepthTransition
	if hop == "" {
		hop = "root"
	}

	exit := fmt.Sprintf("exit=%d", rec.ExitCode)
	var style = theme.ExitOK
	switch {
	case rec.ExitCode == 0:
		style = theme.ExitOK
	case rec.ExitCode == invoke.TimeoutExitCode:
		style = theme.ExitTimeout
	case rec.ExitCode == dispatch.DeniedExitCode:
		style = theme.ExitDenied
	default:
		style = theme.ExitFailed
	}

	elapsed := (time.Duration(rec.ElapsedMS) * time.Millisecond).Round(time.Millisecond)

	return fmt.Sprintf("%-12s  %-8s  %s  %-10s  %s",
		shortID(rec.TraceID),
		hop,
		style.Render(fmt.Sprintf("%-10s", exit)),
		elapsed,
		theme.Dim.Render(rec.At.Local().Format("15:04:05")))
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
