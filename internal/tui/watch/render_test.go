package watch

import (
	"strings"
	"testing"
	"time"

	"github.com/rlmkit/recurse/internal/ledger"
)

func TestRenderRecordsEmpty(t *testing.T) {
	out := RenderRecords(NewDefaultTheme(), nil)
	if !strings.Contains(out, "no trace records") {
		t.Fatalf("empty render = %q", out)
	}
}

func TestRenderRecordsTable(t *testing.T) {
	records := []ledger.Record{
		ledger.Completed("0123456789abcdef", 0, 1500*time.Millisecond),
		ledger.Completed("0123456789abcdef", 7, time.Second).WithDepthTransition(0, 1),
	}

	out := RenderRecords(NewDefaultTheme(), records)

	if !strings.Contains(out, "TRACE") || !strings.Contains(out, "EXIT") {
		t.Fatalf("render missing header:\n%s", out)
	}
	if !strings.Contains(out, "0123456789ab") {
		t.Fatalf("render missing shortened trace id:\n%s", out)
	}
	if !strings.Contains(out, "root") {
		t.Fatalf("render missing root hop marker:\n%s", out)
	}
	if !strings.Contains(out, "0->1") {
		t.Fatalf("render missing depth transition:\n%s", out)
	}
	if !strings.Contains(out, "exit=7") {
		t.Fatalf("render missing exit code:\n%s", out)
	}
}
