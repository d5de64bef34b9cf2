// Package ledger appends per-call completion records to an external trace
// file shared by a whole recursion tree. The ledger is opt-in: an empty path
// disables it entirely. Records are written as single-line JSON with one
// write syscall under O_APPEND, so concurrent sibling calls never interleave
// mid-record.
package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// EventCompleted marks the one record a call appends when it ends.
const EventCompleted = "COMPLETED"

// Record is one append-only ledger entry. Written once at the end of a call,
// never rewritten.
type Record struct {
	Event           string    `json:"event"`
	TraceID         string    `json:"trace_id"`
	ExitCode        int       `json:"exit_code"`
	ElapsedMS       int64     `json:"elapsed_ms"`
	DepthTransition string    `json:"depth_transition,omitempty"`
	ContextDigest   string    `json:"context_digest,omitempty"`
	At              time.Time `json:"at"`
}

// Completed builds a completion record for one call.
func Completed(traceID string, exitCode int, elapsed time.Duration) Record {
	return Record{
		Event:     EventCompleted,
		TraceID:   traceID,
		ExitCode:  exitCode,
		ElapsedMS: elapsed.Milliseconds(),
		At:        time.Now().UTC(),
	}
}

// WithDepthTransition records the parent→child depth hop for a sub-call.
func (r Record) WithDepthTransition(parent, child int) Record {
	r.DepthTransition = fmt.Sprintf("%d->%d", parent, child)
	return r
}

// WithContextDigest records the digest of the context slice the call ran on.
func (r Record) WithContextDigest(digest string) Record {
	r.ContextDigest = digest
	return r
}

// Append writes rec as one line at the end of the ledger at path, creating
// the file and its directory if needed. The marshaled line goes out in a
// single Write so parallel appenders stay whole-record atomic.
func Append(path string, rec Record) error {
	if path == "" {
		return fmt.Errorf("ledger path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal ledger record: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("append ledger record: %w", err)
	}
	return nil
}

// Read loads every record in the ledger at path, oldest first. Lines that do
// not parse are skipped: the ledger is shared with unrelated tooling and a
// torn foreign line must not block inspection.
func Read(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan ledger: %w", err)
	}
	return records, nil
}

// ReadTrace filters the ledger at path down to one tree's records.
func ReadTrace(path, traceID string) ([]Record, error) {
	all, err := Read(path)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, rec := range all {
		if rec.TraceID == traceID {
			out = append(out, rec)
		}
	}
	return out, nil
}
