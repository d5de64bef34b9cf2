// Package runlog indexes completed root calls in SQLite so recent trees can
// be listed without scanning the text ledger. Child calls never write here;
// the ledger remains the tree-wide record.
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Entry is one completed root call.
type Entry struct {
	TraceID       string
	Provider      string
	Model         string
	ExitCode      int
	ElapsedMS     int64
	ContextDigest string
	CreatedAt     time.Time
}

// Store persists run entries.
type Store struct {
	db *sql.DB
}

// NewStore wraps an opened database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record inserts one completed root call. A repeated trace id is an error:
// a root completes exactly once.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.TraceID == "" {
		return fmt.Errorf("trace id is empty")
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	// Epoch milliseconds keep the ordering index numeric; formatted text
	// with variable fractional precision does not sort correctly.
	_, err := s.db.ExecContext(ctx, `
INSERT INTO run_log(trace_id, provider, model, exit_code, elapsed_ms, context_digest, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?);
`, e.TraceID, e.Provider, e.Model, e.ExitCode, e.ElapsedMS, nullable(e.ContextDigest), createdAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// Recent returns the newest entries, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT trace_id, provider, model, exit_code, elapsed_ms, context_digest, created_at
FROM run_log
ORDER BY created_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var digest sql.NullString
		var createdAt int64
		if err := rows.Scan(&e.TraceID, &e.Provider, &e.Model, &e.ExitCode, &e.ElapsedMS, &digest, &createdAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		e.ContextDigest = digest.String
		e.CreatedAt = time.UnixMilli(createdAt).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return entries, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
