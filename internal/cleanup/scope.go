// Package cleanup implements scoped acquisition with guaranteed release for
// the transient resources a dispatched call creates: scratch context files,
// re-entry shims, isolated workspaces. Every acquisition registers a release
// function; closing the scope runs them all exactly once, newest first, on
// whichever exit path the call takes.
package cleanup

import (
	"log/slog"
	"sync"
)

type release struct {
	name string
	fn   func() error
}

// Scope collects release functions for one call.
type Scope struct {
	mu       sync.Mutex
	releases []release
	closed   bool
	logger   *slog.Logger
}

// NewScope creates an empty scope. logger may be nil.
func NewScope(logger *slog.Logger) *Scope {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scope{logger: logger}
}

// Register adds a named release function. Registration after Close is a
// programming error; the function runs immediately so the resource is not
// leaked, and the slip is logged.
func (s *Scope) Register(name string, fn func() error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Warn("resource registered after scope close, releasing immediately", "resource", name)
		if err := fn(); err != nil {
			s.logger.Error("late release failed", "resource", name, "error", err)
		}
		return
	}
	s.releases = append(s.releases, release{name: name, fn: fn})
	s.mu.Unlock()
}

// Close runs all registered releases in LIFO order. A failing release is
// logged and does not stop the rest. Close is idempotent.
func (s *Scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	releases := s.releases
	s.releases = nil
	s.mu.Unlock()

	for i := len(releases) - 1; i >= 0; i-- {
		r := releases[i]
		if err := r.fn(); err != nil {
			s.logger.Error("release failed", "resource", r.name, "error", err)
		}
	}
}

// Len reports how many releases are currently registered.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.releases)
}
