// Package workspace provisions ephemeral, exclusively-owned working copies
// for non-leaf calls so concurrent sibling calls cannot observe or corrupt
// each other's working-tree mutations. Isolation is best-effort by contract:
// when the underlying tool is absent the call silently proceeds against the
// shared working tree.
package workspace

import "context"

// Handle is one acquired working copy. It is owned by exactly one call for
// its whole lifetime and destroyed unconditionally when that call ends.
type Handle struct {
	// Dir is the root of the isolated working copy.
	Dir string

	// id names the copy inside the isolator's scratch area.
	id string
}

// Isolator acquires and releases isolated working copies.
type Isolator interface {
	// Available reports whether isolation can actually be provided here.
	// False is not an error; it is a silent fallback to the shared tree.
	Available(ctx context.Context) bool

	// Acquire provisions a working copy for one call.
	Acquire(ctx context.Context, traceID string, depth int) (*Handle, error)

	// Release destroys the working copy. It must be called exactly once per
	// successful Acquire, on every exit path of the call.
	Release(ctx context.Context, h *Handle) error
}
