// Package callenv defines the per-call context record that is threaded
// through a recursion tree, and its environment-variable wire form.
//
// There is no shared in-memory state between the calls of a tree: every
// counter a descendant needs (start time, cumulative call count, remaining
// budget) travels by value in the environment of the spawned process. A
// value decoded here was written by the parent hop, never recomputed.
package callenv

import (
	"fmt"
	"time"
)

// Env keys understood by every hop of a recursion tree.
const (
	EnvDepth          = "RLM_DEPTH"
	EnvMaxDepth       = "RLM_MAX_DEPTH"
	EnvCallCount      = "RLM_CALL_COUNT"
	EnvMaxCalls       = "RLM_MAX_CALLS"
	EnvStartTime      = "RLM_START_TIME"
	EnvTimeoutSeconds = "RLM_TIMEOUT_SECONDS"
	EnvProvider       = "RLM_PROVIDER"
	EnvModel          = "RLM_MODEL"
	EnvChildProvider  = "RLM_CHILD_PROVIDER"
	EnvChildModel     = "RLM_CHILD_MODEL"
	EnvTraceID        = "RLM_TRACE_ID"
	EnvTraceFile      = "RLM_TRACE_FILE"
	EnvIsolation      = "RLM_ISOLATION"
	EnvContextFile    = "RLM_CONTEXT_FILE"
)

// Call is one invocation of the dispatcher at a given depth of a tree.
type Call struct {
	// Depth is this call's position in the recursion tree; 0 is the root.
	Depth int

	// MaxDepth is the recursion ceiling. A call at Depth == MaxDepth is a
	// leaf: it still executes, but the recursion capability is withheld
	// from the process it invokes.
	MaxDepth int

	// CallCount is the cumulative number of calls made in this tree before
	// this one is counted.
	CallCount int

	// MaxCalls is the tree-wide call budget; nil means unlimited.
	MaxCalls *int

	// StartTime is the wall-clock start of the root call. It is set once at
	// depth 0 and inherited verbatim by every descendant.
	StartTime time.Time

	// TimeoutSeconds is the tree-wide wall-clock budget measured from
	// StartTime; nil means no timeout. Zero means already expired.
	TimeoutSeconds *int

	// Provider and Model identify the backend serving this call.
	Provider string
	Model    string

	// ChildProvider and ChildModel, when set, override the routing any
	// sub-call of this call will execute with.
	ChildProvider string
	ChildModel    string

	// TraceID correlates the ledger entries of an entire tree.
	TraceID string

	// TraceFile is the append-only ledger path; empty disables tracing.
	TraceFile string

	// Isolation toggles workspace isolation for non-leaf calls.
	Isolation bool

	// ContextFile points at the context slice this call operates on.
	ContextFile string
}

// Leaf reports whether this call sits at the recursion ceiling.
func (c *Call) Leaf() bool {
	return c.Depth >= c.MaxDepth
}

// Root reports whether this call is the root of its tree.
func (c *Call) Root() bool {
	return c.Depth == 0
}

// EffectiveChildProvider returns the provider a sub-call of this call
// executes with: the override when set, otherwise this call's own.
func (c *Call) EffectiveChildProvider() string {
	if c.ChildProvider != "" {
		return c.ChildProvider
	}
	return c.Provider
}

// EffectiveChildModel returns the model a sub-call of this call executes
// with: the override when set, otherwise this call's own.
func (c *Call) EffectiveChildModel() string {
	if c.ChildModel != "" {
		return c.ChildModel
	}
	return c.Model
}

// Validate checks the structural invariants of the record.
func (c *Call) Validate() error {
	if c.Depth < 0 {
		return fmt.Errorf("depth %d is negative", c.Depth)
	}
	if c.MaxDepth < c.Depth {
		return fmt.Errorf("max depth %d is below depth %d", c.MaxDepth, c.Depth)
	}
	if c.CallCount < 0 {
		return fmt.Errorf("call count %d is negative", c.CallCount)
	}
	if c.MaxCalls != nil && *c.MaxCalls < 0 {
		return fmt.Errorf("max calls %d is negative", *c.MaxCalls)
	}
	if c.TimeoutSeconds != nil && *c.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout %d is negative", *c.TimeoutSeconds)
	}
	if c.StartTime.IsZero() {
		return fmt.Errorf("start time is unset")
	}
	if c.Provider == "" {
		return fmt.Errorf("provider is empty")
	}
	if c.Model == "" {
		return fmt.Errorf("model is empty")
	}
	if c.TraceID == "" {
		return fmt.Errorf("trace id is empty")
	}
	return nil
}
