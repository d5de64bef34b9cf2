// Package guardrail decides, before any child process exists, whether a
// dispatched call may proceed. Evaluation is pure: it reads the call record
// and a caller-supplied clock and produces a terminal Decision.
package guardrail

import (
	"time"

	"github.com/rlmkit/recurse/internal/callenv"
)

// Reason classifies the outcome of evaluating a call.
type Reason string

const (
	ReasonOK             Reason = "ok"
	ReasonTimeoutExpired Reason = "timeout_expired"
	ReasonBudgetExceeded Reason = "budget_exceeded"
)

// Decision is the terminal result of evaluating one call. It is computed
// exactly once per call; downstream components consume Remaining and
// NextCount rather than re-deriving them.
type Decision struct {
	Allow  bool
	Reason Reason
	Detail string

	// Leaf is set when the call sits at the recursion ceiling. Leaves still
	// execute; the recursion capability is withheld structurally during
	// propagation rather than by denying the call here.
	Leaf bool

	// Remaining is the tree-wide wall-clock budget left at evaluation time.
	// Only meaningful when HasDeadline is true.
	Remaining   time.Duration
	HasDeadline bool

	// NextCount is the cumulative call count including this call; it is the
	// value propagated to the invoked process.
	NextCount int
}

// Evaluate checks depth, timeout, and budget for one call at time now.
//
// The budget boundary is deliberately conservative: the call whose admission
// would bring the tree's count up to MaxCalls is itself refused, so a tree
// never executes more than MaxCalls-1 calls.
func Evaluate(c *callenv.Call, now time.Time) Decision {
	d := Decision{
		Allow:     true,
		Reason:    ReasonOK,
		Leaf:      c.Leaf(),
		NextCount: c.CallCount + 1,
	}

	if c.TimeoutSeconds != nil {
		total := time.Duration(*c.TimeoutSeconds) * time.Second
		d.HasDeadline = true
		d.Remaining = total - now.Sub(c.StartTime)
		if d.Remaining <= 0 {
			d.Allow = false
			d.Reason = ReasonTimeoutExpired
			d.Detail = detailTimeout(total, now.Sub(c.StartTime))
			return d
		}
	}

	if c.MaxCalls != nil && d.NextCount >= *c.MaxCalls {
		d.Allow = false
		d.Reason = ReasonBudgetExceeded
		d.Detail = detailBudget(c.CallCount, *c.MaxCalls)
		return d
	}

	return d
}
