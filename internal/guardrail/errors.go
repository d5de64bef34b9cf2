package guardrail

import (
	"fmt"
	"time"
)

// DeniedError is a guardrail denial rendered for whoever invoked the
// dispatcher. Each kind carries its own cause and remediation text so the
// refusal is self-explanatory to a human or to the calling agent.
type DeniedError struct {
	Reason Reason
	Why    string
	Fix    string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("call denied (%s)\nWhy: %s\nFix: %s", e.Reason, e.Why, e.Fix)
}

// Err converts a denying decision into a DeniedError. Allowed decisions
// return nil.
func (d Decision) Err() error {
	if d.Allow {
		return nil
	}

	switch d.Reason {
	case ReasonTimeoutExpired:
		return &DeniedError{
			Reason: d.Reason,
			Why:    "the wall-clock budget for this call tree ran out before this call could start: " + d.Detail,
			Fix:    "raise the tree timeout, or split the task so each subtree finishes sooner",
		}
	case ReasonBudgetExceeded:
		return &DeniedError{
			Reason: d.Reason,
			Why:    "the call-count budget for this tree is exhausted: " + d.Detail,
			Fix:    "raise the max-calls ceiling, or restructure the task to spawn fewer sub-calls",
		}
	default:
		return &DeniedError{
			Reason: d.Reason,
			Why:    d.Detail,
			Fix:    "inspect the dispatcher configuration",
		}
	}
}

func detailTimeout(total, elapsed time.Duration) string {
	return fmt.Sprintf("budget %s, elapsed since tree start %s", total, elapsed.Round(time.Millisecond))
}

func detailBudget(count, max int) string {
	return fmt.Sprintf("%d calls made, ceiling %d (admission reserves one slot of headroom)", count, max)
}
