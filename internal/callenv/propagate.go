package callenv

import "time"

// NextHop computes the call record a sub-call of c would execute as:
// depth advances by exactly one, the cumulative count and the shrunken
// wall-clock budget replace the inherited ones, and the routing overrides
// collapse into the effective provider/model. StartTime and TraceID pass
// through untouched; they are set once at the root and never recomputed.
//
// nextCount and remaining come from the guardrail decision for c, so the
// two are computed once per hop.
func NextHop(c *Call, nextCount int, remaining time.Duration, hasDeadline bool) *Call {
	child := &Call{
		Depth:     c.Depth + 1,
		MaxDepth:  c.MaxDepth,
		CallCount: nextCount,
		StartTime: c.StartTime,
		Provider:  c.EffectiveChildProvider(),
		Model:     c.EffectiveChildModel(),
		TraceID:   c.TraceID,
		TraceFile: c.TraceFile,
		Isolation: c.Isolation,
	}
	if c.MaxCalls != nil {
		v := *c.MaxCalls
		child.MaxCalls = &v
	}
	if hasDeadline {
		// Truncation is the conservative direction: a hop never inherits
		// more budget than actually remains.
		secs := int(remaining / time.Second)
		if secs < 0 {
			secs = 0
		}
		child.TimeoutSeconds = &secs
	}
	// Routing overrides persist below this hop so a cheap-model policy
	// applies to the whole branch, not just the first descendant.
	child.ChildProvider = c.ChildProvider
	child.ChildModel = c.ChildModel
	return child
}

// ChildEnv renders the environment the invoked process receives.
//
// For a leaf call the recursion block is omitted entirely: the invoked
// process keeps the trace id and its context slice for reference, but none
// of the counters a further hop would need. Combined with the missing
// re-entry shim this removes the recursion capability structurally instead
// of asking the wrapped agent to behave.
func ChildEnv(c *Call, nextCount int, remaining time.Duration, hasDeadline bool) []string {
	if c.Leaf() {
		env := []string{EnvTraceID + "=" + c.TraceID}
		if c.ContextFile != "" {
			env = append(env, EnvContextFile+"="+c.ContextFile)
		}
		return env
	}

	next := NextHop(c, nextCount, remaining, hasDeadline)
	next.ContextFile = c.ContextFile
	return Encode(next)
}
