package dispatch

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rlmkit/recurse/internal/callenv"
	"github.com/rlmkit/recurse/internal/config"
)

// NewRootCall builds the depth-0 record for a fresh tree. The trace id and
// the tree's single start time are minted here and nowhere else.
func NewRootCall(cfg *config.Config, now time.Time) *callenv.Call {
	call := &callenv.Call{
		Depth:     0,
		MaxDepth:  cfg.Limits.MaxDepth,
		CallCount: 0,
		StartTime: now.UTC(),
		Provider:  cfg.Routing.Provider,
		Model:     cfg.Routing.Model,
		TraceID:   uuid.NewString(),
		TraceFile: cfg.Trace.LedgerPath,
		Isolation: cfg.IsolationEnabled(),
	}
	if cfg.Limits.MaxCalls != nil {
		v := *cfg.Limits.MaxCalls
		call.MaxCalls = &v
	}
	if cfg.Limits.TimeoutSeconds != nil {
		v := *cfg.Limits.TimeoutSeconds
		call.TimeoutSeconds = &v
	}
	call.ChildProvider = cfg.Routing.ChildProvider
	call.ChildModel = cfg.Routing.ChildModel
	return call
}

// ResolveCall decides whether this invocation is a fresh root or a sub-call
// re-entering through the shim. A sub-call is recognized by the trace id its
// parent placed in the environment; everything else about it comes from the
// same environment, never from local configuration, so the tree's threaded
// state cannot be recomputed mid-tree.
func ResolveCall(cfg *config.Config, lookup callenv.Lookup, now time.Time) (*callenv.Call, error) {
	decoded, err := callenv.Decode(lookup)
	if err != nil {
		return nil, fmt.Errorf("decode call environment: %w", err)
	}

	if decoded.TraceID == "" {
		return NewRootCall(cfg, now), nil
	}

	if decoded.StartTime.IsZero() {
		return nil, fmt.Errorf("sub-call environment is missing %s", callenv.EnvStartTime)
	}
	if decoded.Provider == "" || decoded.Model == "" {
		return nil, fmt.Errorf("sub-call environment is missing routing")
	}
	return decoded, nil
}
