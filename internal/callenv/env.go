package callenv

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Lookup resolves an environment key; the second return mirrors os.LookupEnv.
type Lookup func(key string) (string, bool)

// OSLookup reads from the process environment.
func OSLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// Decode reconstructs the Call a parent hop encoded into the environment.
// Keys that are absent keep their zero value; optional ceilings stay nil.
func Decode(lookup Lookup) (*Call, error) {
	c := &Call{Isolation: true}

	var err error
	if c.Depth, err = intOr(lookup, EnvDepth, 0); err != nil {
		return nil, err
	}
	if c.MaxDepth, err = intOr(lookup, EnvMaxDepth, 0); err != nil {
		return nil, err
	}
	if c.CallCount, err = intOr(lookup, EnvCallCount, 0); err != nil {
		return nil, err
	}
	if c.MaxCalls, err = intPtr(lookup, EnvMaxCalls); err != nil {
		return nil, err
	}
	if c.TimeoutSeconds, err = intPtr(lookup, EnvTimeoutSeconds); err != nil {
		return nil, err
	}

	if raw, ok := lookup(EnvStartTime); ok {
		sec, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s=%q: %w", EnvStartTime, raw, err)
		}
		c.StartTime = time.Unix(sec, 0).UTC()
	}

	c.Provider, _ = lookup(EnvProvider)
	c.Model, _ = lookup(EnvModel)
	c.ChildProvider, _ = lookup(EnvChildProvider)
	c.ChildModel, _ = lookup(EnvChildModel)
	c.TraceID, _ = lookup(EnvTraceID)
	c.TraceFile, _ = lookup(EnvTraceFile)
	c.ContextFile, _ = lookup(EnvContextFile)

	if raw, ok := lookup(EnvIsolation); ok {
		on, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s=%q: %w", EnvIsolation, raw, err)
		}
		c.Isolation = on
	}

	return c, nil
}

// Encode renders the call as KEY=value pairs suitable for exec environments.
func Encode(c *Call) []string {
	env := []string{
		fmt.Sprintf("%s=%d", EnvDepth, c.Depth),
		fmt.Sprintf("%s=%d", EnvMaxDepth, c.MaxDepth),
		fmt.Sprintf("%s=%d", EnvCallCount, c.CallCount),
		fmt.Sprintf("%s=%d", EnvStartTime, c.StartTime.Unix()),
		fmt.Sprintf("%s=%s", EnvProvider, c.Provider),
		fmt.Sprintf("%s=%s", EnvModel, c.Model),
		fmt.Sprintf("%s=%s", EnvTraceID, c.TraceID),
		fmt.Sprintf("%s=%t", EnvIsolation, c.Isolation),
	}
	if c.MaxCalls != nil {
		env = append(env, fmt.Sprintf("%s=%d", EnvMaxCalls, *c.MaxCalls))
	}
	if c.TimeoutSeconds != nil {
		env = append(env, fmt.Sprintf("%s=%d", EnvTimeoutSeconds, *c.TimeoutSeconds))
	}
	if c.ChildProvider != "" {
		env = append(env, fmt.Sprintf("%s=%s", EnvChildProvider, c.ChildProvider))
	}
	if c.ChildModel != "" {
		env = append(env, fmt.Sprintf("%s=%s", EnvChildModel, c.ChildModel))
	}
	if c.TraceFile != "" {
		env = append(env, fmt.Sprintf("%s=%s", EnvTraceFile, c.TraceFile))
	}
	if c.ContextFile != "" {
		env = append(env, fmt.Sprintf("%s=%s", EnvContextFile, c.ContextFile))
	}
	return env
}

// ScrubEnv returns environ without any RLM_* entries. A dispatcher running
// as a sub-call carries its parent's tree state in its own environment; the
// child must only ever see the state computed for its own hop, and a leaf
// must see none at all.
func ScrubEnv(environ []string) []string {
	out := make([]string, 0, len(environ))
	for _, kv := range environ {
		if strings.HasPrefix(kv, "RLM_") {
			continue
		}
		out = append(out, kv)
	}
	return out
}

func intOr(lookup Lookup, key string, def int) (int, error) {
	raw, ok := lookup(key)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s=%q: %w", key, raw, err)
	}
	return v, nil
}

func intPtr(lookup Lookup, key string) (*int, error) {
	raw, ok := lookup(key)
	if !ok || raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s=%q: %w", key, raw, err)
	}
	return &v, nil
}
