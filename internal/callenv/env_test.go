package callenv

import (
	"strings"
	"testing"
	"time"
)

func mapLookup(m map[string]string) Lookup {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestDecodeDefaults(t *testing.T) {
	c, err := Decode(mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if c.Depth != 0 || c.CallCount != 0 {
		t.Fatalf("Decode() counters = %d/%d, want zero", c.Depth, c.CallCount)
	}
	if c.MaxCalls != nil {
		t.Fatalf("Decode() max calls = %d, want unset", *c.MaxCalls)
	}
	if c.TimeoutSeconds != nil {
		t.Fatalf("Decode() timeout = %d, want unset", *c.TimeoutSeconds)
	}
	if !c.Isolation {
		t.Fatalf("Decode() isolation defaults off, want on")
	}
}

func TestDecodeFullEnvironment(t *testing.T) {
	env := map[string]string{
		EnvDepth:          "2",
		EnvMaxDepth:       "5",
		EnvCallCount:      "7",
		EnvMaxCalls:       "20",
		EnvStartTime:      "1767225600",
		EnvTimeoutSeconds: "90",
		EnvProvider:       "anthropic",
		EnvModel:          "claude-x",
		EnvChildProvider:  "openrouter",
		EnvChildModel:     "cheap-model",
		EnvTraceID:        "abc-123",
		EnvTraceFile:      "/tmp/trace.jsonl",
		EnvIsolation:      "false",
		EnvContextFile:    "/tmp/ctx.md",
	}

	c, err := Decode(mapLookup(env))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if c.Depth != 2 || c.MaxDepth != 5 || c.CallCount != 7 {
		t.Fatalf("Decode() counters = %d/%d/%d", c.Depth, c.MaxDepth, c.CallCount)
	}
	if c.MaxCalls == nil || *c.MaxCalls != 20 {
		t.Fatalf("Decode() max calls = %v, want 20", c.MaxCalls)
	}
	if c.TimeoutSeconds == nil || *c.TimeoutSeconds != 90 {
		t.Fatalf("Decode() timeout = %v, want 90", c.TimeoutSeconds)
	}
	if c.StartTime.Unix() != 1767225600 {
		t.Fatalf("Decode() start time = %v", c.StartTime)
	}
	if c.Isolation {
		t.Fatalf("Decode() isolation = true, want false")
	}
	if c.EffectiveChildProvider() != "openrouter" || c.EffectiveChildModel() != "cheap-model" {
		t.Fatalf("effective child routing = %s/%s", c.EffectiveChildProvider(), c.EffectiveChildModel())
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode(mapLookup(map[string]string{EnvDepth: "banana"})); err == nil {
		t.Fatalf("Decode() accepted non-numeric depth")
	}
	if _, err := Decode(mapLookup(map[string]string{EnvIsolation: "perhaps"})); err == nil {
		t.Fatalf("Decode() accepted non-boolean isolation")
	}
}

func TestScrubEnvRemovesTreeState(t *testing.T) {
	environ := []string{
		"PATH=/usr/bin",
		EnvDepth + "=2",
		"HOME=/home/x",
		EnvCallCount + "=4",
		EnvTraceID + "=tree-1",
		"RLM_FUTURE_KEY=x",
	}

	got := ScrubEnv(environ)
	if len(got) != 2 || got[0] != "PATH=/usr/bin" || got[1] != "HOME=/home/x" {
		t.Fatalf("ScrubEnv() = %v, want only foreign entries kept", got)
	}
}

func TestEncodeOmitsUnsetCeilings(t *testing.T) {
	c := &Call{
		Depth:     1,
		MaxDepth:  4,
		CallCount: 3,
		StartTime: time.Unix(100, 0),
		Provider:  "p",
		Model:     "m",
		TraceID:   "t",
		Isolation: true,
	}

	joined := strings.Join(Encode(c), "\n")
	if strings.Contains(joined, EnvMaxCalls+"=") {
		t.Fatalf("Encode() emitted %s for unset ceiling:\n%s", EnvMaxCalls, joined)
	}
	if strings.Contains(joined, EnvTimeoutSeconds+"=") {
		t.Fatalf("Encode() emitted %s for unset timeout:\n%s", EnvTimeoutSeconds, joined)
	}
}

func TestEffectiveChildRoutingFallsBackToOwn(t *testing.T) {
	c := &Call{Provider: "own-p", Model: "own-m"}
	if c.EffectiveChildProvider() != "own-p" || c.EffectiveChildModel() != "own-m" {
		t.Fatalf("effective child routing = %s/%s, want own", c.EffectiveChildProvider(), c.EffectiveChildModel())
	}
}

func TestValidate(t *testing.T) {
	valid := &Call{
		MaxDepth:  1,
		StartTime: time.Unix(1, 0),
		Provider:  "p",
		Model:     "m",
		TraceID:   "t",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error = %v for valid call", err)
	}

	bad := *valid
	bad.Depth = 5
	if err := bad.Validate(); err == nil {
		t.Fatalf("Validate() accepted depth above max depth")
	}

	bad = *valid
	bad.TraceID = ""
	if err := bad.Validate(); err == nil {
		t.Fatalf("Validate() accepted empty trace id")
	}
}
