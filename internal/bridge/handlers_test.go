package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rlmkit/recurse/internal/callenv"
	"github.com/rlmkit/recurse/internal/config"
	"github.com/rlmkit/recurse/internal/dispatch"
	"github.com/rlmkit/recurse/internal/guardrail"
)

// fakeRunner returns a canned result and remembers the call it received.
type fakeRunner struct {
	lastCall    *callenv.Call
	lastContext []byte
	lastArgs    []string
	result      *dispatch.Result
	err         error
}

func (f *fakeRunner) Run(_ context.Context, call *callenv.Call, contextText []byte, agentArgs []string) (*dispatch.Result, error) {
	f.lastCall = call
	f.lastContext = contextText
	f.lastArgs = agentArgs
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func testServer(t *testing.T, runner Runner) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Agent.Command = []string{"/bin/true"}
	s := New(cfg, runner, nil)
	s.probeAgent = func() bool { return true }
	return s
}

func postCompletion(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/completion", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	s := testServer(t, &fakeRunner{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health status = %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if resp.Status != "ok" || !resp.AgentAvailable {
		t.Fatalf("health = %+v", resp)
	}
	if resp.DefaultProvider != config.DefaultProvider || resp.DefaultModel != config.DefaultModel {
		t.Fatalf("health routing = %s/%s", resp.DefaultProvider, resp.DefaultModel)
	}
}

func TestHandleCompletionSuccess(t *testing.T) {
	runner := &fakeRunner{result: &dispatch.Result{
		ExitCode: 0,
		Stdout:   []byte("the answer"),
		Elapsed:  1200 * time.Millisecond,
	}}
	s := testServer(t, runner)

	rec := postCompletion(t, s, `{
		"messages": [
			{"role": "system", "content": "be brief"},
			{"role": "user", "content": "earlier turn"},
			{"role": "user", "content": "what is the answer?"}
		]
	}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("POST /completion status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp CompletionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode completion: %v", err)
	}
	if resp.Text != "the answer" {
		t.Fatalf("completion text = %q", resp.Text)
	}
	if resp.Metadata.TraceID == "" || resp.Metadata.ElapsedMS != 1200 {
		t.Fatalf("completion metadata = %+v", resp.Metadata)
	}
	if resp.Metadata.MaxDepth != config.DefaultMaxDepth {
		t.Fatalf("metadata max depth = %d", resp.Metadata.MaxDepth)
	}

	// All but the last message fold into the context slice.
	ctx := string(runner.lastContext)
	if !strings.Contains(ctx, "[SYSTEM]: be brief") || !strings.Contains(ctx, "[USER]: earlier turn") {
		t.Fatalf("context slice = %q", ctx)
	}
	if strings.Contains(ctx, "what is the answer?") {
		t.Fatalf("query leaked into context slice: %q", ctx)
	}
	if len(runner.lastArgs) != 1 || runner.lastArgs[0] != "what is the answer?" {
		t.Fatalf("agent args = %v", runner.lastArgs)
	}
	if runner.lastCall.Depth != 0 {
		t.Fatalf("bridge minted a non-root call: depth %d", runner.lastCall.Depth)
	}
}

func TestHandleCompletionSingleMessageHasNoContext(t *testing.T) {
	runner := &fakeRunner{result: &dispatch.Result{ExitCode: 0, Stdout: []byte("ok")}}
	s := testServer(t, runner)

	rec := postCompletion(t, s, `{"messages": [{"role": "user", "content": "hi"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /completion status = %d", rec.Code)
	}
	if runner.lastContext != nil {
		t.Fatalf("single-turn request produced a context slice: %q", runner.lastContext)
	}
}

func TestHandleCompletionOverrides(t *testing.T) {
	runner := &fakeRunner{result: &dispatch.Result{ExitCode: 0}}
	s := testServer(t, runner)

	rec := postCompletion(t, s, `{
		"messages": [{"role": "user", "content": "hi"}],
		"model": "override-model",
		"rlm": {"provider": "anthropic", "maxDepth": 1, "maxCalls": 5, "timeoutSeconds": 30, "isolation": false}
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /completion status = %d", rec.Code)
	}

	call := runner.lastCall
	if call.Model != "override-model" || call.Provider != "anthropic" {
		t.Fatalf("routing overrides lost: %s/%s", call.Provider, call.Model)
	}
	if call.MaxDepth != 1 {
		t.Fatalf("max depth override lost: %d", call.MaxDepth)
	}
	if call.MaxCalls == nil || *call.MaxCalls != 5 {
		t.Fatalf("max calls override lost: %v", call.MaxCalls)
	}
	if call.TimeoutSeconds == nil || *call.TimeoutSeconds != 30 {
		t.Fatalf("timeout override lost: %v", call.TimeoutSeconds)
	}
	if call.Isolation {
		t.Fatalf("isolation override lost")
	}
}

func TestHandleCompletionDenied(t *testing.T) {
	runner := &fakeRunner{result: &dispatch.Result{
		ExitCode: dispatch.DeniedExitCode,
		Denied: &guardrail.DeniedError{
			Reason: guardrail.ReasonBudgetExceeded,
			Why:    "the tree used its whole call budget",
			Fix:    "raise maxCalls or narrow the query",
		},
	}}
	s := testServer(t, runner)

	rec := postCompletion(t, s, `{"messages": [{"role": "user", "content": "hi"}]}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("denied completion status = %d, want 502", rec.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Why == "" || resp.Fix == "" {
		t.Fatalf("denial lost its guidance: %+v", resp)
	}
}

func TestHandleCompletionAgentFailure(t *testing.T) {
	runner := &fakeRunner{result: &dispatch.Result{
		ExitCode: 3,
		Stderr:   []byte("backend unreachable\n"),
	}}
	s := testServer(t, runner)

	rec := postCompletion(t, s, `{"messages": [{"role": "user", "content": "hi"}]}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("failed completion status = %d, want 502", rec.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !strings.Contains(resp.Error, "code 3") || resp.Why != "backend unreachable" {
		t.Fatalf("failure response = %+v", resp)
	}
}

func TestHandleCompletionRejectsBadInput(t *testing.T) {
	s := testServer(t, &fakeRunner{result: &dispatch.Result{}})

	if rec := postCompletion(t, s, `not json`); rec.Code != http.StatusBadRequest {
		t.Fatalf("garbage body status = %d, want 400", rec.Code)
	}
	if rec := postCompletion(t, s, `{"messages": []}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty messages status = %d, want 400", rec.Code)
	}
}

func TestHandleRunsWithoutStore(t *testing.T) {
	s := testServer(t, &fakeRunner{})

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /runs status = %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("GET /runs body = %q, want empty list", rec.Body.String())
	}
}

func TestMessagesToContext(t *testing.T) {
	ctx, query := messagesToContext([]Message{
		{Role: "system", Content: "rules"},
		{Content: "anonymous turn"},
		{Role: "user", Content: "the question"},
	})

	want := "[SYSTEM]: rules\n\n[USER]: anonymous turn"
	if ctx != want {
		t.Fatalf("context = %q, want %q", ctx, want)
	}
	if query != "the question" {
		t.Fatalf("query = %q", query)
	}
}
