package bridge

import "encoding/json"

// Message is one turn of the caller's conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the incoming completion request.
type CompletionRequest struct {
	Messages []Message  `json:"messages"`
	Model    string     `json:"model,omitempty"`
	RLM      *Overrides `json:"rlm,omitempty"`
}

// Overrides adjusts the dispatcher limits for one tree.
type Overrides struct {
	Provider       string `json:"provider,omitempty"`
	MaxDepth       *int   `json:"maxDepth,omitempty"`
	MaxCalls       *int   `json:"maxCalls,omitempty"`
	TimeoutSeconds *int   `json:"timeoutSeconds,omitempty"`
	Isolation      *bool  `json:"isolation,omitempty"`
}

// CompletionResponse is the reply for a completed tree.
type CompletionResponse struct {
	Text     string             `json:"text"`
	Metadata CompletionMetadata `json:"metadata"`
}

// CompletionMetadata mirrors the per-call metadata of the original bridge.
type CompletionMetadata struct {
	TraceID   string `json:"traceId"`
	ExitCode  int    `json:"exitCode"`
	ElapsedMS int64  `json:"elapsedMs"`
	MaxDepth  int    `json:"maxDepth"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
}

// HealthResponse is the GET /health payload.
type HealthResponse struct {
	Status          string `json:"status"`
	AgentAvailable  bool   `json:"agent_available"`
	DefaultProvider string `json:"default_provider"`
	DefaultModel    string `json:"default_model"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
}

// RunSummary is one entry of GET /runs.
type RunSummary struct {
	TraceID   string `json:"trace_id"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	ExitCode  int    `json:"exit_code"`
	ElapsedMS int64  `json:"elapsed_ms"`
	CreatedAt string `json:"created_at"`
}

// ErrorResponse carries a denial or failure to the caller.
type ErrorResponse struct {
	Error string `json:"error"`
	Why   string `json:"why,omitempty"`
	Fix   string `json:"fix,omitempty"`
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return b
}
