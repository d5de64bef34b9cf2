package bridge

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rlmkit/recurse/internal/callenv"
	"github.com/rlmkit/recurse/internal/dispatch"
	"github.com/rlmkit/recurse/internal/events"
	"github.com/rlmkit/recurse/internal/ledger"
	"github.com/rlmkit/recurse/internal/runlog"
)

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:          "ok",
		AgentAvailable:  s.probeAgent(),
		DefaultProvider: s.cfg.Routing.Provider,
		DefaultModel:    s.cfg.Routing.Model,
		UptimeSeconds:   int64(time.Since(s.startedAt).Seconds()),
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleCompletion handles POST /completion: it turns the conversation into
// a context slice plus query, runs one root call through the dispatcher, and
// replies with the tree's final text.
func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	var req CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Messages) == 0 {
		s.writeError(w, http.StatusBadRequest, "messages is empty")
		return
	}

	contextText, query := messagesToContext(req.Messages)

	call := dispatch.NewRootCall(s.cfg, time.Now())
	applyOverrides(call, &req)

	var ctxBytes []byte
	if contextText != "" {
		ctxBytes = []byte(contextText)
	}

	res, err := s.dispatcher.Run(r.Context(), call, ctxBytes, []string{query})
	if err != nil {
		s.logger.Error("dispatch failed", "error", err, "trace_id", call.TraceID)
		s.writeError(w, http.StatusBadGateway, "dispatch failed: "+err.Error())
		return
	}

	s.recordRun(r, call.TraceID, call.Provider, call.Model, res, ctxBytes)

	if res.Denied != nil {
		s.writeJSON(w, http.StatusBadGateway, ErrorResponse{
			Error: "call denied: " + string(res.Denied.Reason),
			Why:   res.Denied.Why,
			Fix:   res.Denied.Fix,
		})
		return
	}

	if res.ExitCode != 0 {
		s.writeJSON(w, http.StatusBadGateway, ErrorResponse{
			Error: fmt.Sprintf("agent exited with code %d", res.ExitCode),
			Why:   strings.TrimSpace(string(res.Stderr)),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, CompletionResponse{
		Text: string(res.Stdout),
		Metadata: CompletionMetadata{
			TraceID:   call.TraceID,
			ExitCode:  res.ExitCode,
			ElapsedMS: res.Elapsed.Milliseconds(),
			MaxDepth:  call.MaxDepth,
			Provider:  call.Provider,
			Model:     call.Model,
		},
	})
}

// handleRuns handles GET /runs.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeJSON(w, http.StatusOK, []RunSummary{})
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := s.runs.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list runs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	out := make([]RunSummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunSummary{
			TraceID:   e.TraceID,
			Provider:  e.Provider,
			Model:     e.Model,
			ExitCode:  e.ExitCode,
			ElapsedMS: e.ElapsedMS,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) recordRun(r *http.Request, traceID, provider, model string, res *dispatch.Result, ctxBytes []byte) {
	s.hub.Publish(events.Completion{
		TraceID:   traceID,
		Provider:  provider,
		Model:     model,
		ExitCode:  res.ExitCode,
		ElapsedMS: res.Elapsed.Milliseconds(),
	})

	if s.runs == nil {
		return
	}
	entry := runlog.Entry{
		TraceID:   traceID,
		Provider:  provider,
		Model:     model,
		ExitCode:  res.ExitCode,
		ElapsedMS: res.Elapsed.Milliseconds(),
	}
	if ctxBytes != nil {
		entry.ContextDigest = ledger.Digest(ctxBytes)
	}
	if err := s.runs.Record(r.Context(), entry); err != nil {
		s.logger.Error("failed to record run", "error", err, "trace_id", traceID)
	}
}

// messagesToContext converts a conversation into the dispatcher's shape:
// everything but the last message becomes the context slice, the last
// message is the query of the current turn.
func messagesToContext(messages []Message) (string, string) {
	if len(messages) == 0 {
		return "", ""
	}

	parts := make([]string, 0, len(messages)-1)
	for _, msg := range messages[:len(messages)-1] {
		role := msg.Role
		if role == "" {
			role = "user"
		}
		parts = append(parts, fmt.Sprintf("[%s]: %s", strings.ToUpper(role), msg.Content))
	}

	return strings.Join(parts, "\n\n"), messages[len(messages)-1].Content
}

// applyOverrides folds per-request limit and routing overrides into the
// freshly minted root call.
func applyOverrides(call *callenv.Call, req *CompletionRequest) {
	if req.Model != "" {
		call.Model = req.Model
	}
	if req.RLM == nil {
		return
	}
	o := req.RLM
	if o.Provider != "" {
		call.Provider = o.Provider
	}
	if o.MaxDepth != nil && *o.MaxDepth >= 0 {
		call.MaxDepth = *o.MaxDepth
	}
	if o.MaxCalls != nil {
		v := *o.MaxCalls
		call.MaxCalls = &v
	}
	if o.TimeoutSeconds != nil {
		v := *o.TimeoutSeconds
		call.TimeoutSeconds = &v
	}
	if o.Isolation != nil {
		call.Isolation = *o.Isolation
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(mustJSON(v))
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}

func agentOnPath(command []string) bool {
	if len(command) == 0 {
		return false
	}
	_, err := exec.LookPath(command[0])
	return err == nil
}
