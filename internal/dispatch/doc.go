// Package dispatch wraps every recursive agent call: guardrail evaluation,
// workspace isolation, environment propagation, child process invocation,
// guaranteed cleanup, and trace reporting.
//
// Control flow for one call:
//   - Guardrails check the tree-wide timeout and call budget. A denial
//     short-circuits before any child process or transient resource exists
//     and is rendered with cause and remediation text.
//   - A non-leaf call optionally acquires an isolated worktree; absence of
//     the isolation tool is a silent fallback, never a failure.
//   - The child environment carries the threaded tree state (depth, count,
//     start time, remaining budget, routing, trace identity) by value. Leaf
//     calls receive no recursion environment and no re-entry shim, so the
//     capability to recurse is removed rather than merely discouraged.
//   - The agent runs as a true child process under the remaining deadline;
//     its exit code becomes the dispatcher's own. Timeout kills surface the
//     synthetic code 124.
//   - Every transient resource (scratch context file, shim directory,
//     workspace) is registered in a cleanup scope released on all exit
//     paths.
//   - Exactly one COMPLETED record is appended to the ledger per call when
//     a ledger path is configured.
package dispatch
