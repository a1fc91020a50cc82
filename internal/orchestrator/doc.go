// Package orchestrator drives one dialogue run as a small state machine.
//
// # States
//
//	COLLECT ──tool request──▶ COLLECT_TOOL ──▶ QA ◀──▶ QA_TOOL
//	   │                                       │
//	   └──────────── reply ──▶ DONE ◀── reply ─┘
//
// COLLECT and QA run an agent that appends one assistant message.
// COLLECT_TOOL and QA_TOOL run a mediator that executes the requested
// capability and appends its ToolResult. Next inspects the message the node
// just appended and picks the successor. The first extraction attempt is the
// phase boundary: COLLECT_TOOL always continues in QA, whether or not a
// profile was resolved.
//
// # Runs
//
// Executor.Run starts in COLLECT when the turn state has no profile and in QA
// when it does. Every node execution counts as one step; a run that reaches
// the configured ceiling without getting to DONE aborts with
// ErrStepLimitExceeded. Capability failures never abort a run: mediators turn
// them into error ToolResults so the agent can keep talking. Agent failures,
// invalid transitions and panics inside a node abort the run with an
// *AbortError.
//
// The Executor holds no per-run state and is safe for concurrent use as long
// as each run gets its own TurnState.
package orchestrator
