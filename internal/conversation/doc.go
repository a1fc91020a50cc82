// Package conversation holds the data model threaded through a dialogue run:
// role-tagged messages, the tool requests and results attached to them, the
// member profile the onboarding phase resolves, and the TurnState that carries
// both across the orchestrator's steps.
//
// Messages are append-only. A TurnState is owned by one run at a time; the
// caller keeps it between runs and passes the full history back in.
package conversation
