// Package chat turns one inbound chat request into an orchestrator run and
// shapes the result into a reply for the caller.
//
// Conversations are stateless on the server: the caller sends the full
// history and the profile it already holds, and gets back the profile the
// run resolved (if any) together with the derived phase.
package chat
