// Package capability implements the two external functions the dialogue
// agents can request: ExtractProfile, which turns a transcript into a member
// profile through a JSON-mode model call, and SearchKnowledge, which runs a
// similarity search over the knowledge index.
//
// A Provider holds no per-call state and is shared by every concurrent run.
package capability
