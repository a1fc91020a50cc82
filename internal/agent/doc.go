// Package agent provides the two dialogue agents. Each one takes the turn
// state, prepends its fixed system instruction, and produces exactly one
// assistant message through an llm.Generator. The collector gathers the
// member's details and may request ExtractProfile; the QA agent answers
// service questions and may request SearchKnowledge.
package agent
