package agent

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/fyrsmithlabs/hmochat/internal/conversation"
	"github.com/fyrsmithlabs/hmochat/internal/llm"
)

// Agent produces the next assistant message for a turn state.
type Agent struct {
	name      string
	prompt    string
	tools     []llms.Tool
	generator llm.Generator
	// withMember appends the profile's HMO and tier to the prompt.
	withMember bool
}

// NewCollector returns the onboarding agent.
func NewCollector(g llm.Generator) *Agent {
	return &Agent{
		name:      "collector",
		prompt:    collectorPrompt,
		tools:     []llms.Tool{ExtractProfileTool},
		generator: g,
	}
}

// NewQA returns the question-answering agent.
func NewQA(g llm.Generator) *Agent {
	return &Agent{
		name:       "qa",
		prompt:     qaPrompt,
		tools:      []llms.Tool{SearchKnowledgeTool},
		generator:  g,
		withMember: true,
	}
}

// Name identifies the agent in logs and spans.
func (a *Agent) Name() string {
	return a.name
}

// SystemPrompt returns the instruction used for state.
func (a *Agent) SystemPrompt(state *conversation.TurnState) string {
	if a.withMember && state.Profile != nil {
		return a.prompt + fmt.Sprintf(memberTemplate, state.Profile.HMO, state.Profile.InsuranceTier)
	}
	return a.prompt
}

// Act generates one assistant message. It does not modify state.
func (a *Agent) Act(ctx context.Context, state *conversation.TurnState) (conversation.Message, error) {
	msg, err := a.generator.Generate(ctx, a.SystemPrompt(state), state.Messages, a.tools)
	if err != nil {
		return conversation.Message{}, fmt.Errorf("%s agent: %w", a.name, err)
	}
	msg.Role = conversation.RoleAssistant
	return msg, nil
}
