package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/fyrsmithlabs/hmochat/internal/conversation"
)

func TestToMessageContent(t *testing.T) {
	history := []conversation.Message{
		conversation.UserMessage("what is covered?"),
		{
			Role: conversation.RoleAssistant,
			ToolRequest: &conversation.ToolRequest{
				Name:      conversation.SearchKnowledge,
				CallID:    "c1",
				Arguments: map[string]any{"question": "coverage"},
			},
		},
		conversation.ToolResult("c1", "Result 1:\nDental\n", false),
		conversation.AssistantMessage("Dental is covered."),
	}

	out, err := ToMessageContent("system prompt", history)
	require.NoError(t, err)
	require.Len(t, out, 5)

	assert.Equal(t, llms.ChatMessageTypeSystem, out[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, out[1].Role)

	require.Equal(t, llms.ChatMessageTypeAI, out[2].Role)
	call, ok := out[2].Parts[0].(llms.ToolCall)
	require.True(t, ok)
	assert.Equal(t, "c1", call.ID)
	assert.Equal(t, "SearchKnowledge", call.FunctionCall.Name)
	assert.JSONEq(t, `{"question":"coverage"}`, call.FunctionCall.Arguments)

	require.Equal(t, llms.ChatMessageTypeTool, out[3].Role)
	resp, ok := out[3].Parts[0].(llms.ToolCallResponse)
	require.True(t, ok)
	assert.Equal(t, "c1", resp.ToolCallID)
	assert.Equal(t, "SearchKnowledge", resp.Name)

	assert.Equal(t, llms.ChatMessageTypeAI, out[4].Role)
}

func TestToMessageContent_NoSystem(t *testing.T) {
	out, err := ToMessageContent("", []conversation.Message{conversation.UserMessage("x")})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, llms.ChatMessageTypeHuman, out[0].Role)
}

func TestToMessageContent_UnknownRole(t *testing.T) {
	_, err := ToMessageContent("", []conversation.Message{{Role: "system", Content: "x"}})
	assert.Error(t, err)
}
