package llm

import (
	"encoding/json"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/fyrsmithlabs/hmochat/internal/conversation"
)

// ToMessageContent builds the model input: the system prompt followed by the
// history in order. Tool results are matched to their request by call id so
// the function name can be echoed back.
func ToMessageContent(system string, history []conversation.Message) ([]llms.MessageContent, error) {
	out := make([]llms.MessageContent, 0, len(history)+1)
	if system != "" {
		out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}

	names := make(map[string]conversation.Capability)
	for i, m := range history {
		switch m.Role {
		case conversation.RoleUser:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))

		case conversation.RoleAssistant:
			mc := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if m.Content != "" {
				mc.Parts = append(mc.Parts, llms.TextContent{Text: m.Content})
			}
			if m.ToolRequest != nil {
				args, err := json.Marshal(m.ToolRequest.Arguments)
				if err != nil {
					return nil, fmt.Errorf("message %d: encoding tool arguments: %w", i, err)
				}
				names[m.ToolRequest.CallID] = m.ToolRequest.Name
				mc.Parts = append(mc.Parts, llms.ToolCall{
					ID:   m.ToolRequest.CallID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      string(m.ToolRequest.Name),
						Arguments: string(args),
					},
				})
			}
			if len(mc.Parts) == 0 {
				mc.Parts = append(mc.Parts, llms.TextContent{Text: ""})
			}
			out = append(out, mc)

		case conversation.RoleTool:
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: m.ToolCallID,
					Name:       string(names[m.ToolCallID]),
					Content:    m.Content,
				}},
			})

		default:
			return nil, fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}
	}
	return out, nil
}
