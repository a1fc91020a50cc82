package conversation

import (
	"fmt"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Capability names an externally supplied function an agent may request.
type Capability string

const (
	ExtractProfile  Capability = "ExtractProfile"
	SearchKnowledge Capability = "SearchKnowledge"
)

// ToolRequest annotates an assistant message that asks for a capability call.
type ToolRequest struct {
	Name      Capability     `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	CallID    string         `json:"call_id"`
}

// StringArg returns a non-empty string argument.
func (t ToolRequest) StringArg(key string) (string, bool) {
	v, ok := t.Arguments[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Message is one entry of the conversation log.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// ToolCallID is set on tool results and names the request they answer.
	ToolCallID string `json:"tool_call_id,omitempty"`
	// ToolRequest is set on assistant messages that request a capability.
	ToolRequest *ToolRequest `json:"tool_request,omitempty"`
	// Failed marks a tool result that carries an error string.
	Failed    bool      `json:"failed,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// UserMessage builds a user-authored message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, Timestamp: time.Now()}
}

// AssistantMessage builds a plain assistant reply.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content, Timestamp: time.Now()}
}

// ToolResult builds the message answering callID.
func ToolResult(callID, content string, failed bool) Message {
	return Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: callID,
		Failed:     failed,
		Timestamp:  time.Now(),
	}
}

// RequestsTool reports whether the message asks for a capability call.
func (m Message) RequestsTool() bool {
	return m.Role == RoleAssistant && m.ToolRequest != nil
}

// Validate checks the structural rules a message must follow.
func (m Message) Validate() error {
	if !m.Role.Valid() {
		return fmt.Errorf("unknown role %q", m.Role)
	}
	if m.ToolRequest != nil && m.Role != RoleAssistant {
		return fmt.Errorf("%s message cannot carry a tool request", m.Role)
	}
	if m.Role == RoleTool && m.ToolCallID == "" {
		return fmt.Errorf("tool message without call id")
	}
	return nil
}

// Phase is derived from profile presence, never stored.
type Phase string

const (
	PhaseOnboarding Phase = "onboarding"
	PhaseQA         Phase = "qa"
)
