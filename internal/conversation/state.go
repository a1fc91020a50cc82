package conversation

import (
	"strings"
)

// TurnState is the conversation log plus the optional resolved profile.
type TurnState struct {
	Messages []Message
	Profile  *Profile
}

// NewTurnState copies history and profile so the run never aliases caller
// memory.
func NewTurnState(history []Message, profile *Profile) *TurnState {
	s := &TurnState{Messages: make([]Message, len(history), len(history)+8)}
	copy(s.Messages, history)
	if profile != nil {
		p := *profile
		s.Profile = &p
	}
	return s
}

// Append adds a message to the end of the log.
func (s *TurnState) Append(m Message) {
	s.Messages = append(s.Messages, m)
}

// Last returns the most recently appended message.
func (s *TurnState) Last() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// SetProfile replaces the profile wholesale. There is no way to clear it.
func (s *TurnState) SetProfile(p Profile) {
	s.Profile = &p
}

// HasProfile reports whether a profile has been resolved.
func (s *TurnState) HasProfile() bool {
	return s.Profile != nil
}

// Phase derives the dialogue phase from profile presence.
func (s *TurnState) Phase() Phase {
	if s.HasProfile() {
		return PhaseQA
	}
	return PhaseOnboarding
}

// Transcript flattens user and assistant messages into "User: ..." and
// "Assistant: ..." lines. Tool traffic and empty tool-request messages are
// skipped.
func (s *TurnState) Transcript() string {
	var b strings.Builder
	for _, m := range s.Messages {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case RoleUser:
			b.WriteString("User: ")
		case RoleAssistant:
			b.WriteString("Assistant: ")
		case RoleTool:
			continue
		}
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// LastAssistantReply returns the content of the last assistant message after
// index from that has text.
func (s *TurnState) LastAssistantReply(from int) (string, bool) {
	if from < 0 {
		from = 0
	}
	for i := len(s.Messages) - 1; i >= from; i-- {
		m := s.Messages[i]
		if m.Role == RoleAssistant && strings.TrimSpace(m.Content) != "" {
			return m.Content, true
		}
	}
	return "", false
}
