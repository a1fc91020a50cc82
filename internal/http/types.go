package http

import (
	"time"

	"github.com/fyrsmithlabs/hmochat/internal/conversation"
)

// HistoryEntry is one prior turn as sent by the client.
type HistoryEntry struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// ChatRequest is the request body for POST /chat.
type ChatRequest struct {
	Message             string                `json:"message"`
	UserProfile         *conversation.Profile `json:"user_profile,omitempty"`
	ConversationHistory []HistoryEntry        `json:"conversation_history"`
}

// ChatResponse is the response body for POST /chat.
type ChatResponse struct {
	Message              string                `json:"message"`
	UserProfile          *conversation.Profile `json:"user_profile,omitempty"`
	Phase                string                `json:"phase"`
	RequiresConfirmation bool                  `json:"requires_confirmation"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// WelcomeResponse is the response body for GET /welcome.
type WelcomeResponse struct {
	Message string `json:"message"`
}

// StatsResponse is the response body for GET /vector-store/stats.
type StatsResponse struct {
	Status         string `json:"status"`
	TotalDocuments int    `json:"total_documents"`
	Dimension      int    `json:"dimension"`
	IndexType      string `json:"index_type"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (r ChatRequest) history() []conversation.Message {
	msgs := make([]conversation.Message, 0, len(r.ConversationHistory))
	for _, h := range r.ConversationHistory {
		m := conversation.Message{Role: conversation.Role(h.Role), Content: h.Content}
		if h.Timestamp != nil {
			m.Timestamp = *h.Timestamp
		}
		msgs = append(msgs, m)
	}
	return msgs
}
