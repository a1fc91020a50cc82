// Package llm wraps a langchaingo chat model for the dialogue agents.
//
// The Client translates conversation messages to langchaingo message
// content, advertises capabilities as function tools, and turns the model's
// reply back into a conversation.Message. Every call goes through a rate
// limiter and a bounded retry loop with exponential backoff for transient
// failures (rate limiting, 5xx, network errors).
package llm
