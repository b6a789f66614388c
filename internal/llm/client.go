// Package llm wraps the model providers behind one completion interface and
// provides tolerant parsing of model JSON output.
package llm

import "context"

// ChatRole identifies who authored a message.
type ChatRole string

const (
	ChatRoleSystem    ChatRole = "system"
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// Message is a single turn of conversation passed to the model.
type Message struct {
	Role    ChatRole
	Content string
}

// Request describes one completion call.
type Request struct {
	Model    string
	System   []string
	Messages []Message
	// MaxTokens caps the completion length; zero means provider default.
	MaxTokens int32
	// Temperature below zero means provider default.
	Temperature float32
	TopP        float32
}

// TokenUsage reports token counts when the provider returns them.
type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// Response is the completion result.
type Response struct {
	Text       string
	StopReason string
	Usage      TokenUsage
}

// Client is implemented by each model provider. Callers treat any error as a
// failed external call and apply their own fallback.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
