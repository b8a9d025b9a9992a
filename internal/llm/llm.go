// Package llm wraps the text-generation and embedding collaborators.
package llm

import "context"

// Roles used in Message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role string `json:"role"`
	Text string `json:"content"`
}

// Request is a single stateless completion request.
type Request struct {
	System      string
	Messages    []Message
	Temperature float32
	MaxTokens   int32
}

// Generator produces text for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Embedder produces a fixed-length vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Prompt is a shorthand for a single-turn request.
func Prompt(system, user string, temperature float32, maxTokens int32) Request {
	return Request{
		System:      system,
		Messages:    []Message{{Role: RoleUser, Text: user}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
}
