// Package llm defines the boundary to external text-generation services.
//
// The rest of the system never assumes well-formed output from a provider;
// callers parse responses defensively and treat parse failures as one more
// classifiable, retryable error.
package llm

import (
	"context"
	"time"
)

// Message is a single chat message.
type Message struct {
	Role    string // "system", "user" or "assistant"
	Content string
}

// ChatRequest is a request to a provider.
type ChatRequest struct {
	Messages  []Message
	MaxTokens int // 0 uses the provider default
}

// ChatResponse is a provider's reply.
type ChatResponse struct {
	Content      string
	StopReason   string
	InputTokens  int
	OutputTokens int
	Model        string
}

// Provider is the interface implemented by LLM backends.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// RetryConfig controls retry behavior for transient provider errors.
type RetryConfig struct {
	MaxRetries  int           // 0 uses the default
	InitBackoff time.Duration // initial backoff duration
	MaxBackoff  time.Duration // backoff cap
}

// Generator produces free text from a caller-assembled context string. It is
// the only method the planner and the synthesis loop require of a provider.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ChatGenerator adapts a Provider to the Generator boundary with a fixed
// system message.
type ChatGenerator struct {
	provider Provider
	system   string
}

// NewChatGenerator creates a Generator backed by a chat provider.
func NewChatGenerator(provider Provider, system string) *ChatGenerator {
	return &ChatGenerator{provider: provider, system: system}
}

// Generate sends the prompt as a single user message and returns the raw
// response text.
func (g *ChatGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	messages := []Message{}
	if g.system != "" {
		messages = append(messages, Message{Role: "system", Content: g.system})
	}
	messages = append(messages, Message{Role: "user", Content: prompt})

	resp, err := g.provider.Chat(ctx, ChatRequest{Messages: messages})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
