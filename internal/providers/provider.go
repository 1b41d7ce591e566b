// Package providers defines the LLM client contract consumed by the
// extraction engine, plus the OpenAI-backed implementation, a mock client for
// tests, and a token-bucket rate limiter.
package providers

import (
	"context"
	"time"
)

// LLMClient is the narrow interface the engine depends on. Any conforming
// implementation (real client, test stub, replay fixture) is interchangeable;
// the engine never inspects transport details.
type LLMClient interface {
	// Chat sends a chat completion request.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error)

	// Name returns the client identifier (e.g. "openai", "mock").
	Name() string
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// ChatRequest is a request to an LLM.
type ChatRequest struct {
	Messages []Message `json:"messages"`

	// Model selection (uses client default if empty)
	Model string `json:"model,omitempty"`

	// Generation parameters
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`

	// Request tracking
	RequestID string `json:"-"`
}

// ChatResult is the complete response from one LLM call.
type ChatResult struct {
	// Response content
	Content string `json:"content"`

	// ReasoningContent carries model-supplied reasoning text when the
	// backing model exposes it (e.g. reasoning_content on DeepSeek-style
	// responses). Empty otherwise.
	ReasoningContent string `json:"reasoning_content,omitempty"`

	// Token counts
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	// Timing
	Latency time.Duration `json:"latency"`

	// Provider info
	Provider  string `json:"provider"`
	ModelUsed string `json:"model_used,omitempty"`

	// Request tracking
	RequestID string `json:"request_id"`

	// Success/error
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}
