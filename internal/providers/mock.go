package providers

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

const MockClientName = "mock"

// MockClient is an LLMClient for testing.
type MockClient struct {
	// Configurable behavior
	Latency          time.Duration
	ShouldFail       bool   // fail every request
	FailTimes        int    // fail the first N requests, then succeed
	FailAfter        int    // fail every request after the first N (0 = never)
	ResponseText     string // fixed response content
	ReasoningContent string

	// ResponseFunc overrides ResponseText when set (e.g. to echo back the
	// fields a request asked for).
	ResponseFunc func(req *ChatRequest) string

	// State
	requestCount atomic.Int64
}

// NewMockClient creates a new mock client with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{
		ResponseText: `{}`,
	}
}

// Name returns the client identifier.
func (c *MockClient) Name() string {
	return MockClientName
}

// Chat sends a mock chat request.
func (c *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()
	count := c.requestCount.Add(1)

	result := &ChatResult{
		RequestID: fmt.Sprintf("mock-%d", count),
		Provider:  MockClientName,
		ModelUsed: req.Model,
	}

	if c.Latency > 0 {
		select {
		case <-time.After(c.Latency):
		case <-ctx.Done():
			result.ErrorMessage = ctx.Err().Error()
			result.Latency = time.Since(start)
			return result, ctx.Err()
		}
	}

	if c.ShouldFail || int(count) <= c.FailTimes ||
		(c.FailAfter > 0 && int(count) > c.FailAfter) {
		result.ErrorMessage = fmt.Sprintf("mock failure on request %d", count)
		result.Latency = time.Since(start)
		return result, fmt.Errorf("mock failure on request %d", count)
	}

	content := c.ResponseText
	if c.ResponseFunc != nil {
		content = c.ResponseFunc(req)
	}

	result.Success = true
	result.Content = content
	result.ReasoningContent = c.ReasoningContent
	result.Latency = time.Since(start)

	// Rough token estimates
	for _, m := range req.Messages {
		result.PromptTokens += len(m.Content) / 4
	}
	result.CompletionTokens = len(content) / 4
	result.TotalTokens = result.PromptTokens + result.CompletionTokens

	return result, nil
}

// RequestCount returns the number of requests made.
func (c *MockClient) RequestCount() int64 {
	return c.requestCount.Load()
}

// Reset resets the request counter.
func (c *MockClient) Reset() {
	c.requestCount.Store(0)
}

// Verify interface
var _ LLMClient = (*MockClient)(nil)
