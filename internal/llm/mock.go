package llm

import (
	"context"
	"sync"
)

// MockProvider is an in-memory Provider for tests. Responses are served from
// a queue; when the queue is empty the last queued response repeats. A custom
// ChatFunc overrides everything.
type MockProvider struct {
	mu        sync.Mutex
	responses []string
	requests  []ChatRequest

	// ChatFunc, when set, fully replaces the canned-response behavior.
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// NewMockProvider creates a mock provider with a single empty response.
func NewMockProvider() *MockProvider {
	return &MockProvider{responses: []string{""}}
}

// SetResponse replaces the queue with a single response.
func (m *MockProvider) SetResponse(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = []string{content}
}

// QueueResponses replaces the queue with the given responses, served in order.
func (m *MockProvider) QueueResponses(contents ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append([]string{}, contents...)
}

// LastRequest returns the most recent request, or nil if none were made.
func (m *MockProvider) LastRequest() *ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	req := m.requests[len(m.requests)-1]
	return &req
}

// CallCount returns the number of Chat calls made.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Chat implements the Provider interface.
func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if m.ChatFunc != nil {
		m.mu.Lock()
		m.requests = append(m.requests, req)
		m.mu.Unlock()
		return m.ChatFunc(ctx, req)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	var content string
	switch len(m.responses) {
	case 0:
	case 1:
		content = m.responses[0]
	default:
		content = m.responses[0]
		m.responses = m.responses[1:]
	}

	return &ChatResponse{
		Content:    content,
		StopReason: "stop",
		Model:      "mock",
	}, nil
}
