package llm

import (
	"context"
	"sync"

	"github.com/Harshitk-cp/dissent/internal/domain"
)

// MockClient is a configurable LLM client for testing.
// Scripted Responses are consumed in order; once exhausted Response is
// returned. Handler, when set, takes precedence over both. Safe for
// concurrent use since analysts call it from parallel goroutines.
type MockClient struct {
	mu sync.Mutex

	Response  string
	Error     error
	Responses []string
	Errors    []error
	Handler   func(req domain.CompletionRequest) (string, error)

	// Call tracking for assertions
	Calls []domain.CompletionRequest
}

func NewMockClient() *MockClient {
	return &MockClient{Response: "{}"}
}

func (c *MockClient) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	c.mu.Lock()
	c.Calls = append(c.Calls, req)
	handler := c.Handler
	var scriptedErr error
	if len(c.Errors) > 0 {
		scriptedErr, c.Errors = c.Errors[0], c.Errors[1:]
	}
	var resp string
	scripted := false
	if len(c.Responses) > 0 {
		resp, c.Responses = c.Responses[0], c.Responses[1:]
		scripted = true
	}
	def, defErr := c.Response, c.Error
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if handler != nil {
		return handler(req)
	}
	if scriptedErr != nil {
		return "", scriptedErr
	}
	if scripted {
		return resp, nil
	}
	if defErr != nil {
		return "", defErr
	}
	return def, nil
}

// CallCount returns the number of recorded calls.
func (c *MockClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}

// Reset clears all recorded calls and resets responses to defaults.
func (c *MockClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Response = "{}"
	c.Error = nil
	c.Responses = nil
	c.Errors = nil
	c.Handler = nil
	c.Calls = nil
}
