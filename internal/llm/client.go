// Package llm provides the bounded, cancellable completion client the
// planner and reflection engine consume. Prompt formatting and transport
// live behind the Client interface; the control loop never talks to a
// provider directly.
package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Request is a single completion request.
type Request struct {
	// SystemPrompt is the instruction preamble.
	SystemPrompt string

	// Prompt is the user-turn content.
	Prompt string
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns the combined token count.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Response is the result of one completion request.
type Response struct {
	// Text is the full completion text.
	Text string

	// Usage is the token consumption for budget tracking.
	Usage Usage

	// CostUSD is the estimated request cost for budget tracking.
	CostUSD float64
}

// Client is a bounded request-response completion backend. Implementations
// must respect context cancellation; the controller decouples this call's
// timeout from its own state timeout.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// TransportError wraps a provider or network failure. Transport errors are
// retried with backoff a small fixed number of times before being treated
// as fatal.
type TransportError struct {
	Message   string
	Retryable bool
	Cause     error
}

func (e *TransportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether err is a transient transport failure.
func IsRetryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}
	return false
}

// MockClient returns scripted responses in order. It is used by tests and
// by dry runs; exhausting the script is an error. It is safe for use from
// multiple goroutines.
type MockClient struct {
	Responses []Response
	Errs      []error

	mu    sync.Mutex
	calls int
}

// Complete returns the next scripted response.
func (m *MockClient) Complete(_ context.Context, _ Request) (*Response, error) {
	m.mu.Lock()
	i := m.calls
	m.calls++
	m.mu.Unlock()
	if i < len(m.Errs) && m.Errs[i] != nil {
		return nil, m.Errs[i]
	}
	if i >= len(m.Responses) {
		return nil, &TransportError{Message: "mock client script exhausted"}
	}
	resp := m.Responses[i]
	return &resp, nil
}

// Calls returns how many requests the mock has served.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Ensure MockClient implements Client.
var _ Client = (*MockClient)(nil)
