// Package testutil provides a scripted llm.Completer for tests.
package testutil

import (
	"context"
	"sync"

	"github.com/c360studio/launchmate/llm"
)

// MockLLMClient is a thread-safe llm.Completer that replays Responses in
// order. Errs, when set for a call index, wins over the response at that
// index. Err fails every call.
//
//	mock := &MockLLMClient{
//	    Responses: []*llm.Response{{Content: "1. Rates are rising."}},
//	}
type MockLLMClient struct {
	mu        sync.Mutex
	Responses []*llm.Response
	Errs      map[int]error
	Err       error

	requests  []llm.Request
	callCount int
}

// Complete records req and returns the next scripted reply.
func (m *MockLLMClient) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := m.callCount
	m.callCount++
	m.requests = append(m.requests, req)

	if m.Err != nil {
		return nil, m.Err
	}
	if err := m.Errs[call]; err != nil {
		return nil, err
	}
	if call < len(m.Responses) {
		return m.Responses[call], nil
	}
	return &llm.Response{Content: "", Model: "test-model"}, nil
}

// CallCount returns the number of Complete calls.
func (m *MockLLMClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Requests returns copies of the requests seen so far.
func (m *MockLLMClient) Requests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.Request(nil), m.requests...)
}

// Reset clears recorded calls.
func (m *MockLLMClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.requests = nil
}
