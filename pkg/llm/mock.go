package llm

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockTurn is one scripted model reply.
type MockTurn struct {
	Content   string
	ToolCalls []ToolCall
	Usage     TokenUsage
	Cost      float64
	Err       error
}

// MockProvider is a deterministic Provider for tests and offline runs. It plays
// Script in order and repeats the last turn once the script is exhausted.
// Handler, when set, takes precedence over Script.
type MockProvider struct {
	Name    string
	Script  []MockTurn
	Handler func(ctx context.Context, req Request) (*Response, error)
	Latency time.Duration

	mu       sync.Mutex
	calls    int
	requests []Request
}

// NewMockProvider returns a mock named "mock" playing turns.
func NewMockProvider(turns ...MockTurn) *MockProvider {
	return &MockProvider{Name: "mock", Script: turns}
}

// Provider returns the provider name
func (m *MockProvider) Provider() string {
	if m.Name == "" {
		return "mock"
	}
	return m.Name
}

// Call returns the next scripted turn after Latency, or ctx.Err() if ctx ends first.
func (m *MockProvider) Call(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	idx := m.calls
	m.calls++
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.Handler != nil {
		return m.Handler(ctx, req)
	}
	if len(m.Script) == 0 {
		return &Response{Model: req.Model}, nil
	}
	if idx >= len(m.Script) {
		idx = len(m.Script) - 1
	}
	turn := m.Script[idx]
	if turn.Err != nil {
		return nil, turn.Err
	}

	toolCalls := make([]ToolCall, len(turn.ToolCalls))
	for i, tc := range turn.ToolCalls {
		if tc.ID == "" {
			tc.ID = "call_" + uuid.NewString()[:8]
		}
		toolCalls[i] = tc
	}

	return &Response{
		Content:   turn.Content,
		ToolCalls: toolCalls,
		Usage:     turn.Usage,
		Cost:      turn.Cost,
		Model:     req.Model,
	}, nil
}

// Calls returns how many times Call was invoked.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Requests returns a copy of every request received.
func (m *MockProvider) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}
