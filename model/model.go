package model

import (
	"context"
	"fmt"
	"sync"
)

// Message is one turn of the conversation sent to a provider.
type Message struct {
	Role    string `json:"role"` // "user", "assistant" or "tool"
	Content string `json:"content"`
}

// Request captures the normalized model input produced by the reasoning loop.
type Request struct {
	Instructions string    `json:"instructions"` // system prompt
	Messages     []Message `json:"messages"`
}

// Response is the provider's reply. Text may or may not satisfy the
// structured action contract; the reasoning loop decides, never the adapter.
type Response struct {
	Text string `json:"text"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "anthropic", "openai", "mock", etc.
}

// Model is the minimal interface the reasoning loop needs to drive
// generation. Implementations must honor ctx cancellation and deadlines.
type Model interface {
	Generate(ctx context.Context, req Request) (Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Responses are replayed in FIFO order; an optional error can be injected
// at any position in the script.
type MockModel struct {
	mu     sync.Mutex
	info   Info
	script []scripted
	calls  int
}

type scripted struct {
	text string
	err  error
}

// NewMockModel constructs an empty MockModel.
func NewMockModel(name string) *MockModel {
	return &MockModel{info: Info{Name: name, Provider: "mock"}}
}

// AddResponse appends a canned completion to the replay script.
func (m *MockModel) AddResponse(text string) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scripted{text: text})
	return m
}

// AddError appends an injected transport failure to the replay script.
func (m *MockModel) AddError(err error) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scripted{err: err})
	return m
}

// Calls reports how many times Generate has been invoked.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Generate implements Model by replaying the script.
func (m *MockModel) Generate(ctx context.Context, _ Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.script) == 0 {
		return Response{}, fmt.Errorf("mock model script exhausted after %d calls", m.calls)
	}
	next := m.script[0]
	m.script = m.script[1:]
	if next.err != nil {
		return Response{}, next.err
	}
	return Response{Text: next.text}, nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }
