package llm

import (
	"context"
	"sync"
)

// MockProvider returns canned replies. With no Text it returns a fixed
// acknowledgement. Safe for concurrent use.
type MockProvider struct {
	Text    string
	Blocked bool
	Err     error
	Unset   bool

	mu         sync.Mutex
	lastPrompt string
}

func (m *MockProvider) Name() string     { return "mock" }
func (m *MockProvider) Configured() bool { return !m.Unset }

func (m *MockProvider) Generate(ctx context.Context, prompt string) (Reply, error) {
	m.mu.Lock()
	m.lastPrompt = prompt
	text, blocked, err := m.Text, m.Blocked, m.Err
	m.mu.Unlock()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return Reply{}, ctxErr
	}
	if err != nil {
		return Reply{}, err
	}
	if blocked {
		return Reply{Blocked: true}, nil
	}
	if text == "" {
		return Reply{Text: "I heard you. Tell me more."}, nil
	}
	return Reply{Text: text}, nil
}

// LastPrompt returns the prompt of the most recent Generate call.
func (m *MockProvider) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPrompt
}

// SetErr replaces the error returned by later Generate calls.
func (m *MockProvider) SetErr(err error) {
	m.mu.Lock()
	m.Err = err
	m.mu.Unlock()
}
