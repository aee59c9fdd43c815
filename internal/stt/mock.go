package stt

import (
	"context"
	"sync"
)

// MockProvider returns a fixed transcript or error. Safe for concurrent use.
type MockProvider struct {
	Text  string
	Err   error
	Unset bool // report unconfigured

	mu    sync.Mutex
	calls int
}

func (m *MockProvider) Name() string     { return "mock" }
func (m *MockProvider) Configured() bool { return !m.Unset }

func (m *MockProvider) Transcribe(ctx context.Context, _ string) (string, error) {
	m.mu.Lock()
	m.calls++
	text, err := m.Text, m.Err
	m.mu.Unlock()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

// SetResult replaces the canned transcript and error.
func (m *MockProvider) SetResult(text string, err error) {
	m.mu.Lock()
	m.Text, m.Err = text, err
	m.mu.Unlock()
}

// CallCount reports how many times Transcribe ran.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
