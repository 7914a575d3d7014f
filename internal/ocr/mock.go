package ocr

import (
	"context"
	"fmt"
	"sync"
)

// MockProvider returns canned text per strategy, for tests.
type MockProvider struct {
	mu sync.Mutex

	// ByStrategy maps a strategy to its output. Missing entries fall back
	// to Text.
	ByStrategy map[Strategy]string
	Text       string
	Err        error

	calls []Strategy
}

func (m *MockProvider) Name() string {
	return "mock"
}

// Extract returns the configured text for the strategy.
func (m *MockProvider) Extract(ctx context.Context, imagePath string, strategy Strategy) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, strategy)
	m.mu.Unlock()

	if m.Err != nil {
		return "", m.Err
	}
	if text, ok := m.ByStrategy[strategy]; ok {
		return text, nil
	}
	if m.Text != "" {
		return m.Text, nil
	}
	return "", fmt.Errorf("no mock text for strategy %s", strategy)
}

// Calls returns the strategies requested so far, in order.
func (m *MockProvider) Calls() []Strategy {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Strategy, len(m.calls))
	copy(out, m.calls)
	return out
}

var _ Provider = (*MockProvider)(nil)
