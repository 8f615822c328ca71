package adapters

import (
	"context"
	"sync"

	"github.com/dysonhq/dyson/core/domain"
	"github.com/dysonhq/dyson/core/ports"
)

// MockNotifier implements a mocked Notifier recording every summary
type MockNotifier struct {
	mu        sync.Mutex
	happy     bool
	summaries []domain.Summary
}

var _ ports.Notifier = (*MockNotifier)(nil)

// NewMockNotifier initializes the MockNotifier struct, an unhappy notifier fails every delivery
func NewMockNotifier(happy bool) *MockNotifier {
	return &MockNotifier{happy: happy}
}

func (m *MockNotifier) Name() string {
	return "mock"
}

func (m *MockNotifier) Notify(_ context.Context, summary domain.Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries = append(m.summaries, summary)
	if !m.happy {
		return domain.ErrMockError
	}
	return nil
}

func (m *MockNotifier) Summaries() []domain.Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summaries
}
