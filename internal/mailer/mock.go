package mailer

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/codedrip/codedrip-server/internal/domain"
)

// Mock is an in-memory Sender for tests and local development.
// It records every accepted item and can be primed to fail.
type Mock struct {
	mu   sync.Mutex
	sent []*domain.EmailQueueItem

	// FailWith, when non-nil, is returned for every Send until cleared.
	FailWith error
	// FailFor fails sends addressed to specific recipients.
	FailFor map[string]error
}

// NewMock creates an empty mock sender.
func NewMock() *Mock {
	return &Mock{FailFor: make(map[string]error)}
}

// Send records the item and returns a fresh provider id.
func (m *Mock) Send(_ context.Context, item *domain.EmailQueueItem) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return "", m.FailWith
	}
	if err, ok := m.FailFor[item.Recipient]; ok {
		return "", err
	}

	copied := *item
	m.sent = append(m.sent, &copied)
	return "mock-" + uuid.NewString(), nil
}

// Close is a no-op.
func (m *Mock) Close() {}

// Sent returns a snapshot of accepted items in send order.
func (m *Mock) Sent() []*domain.EmailQueueItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.EmailQueueItem, len(m.sent))
	copy(out, m.sent)
	return out
}

// SentCount returns how many items were accepted.
func (m *Mock) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// Reset clears recorded sends and failure modes.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
	m.FailWith = nil
	m.FailFor = make(map[string]error)
}
