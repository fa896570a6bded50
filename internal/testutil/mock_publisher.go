package testutil

import (
	"sync"

	"github.com/pocket-telemetry/backend/internal/models"
	"github.com/pocket-telemetry/backend/internal/publish"
	"github.com/pocket-telemetry/backend/internal/storage"
)

// MockPublisher records published results.
type MockPublisher struct {
	Err error

	mu       sync.Mutex
	messages []publish.ResultMessage
	closed   bool
}

// NewMockPublisher creates a publisher that accepts every message.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (p *MockPublisher) PublishResult(msg publish.ResultMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return p.Err
}

func (p *MockPublisher) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// Messages returns the results published so far.
func (p *MockPublisher) Messages() []publish.ResultMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publish.ResultMessage(nil), p.messages...)
}

// Closed reports whether Close was called.
func (p *MockPublisher) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// FailingCredentialStore is a credential slot whose every operation fails.
type FailingCredentialStore struct {
	Err error
}

func (s FailingCredentialStore) Load() (*models.SavedCredentials, error) { return nil, s.Err }
func (s FailingCredentialStore) Save(models.SavedCredentials) error      { return s.Err }
func (s FailingCredentialStore) Clear() error                            { return s.Err }
func (s FailingCredentialStore) Persistent() bool                        { return true }

var _ storage.CredentialStore = FailingCredentialStore{}
var _ publish.Publisher = (*MockPublisher)(nil)
