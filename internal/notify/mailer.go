package notify

import (
	"context"
	"sync"
)

// Message is one outbound email. TextBody is optional.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// Mailer is the raw mail transport. The production SES client lives outside
// this repo; the in-memory mailer backs tests and local development.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// InMemoryMailer records sent messages for assertions in tests.
type InMemoryMailer struct {
	mu   sync.Mutex
	sent []Message

	// SendErr, when set, is returned by Send.
	SendErr error
}

func NewInMemoryMailer() *InMemoryMailer {
	return &InMemoryMailer{}
}

func (m *InMemoryMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return m.SendErr
	}
	m.sent = append(m.sent, msg)
	return nil
}

// Sent returns a copy of all messages sent so far.
func (m *InMemoryMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message{}, m.sent...)
}
