package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/ubcma/mp-backend/pkg/platform/sentinel"
)

// MockClient is a deterministic in-process provider for tests and local
// development. Created intents are retained so RetrieveIntent can serve the
// metadata-fallback path.
type MockClient struct {
	mu      sync.Mutex
	seq     int
	intents map[string]Intent

	// CreateErr, when set, is returned by CreateIntent.
	CreateErr error
}

func NewMockClient() *MockClient {
	return &MockClient{intents: make(map[string]Intent)}
}

func (c *MockClient) CreateIntent(_ context.Context, params CreateIntentParams) (Intent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CreateErr != nil {
		return Intent{}, c.CreateErr
	}

	c.seq++
	meta := make(map[string]string, len(params.Metadata))
	for k, v := range params.Metadata {
		meta[k] = v
	}
	intent := Intent{
		ID:                 fmt.Sprintf("pi_mock_%08d", c.seq),
		ClientSecret:       fmt.Sprintf("pi_mock_%08d_secret", c.seq),
		Amount:             params.Amount,
		Currency:           params.Currency,
		Status:             "requires_payment_method",
		PaymentMethodTypes: []string{"card"},
		Metadata:           meta,
	}
	c.intents[intent.ID] = intent
	return intent, nil
}

func (c *MockClient) RetrieveIntent(_ context.Context, intentID string) (Intent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if intent, ok := c.intents[intentID]; ok {
		return intent, nil
	}
	return Intent{}, sentinel.ErrNotFound
}
