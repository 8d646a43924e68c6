package provider

import "context"

// Intent is the provider-side charge request. Metadata round-trips through
// the provider so fulfillment can rebuild a lost correlation record.
type Intent struct {
	ID                 string            `json:"id"`
	ClientSecret       string            `json:"client_secret"`
	Amount             int64             `json:"amount"`
	Currency           string            `json:"currency"`
	Status             string            `json:"status"`
	PaymentMethodTypes []string          `json:"payment_method_types"`
	Metadata           map[string]string `json:"metadata"`
}

// PaymentMethod returns the first payment method descriptor, defaulting to
// card the way the provider does.
func (i Intent) PaymentMethod() string {
	if len(i.PaymentMethodTypes) > 0 {
		return i.PaymentMethodTypes[0]
	}
	return "card"
}

// CreateIntentParams carries the server-computed charge. Amount is in minor
// currency units.
type CreateIntentParams struct {
	Amount   int64
	Currency string
	Customer CustomerParams
	Metadata map[string]string
}

// CustomerParams identifies the paying user to the provider.
type CustomerParams struct {
	Email string
	Name  string
}

// Client is the payment provider consumed as a black box: create an intent,
// read it back. Webhook verification lives in the webhook package because it
// never talks to the provider's API.
type Client interface {
	CreateIntent(ctx context.Context, params CreateIntentParams) (Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (Intent, error)
}
