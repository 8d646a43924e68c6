package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ubcma/mp-backend/pkg/platform/sentinel"
)

// StripeClient talks to the Stripe payment-intents API directly. The surface
// we consume is two endpoints with form-encoded requests, which does not
// justify a vendored SDK.
type StripeClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewStripeClient(apiKey, baseURL string) *StripeClient {
	return &StripeClient{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *StripeClient) CreateIntent(ctx context.Context, params CreateIntentParams) (Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(params.Amount, 10))
	form.Set("currency", params.Currency)
	form.Set("automatic_payment_methods[enabled]", "true")
	form.Set("receipt_email", params.Customer.Email)
	for key, value := range params.Metadata {
		form.Set("metadata["+key+"]", value)
	}

	var intent Intent
	if err := c.do(ctx, http.MethodPost, "/v1/payment_intents", form, &intent); err != nil {
		return Intent{}, fmt.Errorf("create payment intent: %w", err)
	}
	return intent, nil
}

func (c *StripeClient) RetrieveIntent(ctx context.Context, intentID string) (Intent, error) {
	var intent Intent
	path := "/v1/payment_intents/" + url.PathEscape(intentID)
	if err := c.do(ctx, http.MethodGet, path, nil, &intent); err != nil {
		return Intent{}, fmt.Errorf("retrieve payment intent %s: %w", intentID, err)
	}
	return intent, nil
}

// apiError is the provider's error envelope.
type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *StripeClient) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNotFound {
		// callers branch on missing intents, keep the sentinel visible
		return fmt.Errorf("provider returned 404: %w", sentinel.ErrNotFound)
	}
	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("provider returned %d: %s (%s)",
				resp.StatusCode, apiErr.Error.Message, apiErr.Error.Code)
		}
		return fmt.Errorf("provider returned %d", resp.StatusCode)
	}

	return json.Unmarshal(payload, out)
}
