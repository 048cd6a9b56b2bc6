package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// PaymentClient implements interpreter.PaymentClient as a thin, per-
// provider webhook-style POST: each provider is registered with its own
// charge-creation endpoint and bearer credential, since payment gateways
// (Stripe, Mercado Pago, local PSPs) don't share a wire format and no
// single SDK in the dependency corpus covers more than one of them.
type PaymentClient struct {
	Client   *http.Client
	Gateways map[string]PaymentGateway
}

// PaymentGateway is one provider's charge-creation endpoint.
type PaymentGateway struct {
	ChargeURL string
	APIKey    string
}

func NewPaymentClient(gateways map[string]PaymentGateway) *PaymentClient {
	return &PaymentClient{
		Client:   &http.Client{Timeout: 20 * time.Second},
		Gateways: gateways,
	}
}

func (p *PaymentClient) CreateCharge(ctx context.Context, provider, amount, currency, contactID string) (map[string]any, error) {
	gw, ok := p.Gateways[provider]
	if !ok {
		return nil, fmt.Errorf("integrations: payment provider %q is not configured", provider)
	}

	payload, err := json.Marshal(map[string]string{
		"amount":      amount,
		"currency":    currency,
		"customer_id": contactID,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, gw.ChargeURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+gw.APIKey)

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("integrations: create charge via %s: %w", provider, err)
	}
	defer resp.Body.Close()

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("integrations: decode charge response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return result, fmt.Errorf("integrations: %s charge returned %d", provider, resp.StatusCode)
	}
	return result, nil
}
