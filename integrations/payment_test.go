package integrations

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentClient_CreateChargeRejectsUnconfiguredProvider(t *testing.T) {
	p := NewPaymentClient(map[string]PaymentGateway{})
	_, err := p.CreateCharge(context.Background(), "stripe", "100", "usd", "c1")
	require.Error(t, err)
}

func TestPaymentClient_CreateChargePostsPayloadAndBearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gw-key", r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "100", body["amount"])
		assert.Equal(t, "c1", body["customer_id"])
		_, _ = w.Write([]byte(`{"id":"ch_1","status":"succeeded"}`))
	}))
	defer server.Close()

	p := NewPaymentClient(map[string]PaymentGateway{
		"stripe": {ChargeURL: server.URL, APIKey: "gw-key"},
	})
	result, err := p.CreateCharge(context.Background(), "stripe", "100", "usd", "c1")
	require.NoError(t, err)
	assert.Equal(t, "succeeded", result["status"])
}

func TestPaymentClient_CreateChargeReturnsErrorOnNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":"card_declined"}`))
	}))
	defer server.Close()

	p := NewPaymentClient(map[string]PaymentGateway{
		"stripe": {ChargeURL: server.URL},
	})
	_, err := p.CreateCharge(context.Background(), "stripe", "100", "usd", "c1")
	require.Error(t, err)
}
