package integrations

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommerceClient_LookupRejectsUnconfiguredPlatform(t *testing.T) {
	c := NewCommerceClient(map[string]CommerceStore{})
	_, err := c.Lookup(context.Background(), "shopify", "orders", "q")
	require.Error(t, err)
}

func TestCommerceClient_LookupShopifySendsAccessTokenHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "shop-token", r.Header.Get("X-Shopify-Access-Token"))
		assert.Contains(t, r.URL.Path, "/admin/api/2024-01/orders.json")
		_, _ = w.Write([]byte(`{"orders":[]}`))
	}))
	defer server.Close()

	c := NewCommerceClient(map[string]CommerceStore{
		"shopify": {BaseURL: server.URL, Password: "shop-token"},
	})
	result, err := c.Lookup(context.Background(), "shopify", "orders", "email:a@b.com")
	require.NoError(t, err)
	require.NotNil(t, result)
}

func TestCommerceClient_LookupWooCommerceUsesBasicAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)
		_, _ = w.Write([]byte(`{"id":1}`))
	}))
	defer server.Close()

	c := NewCommerceClient(map[string]CommerceStore{
		"woocommerce": {BaseURL: server.URL, APIKey: "key", Password: "secret"},
	})
	result, err := c.Lookup(context.Background(), "woocommerce", "products", "mug")
	require.NoError(t, err)
	require.NotNil(t, result)
}

func TestCommerceClient_LookupReturnsNilOnNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := NewCommerceClient(map[string]CommerceStore{
		"shopify": {BaseURL: server.URL},
	})
	result, err := c.Lookup(context.Background(), "shopify", "orders", "missing")
	require.NoError(t, err)
	assert.Nil(t, result)
}
