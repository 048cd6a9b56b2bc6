package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// CommerceClient implements interpreter.CommerceClient for the shopify
// and woocommerce nodes. Both platforms expose a REST Admin API; rather
// than pull in two separate platform SDKs for a single read-only lookup
// operation, each store is registered with its base URL and credential
// and queried directly.
type CommerceClient struct {
	Client *http.Client
	Stores map[string]CommerceStore // keyed by "platform:query-prefix" is not required; keyed by platform
}

// CommerceStore holds one platform's storefront credentials, shared by
// every tenant.
type CommerceStore struct {
	BaseURL  string
	APIKey   string
	Password string // woocommerce consumer secret, or shopify access token
}

func NewCommerceClient(stores map[string]CommerceStore) *CommerceClient {
	return &CommerceClient{
		Client: &http.Client{Timeout: 15 * time.Second},
		Stores: stores,
	}
}

func (c *CommerceClient) Lookup(ctx context.Context, platform, operation, query string) (map[string]any, error) {
	store, ok := c.Stores[platform]
	if !ok {
		return nil, fmt.Errorf("integrations: commerce platform %q is not configured", platform)
	}
	switch platform {
	case "shopify":
		return c.lookupShopify(ctx, store, operation, query)
	case "woocommerce":
		return c.lookupWooCommerce(ctx, store, operation, query)
	default:
		return nil, fmt.Errorf("integrations: unsupported commerce platform %q", platform)
	}
}

func (c *CommerceClient) lookupShopify(ctx context.Context, store CommerceStore, operation, query string) (map[string]any, error) {
	reqURL := fmt.Sprintf("%s/admin/api/2024-01/%s.json?%s", store.BaseURL, operation, url.Values{"query": {query}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Shopify-Access-Token", store.Password)
	return c.doJSON(req)
}

func (c *CommerceClient) lookupWooCommerce(ctx context.Context, store CommerceStore, operation, query string) (map[string]any, error) {
	reqURL := fmt.Sprintf("%s/wp-json/wc/v3/%s?%s", store.BaseURL, operation, url.Values{"search": {query}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(store.APIKey, store.Password)
	return c.doJSON(req)
}

func (c *CommerceClient) doJSON(req *http.Request) (map[string]any, error) {
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("integrations: commerce lookup: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("integrations: decode commerce response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("integrations: commerce lookup returned %d", resp.StatusCode)
	}
	return result, nil
}
