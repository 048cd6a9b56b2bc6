// Package integrations provides the concrete, tenant-agnostic
// implementations of the interpreter's external-system interfaces: the
// api node's generic HTTP call, the sql node's scoped query, Google
// Sheets/Drive lookups, and the payment/commerce passthroughs.
//
// None of these concerns have a dedicated third-party SDK in the
// dependency corpus this module was built from — the closest precedent
// (a Drive integration in one of the sibling example repos) itself talks
// to the Drive v3 REST API over plain net/http rather than a generated
// client, so that is the pattern followed here throughout.
package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// HTTPClient implements interpreter.HTTPClient over net/http. It is the
// api and send_external nodes' only integration point and therefore has
// no tenant scoping of its own — flows that need per-tenant credentials
// pass them via cfg.Headers, interpolated from session variables.
type HTTPClient struct {
	Client *http.Client
	Log    *logrus.Entry
}

func NewHTTPClient(log *logrus.Entry) *HTTPClient {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &HTTPClient{
		Client: &http.Client{Timeout: 20 * time.Second},
		Log:    log,
	}
}

func (c *HTTPClient) Do(ctx context.Context, method, url string, headers map[string]string, body string) (int, map[string]any, error) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("integrations: build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Content-Type") == "" && body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("integrations: %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("integrations: read response: %w", err)
	}

	result := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &result); err != nil {
			// Not every integration returns JSON; surface the raw body
			// under a fixed key rather than failing the node.
			result = map[string]any{"raw": string(raw)}
		}
	}
	c.Log.WithFields(logrus.Fields{"method": method, "url": url, "status": resp.StatusCode}).Debug("integrations: http call")
	return resp.StatusCode, result, nil
}
