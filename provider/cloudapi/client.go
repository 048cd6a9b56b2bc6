// Package cloudapi is a thin client for the WhatsApp Cloud API
// (graph.facebook.com): message sends, template sends, and media
// upload/download, scoped per call to one tenant's credentials.
package cloudapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wa-platform/core/pkg/apperror"
)

const defaultAPIVersion = "v21.0"
const defaultBaseURL = "https://graph.facebook.com"

// Credentials scopes every call to one tenant's Cloud API identity.
type Credentials struct {
	AccessToken   string
	PhoneNumberID string
}

type Client struct {
	HTTP       *http.Client
	BaseURL    string
	APIVersion string
}

func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{HTTP: httpClient, BaseURL: defaultBaseURL, APIVersion: defaultAPIVersion}
}

func (c *Client) version() string {
	if c.APIVersion != "" {
		return c.APIVersion
	}
	return defaultAPIVersion
}

func (c *Client) base() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return defaultBaseURL
}

func (c *Client) messagesURL(creds Credentials) string {
	return fmt.Sprintf("%s/%s/%s/messages", c.base(), c.version(), creds.PhoneNumberID)
}

func (c *Client) mediaURL(creds Credentials) string {
	return fmt.Sprintf("%s/%s/%s/media", c.base(), c.version(), creds.PhoneNumberID)
}

// sendResponse is the Cloud API's common envelope for a successful send.
type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// errorResponse is the Cloud API's common error envelope.
type errorResponse struct {
	Error struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		ErrorData struct {
			Details string `json:"details"`
		} `json:"error_data"`
	} `json:"error"`
}

// do posts payload to the messages endpoint and returns the provider
// message id on success.
func (c *Client) do(ctx context.Context, creds Credentials, payload any) (string, error) {
	respBody, err := c.post(ctx, creds, payload)
	if err != nil {
		return "", err
	}
	var ok sendResponse
	if err := json.Unmarshal(respBody, &ok); err != nil {
		return "", apperror.Internal("cloudapi: unmarshal response", err)
	}
	if len(ok.Messages) == 0 {
		return "", apperror.Provider("cloudapi: empty messages array in response", nil)
	}
	return ok.Messages[0].ID, nil
}

// post sends payload to the messages endpoint and returns the raw
// response body on success, for calls whose response shape isn't the
// standard {messages:[{id}]} envelope (e.g. read receipts).
func (c *Client) post(ctx context.Context, creds Credentials, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperror.Internal("cloudapi: marshal payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.messagesURL(creds), bytes.NewReader(body))
	if err != nil {
		return nil, apperror.Internal("cloudapi: build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, apperror.Transient("cloudapi: request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperror.Transient("cloudapi: read response", err)
	}

	if resp.StatusCode >= 300 {
		var errResp errorResponse
		_ = json.Unmarshal(respBody, &errResp)
		msg := errResp.Error.Message
		if msg == "" {
			msg = string(respBody)
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, apperror.Transient(fmt.Sprintf("cloudapi: %s", msg), nil)
		}
		return nil, apperror.Provider(fmt.Sprintf("cloudapi: %s", msg), nil)
	}
	return respBody, nil
}
