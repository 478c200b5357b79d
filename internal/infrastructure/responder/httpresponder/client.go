// Package httpresponder provides a responder that delegates to an external HTTP service.
package httpresponder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/unifiedui/livechat-service/internal/core/responder"
)

// ClientConfig holds the configuration for the HTTP responder.
type ClientConfig struct {
	// URL receives a POST with the ReplyRequest as JSON and answers with a Reply.
	URL        string
	APIKey     string
	HTTPClient *http.Client
}

// Client implements responder.Responder over HTTP.
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new HTTP responder client.
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if config.URL == "" {
		return nil, fmt.Errorf("responder URL is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	return &Client{
		url:        config.URL,
		apiKey:     config.APIKey,
		httpClient: httpClient,
	}, nil
}

// GenerateReply posts the request and decodes the reply.
func (c *Client) GenerateReply(ctx context.Context, in *responder.ReplyRequest) (*responder.Reply, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var reply responder.Reply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if err := responder.Validate(&reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// setHeaders sets the required headers for responder requests.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
