// Package upstream is the HTTP client for the shared completion backend.
// The gateway forwards an admitted request body and relays the backend's
// response without interpreting it beyond transport success.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pollenlabs/nectar-gateway/services"
	"go.uber.org/zap"
)

// CompletionRequest is the payload forwarded to the completion backend
type CompletionRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// Config holds completion backend connection settings
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client calls the completion backend
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new completion backend Client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Complete forwards one completion request and returns the raw response
// body. The backend's JSON is passed through untouched so response-format
// changes upstream never require a gateway release.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("completion backend unreachable",
			zap.String("model", req.Model),
			zap.Error(err))
		return nil, services.ErrUpstreamUnavailable
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read completion response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("completion backend returned error",
			zap.String("model", req.Model),
			zap.Int("status", resp.StatusCode))
		return nil, services.ErrUpstreamUnavailable
	}

	return json.RawMessage(respBody), nil
}
