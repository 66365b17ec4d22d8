package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/makeasinger/lipsync/internal/logger"
)

// APIError is returned when a provider answers with a non-2xx status
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 2000 {
		body = body[:2000] + "..."
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, body)
}

// providerClient is the JSON-over-HTTP plumbing shared by the renderer clients
type providerClient struct {
	name       string
	httpClient *http.Client
	baseURL    string
	authHeader string
	authValue  string
	log        *logger.Logger
}

// post sends a POST request with JSON body and parses the JSON response
func (c *providerClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	return c.send(ctx, endpoint, body, result, nil)
}

// postWithHeaders sends a POST request and hands the response headers to onHeaders
func (c *providerClient) postWithHeaders(ctx context.Context, endpoint string, body interface{}, onHeaders func(http.Header)) error {
	return c.send(ctx, endpoint, body, nil, onHeaders)
}

func (c *providerClient) send(ctx context.Context, endpoint string, body interface{}, result interface{}, onHeaders func(http.Header)) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result, onHeaders)
}

// doRequest executes an HTTP request and parses the response
func (c *providerClient) doRequest(req *http.Request, result interface{}, onHeaders func(http.Header)) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.authValue != "" {
		req.Header.Set(c.authHeader, c.authValue)
	}

	c.log.Debug("→ provider request", "method", req.Method, "url", req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("✗ provider request failed", "method", req.Method, "url", req.URL.String(), "error", err)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.log.Debug("← provider response", "status", resp.StatusCode, "method", req.Method, "url", req.URL.String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Provider: c.name, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if onHeaders != nil {
		onHeaders(resp.Header)
	}

	if result == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		c.log.Warn("✗ provider response unmarshal failed", "url", req.URL.String(), "error", err)
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

func trimBaseURL(u string) string {
	return strings.TrimRight(strings.TrimSpace(u), "/")
}
