package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxResponseBodySize = 1 << 20 // 1MB

// connection pooling limits; the bridge talks to exactly two hosts
const (
	defaultMaxIdleConns        = 10
	defaultMaxIdleConnsPerHost = 2
	defaultMaxConnsPerHost     = 2
	defaultIdleConnTimeout     = 60 * time.Second
)

// Response holds the result of an HTTP request made by [Client].
type Response struct {
	// Body contains the HTTP response body, limited to 1MB.
	Body []byte

	// StatusCode is the HTTP status code.
	// Zero if the request failed before receiving a response.
	StatusCode int

	// Latency is the total time taken for the request.
	Latency time.Duration

	// Error contains any error that occurred during the request, including
	// a non-2xx status code.
	Error error
}

// Client is an HTTP client wrapper for the two JSON POST calls of a cycle.
//
// Client uses per-request timeouts via context rather than a global timeout.
// Response bodies are limited to 1MB.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// NewClient creates a new [Client]. userAgent is sent with every request
// when non-empty.
func NewClient(userAgent string) *Client {
	return &Client{
		httpClient: &http.Client{
			// no default timeout - we use per-request timeouts via context
			Transport: &http.Transport{
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
		userAgent: userAgent,
	}
}

// PostJSON marshals payload as JSON, POSTs it to url and returns a
// structured [Response].
//
// PostJSON always returns a Response; errors are captured in the Error field.
// A response with a status outside 2xx is reported as an error, with the
// body still captured for diagnostics.
func (c *Client) PostJSON(ctx context.Context, url string, payload any, timeout time.Duration) Response {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	body, err := json.Marshal(payload)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("failed to encode request: %w", err),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("failed to create request: %w", err),
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("request failed: %w", err),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return Response{
			StatusCode: resp.StatusCode,
			Latency:    time.Since(start),
			Error:      fmt.Errorf("failed to read response body: %w", err),
		}
	}

	result := Response{
		Body:       respBody,
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result.Error = fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return result
}

// FetchFunc returns a [FetchFunc] that queries the history metrics endpoint
// at url with the {"fields": [...]} request shape.
func (c *Client) FetchFunc(url string, timeout time.Duration) FetchFunc {
	return func(ctx context.Context, metrics []string) ([]MetricValue, error) {
		resp := c.PostJSON(ctx, url, metricsRequest{Fields: metrics}, timeout)
		if resp.Error != nil {
			return nil, resp.Error
		}

		var values []MetricValue
		if err := json.Unmarshal(resp.Body, &values); err != nil {
			return nil, fmt.Errorf("failed to decode metrics response: %w", err)
		}
		return values, nil
	}
}

// SubmitFunc returns a [SubmitFunc] that POSTs payloads to url and returns
// the raw response body.
func (c *Client) SubmitFunc(url string, timeout time.Duration) SubmitFunc {
	return func(ctx context.Context, payload map[string]any) ([]byte, error) {
		resp := c.PostJSON(ctx, url, payload, timeout)
		if resp.Error != nil {
			return resp.Body, resp.Error
		}
		return resp.Body, nil
	}
}

// Close closes all idle connections in the client's connection pool.
// Safe to call multiple times and on a nil client.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

type metricsRequest struct {
	Fields []string `json:"fields"`
}
