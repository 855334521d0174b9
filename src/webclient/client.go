package webclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxBodyBytes = 8 << 20

// NewDefault returns an HTTP client with sane timeouts.
func NewDefault(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// HTTPError represents a non-success HTTP response.
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// Client issues JSON requests with retry on transient failures.
type Client struct {
	HTTP         *http.Client
	Attempts     int
	InitialDelay time.Duration
	UserAgent    string
}

// New creates a Client around an HTTP client.
func New(httpClient *http.Client, attempts int, initialDelay time.Duration) *Client {
	if httpClient == nil {
		httpClient = NewDefault(0)
	}
	return &Client{
		HTTP:         httpClient,
		Attempts:     attempts,
		InitialDelay: initialDelay,
		UserAgent:    "dao-monitor/1.0",
	}
}

// GetJSON performs a GET and returns the body of a 200 response.
func (c *Client) GetJSON(ctx context.Context, url string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, url, nil)
}

// PostJSON posts an already-encoded JSON body and returns the body of a 200 response.
func (c *Client) PostJSON(ctx context.Context, url string, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, url, body)
}

func (c *Client) do(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	status, body, err := DoWithRetry(ctx, c.Attempts, c.InitialDelay, func() (int, []byte, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return 0, nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.UserAgent != "" {
			req.Header.Set("User-Agent", c.UserAgent)
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			return 0, nil, fmt.Errorf("do request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
		}
		return resp.StatusCode, respBody, nil
	})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &HTTPError{StatusCode: status, Body: body}
	}
	return body, nil
}
