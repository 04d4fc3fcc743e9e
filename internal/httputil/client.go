package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// =============================================================================
// Vendor Client
// =============================================================================

// Authorizer attaches credentials to outbound requests. Refresh is called once
// after a 401 so token-based vendors can log in again.
type Authorizer interface {
	Authorize(ctx context.Context, req *http.Request) error
	Refresh(ctx context.Context) error
}

// AuthorizerFunc adapts a static header setter; Refresh is a no-op.
type AuthorizerFunc func(req *http.Request)

func (f AuthorizerFunc) Authorize(_ context.Context, req *http.Request) error {
	f(req)
	return nil
}

func (f AuthorizerFunc) Refresh(context.Context) error { return nil }

// Bearer returns an authorizer that sends a static bearer token.
func Bearer(token string) Authorizer {
	return AuthorizerFunc(func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	})
}

// Basic returns an authorizer that sends HTTP basic credentials.
func Basic(user, password string) Authorizer {
	return AuthorizerFunc(func(req *http.Request) {
		req.SetBasicAuth(user, password)
	})
}

// ObserveFunc receives one call per completed attempt.
type ObserveFunc func(provider, status string, duration time.Duration)

// Client calls a third-party JSON API.
type Client struct {
	provider   string
	httpClient *http.Client
	baseURL    string
	auth       Authorizer
	maxRetries int
	backoff    time.Duration
	observe    ObserveFunc
}

// ClientConfig configures the vendor client.
type ClientConfig struct {
	Provider   string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	Auth       Authorizer
	HTTPClient *http.Client
	Observe    ObserveFunc
}

// NewClient creates a vendor client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 1
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	backoff := cfg.Backoff
	if backoff == 0 {
		backoff = 200 * time.Millisecond
	}

	return &Client{
		provider:   cfg.Provider,
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		auth:       cfg.Auth,
		maxRetries: maxRetries,
		backoff:    backoff,
		observe:    cfg.Observe,
	}
}

// Provider returns the vendor name used in errors and metrics.
func (c *Client) Provider() string {
	return c.provider
}

type retryKey struct{}

// AllowRetry marks requests made with ctx as safe to repeat. Without it only
// GET, HEAD and OPTIONS are retried, since a gateway error on a POST does not
// mean the vendor did nothing.
func AllowRetry(ctx context.Context) context.Context {
	return context.WithValue(ctx, retryKey{}, true)
}

func retryable(ctx context.Context, method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	allowed, _ := ctx.Value(retryKey{}).(bool)
	return allowed
}

// Do executes a request. Auth failures trigger one credential refresh; 502,
// 503 and 504 responses are retried with a fixed backoff when the request is
// safe to repeat.
func (c *Client) Do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}
	return c.doWithRetry(ctx, method, path, payload, body != nil, 0, false)
}

func (c *Client) doWithRetry(ctx context.Context, method, path string, payload []byte, hasBody bool, attempt int, refreshed bool) (*http.Response, error) {
	url := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		url = c.baseURL + path
	}

	var bodyReader io.Reader
	if hasBody {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if c.auth != nil {
		if err := c.auth.Authorize(ctx, req); err != nil {
			return nil, fmt.Errorf("authorize request: %w", err)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record("error", start)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	c.record(fmt.Sprintf("%d", resp.StatusCode), start)

	if resp.StatusCode == http.StatusUnauthorized && c.auth != nil && !refreshed {
		resp.Body.Close()
		if err := c.auth.Refresh(ctx); err != nil {
			return nil, fmt.Errorf("refresh credentials: %w", err)
		}
		return c.doWithRetry(ctx, method, path, payload, hasBody, attempt, true)
	}

	if isRetryableStatus(resp.StatusCode) && attempt < c.maxRetries && retryable(ctx, method) {
		resp.Body.Close()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.backoff):
		}
		return c.doWithRetry(ctx, method, path, payload, hasBody, attempt+1, refreshed)
	}

	return resp, nil
}

func (c *Client) record(status string, start time.Time) {
	if c.observe != nil {
		c.observe(c.provider, status, time.Since(start))
	}
}

func isRetryableStatus(code int) bool {
	return code == http.StatusBadGateway || code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout
}

// DoJSON executes a request and decodes the JSON response into out.
func (c *Client) DoJSON(ctx context.Context, method, path string, body, out interface{}) error {
	resp, err := c.Do(ctx, method, path, body)
	if err != nil {
		return err
	}
	return DecodeResponse(resp, out)
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with JSON body.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*http.Response, error) {
	return c.Do(ctx, http.MethodPost, path, body)
}

// StatusError is returned by DecodeResponse for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Body)
}

// DecodeResponse decodes a JSON response into the target struct.
func DecodeResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, truncated, err := ReadAllWithLimit(resp.Body, 64<<10)
		if err != nil {
			return fmt.Errorf("read error response body: %w", err)
		}
		msg := strings.TrimSpace(string(body))
		if truncated {
			msg += "...(truncated)"
		}
		return &StatusError{StatusCode: resp.StatusCode, Body: msg}
	}

	if target == nil {
		if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, 8<<20)); err != nil {
			return fmt.Errorf("discard response body: %w", err)
		}
		return nil
	}

	body, err := ReadAllStrict(resp.Body, 8<<20)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
