package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"auction-client/internal/domain"
	"auction-client/pkg/logger"
)

// Client talks to the request-response API. Error responses carrying the
// {message, code, details} envelope are decoded into domain.APIError;
// failures below HTTP (dial, timeout) come back as plain wrapped errors,
// which the retry policy treats as transient.
type Client struct {
	baseURL     string
	http        *http.Client
	tokens      domain.TokenSource
	onAuthError func()
	log         logger.Logger
}

func NewClient(baseURL string, timeout time.Duration, tokens domain.TokenSource, log logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		log:     log,
	}
}

// SetAuthErrorHook installs the callback fired when a non-auth endpoint
// answers 401/403. The session guard uses it to purge the dead session.
func (c *Client) SetAuthErrorHook(fn func()) {
	c.onAuthError = fn
}

type errorEnvelope struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details,omitempty"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.decodeError(resp, method, path)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response for %s %s: %w", method, path, err)
		}
	}
	return nil
}

func (c *Client) decodeError(resp *http.Response, method, path string) error {
	var envelope errorEnvelope
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err := json.Unmarshal(data, &envelope); err != nil {
		envelope.Message = http.StatusText(resp.StatusCode)
	}
	if envelope.Message == "" {
		envelope.Message = http.StatusText(resp.StatusCode)
	}

	apiErr := &domain.APIError{
		Status:  resp.StatusCode,
		Code:    envelope.Code,
		Message: envelope.Message,
		Details: envelope.Details,
	}

	// A 401/403 outside the auth endpoints means the session is dead.
	if (apiErr.Status == 401 || apiErr.Status == 403) && !strings.HasPrefix(path, "/auth/") {
		c.log.Warn("Auth rejection from server", "method", method, "path", path, "status", apiErr.Status)
		if c.onAuthError != nil {
			c.onAuthError()
		}
	}

	return apiErr
}
