package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API error: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("API error: HTTP %d - %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is an *APIError with the given status code.
func IsStatus(err error, statusCode int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == statusCode
}

// requestConfig holds the configuration for a single API request.
type requestConfig struct {
	path        string
	endpoint    string
	body        []byte
	contentType string
	noAuth      bool
	sensitive   bool
	err         error // option failure, returned before any request is sent
}

// RequestOption defines a functional option for configuring an API Request.
type RequestOption func(*requestConfig)

// WithPath sets the URL path, relative to the client's base URL.
func WithPath(path string) RequestOption {
	return func(c *requestConfig) {
		c.path = path
	}
}

// WithEndpoint names the request for logs and metrics. Defaults to the path.
func WithEndpoint(name string) RequestOption {
	return func(c *requestConfig) {
		c.endpoint = name
	}
}

// WithJSONBody marshals v as the request body.
func WithJSONBody(v any) RequestOption {
	return func(c *requestConfig) {
		data, err := json.Marshal(v)
		if err != nil {
			c.err = fmt.Errorf("failed to marshal request body: %w", err)
			return
		}
		c.body = data
		c.contentType = "application/json"
	}
}

// WithoutAuth sends the request without an Authorization header and
// without the refresh-and-retry on 401.
func WithoutAuth() RequestOption {
	return func(c *requestConfig) {
		c.noAuth = true
	}
}

// WithSensitive redacts the response body in logs.
func WithSensitive() RequestOption {
	return func(c *requestConfig) {
		c.sensitive = true
	}
}

// Response represents a response from the API.
type Response struct {
	StatusCode int
}

// Request performs an HTTP request against the API. A 401 is answered by
// refreshing the token once and retrying once. If target is non-nil and the
// response status is 2xx, the response body is decoded into target.
func (c *Client) Request(ctx context.Context, method string, target any, options ...RequestOption) (*Response, error) {
	config := &requestConfig{}
	for _, option := range options {
		option(config)
	}
	if config.endpoint == "" {
		config.endpoint = config.path
	}
	if config.err != nil {
		slog.Error("api.request.invalid",
			"component", "api",
			"event", "api.request.option_error",
			"endpoint", config.endpoint,
			"error", config.err,
		)
		return nil, config.err
	}

	token := ""
	if c.tokens != nil && !config.noAuth {
		t, err := c.tokens.Token(ctx)
		if err != nil {
			slog.Warn("api.request.no_token",
				"component", "api",
				"event", "api.request.start",
				"endpoint", config.endpoint,
				"error", err,
			)
		}
		token = t
	}

	resp, err := c.do(ctx, method, config, token, target)
	if err == nil || !IsStatus(err, http.StatusUnauthorized) || c.tokens == nil || config.noAuth {
		return resp, err
	}

	slog.Info("api.request.refreshing_token",
		"component", "api",
		"event", "api.request.unauthorized",
		"endpoint", config.endpoint,
	)
	newToken, refreshErr := c.tokens.Refresh(ctx)
	if refreshErr != nil {
		return resp, fmt.Errorf("%w (token refresh failed: %v)", err, refreshErr)
	}
	return c.do(ctx, method, config, newToken, target)
}

func (c *Client) do(ctx context.Context, method string, config *requestConfig, token string, target any) (*Response, error) {
	slog.Debug("api.request",
		"component", "api",
		"event", "api.request.start",
		"endpoint", config.endpoint,
		"method", method,
		"path", config.path,
	)

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + config.path

	var body io.Reader
	if config.body != nil {
		body = bytes.NewReader(config.body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		slog.Error("api.request_creation_failed",
			"component", "api",
			"event", "api.error",
			"endpoint", config.endpoint,
			"error", err,
		)
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if config.contentType != "" {
		req.Header.Set("Content-Type", config.contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		slog.Error("api.request_failed",
			"component", "api",
			"event", "api.error",
			"endpoint", config.endpoint,
			"error", err,
			"duration_ms", duration.Milliseconds(),
		)
		if c.recorder != nil {
			c.recorder.RecordAPILatency(config.endpoint, 0, duration)
		}
		return nil, err
	}
	defer resp.Body.Close()

	if c.recorder != nil {
		c.recorder.RecordAPILatency(config.endpoint, resp.StatusCode, duration)
	}

	apiResponse := &Response{StatusCode: resp.StatusCode}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// We use a LimitReader to avoid reading excessive amounts of data into memory.
		const maxErrorBody = 4096
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		logBody := string(bodyBytes)
		if config.sensitive {
			logBody = "[REDACTED]"
		}
		slog.Warn("api.error_response",
			"component", "api",
			"event", "api.error",
			"endpoint", config.endpoint,
			"status_code", resp.StatusCode,
			"response_body", logBody,
			"duration_ms", duration.Milliseconds(),
		)
		return apiResponse, &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(bodyBytes),
		}
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			slog.Error("api.decode_error",
				"component", "api",
				"event", "api.error",
				"endpoint", config.endpoint,
				"error", err,
			)
			return apiResponse, fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return apiResponse, nil
}

// errorMessage extracts a readable message from an error body of the form
// {"error": "...", "details": "..."} or {"message": "..."}.
func errorMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Details string `json:"details"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return strings.TrimSpace(string(body))
	}

	msg := payload.Error
	if msg == "" {
		msg = payload.Message
	}
	if payload.Details != "" {
		if msg == "" {
			return payload.Details
		}
		return msg + ": " + payload.Details
	}
	return msg
}
