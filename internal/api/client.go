package api

import (
	"context"
	"net/http"
	"time"
)

// TokenProvider supplies the bearer token for requests and replaces it
// after the server rejects it.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// LatencyRecorder observes how long each REST call took.
type LatencyRecorder interface {
	RecordAPILatency(endpoint string, statusCode int, latency time.Duration)
}

// Client calls the game server's REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenProvider
	recorder   LatencyRecorder
}

// NewClient creates a client for baseURL (e.g. http://localhost:8080/api).
// tokens and recorder may be nil.
func NewClient(baseURL string, tokens TokenProvider, recorder LatencyRecorder, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:  baseURL,
		tokens:   tokens,
		recorder: recorder,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// BaseURL returns the REST base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}
