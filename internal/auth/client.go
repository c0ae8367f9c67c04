package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/m0rjc/gomoku-pvp-client/internal/api"
)

// ErrAccessRevoked is returned by a Refresher when the server rejects the refresh token.
var ErrAccessRevoked = errors.New("refresh token rejected")

// TokenResponse is the answer to POST /auth/refresh.
type TokenResponse struct {
	Success      bool   `json:"success"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Message      string `json:"message,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// HTTPRefresher calls the server's refresh endpoint.
type HTTPRefresher struct {
	client *api.Client
}

// NewHTTPRefresher refreshes through client, which must not itself use this
// service as its token provider.
func NewHTTPRefresher(client *api.Client) *HTTPRefresher {
	return &HTTPRefresher{client: client}
}

func (r *HTTPRefresher) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	var resp TokenResponse
	_, err := r.client.Request(ctx, http.MethodPost, &resp,
		api.WithPath("/auth/refresh"),
		api.WithEndpoint("auth.refresh"),
		api.WithJSONBody(refreshRequest{RefreshToken: refreshToken}),
		api.WithoutAuth(),
		api.WithSensitive(),
	)
	if err != nil {
		if api.IsStatus(err, http.StatusUnauthorized) || api.IsStatus(err, http.StatusForbidden) {
			return nil, fmt.Errorf("%w: %v", ErrAccessRevoked, err)
		}
		return nil, fmt.Errorf("token refresh request failed: %w", err)
	}

	if !resp.Success || resp.AccessToken == "" {
		return nil, fmt.Errorf("%w: %s", ErrAccessRevoked, resp.Message)
	}
	return &resp, nil
}
