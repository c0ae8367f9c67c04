package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/m0rjc/gomoku-pvp-client/internal/sessioncache"
)

// Storage keys for the credential pair.
const (
	KeyAuthToken    = "auth_token"
	KeyRefreshToken = "refresh_token"
)

// Tokens expiring within this window are refreshed before use.
const refreshSkew = 5 * time.Minute

// Errors returned by the auth service
var (
	ErrTokenRevoked       = errors.New("access revoked by server")
	ErrTokenRefreshFailed = errors.New("temporary failure refreshing token")
)

// Refresher exchanges a refresh token for a new credential pair.
type Refresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error)
}

// Service keeps the bearer token used by the REST client and the realtime
// connection, refreshing it when it has expired or was rejected.
type Service struct {
	storage   sessioncache.Storage
	refresher Refresher
	now       func() time.Time

	// mu serialises refreshes so concurrent 401s spend the refresh token once
	mu sync.Mutex
}

// NewService creates a token service over storage. refresher may be nil, in
// which case tokens are never refreshed.
func NewService(storage sessioncache.Storage, refresher Refresher) *Service {
	return &Service{
		storage:   storage,
		refresher: refresher,
		now:       time.Now,
	}
}

// Token returns the stored access token. An expired token is refreshed first
// when a refresh token is available. An empty string means no credentials.
func (s *Service) Token(ctx context.Context) (string, error) {
	token, err := s.get(ctx, KeyAuthToken)
	if err != nil || token == "" {
		return "", err
	}
	if !s.expired(token) {
		return token, nil
	}

	slog.Debug("auth.token_expired",
		"component", "auth",
		"event", "token.expired",
	)
	refreshed, err := s.Refresh(ctx)
	if err != nil {
		return "", err
	}
	return refreshed, nil
}

// Refresh replaces the credential pair using the stored refresh token.
// A rejected refresh token clears both tokens and returns ErrTokenRevoked.
func (s *Service) Refresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	refreshToken, err := s.get(ctx, KeyRefreshToken)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenRefreshFailed, err)
	}
	if refreshToken == "" || s.refresher == nil {
		slog.Error("auth.no_refresh_token",
			"component", "auth",
			"event", "token.refresh_error",
		)
		return "", ErrTokenRefreshFailed
	}

	resp, err := s.refresher.RefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrAccessRevoked) {
			slog.Warn("auth.revoked",
				"component", "auth",
				"event", "token.revoked",
			)
			if clearErr := s.Clear(ctx); clearErr != nil {
				slog.Error("auth.revoke_cleanup_failed",
					"component", "auth",
					"event", "token.revoke_error",
					"error", clearErr,
				)
			}
			return "", ErrTokenRevoked
		}

		// Temporary error (network, server issue, etc.)
		slog.Error("auth.refresh_failed",
			"component", "auth",
			"event", "token.refresh_error",
			"error", err,
		)
		return "", ErrTokenRefreshFailed
	}

	newRefresh := resp.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}
	if err := s.SetTokens(ctx, resp.AccessToken, newRefresh); err != nil {
		slog.Error("auth.store_failed",
			"component", "auth",
			"event", "token.update_error",
			"error", err,
		)
		return "", ErrTokenRefreshFailed
	}

	slog.Info("auth.refreshed",
		"component", "auth",
		"event", "token.refreshed",
	)
	return resp.AccessToken, nil
}

// SetTokens stores a credential pair. An empty refresh token removes the stored one.
func (s *Service) SetTokens(ctx context.Context, accessToken, refreshToken string) error {
	if err := s.storage.Set(ctx, KeyAuthToken, accessToken); err != nil {
		return fmt.Errorf("failed to store access token: %w", err)
	}
	if refreshToken == "" {
		return s.storage.Delete(ctx, KeyRefreshToken)
	}
	if err := s.storage.Set(ctx, KeyRefreshToken, refreshToken); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

// Clear removes both tokens.
func (s *Service) Clear(ctx context.Context) error {
	return errors.Join(
		s.storage.Delete(ctx, KeyAuthToken),
		s.storage.Delete(ctx, KeyRefreshToken),
	)
}

func (s *Service) get(ctx context.Context, key string) (string, error) {
	v, ok, err := s.storage.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !ok {
		return "", nil
	}
	return v, nil
}

// expired reports whether token is a JWT whose exp claim falls within the
// refresh window. Opaque tokens and tokens without exp never expire here;
// the server's 401 drives their refresh instead.
func (s *Service) expired(token string) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !s.now().Add(refreshSkew).Before(claims.ExpiresAt.Time)
}
