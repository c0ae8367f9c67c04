package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/m0rjc/gomoku-pvp-client/internal/api"
	"github.com/m0rjc/gomoku-pvp-client/internal/sessioncache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

type refreshServer struct {
	calls  atomic.Int32
	status int
	reply  TokenResponse
	got    atomic.Value
}

func newRefreshServer(t *testing.T, status int, reply TokenResponse) (*refreshServer, *HTTPRefresher) {
	t.Helper()
	rs := &refreshServer{status: status, reply: reply}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.calls.Add(1)
		assert.Equal(t, "/api/auth/refresh", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		var body refreshRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		rs.got.Store(body.RefreshToken)
		w.WriteHeader(rs.status)
		_ = json.NewEncoder(w).Encode(rs.reply)
	}))
	t.Cleanup(server.Close)
	return rs, NewHTTPRefresher(api.NewClient(server.URL+"/api", nil, nil, time.Second))
}

func TestTokenReturnsStoredToken(t *testing.T) {
	ctx := context.Background()
	storage := sessioncache.NewMemoryStorage()
	svc := NewService(storage, nil)

	token, err := svc.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, token, "no credentials yet")

	valid := signedToken(t, time.Now().Add(time.Hour))
	require.NoError(t, svc.SetTokens(ctx, valid, "refresh-1"))
	token, err = svc.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, valid, token)

	require.NoError(t, svc.SetTokens(ctx, "opaque-token", ""))
	token, err = svc.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "opaque-token", token, "tokens that are not JWTs are used as-is")
	_, ok, _ := storage.Get(ctx, KeyRefreshToken)
	assert.False(t, ok, "empty refresh token removes the stored one")
}

func TestTokenRefreshesExpiredJWT(t *testing.T) {
	ctx := context.Background()
	rs, refresher := newRefreshServer(t, http.StatusOK, TokenResponse{
		Success: true, AccessToken: "new-access", RefreshToken: "refresh-2",
	})
	storage := sessioncache.NewMemoryStorage()
	svc := NewService(storage, refresher)

	require.NoError(t, svc.SetTokens(ctx, signedToken(t, time.Now().Add(time.Minute)), "refresh-1"))

	token, err := svc.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new-access", token)
	assert.Equal(t, int32(1), rs.calls.Load())
	assert.Equal(t, "refresh-1", rs.got.Load())

	stored, _, _ := storage.Get(ctx, KeyRefreshToken)
	assert.Equal(t, "refresh-2", stored, "rotated refresh token is stored")
}

func TestRefreshKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	ctx := context.Background()
	_, refresher := newRefreshServer(t, http.StatusOK, TokenResponse{Success: true, AccessToken: "new-access"})
	storage := sessioncache.NewMemoryStorage()
	svc := NewService(storage, refresher)
	require.NoError(t, svc.SetTokens(ctx, "old", "refresh-1"))

	_, err := svc.Refresh(ctx)
	require.NoError(t, err)
	stored, _, _ := storage.Get(ctx, KeyRefreshToken)
	assert.Equal(t, "refresh-1", stored)
}

func TestRefreshRevoked(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			ctx := context.Background()
			_, refresher := newRefreshServer(t, status, TokenResponse{Message: "invalid refresh token"})
			storage := sessioncache.NewMemoryStorage()
			svc := NewService(storage, refresher)
			require.NoError(t, svc.SetTokens(ctx, "old", "refresh-1"))

			_, err := svc.Refresh(ctx)
			assert.ErrorIs(t, err, ErrTokenRevoked)

			_, ok, _ := storage.Get(ctx, KeyAuthToken)
			assert.False(t, ok, "tokens are cleared")
			_, ok, _ = storage.Get(ctx, KeyRefreshToken)
			assert.False(t, ok)
		})
	}
}

func TestRefreshUnsuccessfulBodyIsRevoked(t *testing.T) {
	ctx := context.Background()
	_, refresher := newRefreshServer(t, http.StatusOK, TokenResponse{Success: false, Message: "expired"})
	svc := NewService(sessioncache.NewMemoryStorage(), refresher)
	require.NoError(t, svc.SetTokens(ctx, "old", "refresh-1"))

	_, err := svc.Refresh(ctx)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestRefreshTemporaryFailure(t *testing.T) {
	ctx := context.Background()
	_, refresher := newRefreshServer(t, http.StatusBadGateway, TokenResponse{})
	storage := sessioncache.NewMemoryStorage()
	svc := NewService(storage, refresher)
	require.NoError(t, svc.SetTokens(ctx, "old", "refresh-1"))

	_, err := svc.Refresh(ctx)
	assert.ErrorIs(t, err, ErrTokenRefreshFailed)

	stored, ok, _ := storage.Get(ctx, KeyAuthToken)
	assert.True(t, ok, "tokens survive a temporary failure")
	assert.Equal(t, "old", stored)
}

func TestRefreshWithoutRefreshToken(t *testing.T) {
	ctx := context.Background()
	rs, refresher := newRefreshServer(t, http.StatusOK, TokenResponse{Success: true, AccessToken: "x"})
	svc := NewService(sessioncache.NewMemoryStorage(), refresher)
	require.NoError(t, svc.SetTokens(ctx, "old", ""))

	_, err := svc.Refresh(ctx)
	assert.ErrorIs(t, err, ErrTokenRefreshFailed)
	assert.Zero(t, rs.calls.Load())
}

type failingStorage struct{ sessioncache.Storage }

func (failingStorage) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("disk gone")
}

func TestTokenStorageError(t *testing.T) {
	svc := NewService(failingStorage{sessioncache.NewMemoryStorage()}, nil)
	_, err := svc.Token(context.Background())
	assert.ErrorContains(t, err, "disk gone")
}

func TestServiceBacksAPIClient(t *testing.T) {
	ctx := context.Background()
	_, refresher := newRefreshServer(t, http.StatusOK, TokenResponse{Success: true, AccessToken: "fresh"})
	svc := NewService(sessioncache.NewMemoryStorage(), refresher)
	require.NoError(t, svc.SetTokens(ctx, "stale", "refresh-1"))

	rooms := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"rooms":[]}`))
	}))
	defer rooms.Close()

	client := api.NewClient(rooms.URL, svc, nil, time.Second)
	_, err := client.ListRooms(ctx)
	require.NoError(t, err)

	token, err := svc.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fresh", token)
}
