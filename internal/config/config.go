package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends for the local session cache.
const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StorageRedis    = "redis"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Transport implementations for the realtime channel.
const (
	TransportGorilla = "gorilla"
	TransportNhooyr  = "nhooyr"
)

type Config struct {
	Server     ServerConfig
	Connection ConnectionConfig
	Storage    StorageConfig
	Auth       AuthConfig
	Metrics    MetricsConfig
	Logging    LoggingConfig
}

// ServerConfig locates the game server.
type ServerConfig struct {
	APIBaseURL   string // REST base, e.g. http://localhost:8080/api
	WebSocketURL string // realtime endpoint, e.g. ws://localhost:8080/api/ws
}

// ConnectionConfig tunes the connection manager.
type ConnectionConfig struct {
	Transport            string
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration // base of the exponential backoff
	HeartbeatInterval    time.Duration
	ConnectTimeout       time.Duration
	RequestTimeout       time.Duration // REST calls
}

// StorageConfig selects where the session snapshot and tokens are kept.
type StorageConfig struct {
	Backend        string
	Dir            string // file backend
	SQLitePath     string
	DatabaseURL    string // postgres backend
	RedisURL       string
	RedisKeyPrefix string
}

// AuthConfig seeds the token store. Tokens already in storage win over empty values.
type AuthConfig struct {
	AccessToken  string
	RefreshToken string
}

// MetricsConfig controls the optional prometheus listener. Empty Addr disables it.
type MetricsConfig struct {
	Addr string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			APIBaseURL:   getEnv("PVP_API_BASE_URL", "http://localhost:8080/api"),
			WebSocketURL: getEnv("PVP_WS_URL", ""),
		},
		Connection: ConnectionConfig{
			Transport:            strings.ToLower(getEnv("PVP_WS_TRANSPORT", TransportGorilla)),
			MaxReconnectAttempts: getEnvAsInt("PVP_MAX_RECONNECT_ATTEMPTS", 5),
			ReconnectDelay:       getEnvAsDuration("PVP_RECONNECT_DELAY", time.Second),
			HeartbeatInterval:    getEnvAsDuration("PVP_HEARTBEAT_INTERVAL", 30*time.Second),
			ConnectTimeout:       getEnvAsDuration("PVP_CONNECT_TIMEOUT", 10*time.Second),
			RequestTimeout:       getEnvAsDuration("PVP_REQUEST_TIMEOUT", 10*time.Second),
		},
		Storage: StorageConfig{
			Backend:        strings.ToLower(getEnv("PVP_STORAGE", StorageFile)),
			Dir:            getEnv("PVP_STORAGE_DIR", defaultStorageDir()),
			SQLitePath:     getEnv("PVP_SQLITE_PATH", "pvp-session.db"),
			DatabaseURL:    getEnv("DATABASE_URL", ""),
			RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379"),
			RedisKeyPrefix: getEnv("REDIS_KEY_PREFIX", "pvp:"),
		},
		Auth: AuthConfig{
			AccessToken:  getEnv("PVP_AUTH_TOKEN", ""),
			RefreshToken: getEnv("PVP_REFRESH_TOKEN", ""),
		},
		Metrics: MetricsConfig{
			Addr: getEnv("PVP_METRICS_ADDR", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	// Derive the websocket URL from the API base if not explicitly provided
	if cfg.Server.WebSocketURL == "" {
		wsURL, err := DeriveWebSocketURL(cfg.Server.APIBaseURL)
		if err != nil {
			return nil, err
		}
		cfg.Server.WebSocketURL = wsURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the client cannot run with.
func (c *Config) Validate() error {
	if c.Server.APIBaseURL == "" {
		return fmt.Errorf("PVP_API_BASE_URL is required")
	}
	if c.Connection.MaxReconnectAttempts < 0 {
		return fmt.Errorf("PVP_MAX_RECONNECT_ATTEMPTS must not be negative")
	}
	if c.Connection.ReconnectDelay <= 0 {
		return fmt.Errorf("PVP_RECONNECT_DELAY must be positive")
	}
	if c.Connection.HeartbeatInterval <= 0 {
		return fmt.Errorf("PVP_HEARTBEAT_INTERVAL must be positive")
	}
	if c.Connection.ConnectTimeout <= 0 {
		return fmt.Errorf("PVP_CONNECT_TIMEOUT must be positive")
	}
	switch c.Connection.Transport {
	case TransportGorilla, TransportNhooyr:
	default:
		return fmt.Errorf("unknown PVP_WS_TRANSPORT %q", c.Connection.Transport)
	}
	switch c.Storage.Backend {
	case StorageMemory, StorageFile, StorageRedis, StorageSQLite:
	case StoragePostgres:
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres storage backend")
		}
	default:
		return fmt.Errorf("unknown PVP_STORAGE %q", c.Storage.Backend)
	}
	return nil
}

// DeriveWebSocketURL turns http(s)://host/api into ws(s)://host/api/ws.
func DeriveWebSocketURL(apiBaseURL string) (string, error) {
	u, err := url.Parse(apiBaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid PVP_API_BASE_URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported PVP_API_BASE_URL scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

func defaultStorageDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + string(os.PathSeparator) + "gomoku-pvp"
	}
	return ".gomoku-pvp"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("1500ms") or a bare number of milliseconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
