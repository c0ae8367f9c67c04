package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/m0rjc/gomoku-pvp-client/internal/api"
	"github.com/m0rjc/gomoku-pvp-client/internal/auth"
	"github.com/m0rjc/gomoku-pvp-client/internal/config"
	"github.com/m0rjc/gomoku-pvp-client/internal/connection"
	"github.com/m0rjc/gomoku-pvp-client/internal/db"
	"github.com/m0rjc/gomoku-pvp-client/internal/logging"
	"github.com/m0rjc/gomoku-pvp-client/internal/server"
	"github.com/m0rjc/gomoku-pvp-client/internal/session"
	"github.com/m0rjc/gomoku-pvp-client/internal/sessioncache"
	"github.com/urfave/cli/v3"
)

// Rooms are always two-player gomoku.
const maxPlayers = 2

const sessionLockTTL = 30 * time.Second

func main() {
	// A missing .env is normal outside development
	_ = godotenv.Load()

	// Reinstalled from the loaded config once a command runs
	logging.InitLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		slog.Error("pvpclient failed", "error", err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "pvpclient",
		Usage: "play two-player gomoku against another client",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "api", Usage: "REST base URL (overrides PVP_API_BASE_URL)"},
			&cli.StringFlag{Name: "storage", Usage: "session storage backend: memory, file, redis, sqlite or postgres"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "serve /metrics, /health and /ready on this address"},
			&cli.BoolFlag{Name: "debug", Usage: "log at debug level"},
		},
		Commands: []*cli.Command{
			{
				Name:   "rooms",
				Usage:  "list open rooms",
				Action: listRooms,
			},
			{
				Name:  "create",
				Usage: "create a room and wait for an opponent",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "room name", Required: true},
					&cli.StringFlag{Name: "player", Usage: "your display name", Required: true},
				},
				Action: createRoom,
			},
			{
				Name:      "join",
				Usage:     "join an existing room",
				ArgsUsage: "ROOM_ID",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "player", Usage: "your display name", Required: true},
				},
				Action: joinRoom,
			},
			{
				Name:   "resume",
				Usage:  "reconnect to the room saved in session storage",
				Action: resumeRoom,
			},
			{
				Name:  "logout",
				Usage: "forget stored tokens and the saved session",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withApp(ctx, cmd, func(ctx context.Context, a *app) error {
						return errors.Join(a.auth.Clear(ctx), a.cache.Clear(ctx))
					})
				},
			},
		},
	}
}

func listRooms(ctx context.Context, cmd *cli.Command) error {
	return withApp(ctx, cmd, func(ctx context.Context, a *app) error {
		rooms, err := a.store.FetchRooms(ctx)
		if err != nil {
			return err
		}
		if len(rooms) == 0 {
			fmt.Println("no rooms")
		}
		for _, r := range rooms {
			fmt.Printf("%s\t%s\t%s\t%d/%d\n", r.ID, r.Name, r.Status, len(r.Players), r.MaxPlayers)
		}
		return nil
	})
}

func createRoom(ctx context.Context, cmd *cli.Command) error {
	return withApp(ctx, cmd, func(ctx context.Context, a *app) error {
		if _, err := a.store.CreateRoom(ctx, cmd.String("name"), cmd.String("player"), maxPlayers); err != nil {
			return err
		}
		return a.play(ctx)
	})
}

func joinRoom(ctx context.Context, cmd *cli.Command) error {
	roomID := cmd.Args().First()
	if roomID == "" {
		return fmt.Errorf("join requires a ROOM_ID")
	}
	return withApp(ctx, cmd, func(ctx context.Context, a *app) error {
		if _, err := a.store.JoinRoom(ctx, roomID, cmd.String("player")); err != nil {
			return err
		}
		return a.play(ctx)
	})
}

func resumeRoom(ctx context.Context, cmd *cli.Command) error {
	return withApp(ctx, cmd, func(ctx context.Context, a *app) error {
		if err := a.store.Resume(); err != nil {
			return err
		}
		return a.play(ctx)
	})
}

// app holds the wired components for one command invocation.
type app struct {
	auth  *auth.Service
	cache *sessioncache.Cache
	store *session.Store
}

func withApp(ctx context.Context, cmd *cli.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logging.Setup(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	backend, err := openStorage(cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			slog.Warn("storage close failed", "component", "cli", "error", err)
		}
	}()
	slog.Info("session storage ready", "component", "cli", "backend", cfg.Storage.Backend)

	if backend.redis != nil {
		release, err := lockSession(ctx, backend.redis)
		if err != nil {
			return err
		}
		defer release()
	}

	recorder := api.NewPrometheusLatencyRecorder()
	refresher := auth.NewHTTPRefresher(api.NewClient(cfg.Server.APIBaseURL, nil, recorder, cfg.Connection.RequestTimeout))
	authService := auth.NewService(backend.storage, refresher)
	if cfg.Auth.AccessToken != "" {
		if err := authService.SetTokens(ctx, cfg.Auth.AccessToken, cfg.Auth.RefreshToken); err != nil {
			return fmt.Errorf("failed to store tokens: %w", err)
		}
	}

	rooms := api.NewClient(cfg.Server.APIBaseURL, authService, recorder, cfg.Connection.RequestTimeout)

	opts := connection.Options{
		URL:                  cfg.Server.WebSocketURL,
		Dialer:               dialer(cfg.Connection.Transport),
		Tokens:               authService,
		MaxReconnectAttempts: cfg.Connection.MaxReconnectAttempts,
		ReconnectDelay:       cfg.Connection.ReconnectDelay,
		HeartbeatInterval:    cfg.Connection.HeartbeatInterval,
		ConnectTimeout:       cfg.Connection.ConnectTimeout,
		SendBuffer:           connection.DefaultSendBuffer,
	}
	manager := connection.NewManager(opts)

	runCtx, cancelRun := context.WithCancel(ctx)
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		manager.Run(runCtx)
	}()
	defer func() {
		cancelRun()
		<-runDone
	}()

	if cfg.Metrics.Addr != "" {
		metricsSrv := server.NewMetricsServer(cfg.Metrics.Addr, manager, backend.pinger)
		go func() {
			slog.Info("metrics server listening", "component", "cli", "address", cfg.Metrics.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "component", "cli", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	cache := sessioncache.New(backend.storage)
	store := session.NewStore(rooms, manager, cache)
	store.Restore(ctx)

	err = fn(ctx, &app{
		auth:  authService,
		cache: cache,
		store: store,
	})

	// Pending background connects resolve with ErrClosed once Run stops
	cancelRun()
	store.Wait()
	return err
}

// lockSession claims the shared session so a second client on the same
// Redis cannot drive it at the same time.
func lockSession(ctx context.Context, redis *db.RedisClient) (func(), error) {
	lock := db.NewSessionLock(redis, "session", sessionLockTTL)
	if err := lock.Acquire(ctx); err != nil {
		if errors.Is(err, db.ErrLockNotAcquired) {
			return nil, fmt.Errorf("another pvpclient is using this session: %w", err)
		}
		return nil, err
	}
	lockCtx, cancel := context.WithCancel(ctx)
	go lock.KeepAlive(lockCtx)
	return func() {
		cancel()
		if err := lock.Release(context.Background()); err != nil {
			slog.Warn("session lock release failed", "component", "cli", "error", err)
		}
	}, nil
}

// loadConfig reads the environment and lets global flags override it.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if v := cmd.String("api"); v != "" {
		cfg.Server.APIBaseURL = v
		if os.Getenv("PVP_WS_URL") == "" {
			if cfg.Server.WebSocketURL, err = config.DeriveWebSocketURL(v); err != nil {
				return nil, err
			}
		}
	}
	if v := cmd.String("storage"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := cmd.String("metrics-addr"); v != "" {
		cfg.Metrics.Addr = v
	}
	if cmd.Bool("debug") {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func dialer(transport string) connection.Dialer {
	if transport == config.TransportNhooyr {
		return connection.NhooyrDialer{}
	}
	return connection.GorillaDialer{}
}
