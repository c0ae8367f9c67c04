package main

import (
	"fmt"

	"github.com/m0rjc/gomoku-pvp-client/internal/config"
	"github.com/m0rjc/gomoku-pvp-client/internal/db"
	"github.com/m0rjc/gomoku-pvp-client/internal/db/sessionvalue"
	"github.com/m0rjc/gomoku-pvp-client/internal/server"
	"github.com/m0rjc/gomoku-pvp-client/internal/sessioncache"
	"gorm.io/gorm"
)

// storageBackend is the selected key/value store plus what /ready should ping.
type storageBackend struct {
	storage sessioncache.Storage
	pinger  server.Pinger // nil when there is nothing remote to check
	conns   *db.Connections
	redis   *db.RedisClient // set for the shared redis backend
}

func (b *storageBackend) Close() error {
	if b.conns == nil {
		return nil
	}
	return b.conns.Close()
}

func openStorage(cfg config.StorageConfig) (*storageBackend, error) {
	switch cfg.Backend {
	case config.StorageMemory:
		return &storageBackend{storage: sessioncache.NewMemoryStorage()}, nil

	case config.StorageFile:
		fs, err := sessioncache.NewFileStorage(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return &storageBackend{storage: fs}, nil

	case config.StorageRedis:
		redisClient, err := db.NewRedisClient(cfg.RedisURL, cfg.RedisKeyPrefix)
		if err != nil {
			return nil, err
		}
		conns := db.NewConnections(nil, redisClient)
		return &storageBackend{
			storage: db.NewRedisStorage(redisClient, 0),
			pinger:  conns,
			conns:   conns,
			redis:   redisClient,
		}, nil

	case config.StorageSQLite:
		gdb, err := db.NewSQLiteConnection(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return gormBackend(gdb), nil

	case config.StoragePostgres:
		gdb, err := db.NewPostgresConnection(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return gormBackend(gdb), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

func gormBackend(gdb *gorm.DB) *storageBackend {
	conns := db.NewConnections(gdb, nil)
	return &storageBackend{
		storage: sessionvalue.NewStorage(conns),
		pinger:  conns,
		conns:   conns,
	}
}
