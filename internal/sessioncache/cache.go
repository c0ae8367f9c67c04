package sessioncache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/m0rjc/gomoku-pvp-client/internal/metrics"
	"github.com/m0rjc/gomoku-pvp-client/internal/protocol"
)

// Storage keys.
const (
	KeySnapshot   = "pvp-store"
	KeyPlayerID   = "player-id"
	KeyPlayerName = "player-name"
)

// Snapshot is the persisted part of a session.
type Snapshot struct {
	CurrentPlayer    *protocol.Player `json:"currentPlayer"`
	CurrentRoom      *protocol.Room   `json:"currentRoom"`
	ConnectionStatus string           `json:"connectionStatus,omitempty"`
}

// Empty reports whether the snapshot carries nothing worth restoring.
func (s Snapshot) Empty() bool {
	return s.CurrentPlayer == nil && s.CurrentRoom == nil && s.ConnectionStatus == ""
}

// Cache saves and restores session snapshots.
type Cache struct {
	storage Storage
}

func New(storage Storage) *Cache {
	return &Cache{storage: storage}
}

// Save writes the snapshot blob, plus the player id and name when a player is set.
func (c *Cache) Save(ctx context.Context, snap Snapshot) error {
	if p := snap.CurrentPlayer; p != nil {
		if err := c.storage.Set(ctx, KeyPlayerID, p.ID); err != nil {
			metrics.CacheOperations.WithLabelValues("save", "error").Inc()
			return fmt.Errorf("failed to save player id: %w", err)
		}
		if err := c.storage.Set(ctx, KeyPlayerName, p.Name); err != nil {
			metrics.CacheOperations.WithLabelValues("save", "error").Inc()
			return fmt.Errorf("failed to save player name: %w", err)
		}
	}

	data, err := json.Marshal(snap)
	if err != nil {
		metrics.CacheOperations.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("failed to marshal session snapshot: %w", err)
	}
	if err := c.storage.Set(ctx, KeySnapshot, string(data)); err != nil {
		metrics.CacheOperations.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("failed to save session snapshot: %w", err)
	}
	metrics.CacheOperations.WithLabelValues("save", "ok").Inc()
	return nil
}

// Restore reads the last saved snapshot. Without a stored player object it
// falls back to a minimal player built from the stored id and name. Read or
// parse failures yield an empty snapshot.
func (c *Cache) Restore(ctx context.Context) Snapshot {
	var snap Snapshot

	blob, ok, err := c.storage.Get(ctx, KeySnapshot)
	if err != nil {
		c.restoreFailed("read", err)
		return Snapshot{}
	}
	if ok && blob != "" {
		if err := json.Unmarshal([]byte(blob), &snap); err != nil {
			c.restoreFailed("parse", err)
			return Snapshot{}
		}
	}

	if snap.CurrentPlayer == nil {
		snap.CurrentPlayer = c.fallbackPlayer(ctx)
	}

	if snap.Empty() {
		metrics.CacheOperations.WithLabelValues("restore", "miss").Inc()
	} else {
		metrics.CacheOperations.WithLabelValues("restore", "ok").Inc()
	}
	return snap
}

func (c *Cache) fallbackPlayer(ctx context.Context) *protocol.Player {
	id, okID, err := c.storage.Get(ctx, KeyPlayerID)
	if err != nil || !okID || id == "" {
		return nil
	}
	name, okName, err := c.storage.Get(ctx, KeyPlayerName)
	if err != nil || !okName || name == "" {
		return nil
	}
	// Not yet in a room.
	return &protocol.Player{ID: id, Name: name, IsOnline: true}
}

func (c *Cache) restoreFailed(stage string, err error) {
	metrics.CacheOperations.WithLabelValues("restore", "error").Inc()
	slog.Warn("sessioncache.restore_failed",
		"component", "sessioncache",
		"event", "restore."+stage+"_error",
		"error", err,
	)
}

// Clear removes the snapshot blob. The player id and name are kept so a
// returning user keeps their display name.
func (c *Cache) Clear(ctx context.Context) error {
	return c.storage.Delete(ctx, KeySnapshot)
}
