package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/m0rjc/gomoku-pvp-client/internal/connection"
	"github.com/m0rjc/gomoku-pvp-client/internal/metrics"
	"github.com/m0rjc/gomoku-pvp-client/internal/protocol"
)

// handlers binds the connection callbacks to the session started at epoch.
// Callbacks arriving after the session changed are dropped.
func (s *Store) handlers(epoch uint64) connection.Handlers {
	return connection.Handlers{
		OnOpen: func() {
			s.setStatus(epoch, connection.StatusConnected, nil)
		},
		OnClose: func() {
			s.setStatus(epoch, connection.StatusDisconnected, nil)
		},
		OnError: func(err error) {
			s.setStatus(epoch, connection.StatusError, err)
		},
		OnReconnecting: func() {
			s.setStatus(epoch, connection.StatusReconnecting, nil)
		},
		OnReconnected: func() {
			s.setStatus(epoch, connection.StatusConnected, nil)
		},
		OnMessage: func(env protocol.Envelope) {
			s.handleEnvelope(epoch, env)
		},
	}
}

func (s *Store) setStatus(epoch uint64, status connection.Status, err error) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		s.discardStale("callback", string(status))
		return
	}
	s.state.ConnectionStatus = status
	if err != nil {
		var serverErr *connection.ServerError
		if errors.As(err, &serverErr) && serverErr.Message != "" {
			s.state.Error = serverErr.Message
		} else {
			s.state.Error = err.Error()
		}
	}
	s.persistLocked(context.Background())
	s.mu.Unlock()

	slog.Debug("session.store.status",
		"component", "session",
		"event", "connection.status",
		"status", status,
	)
	s.notify()
}

// handleEnvelope applies one server push to the session started at epoch.
func (s *Store) handleEnvelope(epoch uint64, env protocol.Envelope) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		s.discardStale("callback", string(env.Type))
		return
	}
	changed, stale := s.applyLocked(env)
	s.mu.Unlock()

	if stale {
		s.discardStale("push", string(env.Type))
		return
	}
	if changed {
		s.notify()
	}
}

// applyLocked dispatches on the envelope type. It reports whether state
// changed and whether the envelope belonged to another room.
func (s *Store) applyLocked(env protocol.Envelope) (changed, stale bool) {
	switch env.Type {
	case protocol.TypeRoomUpdated, protocol.TypePlayerJoined, protocol.TypePlayerLeft:
		var payload protocol.RoomPayload
		if !s.decode(env, &payload) || payload.Room == nil {
			return false, false
		}
		if err := payload.Room.Validate(); err != nil {
			s.malformed(env, err)
			return false, false
		}
		if cur := s.state.CurrentRoom; cur != nil && cur.ID != payload.Room.ID {
			return false, true
		}
		s.applyRoomLocked(payload.Room)
		s.persistLocked(context.Background())
		return true, false

	case protocol.TypeGameStart, protocol.TypeGameUpdate:
		var payload protocol.GamePayload
		if !s.decode(env, &payload) || payload.Game == nil {
			return false, false
		}
		cur := s.state.CurrentRoom
		if cur != nil && payload.Game.RoomID != "" && payload.Game.RoomID != cur.ID {
			return false, true
		}
		s.state.CurrentGame = payload.Game
		if env.Type == protocol.TypeGameStart && cur != nil {
			cur.Status = protocol.RoomPlaying
			s.persistLocked(context.Background())
		}
		return true, false

	case protocol.TypeChatMessage:
		var payload protocol.ChatPayload
		if !s.decode(env, &payload) {
			return false, false
		}
		ts := payload.Timestamp
		if ts == "" {
			ts = env.Timestamp
		}
		s.state.ChatMessages = append(s.state.ChatMessages, protocol.ChatMessage{
			ID:         uuid.NewString(),
			PlayerID:   payload.PlayerID,
			PlayerName: payload.PlayerName,
			Message:    payload.Message,
			Timestamp:  ts,
		})
		return true, false

	case protocol.TypeError:
		var payload protocol.ErrorPayload
		_ = env.Decode(&payload)
		msg := payload.Message
		if msg == "" {
			msg = "unknown server error"
		}
		s.state.Error = msg
		slog.Warn("session.store.server_error",
			"component", "session",
			"event", "push.error",
			"code", payload.Code,
			"message", msg,
		)
		return true, false

	case protocol.TypePong:
		return false, false

	default:
		slog.Warn("session.store.unknown_message",
			"component", "session",
			"event", "push.unknown_type",
			"type", env.Type,
		)
		return false, false
	}
}

func (s *Store) decode(env protocol.Envelope, v any) bool {
	if err := env.Decode(v); err != nil {
		s.malformed(env, err)
		return false
	}
	return true
}

func (s *Store) malformed(env protocol.Envelope, err error) {
	metrics.DecodeErrors.Inc()
	slog.Warn("session.store.malformed_message",
		"component", "session",
		"event", "push.malformed",
		"type", env.Type,
		"error", err,
	)
}
