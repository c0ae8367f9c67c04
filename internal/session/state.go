package session

import (
	"github.com/m0rjc/gomoku-pvp-client/internal/connection"
	"github.com/m0rjc/gomoku-pvp-client/internal/protocol"
)

// ReadyFlag is the local player's ready flag in two phases: the value last
// confirmed by the server and an optional locally asserted value that has not
// been confirmed yet. A confirmation always replaces the assertion.
type ReadyFlag struct {
	Confirmed bool
	Asserted  *bool
}

// Value is the flag as the UI should show it.
func (f ReadyFlag) Value() bool {
	if f.Asserted != nil {
		return *f.Asserted
	}
	return f.Confirmed
}

// Pending reports whether a local assertion is waiting for the server.
func (f ReadyFlag) Pending() bool {
	return f.Asserted != nil
}

// Assert records an optimistic local value.
func (f *ReadyFlag) Assert(v bool) {
	f.Asserted = &v
}

// Confirm records the authoritative value and drops any assertion.
func (f *ReadyFlag) Confirm(v bool) {
	f.Confirmed = v
	f.Asserted = nil
}

// State is a read-only copy of the session.
type State struct {
	Rooms            []*protocol.Room
	CurrentRoom      *protocol.Room
	CurrentPlayer    *protocol.Player
	CurrentGame      *protocol.Game
	ChatMessages     []protocol.ChatMessage
	ConnectionStatus connection.Status
	Error            string
	Loading          bool
	Ready            ReadyFlag
}

// IsConnected reports whether the realtime channel is open.
func (s State) IsConnected() bool {
	return s.ConnectionStatus == connection.StatusConnected
}

// CanStartGame reports whether the room is waiting with at least two
// players, all of them ready.
func (s State) CanStartGame() bool {
	if s.CurrentRoom == nil || s.CurrentRoom.Status != protocol.RoomWaiting {
		return false
	}
	return s.CurrentRoom.AllReady()
}

// IsMyTurn reports whether the local player owns the current turn.
func (s State) IsMyTurn() bool {
	if s.CurrentGame == nil || s.CurrentPlayer == nil {
		return false
	}
	return s.CurrentGame.CurrentPlayerID == s.CurrentPlayer.ID
}

func (s State) clone() State {
	c := s
	if s.Rooms != nil {
		c.Rooms = make([]*protocol.Room, len(s.Rooms))
		for i, r := range s.Rooms {
			c.Rooms[i] = r.Clone()
		}
	}
	c.CurrentRoom = s.CurrentRoom.Clone()
	c.CurrentPlayer = s.CurrentPlayer.Clone()
	c.CurrentGame = s.CurrentGame.Clone()
	c.ChatMessages = append([]protocol.ChatMessage(nil), s.ChatMessages...)
	if s.Ready.Asserted != nil {
		v := *s.Ready.Asserted
		c.Ready.Asserted = &v
	}
	return c
}
