package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// MessageType is the closed set of envelope types spoken on the realtime channel.
type MessageType string

// Server → client.
const (
	TypeRoomUpdated  MessageType = "room_updated"
	TypeGameStart    MessageType = "game_start"
	TypeGameUpdate   MessageType = "game_update"
	TypeChatMessage  MessageType = "chat_message"
	TypePlayerJoined MessageType = "player_joined"
	TypePlayerLeft   MessageType = "player_left"
	TypeError        MessageType = "error"
	TypePong         MessageType = "pong"
)

// Client → server.
const (
	TypeReady MessageType = "ready"
	TypeChat  MessageType = "chat"
	TypePing  MessageType = "ping"
)

// Error codes after which the session cannot continue and the client must leave.
const (
	CodeRoomNotFound    = "ROOM_NOT_FOUND"
	CodePlayerNotInRoom = "PLAYER_NOT_IN_ROOM"
)

// Inbound reports whether t is a type the server pushes.
func (t MessageType) Inbound() bool {
	switch t {
	case TypeRoomUpdated, TypeGameStart, TypeGameUpdate, TypeChatMessage,
		TypePlayerJoined, TypePlayerLeft, TypeError, TypePong:
		return true
	}
	return false
}

// Outbound reports whether t is a type the client may send.
func (t MessageType) Outbound() bool {
	switch t {
	case TypeReady, TypeChat, TypeChatMessage, TypePing:
		return true
	}
	return false
}

// Envelope is the typed wrapper exchanged in both directions. Data is kept
// raw until the receiver knows which payload to decode it into.
type Envelope struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

var emptyObject = json.RawMessage(`{}`)

// NewEnvelope builds an envelope stamped with the current time.
// A nil payload is sent as an empty object.
func NewEnvelope(t MessageType, payload any) (Envelope, error) {
	data := emptyObject
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", t, err)
		}
		data = b
	}
	return Envelope{
		Type:      t,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}, nil
}

// Decode unmarshals the envelope payload into v.
func (e Envelope) Decode(v any) error {
	if len(bytes.TrimSpace(e.Data)) == 0 || bytes.Equal(bytes.TrimSpace(e.Data), []byte("null")) {
		return fmt.Errorf("%s envelope has no data", e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}

// RoomPayload is carried by room_updated, player_joined and player_left.
type RoomPayload struct {
	Room     *Room   `json:"room"`
	Player   *Player `json:"player,omitempty"`
	PlayerID string  `json:"playerId,omitempty"`
}

// GamePayload is carried by game_start and game_update.
type GamePayload struct {
	Game     *Game `json:"game"`
	LastMove *Move `json:"lastMove,omitempty"`
}

// ChatPayload is carried by inbound chat_message.
type ChatPayload struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
}

// ErrorPayload is carried by error.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Fatal reports whether the error ends the session.
func (p ErrorPayload) Fatal() bool {
	return p.Code == CodeRoomNotFound || p.Code == CodePlayerNotInRoom
}

// ReadyPayload is sent with ready.
type ReadyPayload struct {
	Ready bool `json:"ready"`
}

// ChatRequest is sent with chat.
type ChatRequest struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
	Message  string `json:"message"`
}

// PingMessage creates the keep-alive envelope.
func PingMessage() Envelope {
	return Envelope{
		Type:      TypePing,
		Data:      emptyObject,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// ReadyMessage creates the envelope announcing the local ready flag.
func ReadyMessage(ready bool) Envelope {
	env, _ := NewEnvelope(TypeReady, ReadyPayload{Ready: ready})
	return env
}

// ChatMessageRequest creates the outbound chat envelope.
func ChatMessageRequest(roomID, playerID, message string) Envelope {
	env, _ := NewEnvelope(TypeChat, ChatRequest{RoomID: roomID, PlayerID: playerID, Message: message})
	return env
}
