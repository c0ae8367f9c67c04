package api

import (
	"context"
	"net/http"

	"github.com/m0rjc/gomoku-pvp-client/internal/protocol"
)

// CreateRoomRequest is the body of POST /rooms.
type CreateRoomRequest struct {
	RoomName   string `json:"roomName"`
	PlayerName string `json:"playerName"`
	MaxPlayers int    `json:"maxPlayers"`
}

// JoinRoomRequest is the body of POST /rooms/{id}/join.
type JoinRoomRequest struct {
	PlayerName string `json:"playerName"`
}

// MoveRequest is the body of POST /rooms/{id}/move.
type MoveRequest struct {
	X        int    `json:"x"`
	Y        int    `json:"y"`
	PlayerID string `json:"playerId"`
}

// PlayerRequest identifies the acting player for leave.
type PlayerRequest struct {
	PlayerID string `json:"playerId"`
}

// ReadyRequest is the body of POST /rooms/{id}/ready.
type ReadyRequest struct {
	PlayerID string `json:"playerId"`
	Ready    bool   `json:"ready"`
}

// RoomResponse wraps a room. Player is present on create and join.
type RoomResponse struct {
	Room   *protocol.Room   `json:"room"`
	Player *protocol.Player `json:"player,omitempty"`
}

// RoomListResponse is the answer to GET /rooms.
type RoomListResponse struct {
	Rooms []*protocol.Room `json:"rooms"`
}

func roomPath(roomID, action string) string {
	p := "/rooms/" + roomID
	if action != "" {
		p += "/" + action
	}
	return p
}

// ListRooms fetches the active room list.
func (c *Client) ListRooms(ctx context.Context) ([]*protocol.Room, error) {
	var resp RoomListResponse
	if _, err := c.Request(ctx, http.MethodGet, &resp,
		WithPath("/rooms"),
		WithEndpoint("rooms.list"),
	); err != nil {
		return nil, err
	}
	return resp.Rooms, nil
}

// CreateRoom creates a room with the caller as its first player.
func (c *Client) CreateRoom(ctx context.Context, req CreateRoomRequest) (*RoomResponse, error) {
	var resp RoomResponse
	if _, err := c.Request(ctx, http.MethodPost, &resp,
		WithPath("/rooms"),
		WithEndpoint("rooms.create"),
		WithJSONBody(req),
	); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JoinRoom joins an existing room.
func (c *Client) JoinRoom(ctx context.Context, roomID string, req JoinRoomRequest) (*RoomResponse, error) {
	var resp RoomResponse
	if _, err := c.Request(ctx, http.MethodPost, &resp,
		WithPath(roomPath(roomID, "join")),
		WithEndpoint("rooms.join"),
		WithJSONBody(req),
	); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetRoom fetches a room snapshot.
func (c *Client) GetRoom(ctx context.Context, roomID string) (*protocol.Room, error) {
	var resp RoomResponse
	if _, err := c.Request(ctx, http.MethodGet, &resp,
		WithPath(roomPath(roomID, "")),
		WithEndpoint("rooms.get"),
	); err != nil {
		return nil, err
	}
	return resp.Room, nil
}

// LeaveRoom removes the player from the room.
func (c *Client) LeaveRoom(ctx context.Context, roomID, playerID string) error {
	_, err := c.Request(ctx, http.MethodPost, nil,
		WithPath(roomPath(roomID, "leave")),
		WithEndpoint("rooms.leave"),
		WithJSONBody(PlayerRequest{PlayerID: playerID}),
	)
	return err
}

// StartGame starts the game once every player is ready.
func (c *Client) StartGame(ctx context.Context, roomID string) (*protocol.Room, error) {
	var resp RoomResponse
	if _, err := c.Request(ctx, http.MethodPost, &resp,
		WithPath(roomPath(roomID, "start")),
		WithEndpoint("rooms.start"),
	); err != nil {
		return nil, err
	}
	return resp.Room, nil
}

// MakeMove places a stone. The returned room carries the updated game.
func (c *Client) MakeMove(ctx context.Context, roomID string, req MoveRequest) (*protocol.Room, error) {
	var resp RoomResponse
	if _, err := c.Request(ctx, http.MethodPost, &resp,
		WithPath(roomPath(roomID, "move")),
		WithEndpoint("rooms.move"),
		WithJSONBody(req),
	); err != nil {
		return nil, err
	}
	return resp.Room, nil
}

// SetReady sets the player's ready flag over REST.
func (c *Client) SetReady(ctx context.Context, roomID string, req ReadyRequest) (*protocol.Room, error) {
	var resp RoomResponse
	if _, err := c.Request(ctx, http.MethodPost, &resp,
		WithPath(roomPath(roomID, "ready")),
		WithEndpoint("rooms.ready"),
		WithJSONBody(req),
	); err != nil {
		return nil, err
	}
	return resp.Room, nil
}
