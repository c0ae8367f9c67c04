package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/m0rjc/gomoku-pvp-client/internal/api"
	"github.com/m0rjc/gomoku-pvp-client/internal/connection"
	"github.com/m0rjc/gomoku-pvp-client/internal/metrics"
	"github.com/m0rjc/gomoku-pvp-client/internal/protocol"
	"github.com/m0rjc/gomoku-pvp-client/internal/sessioncache"
)

// Errors returned by Store commands before any network call is made.
var (
	ErrNotInRoom       = errors.New("not in a room")
	ErrGameNotStarted  = errors.New("game has not started")
	ErrNotYourTurn     = errors.New("not your turn")
	ErrNotConnected    = errors.New("realtime connection is not open")
	ErrSessionChanged  = errors.New("session changed while the request was in flight")
	ErrInvalidResponse = errors.New("invalid server response")
)

// RoomAPI is the REST surface the store drives.
type RoomAPI interface {
	ListRooms(ctx context.Context) ([]*protocol.Room, error)
	CreateRoom(ctx context.Context, req api.CreateRoomRequest) (*api.RoomResponse, error)
	JoinRoom(ctx context.Context, roomID string, req api.JoinRoomRequest) (*api.RoomResponse, error)
	GetRoom(ctx context.Context, roomID string) (*protocol.Room, error)
	LeaveRoom(ctx context.Context, roomID, playerID string) error
	StartGame(ctx context.Context, roomID string) (*protocol.Room, error)
	MakeMove(ctx context.Context, roomID string, req api.MoveRequest) (*protocol.Room, error)
	SetReady(ctx context.Context, roomID string, req api.ReadyRequest) (*protocol.Room, error)
}

// Connection is the realtime channel the store owns for the session.
type Connection interface {
	Connect(ctx context.Context, target connection.Target) error
	Disconnect()
	Send(env protocol.Envelope) bool
	Status() connection.Status
	SetHandlers(h connection.Handlers)
}

// Store mirrors the server's view of the local player's room and game.
// Every change is applied under mu; the Connection is never called with mu held.
type Store struct {
	rooms RoomAPI
	conn  Connection
	cache *sessioncache.Cache

	mu      sync.Mutex
	state   State
	epoch   uint64
	loading int

	watchMu  sync.Mutex
	watchers map[int]func(State)
	nextID   int

	// background tracks connects and fallbacks started by commands
	background sync.WaitGroup
}

// NewStore creates a store. cache may be nil, in which case nothing is persisted.
func NewStore(rooms RoomAPI, conn Connection, cache *sessioncache.Cache) *Store {
	return &Store{
		rooms:    rooms,
		conn:     conn,
		cache:    cache,
		state:    State{ConnectionStatus: connection.StatusDisconnected},
		watchers: make(map[int]func(State)),
	}
}

// Restore loads the persisted snapshot. The connection status always starts
// as disconnected since no channel is open yet.
func (s *Store) Restore(ctx context.Context) {
	if s.cache == nil {
		return
	}
	snap := s.cache.Restore(ctx)

	s.mu.Lock()
	s.state.CurrentPlayer = snap.CurrentPlayer
	s.state.CurrentRoom = nil
	s.state.CurrentGame = nil
	if snap.CurrentRoom != nil {
		if err := snap.CurrentRoom.Validate(); err != nil {
			slog.Warn("session.store.restore_invalid_room",
				"component", "session",
				"event", "restore.invalid_room",
				"error", err,
			)
		} else {
			s.state.CurrentRoom = snap.CurrentRoom
			s.state.CurrentGame = snap.CurrentRoom.Game.Clone()
		}
	}
	if p := snap.CurrentPlayer; p != nil {
		s.state.Ready.Confirm(p.IsReady)
	}
	s.epoch++
	s.mu.Unlock()

	slog.Info("session.store.restored",
		"component", "session",
		"event", "restore.done",
		"has_player", snap.CurrentPlayer != nil,
		"has_room", snap.CurrentRoom != nil,
	)
	s.notify()
}

// Resume reconnects the realtime channel for a restored room. It returns
// ErrNotInRoom when the snapshot had no room.
func (s *Store) Resume() error {
	s.mu.Lock()
	room, player, epoch := s.state.CurrentRoom, s.state.CurrentPlayer, s.epoch
	s.mu.Unlock()
	if room == nil || player == nil {
		return ErrNotInRoom
	}
	s.conn.SetHandlers(s.handlers(epoch))
	s.connect(epoch, connection.Target{RoomID: room.ID, PlayerID: player.ID})
	return nil
}

// State returns a deep copy of the current session state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Watch registers fn to receive the state after every committed change.
// The returned function unregisters it.
func (s *Store) Watch(fn func(State)) func() {
	s.watchMu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.watchMu.Unlock()

	return func() {
		s.watchMu.Lock()
		delete(s.watchers, id)
		s.watchMu.Unlock()
	}
}

// Wait blocks until background connects and fallbacks started so far have returned.
func (s *Store) Wait() {
	s.background.Wait()
}

// ClearError resets the error field.
func (s *Store) ClearError() {
	s.mu.Lock()
	s.state.Error = ""
	s.mu.Unlock()
	s.notify()
}

// FetchRooms refreshes the room list.
func (s *Store) FetchRooms(ctx context.Context) ([]*protocol.Room, error) {
	s.begin()
	rooms, err := s.rooms.ListRooms(ctx)

	s.mu.Lock()
	s.loading--
	if err != nil {
		s.setErrorLocked(err)
	} else {
		if rooms == nil {
			rooms = []*protocol.Room{}
		}
		s.state.Rooms = rooms
	}
	s.syncLoadingLocked()
	s.mu.Unlock()

	s.notify()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rooms: %w", err)
	}
	return rooms, nil
}

// CreateRoom creates a room, enters it as its first player and starts
// connecting in the background.
func (s *Store) CreateRoom(ctx context.Context, name, playerName string, maxPlayers int) (*protocol.Room, error) {
	epoch := s.begin()
	resp, err := s.rooms.CreateRoom(ctx, api.CreateRoomRequest{
		RoomName:   name,
		PlayerName: playerName,
		MaxPlayers: maxPlayers,
	})
	if err == nil {
		if resp == nil || resp.Room == nil {
			err = fmt.Errorf("%w: create returned no room", ErrInvalidResponse)
		} else if resp.Player == nil && len(resp.Room.Players) > 0 {
			// The creator is the room's first player
			resp.Player = resp.Room.Players[0]
		}
	}
	if err != nil {
		s.fail(epoch, err)
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	return s.enter(ctx, epoch, resp)
}

// JoinRoom joins roomID and starts connecting in the background.
func (s *Store) JoinRoom(ctx context.Context, roomID, playerName string) (*protocol.Room, error) {
	epoch := s.begin()
	resp, err := s.rooms.JoinRoom(ctx, roomID, api.JoinRoomRequest{PlayerName: playerName})
	if err == nil && (resp == nil || resp.Room == nil) {
		err = fmt.Errorf("%w: join returned no room", ErrInvalidResponse)
	}
	if err != nil {
		s.fail(epoch, err)
		return nil, fmt.Errorf("failed to join room: %w", err)
	}
	return s.enter(ctx, epoch, resp)
}

// enter commits a room and player identity as the new session.
func (s *Store) enter(ctx context.Context, epoch uint64, resp *api.RoomResponse) (*protocol.Room, error) {
	room, player := resp.Room, resp.Player
	err := room.Validate()
	if err == nil && player == nil {
		err = fmt.Errorf("room %s has no player for this client", room.ID)
	}
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		s.fail(epoch, err)
		return nil, err
	}

	s.mu.Lock()
	s.loading--
	if s.epoch != epoch {
		s.syncLoadingLocked()
		s.mu.Unlock()
		s.discardStale("rest", "enter")
		return nil, ErrSessionChanged
	}
	s.epoch++
	epoch = s.epoch
	s.state.CurrentRoom = room
	s.state.CurrentPlayer = player.Clone()
	s.state.CurrentGame = room.Game.Clone()
	s.state.ChatMessages = nil
	s.state.Error = ""
	s.state.Ready.Confirm(player.IsReady)
	s.syncLoadingLocked()
	s.persistLocked(ctx)
	out := room.Clone()
	s.mu.Unlock()

	slog.Info("session.store.entered_room",
		"component", "session",
		"event", "room.entered",
		"room_id", room.ID,
		"player_id", player.ID,
	)
	s.notify()

	s.conn.SetHandlers(s.handlers(epoch))
	s.connect(epoch, connection.Target{RoomID: room.ID, PlayerID: player.ID})
	return out, nil
}

// connect dials in the background. Failure is only logged; the connection
// manager's reconnect policy and a later Resume catch up.
func (s *Store) connect(epoch uint64, target connection.Target) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		if err := s.conn.Connect(context.Background(), target); err != nil {
			slog.Warn("session.store.connect_failed",
				"component", "session",
				"event", "connect.error",
				"room_id", target.RoomID,
				"epoch", epoch,
				"error", err,
			)
		}
	}()
}

// GetRoom fetches roomID. The result replaces the current room when it is
// the same room or no room is current; any other room is returned as a
// preview without touching the session.
func (s *Store) GetRoom(ctx context.Context, roomID string) (*protocol.Room, error) {
	epoch := s.begin()
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err == nil {
		err = room.Validate()
	}
	if err != nil {
		s.fail(epoch, err)
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	s.mu.Lock()
	s.loading--
	if s.epoch != epoch {
		s.syncLoadingLocked()
		s.mu.Unlock()
		s.discardStale("rest", "get_room")
		return room, nil
	}
	if cur := s.state.CurrentRoom; cur == nil || cur.ID == room.ID {
		s.applyRoomLocked(room)
		s.persistLocked(ctx)
	}
	s.syncLoadingLocked()
	out := room.Clone()
	s.mu.Unlock()

	s.notify()
	return out, nil
}

// LeaveRoom tells the server the player left, then drops the session
// locally even when the server call fails.
func (s *Store) LeaveRoom(ctx context.Context) error {
	s.mu.Lock()
	room, player := s.state.CurrentRoom, s.state.CurrentPlayer
	s.mu.Unlock()
	if room == nil || player == nil {
		return nil
	}

	s.begin()
	if err := s.rooms.LeaveRoom(ctx, room.ID, player.ID); err != nil {
		slog.Warn("session.store.leave_failed",
			"component", "session",
			"event", "leave.api_error",
			"room_id", room.ID,
			"error", err,
		)
	}

	s.conn.Disconnect()

	s.mu.Lock()
	s.loading--
	s.epoch++
	s.state.CurrentRoom = nil
	s.state.CurrentPlayer = nil
	s.state.CurrentGame = nil
	s.state.ChatMessages = nil
	s.state.Ready = ReadyFlag{}
	s.state.ConnectionStatus = connection.StatusDisconnected
	s.syncLoadingLocked()
	s.persistLocked(ctx)
	s.mu.Unlock()

	slog.Info("session.store.left_room",
		"component", "session",
		"event", "room.left",
		"room_id", room.ID,
	)
	s.notify()
	return nil
}

// ToggleReady flips the local ready flag immediately and announces it. The
// next authoritative room snapshot settles the value. When the realtime
// channel cannot take the envelope the flag is sent over REST instead.
func (s *Store) ToggleReady(ctx context.Context) error {
	s.mu.Lock()
	room, player := s.state.CurrentRoom, s.state.CurrentPlayer
	if room == nil || player == nil {
		s.mu.Unlock()
		return ErrNotInRoom
	}
	ready := !s.state.Ready.Value()
	s.state.Ready.Assert(ready)
	player.IsReady = ready
	if p := room.FindPlayer(player.ID); p != nil {
		p.IsReady = ready
	}
	s.persistLocked(ctx)
	epoch, roomID, playerID := s.epoch, room.ID, player.ID
	s.mu.Unlock()
	s.notify()

	if s.conn.Send(protocol.ReadyMessage(ready)) {
		return nil
	}

	slog.Info("session.store.ready_via_rest",
		"component", "session",
		"event", "ready.fallback",
		"room_id", roomID,
		"ready", ready,
	)
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		updated, err := s.rooms.SetReady(context.Background(), roomID, api.ReadyRequest{PlayerID: playerID, Ready: ready})
		if err != nil {
			slog.Warn("session.store.ready_fallback_failed",
				"component", "session",
				"event", "ready.fallback_error",
				"room_id", roomID,
				"error", err,
			)
			return
		}
		if updated != nil {
			s.applyAuthoritative(context.Background(), epoch, updated, "ready", false)
		}
	}()
	return nil
}

// StartGame asks the server to start the game.
func (s *Store) StartGame(ctx context.Context) error {
	s.mu.Lock()
	room := s.state.CurrentRoom
	s.mu.Unlock()
	if room == nil {
		return ErrNotInRoom
	}

	epoch := s.begin()
	updated, err := s.rooms.StartGame(ctx, room.ID)
	if err != nil {
		s.fail(epoch, err)
		return fmt.Errorf("failed to start game: %w", err)
	}
	s.end()
	if updated != nil {
		s.applyAuthoritative(ctx, epoch, updated, "start", updated.Game != nil)
	}
	return nil
}

// SendChatMessage sends text to the room over the realtime channel.
func (s *Store) SendChatMessage(_ context.Context, text string) error {
	s.mu.Lock()
	room, player := s.state.CurrentRoom, s.state.CurrentPlayer
	s.mu.Unlock()
	if room == nil || player == nil {
		return ErrNotInRoom
	}
	if s.conn.Status() != connection.StatusConnected {
		return ErrNotConnected
	}
	if !s.conn.Send(protocol.ChatMessageRequest(room.ID, player.ID, text)) {
		return ErrNotConnected
	}
	return nil
}

// MakeMove places a stone at (x, y). It fails without a network call unless
// a game is running and the local player owns the turn.
func (s *Store) MakeMove(ctx context.Context, x, y int) error {
	s.mu.Lock()
	room, player, game := s.state.CurrentRoom, s.state.CurrentPlayer, s.state.CurrentGame
	s.mu.Unlock()
	switch {
	case room == nil || player == nil:
		return ErrNotInRoom
	case game == nil:
		return ErrGameNotStarted
	case game.CurrentPlayerID != player.ID:
		return ErrNotYourTurn
	}

	epoch := s.begin()
	updated, err := s.rooms.MakeMove(ctx, room.ID, api.MoveRequest{X: x, Y: y, PlayerID: player.ID})
	if err != nil {
		s.fail(epoch, err)
		return fmt.Errorf("failed to make move: %w", err)
	}
	s.end()
	if updated != nil {
		s.applyAuthoritative(ctx, epoch, updated, "move", true)
	}
	return nil
}

// applyAuthoritative replaces the current room, and the game when
// replaceGame is set, with a REST result unless the session moved on while
// the request was in flight.
func (s *Store) applyAuthoritative(ctx context.Context, epoch uint64, room *protocol.Room, op string, replaceGame bool) {
	if err := room.Validate(); err != nil {
		slog.Warn("session.store.invalid_room",
			"component", "session",
			"event", "rest.invalid_room",
			"operation", op,
			"error", err,
		)
		return
	}

	s.mu.Lock()
	cur := s.state.CurrentRoom
	if s.epoch != epoch || cur == nil || cur.ID != room.ID {
		s.mu.Unlock()
		s.discardStale("rest", op)
		return
	}
	s.applyRoomLocked(room)
	if replaceGame {
		s.state.CurrentGame = room.Game.Clone()
	}
	s.persistLocked(ctx)
	s.mu.Unlock()
	s.notify()
}

// applyRoomLocked replaces the current room and, when the local player is
// listed, the local player too. This is where an optimistic ready flag is settled.
func (s *Store) applyRoomLocked(room *protocol.Room) {
	s.state.CurrentRoom = room
	if s.state.CurrentPlayer == nil {
		return
	}
	if p := room.FindPlayer(s.state.CurrentPlayer.ID); p != nil {
		s.state.CurrentPlayer = p.Clone()
		s.state.Ready.Confirm(p.IsReady)
	}
}

// begin marks a command in flight and returns the session epoch it started in.
func (s *Store) begin() uint64 {
	s.mu.Lock()
	s.loading++
	s.state.Error = ""
	s.syncLoadingLocked()
	epoch := s.epoch
	s.mu.Unlock()
	s.notify()
	return epoch
}

func (s *Store) end() {
	s.mu.Lock()
	s.loading--
	s.syncLoadingLocked()
	s.mu.Unlock()
	s.notify()
}

// fail ends a command with err. The error field is only set when the
// session the command started in is still current.
func (s *Store) fail(epoch uint64, err error) {
	s.mu.Lock()
	s.loading--
	if s.epoch == epoch {
		s.setErrorLocked(err)
	}
	s.syncLoadingLocked()
	s.mu.Unlock()
	s.notify()
}

func (s *Store) setErrorLocked(err error) {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		s.state.Error = apiErr.Message
		return
	}
	s.state.Error = err.Error()
}

func (s *Store) syncLoadingLocked() {
	if s.loading < 0 {
		s.loading = 0
	}
	s.state.Loading = s.loading > 0
}

func (s *Store) persistLocked(ctx context.Context) {
	if s.cache == nil {
		return
	}
	err := s.cache.Save(ctx, sessioncache.Snapshot{
		CurrentPlayer:    s.state.CurrentPlayer,
		CurrentRoom:      s.state.CurrentRoom,
		ConnectionStatus: string(s.state.ConnectionStatus),
	})
	if err != nil {
		slog.Error("session.store.persist_failed",
			"component", "session",
			"event", "persist.error",
			"error", err,
		)
	}
}

func (s *Store) notify() {
	s.watchMu.Lock()
	if len(s.watchers) == 0 {
		s.watchMu.Unlock()
		return
	}
	fns := make([]func(State), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.watchMu.Unlock()

	st := s.State()
	for _, fn := range fns {
		fn(st)
	}
}

func (s *Store) discardStale(source, what string) {
	metrics.StaleMessagesDiscarded.WithLabelValues(source).Inc()
	slog.Debug("session.store.stale_discarded",
		"component", "session",
		"event", "guard.stale",
		"source", source,
		"what", what,
	)
}
