package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/m0rjc/gomoku-pvp-client/internal/api"
	"github.com/m0rjc/gomoku-pvp-client/internal/connection"
	"github.com/m0rjc/gomoku-pvp-client/internal/protocol"
	"github.com/m0rjc/gomoku-pvp-client/internal/sessioncache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn records what the store asks of the realtime channel.
type fakeConn struct {
	mu          sync.Mutex
	h           connection.Handlers
	status      connection.Status
	sendOK      bool
	sent        []protocol.Envelope
	connects    chan connection.Target
	disconnects int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		status:   connection.StatusDisconnected,
		sendOK:   true,
		connects: make(chan connection.Target, 8),
	}
}

func (f *fakeConn) Connect(_ context.Context, target connection.Target) error {
	f.connects <- target
	return nil
}

func (f *fakeConn) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
}

func (f *fakeConn) Send(env protocol.Envelope) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.sendOK {
		return false
	}
	f.sent = append(f.sent, env)
	return true
}

func (f *fakeConn) Status() connection.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeConn) SetHandlers(h connection.Handlers) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.h = h
}

func (f *fakeConn) handlers() connection.Handlers {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.h
}

func (f *fakeConn) set(status connection.Status, sendOK bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
	f.sendOK = sendOK
}

func (f *fakeConn) sentEnvelopes() []protocol.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Envelope(nil), f.sent...)
}

// fakeRooms answers REST calls from function fields and counts calls.
type fakeRooms struct {
	mu    sync.Mutex
	calls map[string]int

	create func(api.CreateRoomRequest) (*api.RoomResponse, error)
	join   func(string, api.JoinRoomRequest) (*api.RoomResponse, error)
	list   func() ([]*protocol.Room, error)
	get    func(string) (*protocol.Room, error)
	leave  func(string, string) error
	start  func(string) (*protocol.Room, error)
	move   func(string, api.MoveRequest) (*protocol.Room, error)
	ready  func(string, api.ReadyRequest) (*protocol.Room, error)
}

func (f *fakeRooms) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeRooms) hit(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[name]++
}

var errNotStubbed = errors.New("not stubbed")

func (f *fakeRooms) ListRooms(context.Context) ([]*protocol.Room, error) {
	f.hit("list")
	if f.list == nil {
		return nil, errNotStubbed
	}
	return f.list()
}

func (f *fakeRooms) CreateRoom(_ context.Context, req api.CreateRoomRequest) (*api.RoomResponse, error) {
	f.hit("create")
	if f.create == nil {
		return nil, errNotStubbed
	}
	return f.create(req)
}

func (f *fakeRooms) JoinRoom(_ context.Context, id string, req api.JoinRoomRequest) (*api.RoomResponse, error) {
	f.hit("join")
	if f.join == nil {
		return nil, errNotStubbed
	}
	return f.join(id, req)
}

func (f *fakeRooms) GetRoom(_ context.Context, id string) (*protocol.Room, error) {
	f.hit("get")
	if f.get == nil {
		return nil, errNotStubbed
	}
	return f.get(id)
}

func (f *fakeRooms) LeaveRoom(_ context.Context, id, playerID string) error {
	f.hit("leave")
	if f.leave == nil {
		return errNotStubbed
	}
	return f.leave(id, playerID)
}

func (f *fakeRooms) StartGame(_ context.Context, id string) (*protocol.Room, error) {
	f.hit("start")
	if f.start == nil {
		return nil, errNotStubbed
	}
	return f.start(id)
}

func (f *fakeRooms) MakeMove(_ context.Context, id string, req api.MoveRequest) (*protocol.Room, error) {
	f.hit("move")
	if f.move == nil {
		return nil, errNotStubbed
	}
	return f.move(id, req)
}

func (f *fakeRooms) SetReady(_ context.Context, id string, req api.ReadyRequest) (*protocol.Room, error) {
	f.hit("ready")
	if f.ready == nil {
		return nil, errNotStubbed
	}
	return f.ready(id, req)
}

func testRoom(id string, players ...*protocol.Player) *protocol.Room {
	return &protocol.Room{ID: id, Name: "Room " + id, Status: protocol.RoomWaiting, MaxPlayers: 2, Players: players}
}

func player(id string, ready bool) *protocol.Player {
	return &protocol.Player{ID: id, Name: "name-" + id, IsReady: ready}
}

func envelope(t *testing.T, typ protocol.MessageType, payload any) protocol.Envelope {
	t.Helper()
	env, err := protocol.NewEnvelope(typ, payload)
	require.NoError(t, err)
	return env
}

type fixture struct {
	store   *Store
	rooms   *fakeRooms
	conn    *fakeConn
	storage *sessioncache.MemoryStorage
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{rooms: &fakeRooms{}, conn: newFakeConn(), storage: sessioncache.NewMemoryStorage()}
	f.store = NewStore(f.rooms, f.conn, sessioncache.New(f.storage))
	t.Cleanup(f.store.Wait)
	return f
}

// joined puts the fixture in room r1 as p1, with p2 as the other player.
func (f *fixture) joined(t *testing.T) {
	t.Helper()
	f.rooms.join = func(id string, req api.JoinRoomRequest) (*api.RoomResponse, error) {
		return &api.RoomResponse{Room: testRoom(id, player("p2", false), player("p1", false)), Player: player("p1", false)}, nil
	}
	_, err := f.store.JoinRoom(context.Background(), "r1", "name-p1")
	require.NoError(t, err)
	f.expectConnect(t, connection.Target{RoomID: "r1", PlayerID: "p1"})
}

func (f *fixture) expectConnect(t *testing.T, want connection.Target) {
	t.Helper()
	select {
	case got := <-f.conn.connects:
		assert.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("no connect for %+v", want)
	}
}

func (f *fixture) push(t *testing.T, typ protocol.MessageType, payload any) {
	t.Helper()
	f.conn.handlers().OnMessage(envelope(t, typ, payload))
}

func TestCreateRoomEntersAsFirstPlayer(t *testing.T) {
	f := newFixture(t)
	f.rooms.create = func(req api.CreateRoomRequest) (*api.RoomResponse, error) {
		assert.Equal(t, api.CreateRoomRequest{RoomName: "Room", PlayerName: "Alice", MaxPlayers: 2}, req)
		return &api.RoomResponse{Room: testRoom("r1", &protocol.Player{ID: "p1", Name: "Alice", IsCreator: true})}, nil
	}

	room, err := f.store.CreateRoom(context.Background(), "Room", "Alice", 2)
	require.NoError(t, err)
	assert.Equal(t, "r1", room.ID)
	f.expectConnect(t, connection.Target{RoomID: "r1", PlayerID: "p1"})

	st := f.store.State()
	require.NotNil(t, st.CurrentPlayer)
	assert.Equal(t, "p1", st.CurrentPlayer.ID)
	assert.Equal(t, "r1", st.CurrentRoom.ID)
	assert.False(t, st.Loading)
	assert.Empty(t, st.Error)

	snap := sessioncache.New(f.storage).Restore(context.Background())
	require.NotNil(t, snap.CurrentRoom)
	assert.Equal(t, "r1", snap.CurrentRoom.ID)
	assert.Equal(t, "Alice", snap.CurrentPlayer.Name)
}

func TestCreateRoomFailureSetsError(t *testing.T) {
	f := newFixture(t)
	f.rooms.create = func(api.CreateRoomRequest) (*api.RoomResponse, error) {
		return nil, &api.APIError{StatusCode: 400, Message: "Room name required"}
	}

	_, err := f.store.CreateRoom(context.Background(), "", "Alice", 2)
	require.Error(t, err)
	st := f.store.State()
	assert.Equal(t, "Room name required", st.Error)
	assert.Nil(t, st.CurrentRoom)
	assert.Empty(t, f.conn.connects)
}

func TestJoinRoomWithoutPlayerIsInvalid(t *testing.T) {
	f := newFixture(t)
	f.rooms.join = func(id string, _ api.JoinRoomRequest) (*api.RoomResponse, error) {
		return &api.RoomResponse{Room: testRoom(id)}, nil
	}

	_, err := f.store.JoinRoom(context.Background(), "r1", "Bob")
	assert.ErrorIs(t, err, ErrInvalidResponse)
	assert.NotEmpty(t, f.store.State().Error)
	assert.Nil(t, f.store.State().CurrentRoom)
}

func TestCrossSessionGuard(t *testing.T) {
	f := newFixture(t)
	f.joined(t)

	for _, typ := range []protocol.MessageType{protocol.TypeRoomUpdated, protocol.TypePlayerJoined, protocol.TypePlayerLeft} {
		f.push(t, typ, protocol.RoomPayload{Room: testRoom("B", player("p1", true))})
	}

	st := f.store.State()
	assert.Equal(t, "r1", st.CurrentRoom.ID)
	assert.False(t, st.CurrentPlayer.IsReady)
	assert.Len(t, st.CurrentRoom.Players, 2)
}

func TestRoomUpdatedReplacesRoomAndPlayer(t *testing.T) {
	f := newFixture(t)
	f.joined(t)

	updated := testRoom("r1", player("p2", true), &protocol.Player{ID: "p1", Name: "renamed", IsReady: true, PlayerNumber: 2})
	f.push(t, protocol.TypePlayerJoined, protocol.RoomPayload{Room: updated})

	st := f.store.State()
	assert.Equal(t, "renamed", st.CurrentPlayer.Name)
	assert.Equal(t, 2, st.CurrentPlayer.PlayerNumber)
	assert.True(t, st.CanStartGame())

	snap := sessioncache.New(f.storage).Restore(context.Background())
	assert.Equal(t, "renamed", snap.CurrentPlayer.Name, "reconciled player is persisted")
}

func TestMalformedRoomIsDiscarded(t *testing.T) {
	f := newFixture(t)
	f.joined(t)

	f.push(t, protocol.TypeRoomUpdated, protocol.RoomPayload{Room: &protocol.Room{
		ID: "r1", MaxPlayers: 1, Players: []*protocol.Player{player("p1", true), player("p2", true)},
	}})
	f.conn.handlers().OnMessage(protocol.Envelope{Type: protocol.TypeRoomUpdated, Data: json.RawMessage(`{"room":`)})

	st := f.store.State()
	assert.Equal(t, 2, st.CurrentRoom.MaxPlayers)
	assert.False(t, st.CurrentPlayer.IsReady)
}

func TestOptimisticReadyReconciliation(t *testing.T) {
	f := newFixture(t)
	f.joined(t)

	require.NoError(t, f.store.ToggleReady(context.Background()))
	st := f.store.State()
	assert.True(t, st.CurrentPlayer.IsReady)
	assert.True(t, st.Ready.Pending())

	f.push(t, protocol.TypeRoomUpdated, protocol.RoomPayload{Room: testRoom("r1", player("p2", false), player("p1", false))})

	st = f.store.State()
	assert.False(t, st.CurrentPlayer.IsReady, "authoritative push wins")
	assert.False(t, st.Ready.Pending())
	assert.False(t, st.Ready.Value())
}

func TestReadyScenario(t *testing.T) {
	f := newFixture(t)
	f.joined(t)

	f.push(t, protocol.TypeRoomUpdated, protocol.RoomPayload{Room: testRoom("r1", player("p1", false))})
	require.NoError(t, f.store.ToggleReady(context.Background()))
	assert.True(t, f.store.State().CurrentPlayer.IsReady, "applied immediately")

	sent := f.conn.sentEnvelopes()
	require.Len(t, sent, 1)
	assert.Equal(t, protocol.TypeReady, sent[0].Type)
	assert.JSONEq(t, `{"ready":true}`, string(sent[0].Data))

	f.push(t, protocol.TypeRoomUpdated, protocol.RoomPayload{Room: testRoom("r1", player("p1", true))})
	st := f.store.State()
	assert.True(t, st.CurrentPlayer.IsReady)
	assert.True(t, st.CurrentRoom.Players[0].IsReady)
	assert.Zero(t, f.rooms.count("ready"), "no REST fallback while the channel is open")
}

func TestToggleReadyFallsBackToREST(t *testing.T) {
	f := newFixture(t)
	f.joined(t)
	f.conn.set(connection.StatusReconnecting, false)

	var got api.ReadyRequest
	f.rooms.ready = func(id string, req api.ReadyRequest) (*protocol.Room, error) {
		got = req
		return testRoom(id, player("p2", false), player("p1", true)), nil
	}

	require.NoError(t, f.store.ToggleReady(context.Background()))
	f.store.Wait()

	assert.Equal(t, api.ReadyRequest{PlayerID: "p1", Ready: true}, got)
	st := f.store.State()
	assert.True(t, st.CurrentPlayer.IsReady)
	assert.False(t, st.Ready.Pending(), "REST answer confirms the flag")
}

func TestToggleReadyNotInRoom(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.store.ToggleReady(context.Background()), ErrNotInRoom)
}

func TestMakeMoveGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.store.MakeMove(ctx, 7, 7), ErrNotInRoom)

	f.joined(t)
	assert.ErrorIs(t, f.store.MakeMove(ctx, 7, 7), ErrGameNotStarted)

	f.push(t, protocol.TypeGameStart, protocol.GamePayload{Game: &protocol.Game{ID: "g1", RoomID: "r1", CurrentPlayerID: "p2"}})
	assert.ErrorIs(t, f.store.MakeMove(ctx, 7, 7), ErrNotYourTurn)

	assert.Zero(t, f.rooms.count("move"), "guards never reach the network")
}

func TestMakeMoveReplacesRoomAndGame(t *testing.T) {
	f := newFixture(t)
	f.joined(t)
	f.push(t, protocol.TypeGameStart, protocol.GamePayload{Game: &protocol.Game{ID: "g1", RoomID: "r1", CurrentPlayerID: "p1"}})

	f.rooms.move = func(id string, req api.MoveRequest) (*protocol.Room, error) {
		assert.Equal(t, api.MoveRequest{X: 7, Y: 8, PlayerID: "p1"}, req)
		room := testRoom(id, player("p2", true), player("p1", true))
		room.Status = protocol.RoomFinished
		room.Game = &protocol.Game{ID: "g1", RoomID: id, Status: protocol.GameFinished, WinnerID: "p1", MoveCount: 9, CurrentPlayerID: "p2"}
		return room, nil
	}

	require.NoError(t, f.store.MakeMove(context.Background(), 7, 8))
	st := f.store.State()
	assert.Equal(t, protocol.RoomFinished, st.CurrentRoom.Status)
	require.NotNil(t, st.CurrentGame)
	assert.Equal(t, "p1", st.CurrentGame.WinnerID)
	assert.Equal(t, 9, st.CurrentGame.MoveCount)
	assert.False(t, st.IsMyTurn())
}

func TestMakeMoveFailureSetsError(t *testing.T) {
	f := newFixture(t)
	f.joined(t)
	f.push(t, protocol.TypeGameStart, protocol.GamePayload{Game: &protocol.Game{ID: "g1", CurrentPlayerID: "p1"}})
	f.rooms.move = func(string, api.MoveRequest) (*protocol.Room, error) {
		return nil, &api.APIError{StatusCode: 400, Message: "Invalid move"}
	}

	err := f.store.MakeMove(context.Background(), 0, 0)
	require.Error(t, err)
	assert.Equal(t, "Invalid move", f.store.State().Error)
	assert.Equal(t, "g1", f.store.State().CurrentGame.ID, "game is untouched")
}

func TestLeaveRoomCleansUpWhenRESTFails(t *testing.T) {
	f := newFixture(t)
	f.joined(t)
	f.push(t, protocol.TypeChatMessage, protocol.ChatPayload{PlayerID: "p2", Message: "hi"})
	f.rooms.leave = func(string, string) error { return errors.New("server down") }

	require.NoError(t, f.store.LeaveRoom(context.Background()))

	st := f.store.State()
	assert.Nil(t, st.CurrentRoom)
	assert.Nil(t, st.CurrentPlayer)
	assert.Nil(t, st.CurrentGame)
	assert.Empty(t, st.ChatMessages)
	assert.Equal(t, connection.StatusDisconnected, st.ConnectionStatus)
	assert.Equal(t, 1, f.rooms.count("leave"))
	f.conn.mu.Lock()
	assert.Equal(t, 1, f.conn.disconnects)
	f.conn.mu.Unlock()

	snap := sessioncache.New(f.storage).Restore(context.Background())
	assert.Nil(t, snap.CurrentRoom)
	require.NotNil(t, snap.CurrentPlayer, "identity survives for the next join")
	assert.Equal(t, "p1", snap.CurrentPlayer.ID)
	assert.Empty(t, snap.CurrentPlayer.RoomID)
}

func TestLeaveRoomWithoutRoomIsNoop(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.LeaveRoom(context.Background()))
	assert.Zero(t, f.rooms.count("leave"))
}

func TestStaleRESTResultIsDiscarded(t *testing.T) {
	f := newFixture(t)
	f.joined(t)
	f.push(t, protocol.TypeGameStart, protocol.GamePayload{Game: &protocol.Game{ID: "g1", CurrentPlayerID: "p1"}})

	started := make(chan struct{})
	release := make(chan struct{})
	f.rooms.move = func(id string, _ api.MoveRequest) (*protocol.Room, error) {
		close(started)
		<-release
		room := testRoom(id, player("p1", true))
		room.Game = &protocol.Game{ID: "g1"}
		return room, nil
	}
	f.rooms.leave = func(string, string) error { return nil }

	done := make(chan error, 1)
	go func() { done <- f.store.MakeMove(context.Background(), 1, 1) }()
	<-started
	require.NoError(t, f.store.LeaveRoom(context.Background()))
	close(release)
	require.NoError(t, <-done)

	st := f.store.State()
	assert.Nil(t, st.CurrentRoom, "a move answered after leaving does not resurrect the room")
	assert.Nil(t, st.CurrentGame)
}

func TestStaleCallbacksAfterLeave(t *testing.T) {
	f := newFixture(t)
	f.joined(t)
	old := f.conn.handlers()
	f.rooms.leave = func(string, string) error { return nil }
	require.NoError(t, f.store.LeaveRoom(context.Background()))

	old.OnOpen()
	old.OnMessage(envelope(t, protocol.TypeRoomUpdated, protocol.RoomPayload{Room: testRoom("r1", player("p1", true))}))

	st := f.store.State()
	assert.Equal(t, connection.StatusDisconnected, st.ConnectionStatus)
	assert.Nil(t, st.CurrentRoom)
}

func TestGameStartForcesPlaying(t *testing.T) {
	f := newFixture(t)
	f.joined(t)

	f.push(t, protocol.TypeGameStart, protocol.GamePayload{Game: &protocol.Game{ID: "g1", RoomID: "r1", CurrentPlayerID: "p1"}})
	st := f.store.State()
	assert.Equal(t, protocol.RoomPlaying, st.CurrentRoom.Status)
	assert.True(t, st.IsMyTurn())

	f.push(t, protocol.TypeGameUpdate, protocol.GamePayload{
		Game:     &protocol.Game{ID: "g1", RoomID: "r1", CurrentPlayerID: "p2", MoveCount: 1},
		LastMove: &protocol.Move{X: 7, Y: 7, PlayerID: "p1"},
	})
	st = f.store.State()
	assert.Equal(t, 1, st.CurrentGame.MoveCount)
	assert.False(t, st.IsMyTurn())

	f.push(t, protocol.TypeGameUpdate, protocol.GamePayload{Game: &protocol.Game{ID: "g9", RoomID: "other"}})
	assert.Equal(t, "g1", f.store.State().CurrentGame.ID, "games for another room are discarded")
}

func TestChatAppends(t *testing.T) {
	f := newFixture(t)
	f.joined(t)

	msg := protocol.ChatPayload{PlayerID: "p2", PlayerName: "Bob", Message: "gg", Timestamp: "2024-01-01T00:00:00Z"}
	f.push(t, protocol.TypeChatMessage, msg)
	f.push(t, protocol.TypeChatMessage, msg)

	chat := f.store.State().ChatMessages
	require.Len(t, chat, 2, "duplicates are kept")
	assert.NotEqual(t, chat[0].ID, chat[1].ID)
	assert.Equal(t, "Bob", chat[0].PlayerName)
	assert.Equal(t, "gg", chat[1].Message)
}

func TestErrorAndUnknownMessages(t *testing.T) {
	f := newFixture(t)
	f.joined(t)

	f.push(t, protocol.TypeError, protocol.ErrorPayload{Message: "Not your turn", Code: "INVALID_MOVE"})
	assert.Equal(t, "Not your turn", f.store.State().Error)

	f.store.ClearError()
	assert.Empty(t, f.store.State().Error)

	notified := 0
	stop := f.store.Watch(func(State) { notified++ })
	defer stop()
	f.push(t, protocol.TypePong, nil)
	f.push(t, protocol.MessageType("game_end"), map[string]string{"reason": "win"})
	assert.Zero(t, notified, "pong and unknown types change nothing")
	assert.Equal(t, "r1", f.store.State().CurrentRoom.ID)
}

func TestConnectionStatusBridging(t *testing.T) {
	f := newFixture(t)
	f.joined(t)
	h := f.conn.handlers()

	steps := []struct {
		fire func()
		want connection.Status
	}{
		{h.OnOpen, connection.StatusConnected},
		{h.OnReconnecting, connection.StatusReconnecting},
		{h.OnReconnected, connection.StatusConnected},
		{h.OnClose, connection.StatusDisconnected},
		{func() { h.OnError(connection.ErrReconnectExhausted) }, connection.StatusError},
	}
	for _, step := range steps {
		step.fire()
		assert.Equal(t, step.want, f.store.State().ConnectionStatus)
	}
	assert.Equal(t, connection.ErrReconnectExhausted.Error(), f.store.State().Error)

	h.OnError(&connection.ServerError{Code: protocol.CodeRoomNotFound, Message: "Room not found"})
	assert.Equal(t, "Room not found", f.store.State().Error)

	snap := sessioncache.New(f.storage).Restore(context.Background())
	assert.Equal(t, "error", snap.ConnectionStatus, "status is persisted")
}

func TestSendChatMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	assert.ErrorIs(t, f.store.SendChatMessage(ctx, "hi"), ErrNotInRoom)

	f.joined(t)
	assert.ErrorIs(t, f.store.SendChatMessage(ctx, "hi"), ErrNotConnected)

	f.conn.set(connection.StatusConnected, true)
	require.NoError(t, f.store.SendChatMessage(ctx, "hi"))
	sent := f.conn.sentEnvelopes()
	require.Len(t, sent, 1)
	assert.Equal(t, protocol.TypeChat, sent[0].Type)
	assert.JSONEq(t, `{"roomId":"r1","playerId":"p1","message":"hi"}`, string(sent[0].Data))
}

func TestStartGame(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.store.StartGame(context.Background()), ErrNotInRoom)

	f.joined(t)
	f.rooms.start = func(id string) (*protocol.Room, error) {
		room := testRoom(id, player("p2", true), player("p1", true))
		room.Status = protocol.RoomPlaying
		room.Game = &protocol.Game{ID: "g1", RoomID: id, CurrentPlayerID: "p2"}
		return room, nil
	}
	require.NoError(t, f.store.StartGame(context.Background()))
	st := f.store.State()
	assert.Equal(t, protocol.RoomPlaying, st.CurrentRoom.Status)
	assert.Equal(t, "g1", st.CurrentGame.ID)
}

func TestFetchRooms(t *testing.T) {
	f := newFixture(t)
	f.rooms.list = func() ([]*protocol.Room, error) { return nil, nil }

	rooms, err := f.store.FetchRooms(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, rooms)
	assert.Empty(t, f.store.State().Rooms)

	f.rooms.list = func() ([]*protocol.Room, error) { return nil, errors.New("offline") }
	_, err = f.store.FetchRooms(context.Background())
	require.Error(t, err)
	assert.Equal(t, "offline", f.store.State().Error)
}

func TestGetRoom(t *testing.T) {
	f := newFixture(t)
	f.joined(t)
	f.rooms.get = func(id string) (*protocol.Room, error) {
		return testRoom(id, player("p2", true), player("p1", true)), nil
	}

	room, err := f.store.GetRoom(context.Background(), "other")
	require.NoError(t, err)
	assert.Equal(t, "other", room.ID)
	assert.Equal(t, "r1", f.store.State().CurrentRoom.ID, "another room is only a preview")

	_, err = f.store.GetRoom(context.Background(), "r1")
	require.NoError(t, err)
	assert.True(t, f.store.State().CurrentPlayer.IsReady)
}

func TestRestoreAndResume(t *testing.T) {
	storage := sessioncache.NewMemoryStorage()
	room := testRoom("r1", player("p1", true))
	room.Game = &protocol.Game{ID: "g1", RoomID: "r1", CurrentPlayerID: "p1"}
	require.NoError(t, sessioncache.New(storage).Save(context.Background(), sessioncache.Snapshot{
		CurrentPlayer:    player("p1", true),
		CurrentRoom:      room,
		ConnectionStatus: "connected",
	}))

	conn := newFakeConn()
	store := NewStore(&fakeRooms{}, conn, sessioncache.New(storage))
	defer store.Wait()
	store.Restore(context.Background())

	st := store.State()
	assert.Equal(t, "r1", st.CurrentRoom.ID)
	assert.Equal(t, "g1", st.CurrentGame.ID)
	assert.True(t, st.Ready.Value())
	assert.Equal(t, connection.StatusDisconnected, st.ConnectionStatus, "no channel is open after a restart")

	require.NoError(t, store.Resume())
	select {
	case target := <-conn.connects:
		assert.Equal(t, connection.Target{RoomID: "r1", PlayerID: "p1"}, target)
	case <-time.After(2 * time.Second):
		t.Fatal("resume did not connect")
	}
	conn.handlers().OnOpen()
	assert.True(t, store.State().IsConnected())
}

func TestResumeWithoutRoom(t *testing.T) {
	store := NewStore(&fakeRooms{}, newFakeConn(), nil)
	store.Restore(context.Background())
	assert.ErrorIs(t, store.Resume(), ErrNotInRoom)
}

func TestStateIsACopy(t *testing.T) {
	f := newFixture(t)
	f.joined(t)

	st := f.store.State()
	st.CurrentRoom.Players[0].IsReady = true
	st.CurrentPlayer.Name = "mutated"

	fresh := f.store.State()
	assert.False(t, fresh.CurrentRoom.Players[0].IsReady)
	assert.Equal(t, "name-p1", fresh.CurrentPlayer.Name)
}

func TestWatchReceivesChanges(t *testing.T) {
	f := newFixture(t)
	var mu sync.Mutex
	var seen []State
	stop := f.store.Watch(func(st State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, st)
	})

	f.joined(t)
	stop()
	f.push(t, protocol.TypeChatMessage, protocol.ChatPayload{Message: "after stop"})

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	last := seen[len(seen)-1]
	require.NotNil(t, last.CurrentRoom)
	assert.Equal(t, "r1", last.CurrentRoom.ID)
	assert.Empty(t, last.ChatMessages)
}

func TestDerivedState(t *testing.T) {
	waiting := testRoom("r1", player("p1", true), player("p2", true))
	assert.True(t, State{CurrentRoom: waiting}.CanStartGame())

	oneReady := testRoom("r1", player("p1", true), player("p2", false))
	assert.False(t, State{CurrentRoom: oneReady}.CanStartGame())

	alone := testRoom("r1", player("p1", true))
	assert.False(t, State{CurrentRoom: alone}.CanStartGame())

	playing := testRoom("r1", player("p1", true), player("p2", true))
	playing.Status = protocol.RoomPlaying
	assert.False(t, State{CurrentRoom: playing}.CanStartGame())

	assert.False(t, State{}.IsMyTurn())
	assert.False(t, State{}.IsConnected())
}
