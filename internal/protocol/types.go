package protocol

import (
	"fmt"
	"time"
)

// Room status values as reported by the server.
const (
	RoomWaiting  = "waiting"
	RoomPlaying  = "playing"
	RoomFinished = "finished"
)

// Game status values as reported by the server.
const (
	GamePlaying  = "playing"
	GameFinished = "finished"
)

// Board geometry used by the server.
const (
	BoardSize    = 15
	WinCondition = 5
)

// Stone colours stored in Game.Board cells. Zero is an empty cell.
const (
	CellEmpty = 0
	CellBlack = 1
	CellWhite = 2
)

// Room is a server-side matchmaking unit holding up to MaxPlayers players
// and, once started, one Game.
type Room struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	Players    []*Player `json:"players"`
	MaxPlayers int       `json:"maxPlayers"`
	CreatedAt  time.Time `json:"createdAt"`
	CreatorID  string    `json:"creatorId,omitempty"`
	Game       *Game     `json:"game,omitempty"`
}

// Player is a participant of a Room. ID is stable across reconnects and is
// used to find the local player inside server-pushed room snapshots.
type Player struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	IsReady      bool   `json:"isReady"`
	IsOnline     bool   `json:"isOnline"`
	RoomID       string `json:"roomId"`
	PlayerNumber int    `json:"playerNumber"`
	IsCreator    bool   `json:"isCreator"`
}

// Game is the board state of a started Room. It is always replaced as a
// whole when a fresher snapshot arrives.
type Game struct {
	ID              string  `json:"id"`
	RoomID          string  `json:"roomId"`
	Status          string  `json:"status"`
	Board           [][]int `json:"board"`
	CurrentPlayerID string  `json:"currentPlayer"`
	WinnerID        string  `json:"winner,omitempty"`
	MoveCount       int     `json:"moveCount"`
	Moves           []*Move `json:"moves"`
	StartedAt       string  `json:"startedAt,omitempty"`
}

// Move is one stone placement.
type Move struct {
	X          int    `json:"x"`
	Y          int    `json:"y"`
	PlayerID   string `json:"playerId"`
	MoveNumber int    `json:"moveNumber,omitempty"`
	CreatedAt  string `json:"createdAt,omitempty"`
}

// ChatMessage is one entry of the append-only room chat log.
type ChatMessage struct {
	ID         string `json:"id"`
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
}

// Validate checks the room invariants. A MaxPlayers of zero means the server
// did not report a limit.
func (r *Room) Validate() error {
	if r == nil {
		return fmt.Errorf("room is nil")
	}
	if r.ID == "" {
		return fmt.Errorf("room has no id")
	}
	if r.MaxPlayers > 0 && len(r.Players) > r.MaxPlayers {
		return fmt.Errorf("room %s has %d players, max %d", r.ID, len(r.Players), r.MaxPlayers)
	}
	return nil
}

// FindPlayer returns the player with the given id, or nil.
func (r *Room) FindPlayer(id string) *Player {
	if r == nil || id == "" {
		return nil
	}
	for _, p := range r.Players {
		if p != nil && p.ID == id {
			return p
		}
	}
	return nil
}

// AllReady reports whether the room is full enough to start and every player is ready.
func (r *Room) AllReady() bool {
	if r == nil || len(r.Players) < 2 {
		return false
	}
	for _, p := range r.Players {
		if p == nil || !p.IsReady {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the room.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	if r.Players != nil {
		c.Players = make([]*Player, len(r.Players))
		for i, p := range r.Players {
			c.Players[i] = p.Clone()
		}
	}
	c.Game = r.Game.Clone()
	return &c
}

// Clone returns a copy of the player.
func (p *Player) Clone() *Player {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// Clone returns a deep copy of the game.
func (g *Game) Clone() *Game {
	if g == nil {
		return nil
	}
	c := *g
	if g.Board != nil {
		c.Board = make([][]int, len(g.Board))
		for i, row := range g.Board {
			c.Board[i] = append([]int(nil), row...)
		}
	}
	if g.Moves != nil {
		c.Moves = make([]*Move, len(g.Moves))
		for i, m := range g.Moves {
			if m != nil {
				mv := *m
				c.Moves[i] = &mv
			}
		}
	}
	return &c
}
