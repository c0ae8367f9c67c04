package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/m0rjc/gomoku-pvp-client/internal/protocol"
	"github.com/m0rjc/gomoku-pvp-client/internal/session"
)

const playHelp = `commands:
  ready            toggle your ready flag
  start            start the game once everyone is ready
  move X Y         place a stone
  say TEXT         send a chat message
  board            print the board
  leave            leave the room and exit`

// play runs the interactive loop until the user leaves, stdin closes or ctx is cancelled.
// The room is left on the way out unless the context was cancelled, so
// that resume can pick the session back up after an interrupt.
func (a *app) play(ctx context.Context) error {
	unwatch := a.store.Watch(newPrinter(os.Stdout).print)
	defer unwatch()

	fmt.Println(playHelp)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return a.store.LeaveRoom(context.Background())
			}
			done, err := a.execute(ctx, line)
			if err != nil {
				fmt.Println("error:", err)
			}
			if done {
				return nil
			}
		}
	}
}

// execute runs one command line and reports whether the loop should end.
func (a *app) execute(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	switch fields[0] {
	case "ready":
		return false, a.store.ToggleReady(ctx)
	case "start":
		return false, a.store.StartGame(ctx)
	case "move":
		if len(fields) != 3 {
			return false, fmt.Errorf("usage: move X Y")
		}
		x, errX := strconv.Atoi(fields[1])
		y, errY := strconv.Atoi(fields[2])
		if errX != nil || errY != nil {
			return false, fmt.Errorf("coordinates must be integers")
		}
		return false, a.store.MakeMove(ctx, x, y)
	case "say":
		text := strings.TrimSpace(strings.TrimPrefix(line, "say"))
		if text == "" {
			return false, nil
		}
		return false, a.store.SendChatMessage(ctx, text)
	case "board":
		printBoard(os.Stdout, a.store.State())
		return false, nil
	case "leave":
		return true, a.store.LeaveRoom(ctx)
	case "help":
		fmt.Println(playHelp)
		return false, nil
	}
	return false, fmt.Errorf("unknown command %q", fields[0])
}

// printer writes a line for each observable change of the session.
type printer struct {
	w    io.Writer
	last session.State
	seen int // chat messages already printed
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w}
}

func (p *printer) print(st session.State) {
	if st.ConnectionStatus != p.last.ConnectionStatus {
		fmt.Fprintf(p.w, "* connection %s\n", st.ConnectionStatus)
	}
	if st.Error != "" && st.Error != p.last.Error {
		fmt.Fprintf(p.w, "! %s\n", st.Error)
	}
	if room := st.CurrentRoom; room != nil && roomChanged(p.last.CurrentRoom, room) {
		fmt.Fprintf(p.w, "* room %s (%s) %s\n", room.Name, room.ID, room.Status)
		for _, pl := range room.Players {
			ready := " "
			if pl.IsReady {
				ready = "x"
			}
			fmt.Fprintf(p.w, "  [%s] %s\n", ready, pl.Name)
		}
		if st.CanStartGame() {
			fmt.Fprintln(p.w, "* everyone is ready, type start")
		}
	}
	if len(st.ChatMessages) < p.seen {
		p.seen = 0
	}
	for _, msg := range st.ChatMessages[p.seen:] {
		fmt.Fprintf(p.w, "<%s> %s\n", msg.PlayerName, msg.Message)
	}
	p.seen = len(st.ChatMessages)

	if g := st.CurrentGame; g != nil && (p.last.CurrentGame == nil || p.last.CurrentGame.MoveCount != g.MoveCount || p.last.CurrentGame.Status != g.Status) {
		printBoard(p.w, st)
	}
	p.last = st
	slog.Debug("session state changed", "component", "cli", "status", st.ConnectionStatus, "loading", st.Loading)
}

func roomChanged(prev, cur *protocol.Room) bool {
	if prev == nil || prev.ID != cur.ID || prev.Status != cur.Status || len(prev.Players) != len(cur.Players) {
		return true
	}
	for i, pl := range cur.Players {
		if prev.Players[i].ID != pl.ID || prev.Players[i].IsReady != pl.IsReady {
			return true
		}
	}
	return false
}

func printBoard(w io.Writer, st session.State) {
	g := st.CurrentGame
	if g == nil {
		fmt.Fprintln(w, "no game in progress")
		return
	}
	for _, row := range g.Board {
		var b strings.Builder
		for _, cell := range row {
			switch cell {
			case protocol.CellBlack:
				b.WriteString(" X")
			case protocol.CellWhite:
				b.WriteString(" O")
			default:
				b.WriteString(" .")
			}
		}
		fmt.Fprintln(w, b.String())
	}
	switch {
	case g.Status == protocol.GameFinished && g.WinnerID != "":
		if st.CurrentPlayer != nil && g.WinnerID == st.CurrentPlayer.ID {
			fmt.Fprintln(w, "* you won")
		} else {
			fmt.Fprintln(w, "* you lost")
		}
	case g.Status == protocol.GameFinished:
		fmt.Fprintln(w, "* draw")
	case st.IsMyTurn():
		fmt.Fprintln(w, "* your move")
	default:
		fmt.Fprintln(w, "* waiting for opponent")
	}
}
