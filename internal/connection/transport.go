package connection

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	"nhooyr.io/websocket"
)

const (
	writeTimeout      = 10 * time.Second
	closeWriteTimeout = time.Second
)

// WebSocket close codes used by the manager.
const (
	CloseNormal        = 1000
	CloseGoingAway     = 1001
	CloseInternalError = 1011
)

// Transport is one open realtime connection. ReadMessage returns whole
// frames; it fails once the connection is closed by either side.
type Transport interface {
	ReadMessage(ctx context.Context) ([]byte, error)
	WriteMessage(ctx context.Context, data []byte) error
	Close(code int, reason string) error
}

// Dialer opens a Transport to a fully built URL. The context bounds the
// handshake and stays alive for the lifetime of the returned transport.
type Dialer interface {
	Dial(ctx context.Context, rawURL string) (Transport, error)
}

// GorillaDialer dials with github.com/gorilla/websocket.
type GorillaDialer struct {
	Dialer *ws.Dialer // nil uses ws.DefaultDialer
	Header http.Header
}

func (d GorillaDialer) Dial(ctx context.Context, rawURL string) (Transport, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = ws.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, rawURL, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake failed with HTTP %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return &gorillaTransport{conn: conn}, nil
}

type gorillaTransport struct {
	conn      *ws.Conn
	writeMu   sync.Mutex // gorilla allows one concurrent writer
	closeOnce sync.Once
}

// ReadMessage blocks until a frame arrives. Gorilla reads are unblocked by
// Close rather than by the context.
func (t *gorillaTransport) ReadMessage(_ context.Context) ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *gorillaTransport) WriteMessage(ctx context.Context, data []byte) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeTimeout)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return t.conn.WriteMessage(ws.TextMessage, data)
}

func (t *gorillaTransport) Close(code int, reason string) error {
	var err error
	t.closeOnce.Do(func() {
		t.writeMu.Lock()
		_ = t.conn.WriteControl(ws.CloseMessage, ws.FormatCloseMessage(code, reason), time.Now().Add(closeWriteTimeout))
		t.writeMu.Unlock()
		err = t.conn.Close()
	})
	return err
}

// NhooyrDialer dials with nhooyr.io/websocket.
type NhooyrDialer struct {
	Options   *websocket.DialOptions
	ReadLimit int64 // 0 keeps the library default
}

func (d NhooyrDialer) Dial(ctx context.Context, rawURL string) (Transport, error) {
	conn, resp, err := websocket.Dial(ctx, rawURL, d.Options)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake failed with HTTP %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	return &nhooyrTransport{conn: conn}, nil
}

type nhooyrTransport struct {
	conn *websocket.Conn
}

func (t *nhooyrTransport) ReadMessage(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	return data, err
}

func (t *nhooyrTransport) WriteMessage(ctx context.Context, data []byte) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, writeTimeout)
		defer cancel()
	}
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *nhooyrTransport) Close(code int, reason string) error {
	return t.conn.Close(websocket.StatusCode(code), reason)
}
