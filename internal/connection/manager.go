package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/m0rjc/gomoku-pvp-client/internal/metrics"
	"github.com/m0rjc/gomoku-pvp-client/internal/protocol"
)

// Status is the lifecycle state of the realtime connection.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusError        Status = "error"
)

func (s Status) String() string { return string(s) }

// Defaults applied by NewManager to zero-valued Options fields.
const (
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectDelay       = time.Second
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultConnectTimeout       = 10 * time.Second
	DefaultSendBuffer           = 64
)

var (
	ErrNoToken            = errors.New("no auth token available")
	ErrConnectTimeout     = errors.New("websocket connection timeout")
	ErrDisconnected       = errors.New("connection closed by client")
	ErrReconnectExhausted = errors.New("max reconnect attempts reached")
	ErrClosed             = errors.New("connection manager closed")
)

// ServerError is a session-fatal error pushed by the server.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %s: %s", e.Code, e.Message)
}

// Target identifies the room session a connection is opened for.
type Target struct {
	RoomID   string
	PlayerID string
}

// TokenSource supplies the bearer token carried in the connection URL.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// Handlers are the lifecycle callbacks. They run one at a time on the
// manager's dispatcher goroutine, in event order, and may call back into
// the Manager.
type Handlers struct {
	OnOpen         func()
	OnClose        func()
	OnError        func(err error)
	OnMessage      func(env protocol.Envelope)
	OnReconnecting func()
	OnReconnected  func()
}

type Options struct {
	URL                  string // base URL, e.g. ws://localhost:8080/api/ws
	Dialer               Dialer // nil uses GorillaDialer
	Tokens               TokenSource
	MaxReconnectAttempts int // used as given; 0 disables reconnection
	ReconnectDelay       time.Duration
	HeartbeatInterval    time.Duration
	ConnectTimeout       time.Duration
	SendBuffer           int
}

// DefaultOptions returns Options with the stock tunables for url.
func DefaultOptions(url string, tokens TokenSource) Options {
	return Options{
		URL:                  url,
		Tokens:               tokens,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		ReconnectDelay:       DefaultReconnectDelay,
		HeartbeatInterval:    DefaultHeartbeatInterval,
		ConnectTimeout:       DefaultConnectTimeout,
		SendBuffer:           DefaultSendBuffer,
	}
}

type dialResult struct {
	gen       uint64
	transport Transport
	err       error
}

type readEvent struct {
	gen  uint64
	data []byte
	err  error // non-nil: the transport is gone
}

type outbound struct {
	msgType protocol.MessageType
	data    []byte
}

// Manager owns the realtime connection for one session. All connection
// state is owned by the Run goroutine; public methods hand work to it.
type Manager struct {
	url       string
	dialer    Dialer
	tokens    TokenSource
	heartbeat time.Duration
	timeout   time.Duration

	statusMu sync.RWMutex
	status   Status

	cfgMu          sync.RWMutex
	maxAttempts    int
	reconnectDelay time.Duration

	handlersMu sync.RWMutex
	handlers   Handlers

	controlCh chan func()
	dialCh    chan dialResult
	readCh    chan readEvent
	sendCh    chan outbound
	closeCh   chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	dispatch *dispatcher

	// Owned by the Run goroutine.
	gen            uint64
	genCtx         context.Context // lives as long as the attempt and its transport
	genCancel      context.CancelFunc
	target         Target
	transport      Transport
	opened         bool
	dialing        bool
	waiters        []chan error
	attempts       int
	manualClose    bool
	connectTimer   *time.Timer
	reconnectTimer *time.Timer
	pingTicker     *time.Ticker
}

// NewManager creates a Manager. Call Run in a goroutine before using it.
func NewManager(opts Options) *Manager {
	if opts.Dialer == nil {
		opts.Dialer = GorillaDialer{}
	}
	if opts.MaxReconnectAttempts < 0 {
		opts.MaxReconnectAttempts = 0
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}

	return &Manager{
		url:            opts.URL,
		dialer:         opts.Dialer,
		tokens:         opts.Tokens,
		heartbeat:      opts.HeartbeatInterval,
		timeout:        opts.ConnectTimeout,
		status:         StatusDisconnected,
		maxAttempts:    opts.MaxReconnectAttempts,
		reconnectDelay: opts.ReconnectDelay,
		controlCh:      make(chan func()),
		dialCh:         make(chan dialResult),
		readCh:         make(chan readEvent),
		sendCh:         make(chan outbound, opts.SendBuffer),
		closeCh:        make(chan struct{}),
		stopped:        make(chan struct{}),
		dispatch:       newDispatcher(),
	}
}

// SetHandlers replaces the lifecycle callbacks. Events already queued are
// delivered to the handlers current at delivery time.
func (m *Manager) SetHandlers(h Handlers) {
	m.handlersMu.Lock()
	m.handlers = h
	m.handlersMu.Unlock()
}

func (m *Manager) currentHandlers() Handlers {
	m.handlersMu.RLock()
	defer m.handlersMu.RUnlock()
	return m.handlers
}

// Status returns the current lifecycle state.
func (m *Manager) Status() Status {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	return m.status
}

// IsConnected reports whether the transport is open.
func (m *Manager) IsConnected() bool {
	return m.Status() == StatusConnected
}

// SetMaxReconnectAttempts bounds automatic reconnection. Negative values are treated as 0.
func (m *Manager) SetMaxReconnectAttempts(n int) {
	m.cfgMu.Lock()
	m.maxAttempts = max(0, n)
	m.cfgMu.Unlock()
}

// SetReconnectDelay sets the base of the exponential backoff.
func (m *Manager) SetReconnectDelay(d time.Duration) {
	if d <= 0 {
		d = DefaultReconnectDelay
	}
	m.cfgMu.Lock()
	m.reconnectDelay = d
	m.cfgMu.Unlock()
}

func (m *Manager) maxReconnectAttempts() int {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	return m.maxAttempts
}

// ReconnectDelay returns the wait before reconnect attempt n (1-based):
// base × 2^(n−1), uncapped.
func (m *Manager) ReconnectDelay(attempt int) time.Duration {
	m.cfgMu.RLock()
	base := m.reconnectDelay
	m.cfgMu.RUnlock()

	b := &backoff.Backoff{
		Min:    base,
		Max:    time.Duration(math.MaxInt64),
		Factor: 2,
	}
	return b.ForAttempt(float64(max(1, attempt) - 1))
}

// ResetReconnectAttempts clears the attempt counter so the next loss starts
// the backoff from the base delay.
func (m *Manager) ResetReconnectAttempts() {
	_ = m.exec(context.Background(), func() { m.attempts = 0 })
}

// Connect opens the connection for target and returns once it is open or
// the attempt has failed. If an attempt is already in flight for the same
// target the call shares its outcome; if already connected it returns nil.
func (m *Manager) Connect(ctx context.Context, target Target) error {
	if m.tokens == nil {
		return ErrNoToken
	}
	token, err := m.tokens.Token(ctx)
	if err != nil {
		slog.Warn("connection.manager.token_unavailable",
			"component", "connection",
			"event", "connect.no_token",
			"room_id", target.RoomID,
			"error", err,
		)
		return fmt.Errorf("%w: %v", ErrNoToken, err)
	}
	if token == "" {
		return ErrNoToken
	}

	wait := make(chan error, 1)
	if err := m.exec(ctx, func() { m.startConnect(target, token, wait) }); err != nil {
		return err
	}

	select {
	case err := <-wait:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.stopped:
		return ErrClosed
	}
}

// Disconnect closes the connection intentionally. No reconnection follows.
func (m *Manager) Disconnect() {
	_ = m.exec(context.Background(), m.disconnect)
}

// Send queues env for transmission. It returns false without blocking when
// the connection is not open or the send queue is full.
func (m *Manager) Send(env protocol.Envelope) bool {
	if m.Status() != StatusConnected {
		slog.Debug("connection.manager.send_not_connected",
			"component", "connection",
			"event", "send.not_connected",
			"type", env.Type,
		)
		metrics.EnvelopesSent.WithLabelValues(string(env.Type), "dropped").Inc()
		return false
	}
	data, err := protocol.Encode(env)
	if err != nil {
		slog.Error("connection.manager.encode_failed",
			"component", "connection",
			"event", "send.encode_error",
			"type", env.Type,
			"error", err,
		)
		metrics.EnvelopesSent.WithLabelValues(string(env.Type), "error").Inc()
		return false
	}
	select {
	case m.sendCh <- outbound{msgType: env.Type, data: data}:
		return true
	default:
		slog.Warn("connection.manager.send_queue_full",
			"component", "connection",
			"event", "send.queue_full",
			"type", env.Type,
		)
		metrics.EnvelopesSent.WithLabelValues(string(env.Type), "dropped").Inc()
		return false
	}
}

// Close stops Run and releases the connection without reconnecting.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.closeCh)
	})
}

// exec runs fn on the Run goroutine and waits for it to finish.
func (m *Manager) exec(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case m.controlCh <- func() { fn(); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.stopped:
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-m.stopped:
		return ErrClosed
	}
}

// Run is the scheduler loop. It returns when ctx is cancelled or Close is called.
func (m *Manager) Run(ctx context.Context) {
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		m.dispatch.run(m.stopped)
	}()

	defer func() {
		m.shutdown()
		close(m.stopped)
		<-dispatchDone
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.closeCh:
			return

		case fn := <-m.controlCh:
			fn()

		case res := <-m.dialCh:
			m.handleDialResult(res)

		case ev := <-m.readCh:
			m.handleRead(ev)

		case out := <-m.sendCh:
			m.write(out)

		case <-timerC(m.connectTimer):
			m.connectTimer = nil
			m.handleConnectTimeout()

		case <-timerC(m.reconnectTimer):
			m.reconnectTimer = nil
			m.reconnect()

		case <-tickerC(m.pingTicker):
			if m.transport != nil && m.opened {
				m.writePing()
			}
		}
	}
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func tickerC(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func (m *Manager) setStatus(s Status) {
	m.statusMu.Lock()
	prev := m.status
	m.status = s
	m.statusMu.Unlock()

	if prev != s {
		metrics.SetConnectionStatus(string(s))
		slog.Debug("connection.manager.status_changed",
			"component", "connection",
			"event", "status.change",
			"from", prev,
			"to", s,
		)
	}
}

func (m *Manager) emit(fn func(h Handlers)) {
	m.dispatch.push(func() { fn(m.currentHandlers()) })
}

func (m *Manager) startConnect(target Target, token string, wait chan error) {
	if m.transport != nil && m.opened {
		if target == m.target {
			// An explicit Connect revives reconnection a fatal error suppressed.
			m.manualClose = false
			wait <- nil
			return
		}
		// Rebinding to another room: the old transport is closed without reconnecting.
		m.closeTransport(CloseNormal, "Switching room")
		m.emit(func(h Handlers) {
			if h.OnClose != nil {
				h.OnClose()
			}
		})
	}

	if m.dialing {
		if target == m.target {
			m.waiters = append(m.waiters, wait)
			return
		}
		m.abortDial(ErrDisconnected)
	}

	m.manualClose = false
	m.stopReconnectTimer()
	m.attempts = 0
	m.target = target
	m.waiters = append(m.waiters, wait)
	m.dial(token)
}

// dial starts an attempt in its own goroutine. An empty token is fetched
// from the token source inside the attempt.
func (m *Manager) dial(token string) {
	m.gen++
	gen := m.gen
	ctx, cancel := context.WithCancel(context.Background())
	m.genCtx, m.genCancel = ctx, cancel
	m.dialing = true

	if m.attempts > 0 {
		m.setStatus(StatusReconnecting)
	} else {
		m.setStatus(StatusConnecting)
	}
	m.stopConnectTimer()
	m.connectTimer = time.NewTimer(m.timeout)

	target := m.target
	go func() {
		t, err := m.open(ctx, target, token)
		select {
		case m.dialCh <- dialResult{gen: gen, transport: t, err: err}:
		case <-m.stopped:
			if t != nil {
				_ = t.Close(CloseGoingAway, "client shutdown")
			}
		}
	}()
}

func (m *Manager) open(ctx context.Context, target Target, token string) (Transport, error) {
	if token == "" {
		if m.tokens == nil {
			return nil, ErrNoToken
		}
		var err error
		if token, err = m.tokens.Token(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoToken, err)
		}
		if token == "" {
			return nil, ErrNoToken
		}
	}
	rawURL, err := BuildURL(m.url, target, token)
	if err != nil {
		return nil, err
	}
	return m.dialer.Dial(ctx, rawURL)
}

func (m *Manager) handleDialResult(res dialResult) {
	if res.gen != m.gen || !m.dialing {
		// Superseded by a timeout, disconnect or newer attempt.
		if res.transport != nil {
			_ = res.transport.Close(CloseNormal, "superseded")
		}
		return
	}
	m.dialing = false
	m.stopConnectTimer()

	kind := "initial"
	if m.attempts > 0 {
		kind = "reconnect"
	}

	if res.err != nil {
		metrics.ConnectionDials.WithLabelValues(kind, "error").Inc()
		slog.Warn("connection.manager.dial_failed",
			"component", "connection",
			"event", "dial.error",
			"room_id", m.target.RoomID,
			"attempt", m.attempts,
			"error", res.err,
		)
		m.cancelGen()
		m.resolveWaiters(res.err)
		m.afterLoss()
		return
	}

	metrics.ConnectionDials.WithLabelValues(kind, "ok").Inc()
	wasReconnect := m.attempts > 0
	m.attempts = 0
	m.transport = res.transport
	m.opened = true
	m.pingTicker = time.NewTicker(m.heartbeat)
	m.setStatus(StatusConnected)

	slog.Info("connection.manager.connected",
		"component", "connection",
		"event", "dial.ok",
		"room_id", m.target.RoomID,
		"player_id", m.target.PlayerID,
		"reconnect", wasReconnect,
	)

	go m.readPump(m.genCtx, res.gen, res.transport)

	m.resolveWaiters(nil)
	m.emit(func(h Handlers) {
		if h.OnOpen != nil {
			h.OnOpen()
		}
	})
	if wasReconnect {
		m.emit(func(h Handlers) {
			if h.OnReconnected != nil {
				h.OnReconnected()
			}
		})
	}
}

func (m *Manager) handleConnectTimeout() {
	if !m.dialing {
		return
	}
	kind := "initial"
	if m.attempts > 0 {
		kind = "reconnect"
	}
	metrics.ConnectionDials.WithLabelValues(kind, "timeout").Inc()
	slog.Warn("connection.manager.connect_timeout",
		"component", "connection",
		"event", "dial.timeout",
		"room_id", m.target.RoomID,
		"timeout", m.timeout,
	)
	m.abortDial(ErrConnectTimeout)
	m.afterLoss()
}

// abortDial cancels the in-flight attempt; its late result is discarded.
func (m *Manager) abortDial(err error) {
	m.dialing = false
	m.stopConnectTimer()
	m.cancelGen()
	m.gen++
	m.resolveWaiters(err)
}

func (m *Manager) readPump(ctx context.Context, gen uint64, t Transport) {
	for {
		data, err := t.ReadMessage(ctx)
		select {
		case m.readCh <- readEvent{gen: gen, data: data, err: err}:
		case <-ctx.Done():
			return
		case <-m.stopped:
			return
		}
		if err != nil {
			return
		}
	}
}

func (m *Manager) handleRead(ev readEvent) {
	if ev.gen != m.gen || m.transport == nil {
		return
	}
	if ev.err != nil {
		slog.Info("connection.manager.transport_closed",
			"component", "connection",
			"event", "transport.closed",
			"room_id", m.target.RoomID,
			"error", ev.err,
		)
		m.closeTransport(CloseNormal, "")
		m.emit(func(h Handlers) {
			if h.OnClose != nil {
				h.OnClose()
			}
		})
		m.afterLoss()
		return
	}
	m.handleFrame(ev.data)
}

func (m *Manager) handleFrame(frame []byte) {
	envelopes, errs := protocol.DecodeFrame(frame)
	for _, err := range errs {
		metrics.DecodeErrors.Inc()
		slog.Warn("connection.manager.bad_segment",
			"component", "connection",
			"event", "inbound.decode_error",
			"error", err,
		)
	}

	for _, env := range envelopes {
		env := env // per-iteration copy: captured by the queued emit closure
		metrics.EnvelopesReceived.WithLabelValues(string(env.Type)).Inc()

		if env.Type == protocol.TypeError {
			var payload protocol.ErrorPayload
			if err := env.Decode(&payload); err == nil && payload.Fatal() {
				slog.Warn("connection.manager.fatal_server_error",
					"component", "connection",
					"event", "inbound.fatal_error",
					"room_id", m.target.RoomID,
					"code", payload.Code,
					"message", payload.Message,
				)
				m.manualClose = true
				serverErr := &ServerError{Code: payload.Code, Message: payload.Message}
				m.emit(func(h Handlers) {
					if h.OnError != nil {
						h.OnError(serverErr)
					}
				})
				continue
			}
		}

		m.emit(func(h Handlers) {
			if h.OnMessage != nil {
				h.OnMessage(env)
			}
		})
	}
}

// afterLoss decides what follows a failed attempt or an unexpected close.
func (m *Manager) afterLoss() {
	if m.manualClose {
		m.setStatus(StatusDisconnected)
		return
	}

	limit := m.maxReconnectAttempts()
	if m.attempts >= limit {
		if m.attempts == 0 {
			// Reconnection disabled.
			m.setStatus(StatusDisconnected)
			return
		}
		metrics.ReconnectExhausted.Inc()
		slog.Error("connection.manager.reconnect_exhausted",
			"component", "connection",
			"event", "reconnect.exhausted",
			"room_id", m.target.RoomID,
			"attempts", m.attempts,
		)
		m.setStatus(StatusError)
		m.emit(func(h Handlers) {
			if h.OnError != nil {
				h.OnError(ErrReconnectExhausted)
			}
		})
		return
	}

	m.attempts++
	delay := m.ReconnectDelay(m.attempts)
	metrics.ReconnectAttempts.Inc()
	slog.Info("connection.manager.reconnect_scheduled",
		"component", "connection",
		"event", "reconnect.scheduled",
		"room_id", m.target.RoomID,
		"attempt", m.attempts,
		"max_attempts", limit,
		"delay", delay,
	)
	m.setStatus(StatusReconnecting)
	m.emit(func(h Handlers) {
		if h.OnReconnecting != nil {
			h.OnReconnecting()
		}
	})
	m.stopReconnectTimer()
	m.reconnectTimer = time.NewTimer(delay)
}

func (m *Manager) reconnect() {
	if m.manualClose || m.dialing || m.transport != nil {
		return
	}
	m.dial("")
}

func (m *Manager) disconnect() {
	m.manualClose = true
	m.stopReconnectTimer()
	if m.dialing {
		m.abortDial(ErrDisconnected)
	}
	m.gen++
	if m.transport != nil {
		m.closeTransport(CloseNormal, "Manual disconnect")
		m.emit(func(h Handlers) {
			if h.OnClose != nil {
				h.OnClose()
			}
		})
	}
	m.attempts = 0
	m.setStatus(StatusDisconnected)

	slog.Info("connection.manager.disconnected",
		"component", "connection",
		"event", "disconnect.manual",
		"room_id", m.target.RoomID,
	)
}

// closeTransport tears down the open transport, its reader and heartbeat.
func (m *Manager) closeTransport(code int, reason string) {
	if m.pingTicker != nil {
		m.pingTicker.Stop()
		m.pingTicker = nil
	}
	t := m.transport
	m.transport = nil
	m.opened = false
	// Close before cancelling the reader: nhooyr drops the connection
	// without a close frame once a Read context is cancelled.
	if t != nil {
		if err := t.Close(code, reason); err != nil {
			slog.Debug("connection.manager.close_error",
				"component", "connection",
				"event", "transport.close_error",
				"error", err,
			)
		}
	}
	m.cancelGen()
	m.drainSendQueue()
}

func (m *Manager) write(out outbound) {
	if m.transport == nil || !m.opened {
		metrics.EnvelopesSent.WithLabelValues(string(out.msgType), "dropped").Inc()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := m.transport.WriteMessage(ctx, out.data); err != nil {
		metrics.EnvelopesSent.WithLabelValues(string(out.msgType), "error").Inc()
		slog.Warn("connection.manager.write_failed",
			"component", "connection",
			"event", "send.write_error",
			"type", out.msgType,
			"error", err,
		)
		// The reader observes the close and drives the reconnect.
		_ = m.transport.Close(CloseInternalError, "write failed")
		return
	}
	metrics.EnvelopesSent.WithLabelValues(string(out.msgType), "ok").Inc()
}

func (m *Manager) writePing() {
	data, err := protocol.Encode(protocol.PingMessage())
	if err != nil {
		return
	}
	m.write(outbound{msgType: protocol.TypePing, data: data})
}

func (m *Manager) drainSendQueue() {
	for {
		select {
		case out := <-m.sendCh:
			metrics.EnvelopesSent.WithLabelValues(string(out.msgType), "dropped").Inc()
		default:
			return
		}
	}
}

// resolveWaiters resolves every pending Connect call with err (nil for success).
func (m *Manager) resolveWaiters(err error) {
	for _, w := range m.waiters {
		w <- err
	}
	m.waiters = nil
}

func (m *Manager) cancelGen() {
	if m.genCancel != nil {
		m.genCancel()
		m.genCtx, m.genCancel = nil, nil
	}
}

func (m *Manager) stopConnectTimer() {
	if m.connectTimer != nil {
		m.connectTimer.Stop()
		m.connectTimer = nil
	}
}

func (m *Manager) stopReconnectTimer() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

func (m *Manager) shutdown() {
	m.manualClose = true
	m.stopReconnectTimer()
	if m.dialing {
		m.abortDial(ErrClosed)
	}
	if m.transport != nil {
		m.closeTransport(CloseGoingAway, "client shutdown")
	}
	m.resolveWaiters(ErrClosed)
	m.setStatus(StatusDisconnected)
}

// BuildURL appends the session query parameters to base.
func BuildURL(base string, target Target, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("roomId", target.RoomID)
	q.Set("playerId", target.PlayerID)
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
