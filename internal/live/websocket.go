package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultMinBackoff       = 500 * time.Millisecond
	DefaultMaxBackoff       = 4 * time.Second

	writeWait = 5 * time.Second
)

type WebSocketOptions struct {
	URL string
	// Cookies returns the session cookies sent with every handshake.
	Cookies func() []*http.Cookie
	// Token, when set, is sent as a bearer token with every handshake.
	Token func() string

	HandshakeTimeout time.Duration
	MinBackoff       time.Duration
	MaxBackoff       time.Duration

	Logger *slog.Logger
}

// WebSocketTransport keeps one websocket open to the live endpoint,
// reconnecting with capped exponential backoff until closed.
type WebSocketTransport struct {
	opts   WebSocketOptions
	dialer *websocket.Dialer
	logger *slog.Logger
	hs     *handlers

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	start  sync.Once

	mu   sync.Mutex
	conn *websocket.Conn
	wmu  sync.Mutex // gorilla allows one concurrent writer

	smu sync.Mutex // orders state notifications
}

func NewWebSocketTransport(opts WebSocketOptions) *WebSocketTransport {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = DefaultMinBackoff
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = max(DefaultMaxBackoff, opts.MinBackoff)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocketTransport{
		opts:   opts,
		dialer: &websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout, Proxy: http.ProxyFromEnvironment},
		logger: logger.With(slog.String("url", opts.URL)),
		hs:     newHandlers(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start begins connecting in the background. Calling it again does nothing.
func (t *WebSocketTransport) Start() {
	t.start.Do(func() { go t.run() })
}

// Close stops reconnecting and closes the open connection, if any.
func (t *WebSocketTransport) Close() error {
	t.cancel()
	// A transport that was never started has no loop to wait for.
	t.start.Do(func() { close(t.done) })
	<-t.done
	return nil
}

// Connected reports whether a connection is open.
func (t *WebSocketTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

func (t *WebSocketTransport) Emit(ctx context.Context, event string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("live: encoding %s: %w", event, err)
	}

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	t.wmu.Lock()
	defer t.wmu.Unlock()
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(frame{Event: event, Data: data}); err != nil {
		return fmt.Errorf("live: sending %s: %w", event, err)
	}
	return nil
}

func (t *WebSocketTransport) On(event string, h Handler) func() {
	return t.hs.on(event, h)
}

func (t *WebSocketTransport) OnState(fn func(connected bool)) func() {
	t.smu.Lock()
	defer t.smu.Unlock()
	off := t.hs.onState(fn)
	fn(t.Connected())
	return off
}

func (t *WebSocketTransport) setConn(conn *websocket.Conn) {
	t.smu.Lock()
	defer t.smu.Unlock()

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	t.hs.notify(conn != nil)
}

// =========================================================================
// CONNECTION LOOP
// =========================================================================

func (t *WebSocketTransport) run() {
	defer close(t.done)

	attempt := 0
	for {
		conn, err := t.dial()
		if err != nil {
			if t.ctx.Err() != nil {
				return
			}
			delay := Backoff(attempt, t.opts.MinBackoff, t.opts.MaxBackoff, rand.Float64())
			attempt++
			t.logger.Debug("live connect failed",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", delay),
			)
			if !t.sleep(delay) {
				return
			}
			continue
		}

		attempt = 0
		t.logger.Info("live channel connected")
		t.setConn(conn)
		t.readLoop(conn)
		t.setConn(nil)
		conn.Close()

		if t.ctx.Err() != nil {
			return
		}
		t.logger.Info("live channel disconnected")
		if !t.sleep(Backoff(0, t.opts.MinBackoff, t.opts.MaxBackoff, rand.Float64())) {
			return
		}
	}
}

func (t *WebSocketTransport) dial() (*websocket.Conn, error) {
	header := http.Header{}
	if t.opts.Cookies != nil {
		for _, c := range t.opts.Cookies() {
			header.Add("Cookie", (&http.Cookie{Name: c.Name, Value: c.Value}).String())
		}
	}
	if t.opts.Token != nil {
		if token := t.opts.Token(); token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	ctx, cancel := context.WithTimeout(t.ctx, t.opts.HandshakeTimeout)
	defer cancel()

	conn, resp, err := t.dialer.DialContext(ctx, t.opts.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("live: handshake status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("live: dial: %w", err)
	}
	return conn, nil
}

func (t *WebSocketTransport) readLoop(conn *websocket.Conn) {
	stop := context.AfterFunc(t.ctx, func() { conn.Close() })
	defer stop()

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && t.ctx.Err() == nil {
				t.logger.Debug("live read failed", slog.String("error", err.Error()))
			}
			return
		}
		t.hs.dispatch(f.Event, f.Data)
	}
}

func (t *WebSocketTransport) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-t.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Backoff returns the delay before reconnect attempt n (0-based): base
// doubled n times, capped at limit, then scaled by a factor in [0.5, 1.5)
// taken from jitter in [0, 1).
func Backoff(n int, base, limit time.Duration, jitter float64) time.Duration {
	d := base
	for i := 0; i < n && d < limit; i++ {
		d *= 2
	}
	d = min(d, limit)
	return time.Duration(float64(d) * (0.5 + jitter))
}
