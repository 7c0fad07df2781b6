// Package live keeps comment threads in sync over a persistent websocket
// channel.
//
// LAYERS:
//
//	Room      one comment thread: join/leave lifecycle, optimistic submit,
//	          reconciliation of server events by tempId
//	Hub       reference counts the one process-wide transport
//	Transport the websocket itself: framing, handshake, reconnect backoff
//
// Every frame in both directions is {"event": "...", "data": {...}}.
// Delivery is at-most-once: nothing is queued while disconnected.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
)

// Client → server events.
const (
	EventJoin          = "room:join"
	EventLeave         = "room:leave"
	EventCreateComment = "comment:create"
	EventUpdateComment = "comment:update"
	EventDeleteComment = "comment:delete"
)

// Server → client events.
const (
	EventCommentCreated = "comment:created"
	EventCommentUpdated = "comment:updated"
	EventCommentDeleted = "comment:deleted"
)

// ErrNotConnected is returned by Emit while the transport has no open
// connection.
var ErrNotConnected = errors.New("live: not connected")

// Handler receives the raw data of one event.
type Handler func(data json.RawMessage)

// Channel is what a Room needs from the transport.
type Channel interface {
	// Emit sends one event. It fails with ErrNotConnected while
	// disconnected; nothing is buffered.
	Emit(ctx context.Context, event string, payload any) error
	// On registers h for event. The returned function unregisters it.
	On(event string, h Handler) (off func())
	// OnState calls fn with the current connection state and again on
	// every change.
	OnState(fn func(connected bool)) (off func())
}

// Transport is a Channel with a lifecycle.
type Transport interface {
	Channel
	Start()
	Close() error
}

// frame is the wire envelope.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// =========================================================================
// HUB
// =========================================================================

// Hub shares one Transport between every open room. The first Acquire
// creates and starts it; the last Release closes it.
type Hub struct {
	open   func() Transport
	logger *slog.Logger

	mu   sync.Mutex
	cur  Transport
	refs int
}

func NewHub(open func() Transport, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{open: open, logger: logger}
}

// Acquire returns the shared channel, starting the transport if needed.
// Every Acquire must be paired with a Release.
func (h *Hub) Acquire() Channel {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cur == nil {
		h.cur = h.open()
		h.cur.Start()
		h.logger.Debug("live transport opened")
	}
	h.refs++
	return h.cur
}

// Release drops one reference. Dropping the last one closes the transport.
func (h *Hub) Release() {
	h.mu.Lock()
	if h.refs == 0 {
		h.mu.Unlock()
		return
	}
	h.refs--
	if h.refs > 0 {
		h.mu.Unlock()
		return
	}
	t := h.cur
	h.cur = nil
	h.mu.Unlock()

	if err := t.Close(); err != nil {
		h.logger.Warn("closing live transport", slog.String("error", err.Error()))
	}
	h.logger.Debug("live transport closed")
}

// Refs returns the number of outstanding Acquires.
func (h *Hub) Refs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.refs
}

// =========================================================================
// LISTENER SETS
// =========================================================================

// handlers is the registration bookkeeping shared by transports.
type handlers struct {
	mu     sync.Mutex
	nextID int
	events map[string]map[int]Handler
	states map[int]func(bool)
}

func newHandlers() *handlers {
	return &handlers{
		events: make(map[string]map[int]Handler),
		states: make(map[int]func(bool)),
	}
}

func (hs *handlers) on(event string, h Handler) func() {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.nextID++
	id := hs.nextID
	if hs.events[event] == nil {
		hs.events[event] = make(map[int]Handler)
	}
	hs.events[event][id] = h
	return func() {
		hs.mu.Lock()
		delete(hs.events[event], id)
		hs.mu.Unlock()
	}
}

func (hs *handlers) onState(fn func(bool)) func() {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.nextID++
	id := hs.nextID
	hs.states[id] = fn
	return func() {
		hs.mu.Lock()
		delete(hs.states, id)
		hs.mu.Unlock()
	}
}

// dispatch calls the handlers of event outside the lock.
func (hs *handlers) dispatch(event string, data json.RawMessage) {
	hs.mu.Lock()
	fns := make([]Handler, 0, len(hs.events[event]))
	for _, h := range hs.events[event] {
		fns = append(fns, h)
	}
	hs.mu.Unlock()

	for _, h := range fns {
		h(data)
	}
}

func (hs *handlers) notify(connected bool) {
	hs.mu.Lock()
	fns := make([]func(bool), 0, len(hs.states))
	for _, fn := range hs.states {
		fns = append(fns, fn)
	}
	hs.mu.Unlock()

	for _, fn := range fns {
		fn(connected)
	}
}
