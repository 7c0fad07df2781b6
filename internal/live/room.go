package live

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/snippethub/internal/apperror"
	"github.com/sakif/snippethub/internal/mapper"
	"github.com/sakif/snippethub/internal/model"
)

// ErrRoomClosed is returned by the methods of a closed Room.
var ErrRoomClosed = errors.New("live: room closed")

// State is the join state of a Room.
type State int

const (
	StateDisconnected State = iota
	StateJoining
	StateJoined
)

func (s State) String() string {
	switch s {
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	default:
		return "disconnected"
	}
}

type RoomOptions struct {
	ID string
	// Initial is the comment list the thread was loaded with.
	Initial []model.Comment
	// Resync, when set, reloads the full comment list after every rejoin so
	// events missed while disconnected are caught up.
	Resync func(ctx context.Context) ([]model.Comment, error)
	// OnChange receives a copy of the list after every change.
	OnChange func([]model.Comment)
	Logger   *slog.Logger
}

type roomRef struct {
	RoomID string `json:"roomId"`
}

type createRequest struct {
	RoomID string `json:"roomId"`
	Body   string `json:"body"`
	TempID string `json:"tempId"`
}

type updateRequest struct {
	ID   int64  `json:"id"`
	Body string `json:"body"`
}

type deleteRequest struct {
	ID int64 `json:"id"`
}

// Room is one open comment thread.
//
// LIFECYCLE:
//
//	disconnected ──connect──▶ joining ──join sent──▶ joined
//	                             ▲                      │
//	                             └──────disconnect──────┘
//
// The join request is re-sent on every reconnect. Comments submitted here
// are shown at once with id -1 and matched to the server's echo through
// their tempId, keeping the position they were inserted at.
type Room struct {
	id       string
	hub      *Hub
	ch       Channel
	resync   func(ctx context.Context) ([]model.Comment, error)
	onChange func([]model.Comment)
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      State
	connected  bool
	joinedOnce bool
	closed     bool
	comments   []model.Comment
	pending    map[string]int // tempId → index in comments
	offs       []func()
}

// Join opens the thread opts.ID on the hub's shared channel.
func Join(hub *Hub, opts RoomOptions) *Room {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Room{
		id:       opts.ID,
		hub:      hub,
		resync:   opts.Resync,
		onChange: opts.OnChange,
		logger:   logger.With(slog.String("room", opts.ID)),
		ctx:      ctx,
		cancel:   cancel,
		comments: slices.Clone(opts.Initial),
		pending:  make(map[string]int),
	}

	r.ch = hub.Acquire()
	offs := []func(){
		r.ch.On(EventCommentCreated, r.onCreated),
		r.ch.On(EventCommentUpdated, r.onUpdated),
		r.ch.On(EventCommentDeleted, r.onDeleted),
		r.ch.OnState(r.onState),
	}

	r.mu.Lock()
	r.offs = offs
	r.mu.Unlock()
	return r
}

func (r *Room) ID() string {
	return r.id
}

func (r *Room) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Comments returns a copy of the current list, pending entries included.
func (r *Room) Comments() []model.Comment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.comments)
}

// Submit appends a pending comment and asks the server to create it. If the
// request cannot be sent the pending comment is removed again and the error
// returned.
func (r *Room) Submit(ctx context.Context, body string, author model.Author) (model.Comment, error) {
	if strings.TrimSpace(body) == "" {
		return model.Comment{}, apperror.ValidationFailed("body", "comment must not be empty")
	}

	c := model.Comment{
		ID:        model.PendingCommentID,
		TempID:    uuid.NewString(),
		RoomID:    r.id,
		Body:      body,
		Author:    author,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Pending:   true,
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return model.Comment{}, ErrRoomClosed
	}
	r.pending[c.TempID] = len(r.comments)
	r.comments = append(r.comments, c)
	snap := slices.Clone(r.comments)
	r.mu.Unlock()
	r.changed(snap)

	err := r.ch.Emit(ctx, EventCreateComment, createRequest{RoomID: r.id, Body: body, TempID: c.TempID})
	if err != nil {
		r.mu.Lock()
		idx, ok := r.pending[c.TempID]
		if ok {
			r.removeLocked(idx)
		}
		snap := slices.Clone(r.comments)
		r.mu.Unlock()
		if ok {
			r.changed(snap)
		}
		return model.Comment{}, err
	}
	return c, nil
}

// Edit asks the server to change the body of comment id. The list changes
// when the server's comment:updated arrives.
func (r *Room) Edit(ctx context.Context, id int64, body string) error {
	if strings.TrimSpace(body) == "" {
		return apperror.ValidationFailed("body", "comment must not be empty")
	}
	if r.isClosed() {
		return ErrRoomClosed
	}
	return r.ch.Emit(ctx, EventUpdateComment, updateRequest{ID: id, Body: body})
}

// Delete asks the server to delete comment id.
func (r *Room) Delete(ctx context.Context, id int64) error {
	if r.isClosed() {
		return ErrRoomClosed
	}
	return r.ch.Emit(ctx, EventDeleteComment, deleteRequest{ID: id})
}

// Close unsubscribes, leaves the room and releases the shared channel.
func (r *Room) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.state = StateDisconnected
	offs := r.offs
	r.offs = nil
	r.mu.Unlock()

	for _, off := range offs {
		off()
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	if err := r.ch.Emit(ctx, EventLeave, roomRef{RoomID: r.id}); err != nil && !errors.Is(err, ErrNotConnected) {
		r.logger.Debug("leave failed", slog.String("error", err.Error()))
	}

	r.cancel()
	r.hub.Release()
}

func (r *Room) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// =========================================================================
// CONNECTION STATE
// =========================================================================

func (r *Room) onState(connected bool) {
	r.mu.Lock()
	if r.closed || connected == r.connected {
		r.mu.Unlock()
		return
	}
	r.connected = connected
	if !connected {
		if r.state == StateJoined {
			r.state = StateJoining
		}
		r.mu.Unlock()
		return
	}
	r.state = StateJoining
	rejoin := r.joinedOnce
	r.mu.Unlock()

	if err := r.ch.Emit(r.ctx, EventJoin, roomRef{RoomID: r.id}); err != nil {
		// the next connect tries again
		r.logger.Debug("join failed", slog.String("error", err.Error()))
		return
	}

	r.mu.Lock()
	if r.closed || !r.connected {
		r.mu.Unlock()
		return
	}
	r.state = StateJoined
	r.joinedOnce = true
	r.mu.Unlock()
	r.logger.Debug("joined", slog.Bool("rejoin", rejoin))

	if rejoin && r.resync != nil {
		go r.backfill()
	}
}

// backfill replaces the confirmed comments with a fresh list. Pending
// comments stay at the tail in submission order.
func (r *Room) backfill() {
	list, err := r.resync(r.ctx)
	if err != nil {
		if r.ctx.Err() == nil {
			r.logger.Warn("comment resync failed", slog.String("error", err.Error()))
		}
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	next := slices.Clone(list)
	pending := make(map[string]int, len(r.pending))
	for _, c := range r.comments {
		if c.Pending {
			pending[c.TempID] = len(next)
			next = append(next, c)
		}
	}
	r.comments = next
	r.pending = pending
	snap := slices.Clone(r.comments)
	r.mu.Unlock()
	r.changed(snap)
}

// =========================================================================
// RECONCILIATION
// =========================================================================

// comment decodes an event payload. ok is false for undecodable payloads,
// authorless comments and events of other rooms, which are all ignored.
func (r *Room) comment(data []byte) (model.Comment, bool) {
	c, ok, err := mapper.DecodeComment(data)
	if err != nil {
		r.logger.Debug("ignoring malformed comment event", slog.String("error", err.Error()))
		return model.Comment{}, false
	}
	return c, ok && c.RoomID == r.id
}

func (r *Room) onCreated(data json.RawMessage) {
	c, ok := r.comment(data)
	if !ok {
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if idx, mine := r.pending[c.TempID]; mine && c.TempID != "" {
		delete(r.pending, c.TempID)
		r.comments[idx] = c
	} else if r.indexLocked(c.ID) < 0 {
		r.comments = append(r.comments, c)
	}
	snap := slices.Clone(r.comments)
	r.mu.Unlock()
	r.changed(snap)
}

func (r *Room) onUpdated(data json.RawMessage) {
	c, ok := r.comment(data)
	if !ok {
		return
	}

	r.mu.Lock()
	idx := r.indexLocked(c.ID)
	if r.closed || idx < 0 {
		r.mu.Unlock()
		return
	}
	r.comments[idx] = c
	snap := slices.Clone(r.comments)
	r.mu.Unlock()
	r.changed(snap)
}

// onDeleted removes by id. The payload may carry just the id; roomId is
// checked only when present.
func (r *Room) onDeleted(data json.RawMessage) {
	id, roomID, err := mapper.DecodeCommentRef(data)
	if err != nil {
		r.logger.Debug("ignoring malformed delete event", slog.String("error", err.Error()))
		return
	}
	if roomID != "" && roomID != r.id {
		return
	}

	r.mu.Lock()
	idx := r.indexLocked(id)
	if r.closed || idx < 0 {
		r.mu.Unlock()
		return
	}
	r.removeLocked(idx)
	snap := slices.Clone(r.comments)
	r.mu.Unlock()
	r.changed(snap)
}

// indexLocked finds a confirmed comment by id, or returns -1.
func (r *Room) indexLocked(id int64) int {
	if id == model.PendingCommentID {
		return -1
	}
	return slices.IndexFunc(r.comments, func(c model.Comment) bool { return c.ID == id })
}

// removeLocked deletes comments[idx] and shifts the pending registry.
func (r *Room) removeLocked(idx int) {
	if removed := r.comments[idx]; removed.Pending {
		delete(r.pending, removed.TempID)
	}
	r.comments = slices.Delete(r.comments, idx, idx+1)
	for tempID, i := range r.pending {
		if i > idx {
			r.pending[tempID] = i - 1
		}
	}
}

func (r *Room) changed(snap []model.Comment) {
	if r.onChange != nil {
		r.onChange(snap)
	}
}
