package apitest

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sakif/snippethub/internal/model"
)

const liveWriteWait = 5 * time.Second

// liveFrame is the envelope of every live-channel message in both
// directions.
type liveFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type liveConn struct {
	ws     *websocket.Conn
	userID int64

	wmu sync.Mutex // gorilla allows one concurrent writer

	rooms map[string]bool // guarded by roomHub.mu
}

func (c *liveConn) send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(liveWriteWait))
	return c.ws.WriteJSON(liveFrame{Event: event, Data: payload})
}

// roomHub is the live-channel side of the fake backend: it accepts
// websocket connections, tracks room membership and fans comment events
// out to the members of a room.
type roomHub struct {
	s        *Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*liveConn]struct{}
	joins map[string]int
}

func newRoomHub(s *Server) *roomHub {
	return &roomHub{
		s: s,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[*liveConn]struct{}),
		joins: make(map[string]int),
	}
}

func (h *roomHub) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("apitest: websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	userID, _ := userIDFromContext(r.Context())
	c := &liveConn{ws: ws, userID: userID, rooms: make(map[string]bool)}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.conns, c)
		h.mu.Unlock()
		ws.Close()
	}()

	for {
		var f liveFrame
		if err := ws.ReadJSON(&f); err != nil {
			return
		}
		h.handle(c, f)
	}
}

func (h *roomHub) handle(c *liveConn, f liveFrame) {
	switch f.Event {
	case "room:join":
		var in struct {
			RoomID string `json:"roomId"`
		}
		if json.Unmarshal(f.Data, &in) != nil || in.RoomID == "" {
			return
		}
		h.mu.Lock()
		c.rooms[in.RoomID] = true
		h.joins[in.RoomID]++
		h.mu.Unlock()

	case "room:leave":
		var in struct {
			RoomID string `json:"roomId"`
		}
		if json.Unmarshal(f.Data, &in) != nil {
			return
		}
		h.mu.Lock()
		delete(c.rooms, in.RoomID)
		h.mu.Unlock()

	case "comment:create":
		var in struct {
			RoomID string `json:"roomId"`
			Body   string `json:"body"`
			TempID string `json:"tempId"`
		}
		if json.Unmarshal(f.Data, &in) != nil {
			return
		}
		created, ok := h.s.createComment(in.RoomID, c.userID, in.Body)
		if !ok {
			return
		}
		// only the submitter gets its tempId echoed back
		h.broadcast(in.RoomID, "comment:created", created, func(m *liveConn) any {
			if m == c {
				echo := created
				echo.TempID = in.TempID
				return echo
			}
			return created
		})

	case "comment:update":
		var in struct {
			ID   int64  `json:"id"`
			Body string `json:"body"`
		}
		if json.Unmarshal(f.Data, &in) != nil {
			return
		}
		if updated, ok := h.s.updateComment(in.ID, c.userID, in.Body); ok {
			h.broadcast(updated.RoomID, "comment:updated", updated, nil)
		}

	case "comment:delete":
		var in struct {
			ID int64 `json:"id"`
		}
		if json.Unmarshal(f.Data, &in) != nil {
			return
		}
		if deleted, ok := h.s.deleteComment(in.ID, c.userID); ok {
			h.broadcast(deleted.RoomID, "comment:deleted", deleted, nil)
		}
	}
}

// broadcast sends data to every member of room. perConn, when set, picks the
// payload for each member.
func (h *roomHub) broadcast(room, event string, data any, perConn func(*liveConn) any) {
	h.mu.Lock()
	members := make([]*liveConn, 0, len(h.conns))
	for c := range h.conns {
		if c.rooms[room] {
			members = append(members, c)
		}
	}
	h.mu.Unlock()

	for _, c := range members {
		payload := data
		if perConn != nil {
			payload = perConn(c)
		}
		if err := c.send(event, payload); err != nil {
			slog.Debug("apitest: live send failed", slog.String("event", event), slog.String("error", err.Error()))
		}
	}
}

// closeAll drops every live connection. Read loops exit and unregister.
func (h *roomHub) closeAll() {
	h.mu.Lock()
	conns := make([]*liveConn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.ws.Close()
	}
}

// =========================================================================
// LIVE TEST CONTROLS
// =========================================================================

// DropLive closes every live connection without a close handshake, as a
// network failure would.
func (s *Server) DropLive() {
	s.rooms.closeAll()
}

// EmitLive pushes event with c as payload to the members of room, as if
// another participant had caused it.
func (s *Server) EmitLive(room, event string, c model.Comment) {
	s.rooms.broadcast(room, event, c, nil)
}

// LiveJoins counts the room:join requests received for room, rejoins
// included.
func (s *Server) LiveJoins(room string) int {
	s.rooms.mu.Lock()
	defer s.rooms.mu.Unlock()
	return s.rooms.joins[room]
}

// LiveMembers counts the open connections currently joined to room.
func (s *Server) LiveMembers(room string) int {
	s.rooms.mu.Lock()
	defer s.rooms.mu.Unlock()
	n := 0
	for c := range s.rooms.conns {
		if c.rooms[room] {
			n++
		}
	}
	return n
}

// LiveConnections counts the open websocket connections.
func (s *Server) LiveConnections() int {
	s.rooms.mu.Lock()
	defer s.rooms.mu.Unlock()
	return len(s.rooms.conns)
}

// =========================================================================
// COMMENT STORAGE
// =========================================================================

// RoomID is the live room of a snippet's comment thread.
func RoomID(snippetID int64) string {
	return "snippet:" + strconv.FormatInt(snippetID, 10)
}

func snippetOfRoom(room string) (int64, bool) {
	rest, ok := strings.CutPrefix(room, "snippet:")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	return id, err == nil
}

func (s *Server) liveCommentLocked(snippetID int64, c *comment) model.Comment {
	return model.Comment{
		ID:        c.id,
		RoomID:    RoomID(snippetID),
		Body:      c.body,
		Author:    s.authorLocked(c.authorID),
		CreatedAt: c.createdAt.Format(time.RFC3339),
		UpdatedAt: c.updatedAt.Format(time.RFC3339),
	}
}

func (s *Server) createComment(room string, authorID int64, body string) (model.Comment, bool) {
	snippetID, ok := snippetOfRoom(room)
	if !ok || strings.TrimSpace(body) == "" {
		return model.Comment{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sn, ok := s.snippets[snippetID]
	if !ok {
		return model.Comment{}, false
	}
	now := time.Now().UTC()
	c := &comment{id: s.nextIDLocked(), authorID: authorID, body: body, createdAt: now, updatedAt: now}
	sn.comments = append(sn.comments, c)
	return s.liveCommentLocked(snippetID, c), true
}

// findCommentLocked returns the comment with id and the snippet holding it.
func (s *Server) findCommentLocked(id int64) (*snippet, int, bool) {
	for _, sn := range s.snippets {
		for i, c := range sn.comments {
			if c.id == id {
				return sn, i, true
			}
		}
	}
	return nil, 0, false
}

func (s *Server) updateComment(id, userID int64, body string) (model.Comment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sn, i, ok := s.findCommentLocked(id)
	if !ok || sn.comments[i].authorID != userID || strings.TrimSpace(body) == "" {
		return model.Comment{}, false
	}
	c := sn.comments[i]
	c.body = body
	c.updatedAt = time.Now().UTC()
	return s.liveCommentLocked(sn.id, c), true
}

func (s *Server) deleteComment(id, userID int64) (model.Comment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sn, i, ok := s.findCommentLocked(id)
	if !ok || sn.comments[i].authorID != userID {
		return model.Comment{}, false
	}
	c := sn.comments[i]
	sn.comments = append(sn.comments[:i], sn.comments[i+1:]...)
	return s.liveCommentLocked(sn.id, c), true
}
