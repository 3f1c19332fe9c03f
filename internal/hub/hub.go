// Package hub tracks live websocket sessions and which room each one is
// currently viewing. Everything here is in-memory and rebuilt from
// nothing on restart; persisted membership lives in the repositories and
// is only consulted to gate room joins.
package hub

import (
	"context"
	"encoding/json"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/KaranNegi08/chatZila/internal/apperr"
)

// MembershipChecker answers whether a user is a persisted member of a
// room. Backed by the room repository; the hub never reads storage
// directly.
type MembershipChecker interface {
	IsMember(ctx context.Context, roomID, userID primitive.ObjectID) (bool, error)
}

// Event is the envelope for every server-to-client push.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Session is one live connection. The room set is guarded by the hub's
// mutex; the send channel is closed exactly once, by Unregister.
type Session struct {
	ID     string
	UserID primitive.ObjectID

	send   chan []byte
	rooms  map[primitive.ObjectID]struct{}
	closed bool
}

// Out exposes the outbound frames for the connection's write pump.
func (s *Session) Out() <-chan []byte { return s.send }

// push queues a frame without blocking. A full or closed session drops
// the frame; persistence is the durability boundary, not this channel.
func (s *Session) push(b []byte) bool {
	if s.closed {
		return false
	}
	select {
	case s.send <- b:
		return true
	default:
		return false
	}
}

type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byUser   map[primitive.ObjectID]map[string]*Session
	rooms    map[primitive.ObjectID]map[string]*Session

	members MembershipChecker
	log     *zap.SugaredLogger
	bufSize int
}

func New(members MembershipChecker, bufSize int, log *zap.SugaredLogger) *Hub {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Hub{
		sessions: make(map[string]*Session),
		byUser:   make(map[primitive.ObjectID]map[string]*Session),
		rooms:    make(map[primitive.ObjectID]map[string]*Session),
		members:  members,
		log:      log,
		bufSize:  bufSize,
	}
}

// Register creates a session for an authenticated connection.
func (h *Hub) Register(connID string, userID primitive.ObjectID) *Session {
	s := &Session{
		ID:     connID,
		UserID: userID,
		send:   make(chan []byte, h.bufSize),
		rooms:  make(map[primitive.ObjectID]struct{}),
	}
	h.mu.Lock()
	h.sessions[connID] = s
	if h.byUser[userID] == nil {
		h.byUser[userID] = make(map[string]*Session)
	}
	h.byUser[userID][connID] = s
	h.mu.Unlock()
	h.log.Debugw("session registered", "conn", connID, "user", userID.Hex())
	return s
}

// JoinRoom adds the session to a room's live set. The caller must be a
// persisted member; the check hits the room store, not the hub.
func (h *Hub) JoinRoom(ctx context.Context, s *Session, roomID primitive.ObjectID) error {
	ok, err := h.members.IsMember(ctx, roomID, s.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Authorization("you are not a member of this room")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return nil
	}
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[string]*Session)
	}
	h.rooms[roomID][s.ID] = s
	s.rooms[roomID] = struct{}{}
	return nil
}

// LeaveRoom is idempotent; leaving a room never joined is a no-op.
func (h *Hub) LeaveRoom(s *Session, roomID primitive.ObjectID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromRoom(s, roomID)
}

func (h *Hub) removeFromRoom(s *Session, roomID primitive.ObjectID) {
	delete(s.rooms, roomID)
	if set, ok := h.rooms[roomID]; ok {
		delete(set, s.ID)
		if len(set) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// Unregister removes the session from every joined room and closes its
// send channel. Safe to call more than once.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for roomID := range s.rooms {
		h.removeFromRoom(s, roomID)
	}
	delete(h.sessions, s.ID)
	if set, ok := h.byUser[s.UserID]; ok {
		delete(set, s.ID)
		if len(set) == 0 {
			delete(h.byUser, s.UserID)
		}
	}
	close(s.send)
	h.log.Debugw("session unregistered", "conn", s.ID, "user", s.UserID.Hex())
}

// SessionsInRoom resolves the live sessions currently viewing roomID.
// A persisted member who has not joined a live session is not included.
func (h *Hub) SessionsInRoom(roomID primitive.ObjectID) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.rooms[roomID]
	out := make([]*Session, 0, len(set))
	for _, s := range set {
		out = append(out, s)
	}
	return out
}

// Rooms snapshots the rooms the session has joined.
func (h *Hub) Rooms(s *Session) []primitive.ObjectID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]primitive.ObjectID, 0, len(s.rooms))
	for id := range s.rooms {
		out = append(out, id)
	}
	return out
}

// UserSessionCount reports how many live sessions a user holds. Zero
// means the user went fully offline.
func (h *Hub) UserSessionCount(userID primitive.ObjectID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID])
}

// BroadcastToRoom pushes one event to every session viewing the room.
// Delivery is best-effort; slow or closing sessions drop the frame.
func (h *Hub) BroadcastToRoom(roomID primitive.ObjectID, event string, data any) {
	b, err := json.Marshal(Event{Event: event, Data: data})
	if err != nil {
		h.log.Warnw("marshal broadcast", "event", event, "err", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.rooms[roomID] {
		if !s.push(b) {
			h.log.Debugw("dropped frame", "event", event, "conn", s.ID)
		}
	}
}

// NotifyUser pushes one event to every session belonging to the user,
// whatever rooms they are viewing. Used for live notification delivery.
func (h *Hub) NotifyUser(userID primitive.ObjectID, event string, data any) {
	b, err := json.Marshal(Event{Event: event, Data: data})
	if err != nil {
		h.log.Warnw("marshal notify", "event", event, "err", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.byUser[userID] {
		s.push(b)
	}
}

// Send pushes one event to a single session.
func (h *Hub) Send(s *Session, event string, data any) {
	b, err := json.Marshal(Event{Event: event, Data: data})
	if err != nil {
		h.log.Warnw("marshal send", "event", event, "err", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	s.push(b)
}

// Close unregisters every session; used during shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()
	for _, s := range sessions {
		h.Unregister(s)
	}
}
