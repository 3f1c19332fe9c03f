package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/KaranNegi08/chatZila/internal/apperr"
	"github.com/KaranNegi08/chatZila/internal/auth"
	"github.com/KaranNegi08/chatZila/internal/hub"
	"github.com/KaranNegi08/chatZila/internal/models"
	"github.com/KaranNegi08/chatZila/internal/presence"
	"github.com/KaranNegi08/chatZila/internal/repository"
	"github.com/KaranNegi08/chatZila/internal/service"
)

// clientEvent is the inbound frame shape: an event name plus a payload
// whose fields depend on the event.
type clientEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type WSConfig struct {
	PingInterval  time.Duration
	WriteDeadline time.Duration
	MaxMsgSize    int64
}

// WSHandler owns one websocket connection's lifecycle: authenticate,
// register a session, pump frames both ways, clean up on disconnect.
type WSHandler struct {
	hub      *hub.Hub
	messages *service.MessageService
	users    repository.UserRepository
	presence presence.Store
	jwt      *auth.Manager
	cfg      WSConfig
	log      *zap.SugaredLogger
}

func NewWSHandler(
	h *hub.Hub,
	messages *service.MessageService,
	users repository.UserRepository,
	pres presence.Store,
	jwt *auth.Manager,
	cfg WSConfig,
	log *zap.SugaredLogger,
) *WSHandler {
	return &WSHandler{hub: h, messages: messages, users: users, presence: pres, jwt: jwt, cfg: cfg, log: log}
}

// Serve handles /ws?token=<jwt>. The route must be mounted behind the
// fiber websocket upgrade middleware.
func (w *WSHandler) Serve(c *websocket.Conn) {
	defer c.Close()

	claims, err := w.jwt.Verify(c.Query("token"))
	if err != nil {
		_ = c.WriteJSON(hub.Event{Event: service.EventError, Data: errPayload("invalid token")})
		return
	}
	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		_ = c.WriteJSON(hub.Event{Event: service.EventError, Data: errPayload("invalid token")})
		return
	}

	ctx := context.Background()
	connID := uuid.New().String()
	session := w.hub.Register(connID, userID)
	w.markOnline(ctx, userID)

	done := make(chan struct{})
	go w.writePump(c, session, userID, done)

	w.readPump(c, session, userID, claims.Username)

	// Best-effort presence notices for rooms the session was viewing.
	for _, roomID := range w.hub.Rooms(session) {
		w.hub.BroadcastToRoom(roomID, service.EventUserLeft, wsMap{
			"roomId": roomID.Hex(), "userId": userID.Hex(), "username": claims.Username,
		})
	}
	w.hub.Unregister(session)
	<-done

	if w.hub.UserSessionCount(userID) == 0 {
		w.markOffline(ctx, userID)
	}
}

func (w *WSHandler) writePump(c *websocket.Conn, s *hub.Session, userID primitive.ObjectID, done chan<- struct{}) {
	ticker := time.NewTicker(w.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		close(done)
		_ = c.Close()
	}()
	for {
		select {
		case frame, ok := <-s.Out():
			if !ok {
				_ = c.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				return
			}
			_ = c.SetWriteDeadline(time.Now().Add(w.cfg.WriteDeadline))
			if err := c.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.SetWriteDeadline(time.Now().Add(w.cfg.WriteDeadline))
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				return
			}
			if err := w.presence.Refresh(context.Background(), userID.Hex()); err != nil {
				w.log.Debugw("presence refresh", "user", userID.Hex(), "err", err)
			}
		}
	}
}

func (w *WSHandler) readPump(c *websocket.Conn, s *hub.Session, userID primitive.ObjectID, username string) {
	c.SetReadLimit(w.cfg.MaxMsgSize)
	readWait := w.cfg.PingInterval * 2
	_ = c.SetReadDeadline(time.Now().Add(readWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			return
		}
		var ev clientEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			w.hub.Send(s, service.EventError, errPayload("malformed frame"))
			continue
		}
		w.dispatch(s, userID, username, ev)
	}
}

func (w *WSHandler) dispatch(s *hub.Session, userID primitive.ObjectID, username string, ev clientEvent) {
	ctx := context.Background()
	switch ev.Event {
	case "join-room":
		roomID, ok := w.roomID(s, ev.Data)
		if !ok {
			return
		}
		if err := w.hub.JoinRoom(ctx, s, roomID); err != nil {
			w.hub.Send(s, service.EventError, errPayload(apperr.Message(err)))
			return
		}
		w.hub.BroadcastToRoom(roomID, service.EventUserJoined, wsMap{
			"roomId": roomID.Hex(), "userId": userID.Hex(), "username": username,
		})

	case "leave-room":
		roomID, ok := w.roomID(s, ev.Data)
		if !ok {
			return
		}
		w.hub.LeaveRoom(s, roomID)
		w.hub.BroadcastToRoom(roomID, service.EventUserLeft, wsMap{
			"roomId": roomID.Hex(), "userId": userID.Hex(), "username": username,
		})

	case "send-message":
		var data struct {
			RoomID  string `json:"roomId"`
			Content string `json:"content"`
			Type    string `json:"type"`
			ReplyTo string `json:"replyTo"`
		}
		if err := json.Unmarshal(ev.Data, &data); err != nil {
			w.hub.Send(s, service.EventError, errPayload("malformed frame"))
			return
		}
		roomID, err := primitive.ObjectIDFromHex(data.RoomID)
		if err != nil {
			w.hub.Send(s, service.EventError, errPayload("invalid room id"))
			return
		}
		in := service.PostInput{
			RoomID:   roomID,
			SenderID: userID,
			Content:  data.Content,
			Kind:     models.MessageKind(data.Type),
		}
		if data.ReplyTo != "" {
			if replyTo, err := primitive.ObjectIDFromHex(data.ReplyTo); err == nil {
				in.ReplyTo = &replyTo
			}
		}
		// Fan-out to the room happens inside Post; the sender's own
		// session receives the message the same way everyone does.
		if _, err := w.messages.Post(ctx, in); err != nil {
			w.hub.Send(s, service.EventError, errPayload(apperr.Message(err)))
		}

	case "typing":
		var data struct {
			RoomID   string `json:"roomId"`
			IsTyping bool   `json:"isTyping"`
		}
		if err := json.Unmarshal(ev.Data, &data); err != nil {
			return
		}
		if roomID, err := primitive.ObjectIDFromHex(data.RoomID); err == nil {
			w.hub.BroadcastToRoom(roomID, service.EventTyping, wsMap{
				"roomId": data.RoomID, "userId": userID.Hex(),
				"username": username, "isTyping": data.IsTyping,
			})
		}

	default:
		// Unknown events are ignored, not errors; old clients may lag.
	}
}

func (w *WSHandler) roomID(s *hub.Session, data json.RawMessage) (primitive.ObjectID, bool) {
	var payload struct {
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		w.hub.Send(s, service.EventError, errPayload("malformed frame"))
		return primitive.NilObjectID, false
	}
	roomID, err := primitive.ObjectIDFromHex(payload.RoomID)
	if err != nil {
		w.hub.Send(s, service.EventError, errPayload("invalid room id"))
		return primitive.NilObjectID, false
	}
	return roomID, true
}

func (w *WSHandler) markOnline(ctx context.Context, userID primitive.ObjectID) {
	if err := w.presence.MarkOnline(ctx, userID.Hex()); err != nil {
		w.log.Debugw("presence online", "user", userID.Hex(), "err", err)
	}
	if err := w.users.SetOnline(ctx, userID, true, time.Now().UTC()); err != nil {
		w.log.Warnw("set online", "user", userID.Hex(), "err", err)
	}
}

func (w *WSHandler) markOffline(ctx context.Context, userID primitive.ObjectID) {
	if err := w.presence.MarkOffline(ctx, userID.Hex()); err != nil {
		w.log.Debugw("presence offline", "user", userID.Hex(), "err", err)
	}
	if err := w.users.SetOnline(ctx, userID, false, time.Now().UTC()); err != nil {
		w.log.Warnw("set offline", "user", userID.Hex(), "err", err)
	}
}

type wsMap = map[string]any

func errPayload(msg string) wsMap { return wsMap{"message": msg} }
