package service

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/KaranNegi08/chatZila/internal/apperr"
	"github.com/KaranNegi08/chatZila/internal/events"
	"github.com/KaranNegi08/chatZila/internal/hub"
	"github.com/KaranNegi08/chatZila/internal/models"
	"github.com/KaranNegi08/chatZila/internal/repository"
)

// MessageService persists messages and fans them out to the sessions
// currently viewing the room. The durable write is the boundary: the
// HTTP/socket response only depends on persistence, pushes are
// best-effort.
type MessageService struct {
	rooms    repository.RoomRepository
	messages repository.MessageRepository
	users    repository.UserRepository
	hub      *hub.Hub
	pub      events.Publisher
	log      *zap.SugaredLogger
}

func NewMessageService(
	rooms repository.RoomRepository,
	messages repository.MessageRepository,
	users repository.UserRepository,
	h *hub.Hub,
	pub events.Publisher,
	log *zap.SugaredLogger,
) *MessageService {
	return &MessageService{rooms: rooms, messages: messages, users: users, hub: h, pub: pub, log: log}
}

type PostInput struct {
	RoomID   primitive.ObjectID
	SenderID primitive.ObjectID
	Content  string
	Kind     models.MessageKind
	ReplyTo  *primitive.ObjectID
	File     *models.FileInfo
}

// Post validates, persists, touches room activity, then pushes the
// hydrated message to every live session in the room. Pushing happens
// synchronously right after the insert so in-room delivery order
// matches persisted order.
func (s *MessageService) Post(ctx context.Context, in PostInput) (*models.Message, error) {
	if in.Kind == "" {
		in.Kind = models.MessageText
	}
	switch in.Kind {
	case models.MessageText, models.MessageImage, models.MessageFile, models.MessageSystem:
	default:
		return nil, apperr.Validation("unknown message type %q", in.Kind)
	}

	content := strings.TrimSpace(in.Content)
	if in.Kind == models.MessageText {
		if content == "" {
			return nil, apperr.Validation("message content is required")
		}
		if len([]rune(content)) > models.MaxMessageContentLen {
			return nil, apperr.Validation("message content must be at most %d characters", models.MaxMessageContentLen)
		}
	}

	isMember, err := s.rooms.IsMember(ctx, in.RoomID, in.SenderID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, apperr.Authorization("you are not a member of this room")
	}

	msg := &models.Message{
		RoomID:   in.RoomID,
		SenderID: in.SenderID,
		Kind:     in.Kind,
		Content:  content,
		ReplyTo:  in.ReplyTo,
		File:     in.File,
	}
	msg, err = s.messages.Insert(ctx, msg)
	if err != nil {
		return nil, err
	}

	if err := s.rooms.TouchActivity(ctx, in.RoomID, msg.CreatedAt); err != nil {
		s.log.Warnw("touch room activity", "room", in.RoomID.Hex(), "err", err)
	}

	s.hydrateSender(ctx, msg)
	s.hub.BroadcastToRoom(in.RoomID, EventReceiveMessage, msg)
	s.pub.Publish(ctx, events.TopicMessageCreated, msg.ID.Hex(), msg)
	return msg, nil
}

// List returns a page of the room's messages in chronological order;
// only members may read.
func (s *MessageService) List(ctx context.Context, roomID, userID primitive.ObjectID, page, limit int64) ([]*models.Message, error) {
	isMember, err := s.rooms.IsMember(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, apperr.Authorization("you are not a member of this room")
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}
	msgs, err := s.messages.FindByRoom(ctx, roomID, page, limit)
	if err != nil {
		return nil, err
	}

	s.hydrateSenders(ctx, msgs)

	// Query is newest-first for the skip/limit; flip for display.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Edit replaces a text message's content; only the sender may edit.
func (s *MessageService) Edit(ctx context.Context, messageID, userID primitive.ObjectID, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Validation("message content is required")
	}
	if len([]rune(content)) > models.MaxMessageContentLen {
		return nil, apperr.Validation("message content must be at most %d characters", models.MaxMessageContentLen)
	}
	msg, err := s.messages.SetContent(ctx, messageID, userID, content, time.Now().UTC())
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			// Distinguish "not yours" from "gone" for a usable error.
			if _, ferr := s.messages.FindByID(ctx, messageID); ferr == nil {
				return nil, apperr.Authorization("only the sender can edit a message")
			}
		}
		return nil, err
	}
	s.hydrateSender(ctx, msg)
	s.hub.BroadcastToRoom(msg.RoomID, EventReceiveMessage, msg)
	return msg, nil
}

// Delete removes a message; only the sender may delete.
func (s *MessageService) Delete(ctx context.Context, messageID, userID primitive.ObjectID) error {
	err := s.messages.Delete(ctx, messageID, userID)
	if err != nil && apperr.IsKind(err, apperr.KindNotFound) {
		if _, ferr := s.messages.FindByID(ctx, messageID); ferr == nil {
			return apperr.Authorization("only the sender can delete a message")
		}
	}
	return err
}

// ToggleReaction flips the (user, emoji) pair on the message and
// returns the updated set. Any authenticated user may react as long as
// the message exists; room membership is deliberately not checked.
func (s *MessageService) ToggleReaction(ctx context.Context, messageID, userID primitive.ObjectID, emoji string) ([]models.Reaction, error) {
	if strings.TrimSpace(emoji) == "" {
		return nil, apperr.Validation("emoji is required")
	}
	return s.messages.ToggleReaction(ctx, messageID, userID, emoji)
}

func (s *MessageService) hydrateSender(ctx context.Context, m *models.Message) {
	u, err := s.users.FindByID(ctx, m.SenderID)
	if err != nil {
		s.log.Debugw("hydrate sender", "sender", m.SenderID.Hex(), "err", err)
		return
	}
	m.SenderName = u.Username
	m.SenderAvatar = u.Avatar
}

func (s *MessageService) hydrateSenders(ctx context.Context, msgs []*models.Message) {
	ids := make([]primitive.ObjectID, 0, len(msgs))
	seen := make(map[primitive.ObjectID]bool)
	for _, m := range msgs {
		if !seen[m.SenderID] {
			seen[m.SenderID] = true
			ids = append(ids, m.SenderID)
		}
	}
	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		s.log.Debugw("hydrate senders", "err", err)
		return
	}
	for _, m := range msgs {
		if u, ok := users[m.SenderID]; ok {
			m.SenderName = u.Username
			m.SenderAvatar = u.Avatar
		}
	}
}
