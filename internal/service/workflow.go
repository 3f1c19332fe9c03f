package service

import (
	"context"
	"fmt"
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

// WorkflowService drives the invitation/join-request state machine:
// none -> pending -> accepted|declined, with pending enforced unique
// per (party, room) and resolution enforced exactly-once. All contested
// transitions delegate to atomic repository operations.
type WorkflowService struct {
	rooms  repository.RoomRepository
	users  repository.UserRepository
	notifs repository.NotificationRepository
	hub    *hub.Hub
	pub    events.Publisher
	log    *zap.SugaredLogger
}

func NewWorkflowService(
	rooms repository.RoomRepository,
	users repository.UserRepository,
	notifs repository.NotificationRepository,
	h *hub.Hub,
	pub events.Publisher,
	log *zap.SugaredLogger,
) *WorkflowService {
	return &WorkflowService{rooms: rooms, users: users, notifs: notifs, hub: h, pub: pub, log: log}
}

// Invite issues a room invitation to the user registered under email.
// The inviter must be a member; the target must exist and not already
// be one; a second pending invitation for the same (target, room) is a
// conflict.
func (s *WorkflowService) Invite(ctx context.Context, inviterID, roomID primitive.ObjectID, email string) (*models.Notification, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apperr.Validation("email is required")
	}

	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasMember(inviterID) {
		return nil, apperr.Authorization("you are not a member of this room")
	}

	target, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if room.HasMember(target.ID) {
		return nil, apperr.Conflict("user is already a member")
	}

	inviter, err := s.users.FindByID(ctx, inviterID)
	if err != nil {
		return nil, err
	}

	n := &models.Notification{
		RecipientID: target.ID,
		SenderID:    inviterID,
		Type:        models.NotifRoomInvitation,
		Title:       "Room Invitation",
		Body:        fmt.Sprintf("%s invited you to join %q", inviter.Username, room.Name),
		Data:        models.InvitationData(roomID),
	}
	n, created, err := s.notifs.CreatePendingOnce(ctx, n)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, apperr.Conflict("invitation already sent")
	}

	s.deliver(ctx, n, inviter, room)
	return n, nil
}

// RequestJoin files a join request addressed to the room's creator.
func (s *WorkflowService) RequestJoin(ctx context.Context, userID, roomID primitive.ObjectID) (*models.Notification, error) {
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.HasMember(userID) {
		return nil, apperr.Conflict("you are already a member of this room")
	}
	if room.MaxMembers > 0 && len(room.Members) >= room.MaxMembers {
		return nil, apperr.Conflict("room is full")
	}

	requester, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	n := &models.Notification{
		RecipientID: room.CreatedBy,
		SenderID:    userID,
		Type:        models.NotifJoinRequest,
		Title:       "New Join Request",
		Body:        fmt.Sprintf("%s wants to join %q", requester.Username, room.Name),
		Data:        models.JoinRequestData(roomID),
	}
	n, created, err := s.notifs.CreatePendingOnce(ctx, n)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, apperr.Conflict("join request already sent")
	}

	s.deliver(ctx, n, requester, room)
	return n, nil
}

// Respond resolves a pending invitation or join request. Only the
// recipient may respond; a resolved notification cannot be responded to
// again. On accept the new member is appended only if still absent —
// a user who joined through another path in the meantime is a silent
// no-op on membership, and the notification still resolves accepted.
func (s *WorkflowService) Respond(ctx context.Context, notificationID, responderID primitive.ObjectID, action string) (*models.Notification, error) {
	var state models.ActionState
	switch action {
	case "accept":
		state = models.ActionAccepted
	case "decline":
		state = models.ActionDeclined
	default:
		return nil, apperr.Validation("action must be accept or decline")
	}

	n, err := s.notifs.FindByID(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if n.RecipientID != responderID {
		return nil, apperr.Authorization("not your notification")
	}
	if !n.Actionable() {
		return nil, apperr.Validation("notification does not take a response")
	}
	if n.ActionTaken != models.ActionPending {
		return nil, apperr.Conflict("notification already %s", n.ActionTaken)
	}
	if n.Data.RoomID == nil {
		return nil, apperr.Validation("notification has no room attached")
	}
	roomID := *n.Data.RoomID

	// Invitations admit the recipient; join requests admit the sender.
	newMemberID := n.RecipientID
	if n.Type == models.NotifJoinRequest {
		newMemberID = n.SenderID
	}

	if state == models.ActionAccepted {
		added, err := s.rooms.AddMember(ctx, roomID, models.Membership{
			UserID:   newMemberID,
			Role:     models.RoleMember,
			JoinedAt: time.Now().UTC(),
		})
		if err != nil {
			return nil, err
		}
		if added {
			s.pub.Publish(ctx, events.TopicMemberJoined, roomID.Hex(), map[string]string{
				"room_id": roomID.Hex(),
				"user_id": newMemberID.Hex(),
			})
		}
	}

	resolved, err := s.notifs.Resolve(ctx, notificationID, state)
	if err != nil {
		return nil, err
	}
	if !resolved {
		// A concurrent responder won the compare-and-swap.
		return nil, apperr.Conflict("notification already resolved")
	}
	n.ActionTaken = state
	n.IsRead = true

	// Tell the issuing party how it went; non-persisted, best-effort.
	// For invitations that is the inviter, for join requests the
	// requester — the sender either way.
	s.hub.NotifyUser(n.SenderID, EventMembershipUpdated, map[string]string{
		"notification_id": n.ID.Hex(),
		"room_id":         roomID.Hex(),
		"user_id":         newMemberID.Hex(),
		"action":          string(state),
	})

	s.log.Infow("notification resolved",
		"notification", n.ID.Hex(), "type", n.Type, "action", state)
	return n, nil
}

func (s *WorkflowService) MarkRead(ctx context.Context, notificationID, userID primitive.ObjectID) error {
	return s.notifs.MarkRead(ctx, notificationID, userID)
}

func (s *WorkflowService) MarkAllRead(ctx context.Context, userID primitive.ObjectID) error {
	return s.notifs.MarkAllRead(ctx, userID)
}

// NotificationPage is the paginated mailbox listing.
type NotificationPage struct {
	Notifications []*models.Notification `json:"notifications"`
	UnreadCount   int64                  `json:"unreadCount"`
	HasMore       bool                   `json:"hasMore"`
}

func (s *WorkflowService) List(ctx context.Context, userID primitive.ObjectID, page, limit int64, unreadOnly bool) (*NotificationPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	notifs, err := s.notifs.FindByRecipient(ctx, userID, page, limit, unreadOnly)
	if err != nil {
		return nil, err
	}
	unread, err := s.notifs.CountUnread(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.hydrate(ctx, notifs)
	return &NotificationPage{
		Notifications: notifs,
		UnreadCount:   unread,
		HasMore:       int64(len(notifs)) == limit,
	}, nil
}

// deliver pushes the freshly created notification to the recipient's
// live sessions and onto the event stream.
func (s *WorkflowService) deliver(ctx context.Context, n *models.Notification, sender *models.User, room *models.Room) {
	n.SenderName = sender.Username
	n.SenderAvatar = sender.Avatar
	n.RoomName = room.Name
	s.hub.NotifyUser(n.RecipientID, EventNotification, n)
	s.pub.Publish(ctx, events.TopicNotificationCreated, n.ID.Hex(), n)
}

func (s *WorkflowService) hydrate(ctx context.Context, notifs []*models.Notification) {
	senderIDs := make([]primitive.ObjectID, 0, len(notifs))
	seen := make(map[primitive.ObjectID]bool)
	for _, n := range notifs {
		if !seen[n.SenderID] {
			seen[n.SenderID] = true
			senderIDs = append(senderIDs, n.SenderID)
		}
	}
	users, err := s.users.FindByIDs(ctx, senderIDs)
	if err != nil {
		s.log.Debugw("hydrate notification senders", "err", err)
		return
	}
	roomNames := make(map[primitive.ObjectID]string)
	for _, n := range notifs {
		if u, ok := users[n.SenderID]; ok {
			n.SenderName = u.Username
			n.SenderAvatar = u.Avatar
		}
		if n.Data.RoomID != nil {
			rid := *n.Data.RoomID
			name, ok := roomNames[rid]
			if !ok {
				if room, err := s.rooms.FindByID(ctx, rid); err == nil {
					name = room.Name
				}
				roomNames[rid] = name
			}
			n.RoomName = name
		}
	}
}
