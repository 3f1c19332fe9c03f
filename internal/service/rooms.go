package service

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/KaranNegi08/chatZila/internal/apperr"
	"github.com/KaranNegi08/chatZila/internal/models"
	"github.com/KaranNegi08/chatZila/internal/presence"
	"github.com/KaranNegi08/chatZila/internal/repository"
)

const (
	maxRoomNameLen    = 50
	maxRoomDescLen    = 200
	defaultMaxMembers = 100
	availableLimit    = 20
)

type RoomService struct {
	rooms    repository.RoomRepository
	users    repository.UserRepository
	presence presence.Store
	log      *zap.SugaredLogger
}

func NewRoomService(rooms repository.RoomRepository, users repository.UserRepository, pres presence.Store, log *zap.SugaredLogger) *RoomService {
	return &RoomService{rooms: rooms, users: users, presence: pres, log: log}
}

// Create seeds the creator as the room's single owner membership.
func (s *RoomService) Create(ctx context.Context, creatorID primitive.ObjectID, name, description string, isPrivate bool) (*models.Room, error) {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if name == "" {
		return nil, apperr.Validation("room name is required")
	}
	if len([]rune(name)) > maxRoomNameLen {
		return nil, apperr.Validation("room name must be at most %d characters", maxRoomNameLen)
	}
	if len([]rune(description)) > maxRoomDescLen {
		return nil, apperr.Validation("room description must be at most %d characters", maxRoomDescLen)
	}

	room := &models.Room{
		Name:        name,
		Description: description,
		CreatedBy:   creatorID,
		IsPrivate:   isPrivate,
		MaxMembers:  defaultMaxMembers,
		Members: []models.Membership{{
			UserID:   creatorID,
			Role:     models.RoleOwner,
			JoinedAt: time.Now().UTC(),
		}},
	}
	room, err := s.rooms.Create(ctx, room)
	if err != nil {
		return nil, err
	}
	s.log.Infow("room created", "room", room.ID.Hex(), "creator", creatorID.Hex())
	return room, nil
}

func (s *RoomService) MyRooms(ctx context.Context, userID primitive.ObjectID) ([]*models.Room, error) {
	return s.rooms.FindByMember(ctx, userID)
}

// Available lists public rooms the user has not joined, newest first,
// optionally filtered by a name search.
func (s *RoomService) Available(ctx context.Context, userID primitive.ObjectID, search string) ([]*models.Room, error) {
	return s.rooms.FindAvailable(ctx, userID, strings.TrimSpace(search), availableLimit)
}

// RoomMember is a hydrated membership entry for the members listing.
type RoomMember struct {
	UserID   primitive.ObjectID `json:"userId"`
	Username string             `json:"username"`
	Avatar   string             `json:"avatar,omitempty"`
	Bio      string             `json:"bio,omitempty"`
	IsOnline bool               `json:"isOnline"`
	LastSeen time.Time          `json:"lastSeen,omitempty"`
	Role     models.Role        `json:"role"`
	JoinedAt time.Time          `json:"joinedAt"`
}

// Members returns the hydrated membership list; callers must themselves
// be members.
func (s *RoomService) Members(ctx context.Context, roomID, userID primitive.ObjectID) ([]RoomMember, error) {
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasMember(userID) {
		return nil, apperr.Authorization("you are not a member of this room")
	}

	ids := make([]primitive.ObjectID, 0, len(room.Members))
	for _, m := range room.Members {
		ids = append(ids, m.UserID)
	}
	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]RoomMember, 0, len(room.Members))
	for _, m := range room.Members {
		rm := RoomMember{UserID: m.UserID, Role: m.Role, JoinedAt: m.JoinedAt}
		if u, ok := users[m.UserID]; ok {
			rm.Username = u.Username
			rm.Avatar = u.Avatar
			rm.Bio = u.Bio
			rm.IsOnline = u.IsOnline
			rm.LastSeen = u.LastSeen
		}
		// Redis is fresher than the user document: it expires on its own
		// when a process dies without marking anyone offline.
		if st, err := s.presence.Get(ctx, m.UserID.Hex()); err == nil && !st.LastSeen.IsZero() {
			rm.IsOnline = st.Online
			rm.LastSeen = st.LastSeen
		}
		out = append(out, rm)
	}
	return out, nil
}
