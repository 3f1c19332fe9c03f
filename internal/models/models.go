// Package models holds the persisted entities shared by the repository
// and service layers. Field names mirror the MongoDB documents.
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type User struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username string             `bson:"username" json:"username"`
	Email    string             `bson:"email" json:"email"`
	Password string             `bson:"password" json:"-"`
	Avatar   string             `bson:"avatar,omitempty" json:"avatar,omitempty"`
	Bio      string             `bson:"bio,omitempty" json:"bio,omitempty"`
	IsOnline bool               `bson:"is_online" json:"isOnline"`
	LastSeen time.Time          `bson:"last_seen,omitempty" json:"lastSeen,omitempty"`
}

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

type Membership struct {
	UserID   primitive.ObjectID `bson:"user" json:"userId"`
	Role     Role               `bson:"role" json:"role"`
	JoinedAt time.Time          `bson:"joined_at" json:"joinedAt"`
}

type Room struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name        string             `bson:"name" json:"name"`
	Description string             `bson:"description" json:"description"`
	CreatedBy   primitive.ObjectID `bson:"created_by" json:"createdBy"`
	Members     []Membership       `bson:"members" json:"members"`
	IsPrivate   bool               `bson:"is_private" json:"isPrivate"`
	MaxMembers  int                `bson:"max_members" json:"maxMembers"`
	CreatedAt   time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updatedAt"`
}

// HasMember reports whether uid appears in the membership list. Only a
// convenience for hydrated documents; authorization checks in request
// paths go through RoomRepository.IsMember instead.
func (r *Room) HasMember(uid primitive.ObjectID) bool {
	for _, m := range r.Members {
		if m.UserID == uid {
			return true
		}
	}
	return false
}

type MessageKind string

const (
	MessageText   MessageKind = "text"
	MessageImage  MessageKind = "image"
	MessageFile   MessageKind = "file"
	MessageSystem MessageKind = "system"
)

// MaxMessageContentLen bounds text message content, in runes.
const MaxMessageContentLen = 1000

type FileInfo struct {
	Filename     string `bson:"filename" json:"filename"`
	OriginalName string `bson:"original_name" json:"originalName"`
	MimeType     string `bson:"mimetype" json:"mimetype"`
	Size         int64  `bson:"size" json:"size"`
	URL          string `bson:"url" json:"url"`
}

type Reaction struct {
	UserID    primitive.ObjectID `bson:"user" json:"userId"`
	Emoji     string             `bson:"emoji" json:"emoji"`
	CreatedAt time.Time          `bson:"created_at" json:"createdAt"`
}

type Message struct {
	ID       primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	RoomID   primitive.ObjectID  `bson:"room" json:"roomId"`
	SenderID primitive.ObjectID  `bson:"sender" json:"senderId"`
	Kind     MessageKind         `bson:"type" json:"type"`
	Content  string              `bson:"content,omitempty" json:"content,omitempty"`
	File     *FileInfo           `bson:"file,omitempty" json:"file,omitempty"`
	ReplyTo  *primitive.ObjectID `bson:"reply_to,omitempty" json:"replyTo,omitempty"`
	IsEdited bool                `bson:"is_edited" json:"isEdited"`
	EditedAt time.Time           `bson:"edited_at,omitempty" json:"editedAt,omitempty"`
	// Reactions holds at most one entry per (user, emoji) pair.
	Reactions []Reaction `bson:"reactions" json:"reactions"`
	CreatedAt time.Time  `bson:"created_at" json:"createdAt"`

	// Hydrated for delivery, never persisted.
	SenderName   string `bson:"-" json:"senderName,omitempty"`
	SenderAvatar string `bson:"-" json:"senderAvatar,omitempty"`
}

type NotificationType string

const (
	NotifRoomInvitation NotificationType = "room_invitation"
	NotifJoinRequest    NotificationType = "join_request"
	NotifMention        NotificationType = "message_mention"
	NotifRoomUpdate     NotificationType = "room_update"
)

type ActionState string

const (
	ActionPending  ActionState = "pending"
	ActionAccepted ActionState = "accepted"
	ActionDeclined ActionState = "declined"
	ActionNone     ActionState = "none"
)

// NotificationData is the per-type payload. Which fields are set is
// determined by the notification type: invitations and join requests
// carry RoomID; mentions carry RoomID and MessageID; room updates carry
// RoomID. The constructors below are the only writers.
type NotificationData struct {
	RoomID    *primitive.ObjectID `bson:"room_id,omitempty" json:"roomId,omitempty"`
	MessageID *primitive.ObjectID `bson:"message_id,omitempty" json:"messageId,omitempty"`
}

func InvitationData(roomID primitive.ObjectID) NotificationData {
	return NotificationData{RoomID: &roomID}
}

func JoinRequestData(roomID primitive.ObjectID) NotificationData {
	return NotificationData{RoomID: &roomID}
}

func MentionData(roomID, messageID primitive.ObjectID) NotificationData {
	return NotificationData{RoomID: &roomID, MessageID: &messageID}
}

func RoomUpdateData(roomID primitive.ObjectID) NotificationData {
	return NotificationData{RoomID: &roomID}
}

type Notification struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RecipientID primitive.ObjectID `bson:"recipient" json:"recipientId"`
	SenderID    primitive.ObjectID `bson:"sender" json:"senderId"`
	Type        NotificationType   `bson:"type" json:"type"`
	Title       string             `bson:"title" json:"title"`
	Body        string             `bson:"message" json:"message"`
	Data        NotificationData   `bson:"data" json:"data"`
	IsRead      bool               `bson:"is_read" json:"isRead"`
	ActionTaken ActionState        `bson:"action_taken" json:"actionTaken"`
	CreatedAt   time.Time          `bson:"created_at" json:"createdAt"`

	// Hydrated for delivery.
	SenderName   string `bson:"-" json:"senderName,omitempty"`
	SenderAvatar string `bson:"-" json:"senderAvatar,omitempty"`
	RoomName     string `bson:"-" json:"roomName,omitempty"`
}

// Actionable reports whether the notification type participates in the
// pending/accepted/declined lifecycle.
func (n *Notification) Actionable() bool {
	return n.Type == NotifRoomInvitation || n.Type == NotifJoinRequest
}
