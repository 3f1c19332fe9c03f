// Package repository defines the persistence contracts the services
// depend on and their MongoDB implementations. The duplicate-pending
// and resolution races are closed here with conditional updates, so no
// caller ever does a read-then-write on contested state.
package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/KaranNegi08/chatZila/internal/apperr"
	"github.com/KaranNegi08/chatZila/internal/models"
)

type UserRepository interface {
	Create(ctx context.Context, u *models.User) (*models.User, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.User, error)
	SetOnline(ctx context.Context, id primitive.ObjectID, online bool, lastSeen time.Time) error
}

type RoomRepository interface {
	Create(ctx context.Context, r *models.Room) (*models.Room, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Room, error)
	FindByMember(ctx context.Context, userID primitive.ObjectID) ([]*models.Room, error)
	FindAvailable(ctx context.Context, userID primitive.ObjectID, search string, limit int64) ([]*models.Room, error)
	IsMember(ctx context.Context, roomID, userID primitive.ObjectID) (bool, error)
	// AddMember appends a membership only when userID is not already in
	// the list. Returns true when the append happened, false when the
	// user was already a member. Never read-modify-write.
	AddMember(ctx context.Context, roomID primitive.ObjectID, m models.Membership) (bool, error)
	TouchActivity(ctx context.Context, roomID primitive.ObjectID, at time.Time) error
}

type MessageRepository interface {
	Insert(ctx context.Context, m *models.Message) (*models.Message, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Message, error)
	FindByRoom(ctx context.Context, roomID primitive.ObjectID, page, limit int64) ([]*models.Message, error)
	SetContent(ctx context.Context, id, senderID primitive.ObjectID, content string, editedAt time.Time) (*models.Message, error)
	Delete(ctx context.Context, id, senderID primitive.ObjectID) error
	// ToggleReaction removes the (user, emoji) reaction when present,
	// adds it otherwise, and returns the resulting reaction set.
	ToggleReaction(ctx context.Context, id, userID primitive.ObjectID, emoji string) ([]models.Reaction, error)
}

type NotificationRepository interface {
	// CreatePendingOnce inserts n only when no pending notification of
	// the same type for the same (dedupe key, room) exists; otherwise it
	// reports created=false. The check and insert are one atomic upsert.
	CreatePendingOnce(ctx context.Context, n *models.Notification) (*models.Notification, bool, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Notification, error)
	FindByRecipient(ctx context.Context, recipientID primitive.ObjectID, page, limit int64, unreadOnly bool) ([]*models.Notification, error)
	CountUnread(ctx context.Context, recipientID primitive.ObjectID) (int64, error)
	// Resolve flips ActionTaken from pending to state and marks the
	// notification read, in one compare-and-swap. Returns false when the
	// notification was not pending anymore.
	Resolve(ctx context.Context, id primitive.ObjectID, state models.ActionState) (bool, error)
	MarkRead(ctx context.Context, id, recipientID primitive.ObjectID) error
	MarkAllRead(ctx context.Context, recipientID primitive.ObjectID) error
}

// Store bundles the mongo-backed repositories over one database handle.
type Store struct {
	Users         UserRepository
	Rooms         RoomRepository
	Messages      MessageRepository
	Notifications NotificationRepository

	client *mongo.Client
}

func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, apperr.Unavailable(err, "mongodb connect")
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, apperr.Unavailable(err, "mongodb ping")
	}
	db := client.Database(database)
	if err := ensureIndexes(ctx, db); err != nil {
		return nil, err
	}
	return &Store{
		Users:         NewUserRepo(db.Collection("users")),
		Rooms:         NewRoomRepo(db.Collection("rooms")),
		Messages:      NewMessageRepo(db.Collection("messages")),
		Notifications: NewNotificationRepo(db.Collection("notifications")),
		client:        client,
	}, nil
}

func (s *Store) Disconnect(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// ensureIndexes creates the unique indexes the conditional updates
// depend on. Concurrent upserts on the same filter can each take the
// insert path unless the filter fields carry a unique constraint, so
// the duplicate guards are only real once these exist.
func ensureIndexes(ctx context.Context, db *mongo.Database) error {
	if _, err := db.Collection("users").Indexes().CreateMany(ctx, userIndexes()); err != nil {
		return apperr.Unavailable(err, "create user indexes")
	}
	if _, err := db.Collection("notifications").Indexes().CreateMany(ctx, notificationIndexes()); err != nil {
		return apperr.Unavailable(err, "create notification indexes")
	}
	return nil
}

func userIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
}

// One pending notification per party and room: join requests dedupe on
// the sender, invitations on the recipient. Partial on pending so a
// resolved notification never blocks a fresh issue.
func notificationIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "type", Value: 1},
				{Key: "data.room_id", Value: 1},
				{Key: "sender", Value: 1},
			},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.D{
					{Key: "action_taken", Value: models.ActionPending},
					{Key: "type", Value: models.NotifJoinRequest},
				}),
		},
		{
			Keys: bson.D{
				{Key: "type", Value: 1},
				{Key: "data.room_id", Value: 1},
				{Key: "recipient", Value: 1},
			},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.D{
					{Key: "action_taken", Value: models.ActionPending},
					{Key: "type", Value: models.NotifRoomInvitation},
				}),
		},
	}
}

// storeErr translates driver failures into the app taxonomy.
func storeErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperr.NotFound("%s: document not found", op)
	}
	return apperr.Unavailable(err, op)
}
