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

type notificationRepo struct {
	col *mongo.Collection
}

func NewNotificationRepo(col *mongo.Collection) NotificationRepository {
	return &notificationRepo{col: col}
}

// CreatePendingOnce is the duplicate-issuance guard. The dedupe key is
// (recipient, room) for invitations and (sender, room) for join
// requests; the upsert with $setOnInsert makes the existence check and
// the insert a single atomic operation, so two racing issuers produce
// exactly one pending notification.
func (r *notificationRepo) CreatePendingOnce(ctx context.Context, n *models.Notification) (*models.Notification, bool, error) {
	n.CreatedAt = time.Now().UTC()
	n.ActionTaken = models.ActionPending
	n.IsRead = false

	// Equality fields in the filter become part of the inserted document
	// on upsert, so $setOnInsert carries only the remainder; overlapping
	// paths would make the server reject the update.
	filter := bson.M{
		"type":         n.Type,
		"data.room_id": n.Data.RoomID,
		"action_taken": models.ActionPending,
	}
	onInsert := bson.M{
		"title":      n.Title,
		"message":    n.Body,
		"is_read":    n.IsRead,
		"created_at": n.CreatedAt,
	}
	switch n.Type {
	case models.NotifJoinRequest:
		filter["sender"] = n.SenderID
		onInsert["recipient"] = n.RecipientID
	default:
		filter["recipient"] = n.RecipientID
		onInsert["sender"] = n.SenderID
	}
	if n.Data.MessageID != nil {
		onInsert["data.message_id"] = n.Data.MessageID
	}

	res, err := r.col.UpdateOne(ctx, filter, bson.M{"$setOnInsert": onInsert}, options.Update().SetUpsert(true))
	if err != nil {
		// Two racing upserts on the same filter can both take the insert
		// path; the partial unique index rejects the loser.
		if mongo.IsDuplicateKeyError(err) {
			return nil, false, nil
		}
		return nil, false, storeErr(err, "create notification")
	}
	if res.UpsertedID == nil {
		return nil, false, nil
	}
	n.ID = res.UpsertedID.(primitive.ObjectID)
	return n, true, nil
}

func (r *notificationRepo) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Notification, error) {
	var n models.Notification
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&n); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("notification not found")
		}
		return nil, storeErr(err, "find notification")
	}
	return &n, nil
}

func (r *notificationRepo) FindByRecipient(ctx context.Context, recipientID primitive.ObjectID, page, limit int64, unreadOnly bool) ([]*models.Notification, error) {
	filter := bson.M{"recipient": recipientID}
	if unreadOnly {
		filter["is_read"] = false
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip((page - 1) * limit).
		SetLimit(limit)
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, storeErr(err, "find notifications")
	}
	defer cur.Close(ctx)
	var out []*models.Notification
	for cur.Next(ctx) {
		var n models.Notification
		if err := cur.Decode(&n); err != nil {
			return nil, storeErr(err, "decode notification")
		}
		out = append(out, &n)
	}
	return out, storeErr(cur.Err(), "iterate notifications")
}

func (r *notificationRepo) CountUnread(ctx context.Context, recipientID primitive.ObjectID) (int64, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{"recipient": recipientID, "is_read": false})
	if err != nil {
		return 0, storeErr(err, "count unread")
	}
	return n, nil
}

// Resolve is the compare-and-swap on action_taken: the filter requires
// pending, so a second responder matches nothing and gets false.
func (r *notificationRepo) Resolve(ctx context.Context, id primitive.ObjectID, state models.ActionState) (bool, error) {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "action_taken": models.ActionPending},
		bson.M{"$set": bson.M{"action_taken": state, "is_read": true}},
	)
	if err != nil {
		return false, storeErr(err, "resolve notification")
	}
	return res.ModifiedCount > 0, nil
}

func (r *notificationRepo) MarkRead(ctx context.Context, id, recipientID primitive.ObjectID) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "recipient": recipientID},
		bson.M{"$set": bson.M{"is_read": true}},
	)
	if err != nil {
		return storeErr(err, "mark read")
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("notification not found")
	}
	return nil
}

func (r *notificationRepo) MarkAllRead(ctx context.Context, recipientID primitive.ObjectID) error {
	_, err := r.col.UpdateMany(ctx,
		bson.M{"recipient": recipientID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true}},
	)
	return storeErr(err, "mark all read")
}
