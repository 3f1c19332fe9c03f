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

type messageRepo struct {
	col *mongo.Collection
}

func NewMessageRepo(col *mongo.Collection) MessageRepository {
	return &messageRepo{col: col}
}

func (r *messageRepo) Insert(ctx context.Context, m *models.Message) (*models.Message, error) {
	m.CreatedAt = time.Now().UTC()
	if m.Reactions == nil {
		m.Reactions = []models.Reaction{}
	}
	res, err := r.col.InsertOne(ctx, m)
	if err != nil {
		return nil, storeErr(err, "insert message")
	}
	m.ID = res.InsertedID.(primitive.ObjectID)
	return m, nil
}

func (r *messageRepo) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Message, error) {
	var m models.Message
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("message not found")
		}
		return nil, storeErr(err, "find message")
	}
	return &m, nil
}

// FindByRoom returns page (1-based) of messages, newest first.
func (r *messageRepo) FindByRoom(ctx context.Context, roomID primitive.ObjectID, page, limit int64) ([]*models.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip((page - 1) * limit).
		SetLimit(limit)
	cur, err := r.col.Find(ctx, bson.M{"room": roomID}, opts)
	if err != nil {
		return nil, storeErr(err, "find messages")
	}
	defer cur.Close(ctx)
	var out []*models.Message
	for cur.Next(ctx) {
		var m models.Message
		if err := cur.Decode(&m); err != nil {
			return nil, storeErr(err, "decode message")
		}
		out = append(out, &m)
	}
	return out, storeErr(cur.Err(), "iterate messages")
}

func (r *messageRepo) SetContent(ctx context.Context, id, senderID primitive.ObjectID, content string, editedAt time.Time) (*models.Message, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var m models.Message
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "sender": senderID},
		bson.M{"$set": bson.M{"content": content, "is_edited": true, "edited_at": editedAt}},
		opts,
	).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("message not found")
		}
		return nil, storeErr(err, "edit message")
	}
	return &m, nil
}

func (r *messageRepo) Delete(ctx context.Context, id, senderID primitive.ObjectID) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id, "sender": senderID})
	if err != nil {
		return storeErr(err, "delete message")
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("message not found")
	}
	return nil
}

// ToggleReaction first tries a guarded $pull; when nothing was removed
// it does a guarded $push, so two racing toggles can never leave a
// duplicate (user, emoji) pair behind.
func (r *messageRepo) ToggleReaction(ctx context.Context, id, userID primitive.ObjectID, emoji string) ([]models.Reaction, error) {
	pair := bson.M{"user": userID, "emoji": emoji}

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "reactions": bson.M{"$elemMatch": pair}},
		bson.M{"$pull": bson.M{"reactions": pair}},
	)
	if err != nil {
		return nil, storeErr(err, "remove reaction")
	}
	if res.ModifiedCount == 0 {
		reaction := models.Reaction{UserID: userID, Emoji: emoji, CreatedAt: time.Now().UTC()}
		pushed, err := r.col.UpdateOne(ctx,
			bson.M{"_id": id, "reactions": bson.M{"$not": bson.M{"$elemMatch": pair}}},
			bson.M{"$push": bson.M{"reactions": reaction}},
		)
		if err != nil {
			return nil, storeErr(err, "add reaction")
		}
		if pushed.MatchedCount == 0 && pushed.ModifiedCount == 0 {
			// Neither pull nor push matched: message may not exist.
			if _, err := r.FindByID(ctx, id); err != nil {
				return nil, err
			}
		}
	}

	m, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.Reactions, nil
}
