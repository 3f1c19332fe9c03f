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

type roomRepo struct {
	col *mongo.Collection
}

func NewRoomRepo(col *mongo.Collection) RoomRepository {
	return &roomRepo{col: col}
}

func (r *roomRepo) Create(ctx context.Context, room *models.Room) (*models.Room, error) {
	now := time.Now().UTC()
	room.CreatedAt = now
	room.UpdatedAt = now
	res, err := r.col.InsertOne(ctx, room)
	if err != nil {
		return nil, storeErr(err, "insert room")
	}
	room.ID = res.InsertedID.(primitive.ObjectID)
	return room, nil
}

func (r *roomRepo) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Room, error) {
	var room models.Room
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&room); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("room not found")
		}
		return nil, storeErr(err, "find room")
	}
	return &room, nil
}

func (r *roomRepo) FindByMember(ctx context.Context, userID primitive.ObjectID) ([]*models.Room, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cur, err := r.col.Find(ctx, bson.M{"members.user": userID}, opts)
	if err != nil {
		return nil, storeErr(err, "find rooms by member")
	}
	return decodeRooms(ctx, cur)
}

func (r *roomRepo) FindAvailable(ctx context.Context, userID primitive.ObjectID, search string, limit int64) ([]*models.Room, error) {
	filter := bson.M{
		"members.user": bson.M{"$ne": userID},
		"is_private":   false,
	}
	if search != "" {
		filter["name"] = bson.M{"$regex": search, "$options": "i"}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, storeErr(err, "find available rooms")
	}
	return decodeRooms(ctx, cur)
}

func (r *roomRepo) IsMember(ctx context.Context, roomID, userID primitive.ObjectID) (bool, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{"_id": roomID, "members.user": userID})
	if err != nil {
		return false, storeErr(err, "count membership")
	}
	return n > 0, nil
}

// AddMember relies on the members.user $ne guard in the filter: when a
// concurrent accept already appended the user, the filter matches
// nothing and the push never happens, so the list stays duplicate-free.
func (r *roomRepo) AddMember(ctx context.Context, roomID primitive.ObjectID, m models.Membership) (bool, error) {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": roomID, "members.user": bson.M{"$ne": m.UserID}},
		bson.M{
			"$push": bson.M{"members": m},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return false, storeErr(err, "add member")
	}
	return res.ModifiedCount > 0, nil
}

func (r *roomRepo) TouchActivity(ctx context.Context, roomID primitive.ObjectID, at time.Time) error {
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": roomID}, bson.M{"$set": bson.M{"updated_at": at}})
	return storeErr(err, "touch room activity")
}

func decodeRooms(ctx context.Context, cur *mongo.Cursor) ([]*models.Room, error) {
	defer cur.Close(ctx)
	var out []*models.Room
	for cur.Next(ctx) {
		var room models.Room
		if err := cur.Decode(&room); err != nil {
			return nil, storeErr(err, "decode room")
		}
		out = append(out, &room)
	}
	return out, storeErr(cur.Err(), "iterate rooms")
}
