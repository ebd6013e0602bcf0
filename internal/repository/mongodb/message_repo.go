package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/pulseboard/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MessageRepo struct {
	messages *mongo.Collection
}

func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	if _, err := r.messages.InsertOne(ctx, fromMessage(msg)); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	var doc messageDoc
	err := r.messages.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m, err := doc.model()
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MessageRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Message, error) {
	out := make(map[uuid.UUID]domain.Message, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	messages, err := r.find(ctx, bson.M{"_id": bson.M{"$in": idStrings(ids)}})
	if err != nil {
		return nil, err
	}
	for _, m := range messages {
		out[m.ID] = m
	}
	return out, nil
}

func (r *MessageRepo) ListRecent(ctx context.Context, channelID uuid.UUID, limit int) ([]domain.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	messages, err := r.find(ctx, bson.M{"channel_id": channelID.String(), "is_deleted": false}, opts)
	if err != nil {
		return nil, err
	}

	// Reverse to oldest-first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *MessageRepo) UpdateText(ctx context.Context, id uuid.UUID, text string, at time.Time) (bool, error) {
	res, err := r.messages.UpdateOne(ctx,
		bson.M{"_id": id.String(), "is_deleted": false},
		bson.M{"$set": bson.M{
			"text":       text,
			"is_edited":  true,
			"edited_at":  at,
			"updated_at": at,
		}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (r *MessageRepo) SoftDelete(ctx context.Context, id, deletedBy uuid.UUID, at time.Time) (bool, error) {
	res, err := r.messages.UpdateOne(ctx,
		bson.M{"_id": id.String(), "is_deleted": false},
		bson.M{"$set": bson.M{
			"is_deleted": true,
			"deleted_by": deletedBy.String(),
			"deleted_at": at,
			"updated_at": at,
		}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

// MarkRead uses $addToSet so concurrent readers merge instead of overwrite.
func (r *MessageRepo) MarkRead(ctx context.Context, ids []uuid.UUID, userID uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	user := userID.String()
	res, err := r.messages.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": idStrings(ids)}, "read_by": bson.M{"$ne": user}},
		bson.M{"$addToSet": bson.M{"read_by": user}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *MessageRepo) CountUnread(ctx context.Context, channelIDs []uuid.UUID, userID uuid.UUID) (map[uuid.UUID]int64, error) {
	counts := make(map[uuid.UUID]int64)
	if len(channelIDs) == 0 {
		return counts, nil
	}

	cur, err := r.messages.Aggregate(ctx, unreadPipeline(channelIDs, userID))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var row struct {
			ChannelID string `bson:"_id"`
			Count     int64  `bson:"count"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(row.ChannelID)
		if err != nil {
			return nil, fmt.Errorf("unread channel id %q: %w", row.ChannelID, err)
		}
		counts[id] = row.Count
	}
	return counts, cur.Err()
}

func (r *MessageRepo) find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]domain.Message, error) {
	cur, err := r.messages.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var messages []domain.Message
	for cur.Next(ctx) {
		var doc messageDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		m, err := doc.model()
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, cur.Err()
}

func unreadPipeline(channelIDs []uuid.UUID, userID uuid.UUID) mongo.Pipeline {
	user := userID.String()
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"channel_id": bson.M{"$in": idStrings(channelIDs)},
			"is_deleted": false,
			"sender_id":  bson.M{"$ne": user},
			"read_by":    bson.M{"$ne": user},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$channel_id",
			"count": bson.M{"$sum": 1},
		}}},
	}
}
