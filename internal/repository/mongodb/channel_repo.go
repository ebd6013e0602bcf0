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

type ChannelRepo struct {
	channels *mongo.Collection
	messages *mongo.Collection
}

func (r *ChannelRepo) Create(ctx context.Context, ch *domain.Channel) error {
	if _, err := r.channels.InsertOne(ctx, fromChannel(ch)); err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}
	return nil
}

func (r *ChannelRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Channel, error) {
	var doc channelDoc
	err := r.channels.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ch, err := doc.model()
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (r *ChannelRepo) ListVisible(ctx context.Context, userID uuid.UUID) ([]domain.Channel, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})

	cur, err := r.channels.Find(ctx, visibleFilter(userID), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var channels []domain.Channel
	for cur.Next(ctx) {
		var doc channelDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		ch, err := doc.model()
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, cur.Err()
}

func (r *ChannelRepo) Update(ctx context.Context, ch *domain.Channel) (bool, error) {
	res, err := r.channels.UpdateOne(ctx,
		bson.M{"_id": ch.ID.String(), "is_deleted": false},
		bson.M{"$set": bson.M{
			"name":        ch.Name,
			"description": ch.Description,
			"is_private":  ch.IsPrivate,
			"members":     idStrings(ch.Members),
			"updated_at":  ch.UpdatedAt,
		}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (r *ChannelRepo) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.channels.UpdateOne(ctx,
		bson.M{"_id": id.String(), "updated_at": bson.M{"$lt": at}},
		bson.M{"$set": bson.M{"updated_at": at}},
	)
	return err
}

// SoftDelete flags the channel first and then its messages. Every read path
// checks the channel before its messages, so readers never observe a live
// channel with deleted history. Deleting an already deleted channel re-runs
// the message cascade in case an earlier attempt stopped after the flag.
func (r *ChannelRepo) SoftDelete(ctx context.Context, id, deletedBy uuid.UUID, at time.Time) (bool, error) {
	tombstone := bson.M{"$set": bson.M{
		"is_deleted": true,
		"deleted_by": deletedBy.String(),
		"deleted_at": at,
	}}

	res, err := r.channels.UpdateOne(ctx, bson.M{"_id": id.String(), "is_deleted": false}, tombstone)
	if err != nil {
		return false, fmt.Errorf("delete channel: %w", err)
	}
	if res.MatchedCount == 0 {
		return r.resumeCascade(ctx, id)
	}

	if _, err := r.cascade(ctx, id, deletedBy, at); err != nil {
		return true, err
	}
	return true, nil
}

// resumeCascade finishes the message cascade of a channel whose tombstone
// was written by an earlier delete that failed part way. It reports true
// only when live messages were left behind.
func (r *ChannelRepo) resumeCascade(ctx context.Context, id uuid.UUID) (bool, error) {
	var doc channelDoc
	err := r.channels.FindOne(ctx, bson.M{"_id": id.String(), "is_deleted": true}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find deleted channel: %w", err)
	}

	deletedBy, err := uuid.Parse(doc.DeletedBy)
	if err != nil {
		return false, fmt.Errorf("channel %s deleted_by: %w", doc.ID, err)
	}
	at := doc.UpdatedAt
	if doc.DeletedAt != nil {
		at = *doc.DeletedAt
	}

	n, err := r.cascade(ctx, id, deletedBy, at)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *ChannelRepo) cascade(ctx context.Context, id, deletedBy uuid.UUID, at time.Time) (int64, error) {
	res, err := r.messages.UpdateMany(ctx,
		bson.M{"channel_id": id.String(), "is_deleted": false},
		bson.M{"$set": bson.M{
			"is_deleted": true,
			"deleted_by": deletedBy.String(),
			"deleted_at": at,
			"updated_at": at,
		}},
	)
	if err != nil {
		return 0, fmt.Errorf("cascade delete messages: %w", err)
	}
	return res.ModifiedCount, nil
}

func visibleFilter(userID uuid.UUID) bson.M {
	return bson.M{
		"is_deleted": false,
		"$or": bson.A{
			bson.M{"is_private": false},
			bson.M{"members": userID.String()},
		},
	}
}
