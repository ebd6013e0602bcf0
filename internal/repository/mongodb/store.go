package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	channelsCollection = "channels"
	messagesCollection = "messages"
	usersCollection    = "users"
	projectsCollection = "projects"
)

// Store hands out repositories backed by one Mongo database.
type Store struct {
	db *mongo.Database
}

func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

func (s *Store) Channels() *ChannelRepo {
	return &ChannelRepo{
		channels: s.db.Collection(channelsCollection),
		messages: s.db.Collection(messagesCollection),
	}
}

func (s *Store) Messages() *MessageRepo {
	return &MessageRepo{messages: s.db.Collection(messagesCollection)}
}

func (s *Store) Users() *UserDirectory {
	return &UserDirectory{users: s.db.Collection(usersCollection)}
}

func (s *Store) Projects() *ProjectDirectory {
	return &ProjectDirectory{projects: s.db.Collection(projectsCollection)}
}

// EnsureIndexes configures the indexes the repositories rely on. Called on
// startup after Mongo has connected.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		channelsCollection: {
			{
				Keys:    bson.D{{Key: "is_deleted", Value: 1}, {Key: "updated_at", Value: -1}},
				Options: options.Index().SetName("idx_deleted_updated"),
			},
			{
				Keys:    bson.D{{Key: "members", Value: 1}},
				Options: options.Index().SetName("idx_members"),
			},
		},
		messagesCollection: {
			{
				Keys: bson.D{
					{Key: "channel_id", Value: 1},
					{Key: "created_at", Value: -1},
					{Key: "_id", Value: -1},
				},
				Options: options.Index().SetName("idx_channel_created"),
			},
		},
	}

	for name, models := range indexes {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", name, err)
		}
	}
	return nil
}
