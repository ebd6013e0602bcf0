package mongodb

import (
	"context"

	"github.com/google/uuid"
	"github.com/vedran77/pulseboard/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// UserDirectory reads users provisioned by the identity service.
type UserDirectory struct {
	users *mongo.Collection
}

func (d *UserDirectory) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.User, error) {
	out := make(map[uuid.UUID]domain.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	cur, err := d.users.Find(ctx, bson.M{"_id": bson.M{"$in": idStrings(ids)}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var doc userDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(doc.ID)
		if err != nil {
			continue
		}
		out[id] = domain.User{ID: id, Email: doc.Email, Name: doc.Name, Role: doc.Role}
	}
	return out, cur.Err()
}

type ProjectDirectory struct {
	projects *mongo.Collection
}

func (d *ProjectDirectory) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Project, error) {
	out := make(map[uuid.UUID]domain.Project, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	cur, err := d.projects.Find(ctx, bson.M{"_id": bson.M{"$in": idStrings(ids)}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var doc projectDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(doc.ID)
		if err != nil {
			continue
		}
		out[id] = domain.Project{ID: id, Name: doc.Name}
	}
	return out, cur.Err()
}
