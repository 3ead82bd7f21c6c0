// Package directory provides UserDirectory implementations: a Mongo-backed
// one for deployments and an in-memory one for tests and examples.
package directory

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	goCred "github.com/MrEthical07/goCred"
)

// Mongo stores accounts in the users collection. Usernames and emails are
// unique; violations surface as [goCred.ErrUserExists].
type Mongo struct {
	coll *mongo.Collection
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{coll: db.Collection("users")}
}

// EnsureIndexes creates the unique username and email indexes. Safe to call
// on every startup.
func (d *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := d.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	return err
}

func (d *Mongo) FindByID(ctx context.Context, id string) (*goCred.UserRecord, error) {
	return d.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

func (d *Mongo) FindByUsername(ctx context.Context, username string) (*goCred.UserRecord, error) {
	return d.findOne(ctx, bson.D{{Key: "username", Value: username}})
}

func (d *Mongo) findOne(ctx context.Context, filter bson.D) (*goCred.UserRecord, error) {
	var rec goCred.UserRecord
	if err := d.coll.FindOne(ctx, filter).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (d *Mongo) Create(ctx context.Context, rec goCred.UserRecord) (*goCred.UserRecord, error) {
	if _, err := d.coll.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, goCred.ErrUserExists
		}
		return nil, err
	}
	return &rec, nil
}

func (d *Mongo) Update(ctx context.Context, id string, upd goCred.UserUpdate) (*goCred.UserRecord, error) {
	set := bson.D{}
	if upd.Email != nil {
		set = append(set, bson.E{Key: "email", Value: *upd.Email})
	}
	if upd.Role != nil {
		set = append(set, bson.E{Key: "role", Value: *upd.Role})
	}
	if upd.PasswordHash != nil {
		set = append(set, bson.E{Key: "password_hash", Value: *upd.PasswordHash})
	}
	if len(set) == 0 {
		return d.FindByID(ctx, id)
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var rec goCred.UserRecord
	err := d.coll.FindOneAndUpdate(
		ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: set}},
		opts,
	).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, goCred.ErrUserNotFound
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, goCred.ErrUserExists
		}
		return nil, err
	}
	return &rec, nil
}

func (d *Mongo) Delete(ctx context.Context, id string) error {
	res, err := d.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return goCred.ErrUserNotFound
	}
	return nil
}

func (d *Mongo) List(ctx context.Context) ([]goCred.UserRecord, error) {
	cursor, err := d.coll.Find(ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var users []goCred.UserRecord
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decoding users: %w", err)
	}
	return users, nil
}

func (d *Mongo) UpdatePasswordHash(ctx context.Context, id string, hash string) error {
	res, err := d.coll.UpdateOne(
		ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "password_hash", Value: hash}}}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return goCred.ErrUserNotFound
	}
	return nil
}
