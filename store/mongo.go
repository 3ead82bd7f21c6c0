package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRefreshStore persists refresh tokens in the refresh_tokens
// collection. Expiry-driven garbage collection is delegated to a TTL index
// on expires_at; because Mongo's TTL sweeper runs on a coarse interval,
// Validate still evicts past-due records at read time.
type MongoRefreshStore struct {
	coll *mongo.Collection
}

func NewMongoRefreshStore(db *mongo.Database) *MongoRefreshStore {
	return &MongoRefreshStore{coll: db.Collection("refresh_tokens")}
}

// EnsureIndexes creates the unique token index, the owner index, and the
// TTL sweep index. Safe to call on every startup.
func (s *MongoRefreshStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *MongoRefreshStore) Issue(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	rec := RefreshToken{
		TokenID:   uuid.NewString(),
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	if _, err := s.coll.InsertOne(ctx, rec); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return rec.TokenID, nil
}

func (s *MongoRefreshStore) Validate(ctx context.Context, tokenID string) (*RefreshToken, error) {
	filter := bson.D{{Key: "token_id", Value: tokenID}}

	var rec RefreshToken
	if err := s.coll.FindOne(ctx, filter).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if !rec.ExpiresAt.After(time.Now()) {
		if _, err := s.coll.DeleteOne(ctx, filter); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, nil
	}

	return &rec, nil
}

func (s *MongoRefreshStore) Revoke(ctx context.Context, tokenID string) error {
	_, err := s.coll.DeleteOne(ctx, bson.D{{Key: "token_id", Value: tokenID}})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *MongoRefreshStore) RevokeAll(ctx context.Context, userID string) error {
	_, err := s.coll.DeleteMany(ctx, bson.D{{Key: "user_id", Value: userID}})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// MongoRevocationStore persists blacklist entries in the token_blacklist
// collection, keyed by the exact token string with a TTL index mirroring
// each token's natural expiry.
type MongoRevocationStore struct {
	coll *mongo.Collection
}

func NewMongoRevocationStore(db *mongo.Database) *MongoRevocationStore {
	return &MongoRevocationStore{coll: db.Collection("token_blacklist")}
}

func (s *MongoRevocationStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *MongoRevocationStore) Add(ctx context.Context, rec RevocationRecord) error {
	filter := bson.D{{Key: "token", Value: rec.Token}}
	opts := options.Replace().SetUpsert(true)

	// Upsert keyed on the token string: revoking the same token twice
	// rewrites one record rather than tripping the unique index.
	if _, err := s.coll.ReplaceOne(ctx, filter, rec, opts); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *MongoRevocationStore) Contains(ctx context.Context, token string) (bool, error) {
	filter := bson.D{{Key: "token", Value: token}}

	err := s.coll.FindOne(ctx, filter).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return true, nil
}
