package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisRefreshStore keeps refresh-token records as JSON values with a key
// TTL equal to the token lifetime, plus a per-user SET index used by
// RevokeAll. Key layout:
//
//	<prefix>:rt:<token-id>   record JSON
//	<prefix>:rtu:<user-id>   SET of the user's token ids
type RedisRefreshStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisRefreshStore(client redis.UniversalClient, prefix string) *RedisRefreshStore {
	return &RedisRefreshStore{
		redis:  client,
		prefix: prefix,
	}
}

func (s *RedisRefreshStore) key(tokenID string) string {
	return s.prefix + ":rt:" + tokenID
}

func (s *RedisRefreshStore) userKey(userID string) string {
	return s.prefix + ":rtu:" + userID
}

func (s *RedisRefreshStore) Issue(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	rec := RefreshToken{
		TokenID:   uuid.NewString(),
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}

	userKey := s.userKey(userID)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(rec.TokenID), data, ttl)
		pipe.SAdd(ctx, userKey, rec.TokenID)
		// The index must outlive the newest member; stale ids are pruned
		// lazily by RevokeAll.
		pipe.Expire(ctx, userKey, ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return rec.TokenID, nil
}

func (s *RedisRefreshStore) Validate(ctx context.Context, tokenID string) (*RefreshToken, error) {
	data, err := s.redis.Get(ctx, s.key(tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var rec RefreshToken
	if err := json.Unmarshal(data, &rec); err != nil {
		// A corrupt record cannot be trusted; evict it.
		_ = s.delete(ctx, tokenID, "")
		return nil, nil
	}

	// Redis expires the key on its own, but the record's own timestamp is
	// authoritative: evict on read the moment it is past due.
	if !rec.ExpiresAt.After(time.Now()) {
		if err := s.delete(ctx, tokenID, rec.UserID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	return &rec, nil
}

func (s *RedisRefreshStore) Revoke(ctx context.Context, tokenID string) error {
	data, err := s.redis.Get(ctx, s.key(tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var rec RefreshToken
	if err := json.Unmarshal(data, &rec); err != nil {
		return s.delete(ctx, tokenID, "")
	}
	return s.delete(ctx, tokenID, rec.UserID)
}

func (s *RedisRefreshStore) RevokeAll(ctx context.Context, userID string) error {
	userKey := s.userKey(userID)

	ids, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Del(ctx, s.key(id))
		}
		pipe.Del(ctx, userKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisRefreshStore) delete(ctx context.Context, tokenID, userID string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(tokenID))
		if userID != "" {
			pipe.SRem(ctx, s.userKey(userID), tokenID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RedisRevocationStore keeps blacklist entries keyed by the exact revoked
// token string under <prefix>:bl:. The key TTL is derived from the record's
// expiry, so entries vanish exactly when the underlying token would have
// expired naturally.
type RedisRevocationStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisRevocationStore(client redis.UniversalClient, prefix string) *RedisRevocationStore {
	return &RedisRevocationStore{
		redis:  client,
		prefix: prefix,
	}
}

func (s *RedisRevocationStore) key(token string) string {
	return s.prefix + ":bl:" + token
}

func (s *RedisRevocationStore) Add(ctx context.Context, rec RevocationRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		// The token is already past its natural expiry and fails expiry
		// checks on its own; keep the record around briefly so the
		// revocation stays observable.
		ttl = time.Minute
	}

	// Plain SET: upsert by construction, so a double logout rewrites the
	// same record instead of failing.
	if err := s.redis.Set(ctx, s.key(rec.Token), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisRevocationStore) Contains(ctx context.Context, token string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}
