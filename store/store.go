// Package store defines the persistent token stores the engine depends on
// and provides Redis- and Mongo-backed implementations.
//
// Both stores hold only rows owned by the backing database; the engine never
// caches them, so a revocation written by one process instance is visible to
// every other instance on its next lookup.
package store

import (
	"context"
	"errors"
	"time"
)

// Revocation reasons recorded alongside blacklist entries.
const (
	ReasonLogout       = "logout"
	ReasonInvalidToken = "invalid_token"
)

// UnknownOwner is recorded when a revoked token's owner could not be
// recovered (the token did not decode).
const UnknownOwner = "unknown"

// ErrUnavailable wraps backend failures. Callers decide whether to fail
// open or closed; the engine fails closed on resolution paths.
var ErrUnavailable = errors.New("token store unavailable")

// RefreshToken is one persisted refresh-token record. Records are created
// once and never mutated; they disappear on revocation or expiry.
type RefreshToken struct {
	TokenID   string    `json:"token_id" bson:"token_id"`
	UserID    string    `json:"user_id" bson:"user_id"`
	ExpiresAt time.Time `json:"expires_at" bson:"expires_at"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// RevocationRecord marks one exact access-token string as permanently
// invalid for the remainder of its natural life. ExpiresAt mirrors the
// token's own expiry so the record is garbage-collectible afterwards.
type RevocationRecord struct {
	Token     string    `json:"token" bson:"token"`
	UserID    string    `json:"user_id" bson:"user_id"`
	ExpiresAt time.Time `json:"expires_at" bson:"expires_at"`
	RevokedAt time.Time `json:"revoked_at" bson:"revoked_at"`
	Reason    string    `json:"reason" bson:"reason"`
}

// RefreshTokenStore persists opaque refresh-token identifiers keyed by their
// globally unique TokenID.
type RefreshTokenStore interface {
	// Issue generates a new unique token id and persists its record.
	Issue(ctx context.Context, userID string, ttl time.Duration) (string, error)

	// Validate returns the record for tokenID, or nil when it is absent. A
	// record found past its expiry is deleted during this call and nil is
	// returned: expired refresh tokens are never resurrectable.
	Validate(ctx context.Context, tokenID string) (*RefreshToken, error)

	// Revoke deletes one record; absent ids are a no-op.
	Revoke(ctx context.Context, tokenID string) error

	// RevokeAll deletes every record owned by userID.
	RevokeAll(ctx context.Context, userID string) error
}

// RevocationStore persists explicitly invalidated access tokens,
// independent of their embedded expiry.
type RevocationStore interface {
	// Add upserts a record keyed by the exact token string. Adding the same
	// token twice is a no-op rewrite, never an error.
	Add(ctx context.Context, rec RevocationRecord) error

	// Contains reports whether the exact token string has been revoked. It
	// must be consulted before trusting any access token.
	Contains(ctx context.Context, token string) (bool, error)
}
