package goCred

import (
	"context"
	"time"
)

// UserRecord is the account record exchanged with the [UserDirectory]
// collaborator. The engine reads ID, Role, and PasswordHash; everything else
// is carried for the HTTP surface.
type UserRecord struct {
	ID           string    `json:"id" bson:"_id"`
	Username     string    `json:"username" bson:"username"`
	Email        string    `json:"email" bson:"email"`
	PasswordHash string    `json:"-" bson:"password_hash"`
	Role         string    `json:"role" bson:"role"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
}

// UserUpdate is a partial update applied through [UserDirectory.Update].
// Nil fields are left untouched. Password is plaintext here; the engine
// hashes it before the update reaches the directory.
type UserUpdate struct {
	Email        *string `json:"email,omitempty"`
	Password     *string `json:"password,omitempty"`
	Role         *string `json:"role,omitempty"`
	PasswordHash *string `json:"-"`
}

// Identity is the claim set recovered from a valid access token by
// [Engine.Resolve].
type Identity struct {
	UserID    string
	Role      string
	ExpiresAt time.Time
}

// TokenPair is returned by [Engine.Login] and [Engine.Refresh]. TokenType is
// always "bearer".
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// UserDirectory is the collaborator interface callers implement to connect
// the engine to their user database. Lookups return (nil, nil) when no
// record exists; errors are reserved for backend failures.
//
// A Mongo-backed implementation lives in the directory package.
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (*UserRecord, error)
	FindByUsername(ctx context.Context, username string) (*UserRecord, error)
	Create(ctx context.Context, rec UserRecord) (*UserRecord, error)
	Update(ctx context.Context, id string, upd UserUpdate) (*UserRecord, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]UserRecord, error)
	UpdatePasswordHash(ctx context.Context, id string, hash string) error
}
