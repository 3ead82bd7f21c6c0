package goCred

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Register creates a new account with the configured default role. A taken
// username or email yields [ErrUserExists]; password validation errors from
// the hasher (empty, over the byte bound) pass through unchanged.
func (e *Engine) Register(ctx context.Context, username, email, password string) (*UserRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if username == "" {
		return nil, errors.New("username must not be empty")
	}

	existing, err := e.directory.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if existing != nil {
		e.metricInc(MetricRegisterDuplicate)
		e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", ErrUserExists, func() map[string]string {
			return map[string]string{"username": username}
		})
		return nil, ErrUserExists
	}

	hash, err := e.passwordHash.Hash(password)
	if err != nil {
		return nil, err
	}

	rec := UserRecord{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         e.config.Account.DefaultRole,
		CreatedAt:    e.now(),
	}

	created, err := e.directory.Create(ctx, rec)
	if err != nil {
		// The directory reports races on its unique indexes as ErrUserExists.
		if errors.Is(err, ErrUserExists) {
			e.metricInc(MetricRegisterDuplicate)
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, created.ID, nil, func() map[string]string {
		return map[string]string{"username": username}
	})
	return created, nil
}

// EnsureAdminUser creates the bootstrap admin account if it does not exist
// yet. A no-op unless BootstrapAdmin is enabled, and a no-op when an account
// with the configured admin username is already present.
func (e *Engine) EnsureAdminUser(ctx context.Context) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !e.config.Account.BootstrapAdmin {
		return nil
	}

	existing, err := e.directory.FindByUsername(ctx, e.config.Account.AdminUsername)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if existing != nil {
		return nil
	}

	hash, err := e.passwordHash.Hash(e.config.Account.AdminPassword)
	if err != nil {
		return err
	}

	rec := UserRecord{
		ID:           uuid.NewString(),
		Username:     e.config.Account.AdminUsername,
		Email:        e.config.Account.AdminEmail,
		PasswordHash: hash,
		Role:         e.config.Account.AdminRole,
		CreatedAt:    e.now(),
	}
	if _, err := e.directory.Create(ctx, rec); err != nil {
		if errors.Is(err, ErrUserExists) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.logger.Printf("goCred: bootstrap admin %q created", rec.Username)
	return nil
}

// UpdateUser applies a partial update to the account with the given
// username. A plaintext Password in the update is hashed here; the directory
// only ever sees digests.
func (e *Engine) UpdateUser(ctx context.Context, username string, upd UserUpdate) (*UserRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	user, err := e.directory.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	if upd.Password != nil {
		hash, err := e.passwordHash.Hash(*upd.Password)
		if err != nil {
			return nil, err
		}
		upd.PasswordHash = &hash
		upd.Password = nil
	}

	updated, err := e.directory.Update(ctx, user.ID, upd)
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return updated, nil
}

// DeleteUser removes the account and revokes every refresh token it holds.
func (e *Engine) DeleteUser(ctx context.Context, username string) error {
	if err := e.ready(); err != nil {
		return err
	}

	user, err := e.directory.FindByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if user == nil {
		return ErrUserNotFound
	}

	if err := e.directory.Delete(ctx, user.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.refreshStore.RevokeAll(ctx, user.ID); err != nil {
		e.logger.Printf("goCred: refresh revocation failed after deleting %s: %v", user.ID, err)
	}
	return nil
}

// ListUsers returns every account record.
func (e *Engine) ListUsers(ctx context.Context) ([]UserRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	users, err := e.directory.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return users, nil
}

// FindUserByID looks an account up by id. Absence yields [ErrUserNotFound].
func (e *Engine) FindUserByID(ctx context.Context, id string) (*UserRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	user, err := e.directory.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// FindUser looks an account up by username. Absence yields [ErrUserNotFound].
func (e *Engine) FindUser(ctx context.Context, username string) (*UserRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	user, err := e.directory.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}
