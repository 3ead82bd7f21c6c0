package directory

import (
	"context"
	"sort"
	"sync"

	goCred "github.com/MrEthical07/goCred"
)

// InMemory is a map-backed UserDirectory used in tests and examples. It
// enforces the same username and email uniqueness as the Mongo backend.
type InMemory struct {
	mu    sync.RWMutex
	users map[string]goCred.UserRecord
}

func NewInMemory() *InMemory {
	return &InMemory{users: make(map[string]goCred.UserRecord)}
}

func (d *InMemory) FindByID(_ context.Context, id string) (*goCred.UserRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.users[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (d *InMemory) FindByUsername(_ context.Context, username string) (*goCred.UserRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, rec := range d.users {
		if rec.Username == username {
			rec := rec
			return &rec, nil
		}
	}
	return nil, nil
}

func (d *InMemory) Create(_ context.Context, rec goCred.UserRecord) (*goCred.UserRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, existing := range d.users {
		if existing.Username == rec.Username || existing.Email == rec.Email {
			return nil, goCred.ErrUserExists
		}
	}
	d.users[rec.ID] = rec
	return &rec, nil
}

func (d *InMemory) Update(_ context.Context, id string, upd goCred.UserUpdate) (*goCred.UserRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.users[id]
	if !ok {
		return nil, goCred.ErrUserNotFound
	}

	if upd.Email != nil {
		for otherID, other := range d.users {
			if otherID != id && other.Email == *upd.Email {
				return nil, goCred.ErrUserExists
			}
		}
		rec.Email = *upd.Email
	}
	if upd.Role != nil {
		rec.Role = *upd.Role
	}
	if upd.PasswordHash != nil {
		rec.PasswordHash = *upd.PasswordHash
	}

	d.users[id] = rec
	return &rec, nil
}

func (d *InMemory) Delete(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.users[id]; !ok {
		return goCred.ErrUserNotFound
	}
	delete(d.users, id)
	return nil
}

func (d *InMemory) List(_ context.Context) ([]goCred.UserRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	users := make([]goCred.UserRecord, 0, len(d.users))
	for _, rec := range d.users {
		users = append(users, rec)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users, nil
}

func (d *InMemory) UpdatePasswordHash(_ context.Context, id string, hash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.users[id]
	if !ok {
		return goCred.ErrUserNotFound
	}
	rec.PasswordHash = hash
	d.users[id] = rec
	return nil
}
