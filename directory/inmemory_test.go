package directory

import (
	"context"
	"errors"
	"testing"

	goCred "github.com/MrEthical07/goCred"
)

func seed(t *testing.T) *InMemory {
	t.Helper()
	d := NewInMemory()
	for _, rec := range []goCred.UserRecord{
		{ID: "1", Username: "bob", Email: "bob@example.com", Role: "user"},
		{ID: "2", Username: "alice", Email: "alice@example.com", Role: "admin"},
	} {
		if _, err := d.Create(context.Background(), rec); err != nil {
			t.Fatal(err)
		}
	}
	return d
}

func TestInMemoryLookups(t *testing.T) {
	d := seed(t)
	ctx := context.Background()

	rec, err := d.FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil || rec.ID != "2" {
		t.Fatalf("got %+v", rec)
	}

	rec, err = d.FindByID(ctx, "no-such-id")
	if err != nil {
		t.Fatal(err)
	}
	if rec != nil {
		t.Errorf("absent lookup returned %+v", rec)
	}
}

func TestInMemoryUniqueness(t *testing.T) {
	d := seed(t)
	ctx := context.Background()

	_, err := d.Create(ctx, goCred.UserRecord{ID: "3", Username: "alice", Email: "x@example.com"})
	if !errors.Is(err, goCred.ErrUserExists) {
		t.Errorf("duplicate username: %v", err)
	}
	_, err = d.Create(ctx, goCred.UserRecord{ID: "3", Username: "carol", Email: "alice@example.com"})
	if !errors.Is(err, goCred.ErrUserExists) {
		t.Errorf("duplicate email: %v", err)
	}

	taken := "bob@example.com"
	_, err = d.Update(ctx, "2", goCred.UserUpdate{Email: &taken})
	if !errors.Is(err, goCred.ErrUserExists) {
		t.Errorf("update onto taken email: %v", err)
	}
}

func TestInMemoryUpdateAndDelete(t *testing.T) {
	d := seed(t)
	ctx := context.Background()

	role := "admin"
	rec, err := d.Update(ctx, "1", goCred.UserUpdate{Role: &role})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Role != "admin" {
		t.Errorf("Role = %q", rec.Role)
	}

	if err := d.UpdatePasswordHash(ctx, "1", "new-digest"); err != nil {
		t.Fatal(err)
	}
	rec, err = d.FindByID(ctx, "1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.PasswordHash != "new-digest" {
		t.Error("password hash not updated")
	}

	if err := d.Delete(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	if err := d.Delete(ctx, "1"); !errors.Is(err, goCred.ErrUserNotFound) {
		t.Errorf("double delete: %v", err)
	}

	users, err := d.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 || users[0].Username != "alice" {
		t.Errorf("List = %+v", users)
	}
}
