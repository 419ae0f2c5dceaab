package users_test

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-quiz/internal/db"
	"github.com/mind-engage/mindengage-quiz/internal/users"
)

func TestStore_CreateAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	dbh, err := db.Open(ctx, db.DriverSQLite, "file:users_test.db?mode=memory&cache=shared")
	if err != nil {
		t.Fatal(err)
	}
	defer dbh.Close()
	st := users.NewStore(dbh)

	u, err := st.Create(ctx, "alice", "Student", "s3cret")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if u.Role != "student" || u.ID == "" {
		t.Fatalf("unexpected user %+v", u)
	}
	if _, err := st.Create(ctx, "alice", "student", "other"); !errors.Is(err, users.ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
	if _, err := st.Create(ctx, "bob", "wizard", "pw"); err == nil {
		t.Fatalf("expected unknown role error")
	}

	got, err := st.Authenticate(ctx, "alice", "s3cret")
	if err != nil || got.ID != u.ID {
		t.Fatalf("authenticate: %+v %v", got, err)
	}
	if _, err := st.Authenticate(ctx, "alice", "wrong"); !errors.Is(err, users.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := st.Authenticate(ctx, "nobody", "x"); !errors.Is(err, users.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	hash, _ := bcrypt.GenerateFromPassword([]byte("root"), bcrypt.MinCost)
	if err := st.EnsureAdmin(ctx, "admin", string(hash)); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	if err := st.EnsureAdmin(ctx, "admin", string(hash)); err != nil {
		t.Fatalf("ensure admin twice: %v", err)
	}
	admin, err := st.Authenticate(ctx, "admin", "root")
	if err != nil || admin.Role != "admin" {
		t.Fatalf("admin login: %+v %v", admin, err)
	}

	list, err := st.List(ctx, "student")
	if err != nil || len(list) != 1 || list[0].Username != "alice" {
		t.Fatalf("unexpected list %+v (%v)", list, err)
	}
}
