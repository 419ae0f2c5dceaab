// Package users keeps local accounts for the login endpoint.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-quiz/internal/db"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUsernameTaken      = errors.New("username already taken")
)

var validRoles = map[string]bool{"student": true, "teacher": true, "admin": true}

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type Store struct{ db *sql.DB }

func NewStore(dbh *sql.DB) *Store { return &Store{db: dbh} }

func (s *Store) Create(ctx context.Context, username, role, password string) (User, error) {
	username = strings.TrimSpace(username)
	role = strings.ToLower(strings.TrimSpace(role))
	if username == "" || password == "" {
		return User{}, errors.New("username and password required")
	}
	if !validRoles[role] {
		return User{}, fmt.Errorf("unknown role %q", role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	u := User{ID: uuid.NewString(), Username: username, Role: role}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id,username,role,password_hash) VALUES ($1,$2,$3,$4)`,
		u.ID, u.Username, u.Role, string(hash))
	if db.IsUniqueViolation(err) {
		return User{}, ErrUsernameTaken
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// EnsureAdmin seeds the bootstrap admin from an existing bcrypt hash. An
// already present username is left untouched.
func (s *Store) EnsureAdmin(ctx context.Context, username, passHash string) error {
	if username == "" || passHash == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (id,username,role,password_hash)
		VALUES ($1,$2,'admin',$3)
		ON CONFLICT (username) DO NOTHING`, uuid.NewString(), username, passHash)
	return err
}

func (s *Store) Authenticate(ctx context.Context, username, password string) (User, error) {
	var (
		u    User
		hash string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id,username,role,password_hash FROM users WHERE username=$1`,
		strings.TrimSpace(username)).Scan(&u.ID, &u.Username, &u.Role, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

func (s *Store) List(ctx context.Context, role string) ([]User, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if role == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT id,username,role FROM users ORDER BY username`)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT id,username,role FROM users WHERE role=$1 ORDER BY username`, role)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Role); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
