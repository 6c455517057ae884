package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/osa030/melodystream/internal/domain/user"
)

const userColumns = `id, username, email, password_hash, COALESCE(first_name, ''), COALESCE(last_name, ''),
	is_admin, created_at, updated_at`

func scanUser(row scanner) (*user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.IsAdmin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a user. Username and email must be unique.
func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(u.Email)
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, first_name, last_name, is_admin, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, nullString(u.FirstName), nullString(u.LastName),
		u.IsAdmin, u.CreatedAt, u.UpdatedAt,
	)
	return mapError(err, "create user "+u.Username)
}

// GetUser returns the user with the given ID.
func (s *Store) GetUser(ctx context.Context, id string) (*user.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if err != nil {
		return nil, mapError(err, "get user "+id)
	}
	return u, nil
}

// GetUserByLogin returns the user whose username, or email when identifier contains '@', matches.
func (s *Store) GetUserByLogin(ctx context.Context, identifier string) (*user.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE username = ?"
	if user.IsEmailLogin(identifier) {
		query = "SELECT " + userColumns + " FROM users WHERE email = ?"
		identifier = strings.ToLower(identifier)
	}

	u, err := scanUser(s.db.QueryRowContext(ctx, query, identifier))
	if err != nil {
		return nil, mapError(err, "get user by login")
	}
	return u, nil
}

// ListUsers returns all users ordered by creation time.
func (s *Store) ListUsers(ctx context.Context) ([]user.User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY created_at, id")
	if err != nil {
		return nil, errors.Wrap(err, "failed to query users")
	}
	defer rows.Close()

	users := make([]user.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan user")
		}
		users = append(users, *u)
	}
	return users, errors.Wrap(rows.Err(), "failed to iterate users")
}

// SetAdmin grants or revokes the admin flag.
func (s *Store) SetAdmin(ctx context.Context, id string, admin bool) error {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET is_admin = ?, updated_at = ? WHERE id = ?",
		admin, time.Now().UTC(), id)
	if err != nil {
		return mapError(err, "set admin")
	}
	return expectAffected(res, "set admin "+id)
}
