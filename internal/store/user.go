// Package store provides database access methods for all marketplace
// entities. Each store struct wraps a *sql.DB and exposes typed query methods.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"kavmarket/internal/models"
)

// ErrUserNotFound is returned by user mutations whose target row does not exist.
var ErrUserNotFound = errors.New("user not found")

// UserStore handles all user-related database operations.
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a new UserStore with the given database connection.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, tg_user_id, username, first_name, last_name, role, is_banned, created_at`

func scanUser(scanner interface{ Scan(...any) error }) (*models.User, error) {
	u := &models.User{}
	err := scanner.Scan(
		&u.ID, &u.TgUserID, &u.Username, &u.FirstName, &u.LastName,
		&u.Role, &u.IsBanned, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// FindByID retrieves a user by their UUID. Returns nil if not found.
func (s *UserStore) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return u, nil
}

// FindByTelegramID retrieves a user by Telegram id. Returns nil if not found.
func (s *UserStore) FindByTelegramID(ctx context.Context, tgID int64) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE tg_user_id = $1`, tgID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by telegram id: %w", err)
	}
	return u, nil
}

// GetOrCreateByTelegramID returns the user with the Telegram id, creating
// it with the given first name when it does not exist.
func (s *UserStore) GetOrCreateByTelegramID(ctx context.Context, tgID int64, firstName string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		INSERT INTO users (tg_user_id, first_name, role)
		VALUES ($1, $2, 'user')
		ON CONFLICT (tg_user_id) DO UPDATE SET tg_user_id = EXCLUDED.tg_user_id
		RETURNING `+userColumns,
		tgID, firstName,
	))
	if err != nil {
		return nil, fmt.Errorf("get or create user: %w", err)
	}
	return u, nil
}

// Create inserts a new user and returns it.
func (s *UserStore) Create(ctx context.Context, u *models.User) (*models.User, error) {
	role := u.Role
	if role == "" {
		role = models.RoleUser
	}
	created, err := scanUser(s.db.QueryRowContext(ctx, `
		INSERT INTO users (tg_user_id, username, first_name, last_name, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userColumns,
		u.TgUserID, u.Username, u.FirstName, u.LastName, role,
	))
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

// UpdateAccess changes a user's role and ban flag. Nil arguments keep the
// current value. Returns nil if the user does not exist.
func (s *UserStore) UpdateAccess(ctx context.Context, id uuid.UUID, role *models.Role, banned *bool) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		UPDATE users SET role = COALESCE($1, role), is_banned = COALESCE($2, is_banned)
		WHERE id = $3
		RETURNING `+userColumns,
		role, banned, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update user access: %w", err)
	}
	return u, nil
}

// UserActivity is a user with the number of listings and comments they own.
type UserActivity struct {
	User     models.User
	Listings int
	Comments int
}

// List returns one page of users, newest first, with their activity counts.
func (s *UserStore) List(ctx context.Context, limit, offset int) ([]UserActivity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+`,
		       (SELECT COUNT(*) FROM listings l WHERE l.user_id = users.id),
		       (SELECT COUNT(*) FROM comments c WHERE c.user_id = users.id)
		FROM users
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	out := []UserActivity{}
	for rows.Next() {
		var a UserActivity
		u := &a.User
		if err := rows.Scan(
			&u.ID, &u.TgUserID, &u.Username, &u.FirstName, &u.LastName,
			&u.Role, &u.IsBanned, &u.CreatedAt,
			&a.Listings, &a.Comments,
		); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Count returns the number of registered users.
func (s *UserStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// Delete removes a user by ID. Their listings and comments go with them.
func (s *UserStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}
