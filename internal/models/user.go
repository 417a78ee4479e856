// Package models defines the data structures that map to database tables
// and provides the core types used throughout the application.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Role represents a user's permission level in the system.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleModerator || r == RoleAdmin
}

// GuestTelegramID is the synthetic Telegram id of the shared guest account
// that anonymous actions are attributed to.
const GuestTelegramID int64 = 999999999

// User is a marketplace member, usually identified by a Telegram account.
type User struct {
	ID        uuid.UUID
	TgUserID  *int64
	Username  *string
	FirstName *string
	LastName  *string
	Role      Role
	IsBanned  bool
	CreatedAt time.Time
}

// CanModerate returns true for moderators and admins.
func (u *User) CanModerate() bool {
	return u.Role == RoleModerator || u.Role == RoleAdmin
}

// IsAdmin returns true if the user has the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
