package models

import (
	"time"

	"github.com/google/uuid"
)

// Comment belongs to one listing and one user. ParentID, when set, points
// at an earlier comment on the same listing.
type Comment struct {
	ID        uuid.UUID
	ListingID uuid.UUID
	UserID    uuid.UUID
	ParentID  *uuid.UUID
	Text      string
	CreatedAt time.Time

	User *User
}
