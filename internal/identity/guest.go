// Package identity resolves who a request acts as when it carries no
// session: anonymous comments are attributed to one shared guest account.
package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"kavmarket/internal/models"
)

// GuestName is the first name given to the guest account on creation.
const GuestName = "Guest"

// UserStore is the part of the user store the guest provider needs.
type UserStore interface {
	GetOrCreateByTelegramID(ctx context.Context, tgID int64, firstName string) (*models.User, error)
}

// GuestProvider hands out the guest user, creating it on first use. The
// id is remembered after the first successful lookup.
type GuestProvider struct {
	users UserStore

	mu sync.Mutex
	id uuid.UUID
}

// NewGuestProvider creates a provider backed by users.
func NewGuestProvider(users UserStore) *GuestProvider {
	return &GuestProvider{users: users}
}

// GuestID returns the id of the guest account.
func (g *GuestProvider) GuestID(ctx context.Context) (uuid.UUID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.id != uuid.Nil {
		return g.id, nil
	}
	u, err := g.users.GetOrCreateByTelegramID(ctx, models.GuestTelegramID, GuestName)
	if err != nil {
		return uuid.Nil, fmt.Errorf("resolve guest user: %w", err)
	}
	g.id = u.ID
	return g.id, nil
}
