package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"kavmarket/internal/models"
	"kavmarket/internal/present"
	"kavmarket/internal/store"
)

const (
	adminPageSize = 50
	historyLimit  = 50
)

// ListingPage is one page of an administrative listing view.
type ListingPage struct {
	Items       []present.ListingView `json:"items"`
	Total       int                   `json:"total"`
	Limit       int                   `json:"limit"`
	Offset      int                   `json:"offset"`
	PinnedCount int                   `json:"pinnedCount"`
}

// AdminListing is a listing in any state together with its moderation history.
type AdminListing struct {
	Listing present.ListingView `json:"listing"`
	History []store.AuditEntry  `json:"history"`
}

// UserPage is one page of registered users.
type UserPage struct {
	Items  []present.AccountView `json:"items"`
	Total  int                   `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

// UserPatch changes a user's access. Nil fields are left alone.
type UserPatch struct {
	Role     *models.Role
	IsBanned *bool
}

// ModerationQueue returns listings in the given status, oldest first. An
// empty status means pending.
func (s *Service) ModerationQueue(ctx context.Context, status models.ListingStatus, limit, offset int) (*ListingPage, error) {
	if status == "" {
		status = models.ListingStatusPending
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return s.listingPage(ctx, &status, limit, offset)
}

// AllListings returns every listing regardless of status, newest first.
func (s *Service) AllListings(ctx context.Context, limit, offset int) (*ListingPage, error) {
	return s.listingPage(ctx, nil, limit, offset)
}

func (s *Service) listingPage(ctx context.Context, status *models.ListingStatus, limit, offset int) (*ListingPage, error) {
	limit, offset, err := s.adminWindow(limit, offset)
	if err != nil {
		return nil, err
	}
	items, total, err := s.listings.AdminPage(ctx, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("admin listings: %w", err)
	}
	pinned, err := s.listings.CountPinned(ctx)
	if err != nil {
		return nil, fmt.Errorf("count pinned: %w", err)
	}
	return &ListingPage{
		Items:       s.presenter.Listings(items),
		Total:       total,
		Limit:       limit,
		Offset:      offset,
		PinnedCount: pinned,
	}, nil
}

// AdminListing returns a listing in any state with its most recent
// moderation events.
func (s *Service) AdminListing(ctx context.Context, id uuid.UUID) (*AdminListing, error) {
	v, err := s.reload(ctx, id)
	if err != nil {
		return nil, err
	}
	out := &AdminListing{Listing: *v, History: []store.AuditEntry{}}
	if s.audit == nil {
		return out, nil
	}
	history, err := s.audit.ForListing(ctx, id, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	if history != nil {
		out.History = history
	}
	return out, nil
}

// ListUsers returns one page of users with their activity counts.
func (s *Service) ListUsers(ctx context.Context, limit, offset int) (*UserPage, error) {
	limit, offset, err := s.adminWindow(limit, offset)
	if err != nil {
		return nil, err
	}
	rows, err := s.users.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	total, err := s.users.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	items := make([]present.AccountView, 0, len(rows))
	for i := range rows {
		v := present.Account(&rows[i].User)
		v.ListingsCount, v.CommentsCount = &rows[i].Listings, &rows[i].Comments
		items = append(items, v)
	}
	return &UserPage{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

// UpdateUser changes a user's role or ban flag. Admins cannot ban or
// demote themselves.
func (s *Service) UpdateUser(ctx context.Context, id uuid.UUID, patch UserPatch, actorID uuid.UUID) (*present.AccountView, error) {
	if patch.Role == nil && patch.IsBanned == nil {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	if patch.Role != nil && !patch.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, *patch.Role)
	}
	if id == actorID {
		if (patch.IsBanned != nil && *patch.IsBanned) || (patch.Role != nil && *patch.Role != models.RoleAdmin) {
			return nil, fmt.Errorf("admins cannot ban or demote themselves: %w", ErrPolicyViolation)
		}
	}

	u, err := s.users.UpdateAccess(ctx, id, patch.Role, patch.IsBanned)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	v := present.Account(u)
	return &v, nil
}

// DeleteUser removes a user with all their listings and comments.
func (s *Service) DeleteUser(ctx context.Context, id, actorID uuid.UUID) error {
	if id == actorID {
		return fmt.Errorf("admins cannot delete themselves: %w", ErrPolicyViolation)
	}
	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) adminWindow(limit, offset int) (int, int, error) {
	if limit < 0 || offset < 0 {
		return 0, 0, fmt.Errorf("%w: limit and offset must not be negative", ErrInvalidInput)
	}
	if limit == 0 {
		limit = adminPageSize
	}
	if s.maxPage > 0 && limit > s.maxPage {
		limit = s.maxPage
	}
	return limit, offset, nil
}
