package service

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/google/uuid"

	"kavmarket/internal/comments"
	"kavmarket/internal/models"
	"kavmarket/internal/sanitize"
)

const maxCommentLen = 1000

// AddComment posts text on a listing as userID, optionally replying to
// parentID. The parent must belong to the same listing. The returned node
// carries the replied-to author when parentID is set.
func (s *Service) AddComment(ctx context.Context, listingID, userID uuid.UUID, text string, parentID *uuid.UUID) (*comments.Node, error) {
	text = sanitize.Text(text)
	if text == "" {
		return nil, fmt.Errorf("%w: comment text is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(text) > maxCommentLen {
		return nil, fmt.Errorf("%w: comment is longer than %d characters", ErrInvalidInput, maxCommentLen)
	}

	l, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("find listing: %w", err)
	}
	if l == nil {
		return nil, fmt.Errorf("listing %s: %w", listingID, ErrNotFound)
	}

	var parent *models.Comment
	if parentID != nil {
		parent, err = s.comments.FindByID(ctx, *parentID)
		if err != nil {
			return nil, fmt.Errorf("find parent comment: %w", err)
		}
		if parent == nil || parent.ListingID != listingID {
			return nil, fmt.Errorf("parent comment %s: %w", *parentID, ErrNotFound)
		}
	}

	c, err := s.comments.Create(ctx, &models.Comment{
		ListingID: listingID,
		UserID:    userID,
		ParentID:  parentID,
		Text:      text,
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)

	slog.Debug("comment added", "listing_id", listingID, "comment_id", c.ID)

	if parent == nil {
		return comments.Build([]models.Comment{*c})[0], nil
	}
	roots := comments.Build([]models.Comment{*parent, *c})
	if len(roots) == 1 && len(roots[0].Replies) == 1 {
		return roots[0].Replies[0], nil
	}
	return roots[len(roots)-1], nil
}
