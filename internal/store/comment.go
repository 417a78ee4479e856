// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"kavmarket/internal/models"
)

// CommentStore handles listing comments.
type CommentStore struct {
	db *sql.DB
}

// NewCommentStore creates a new CommentStore.
func NewCommentStore(db *sql.DB) *CommentStore {
	return &CommentStore{db: db}
}

const commentSelect = `
	SELECT c.id, c.listing_id, c.user_id, c.parent_id, c.text, c.created_at,
	       u.id, u.tg_user_id, u.username, u.first_name, u.last_name, u.role,
	       u.is_banned, u.created_at
	FROM comments c
	JOIN users u ON u.id = c.user_id`

func scanComment(scanner interface{ Scan(...any) error }) (*models.Comment, error) {
	var (
		c models.Comment
		u models.User
	)
	err := scanner.Scan(
		&c.ID, &c.ListingID, &c.UserID, &c.ParentID, &c.Text, &c.CreatedAt,
		&u.ID, &u.TgUserID, &u.Username, &u.FirstName, &u.LastName, &u.Role,
		&u.IsBanned, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.User = &u
	return &c, nil
}

// ListByListing returns the listing's comments with their authors, oldest
// first.
func (s *CommentStore) ListByListing(ctx context.Context, listingID uuid.UUID) ([]models.Comment, error) {
	rows, err := s.db.QueryContext(ctx, commentSelect+`
		WHERE c.listing_id = $1
		ORDER BY c.created_at, c.id
	`, listingID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := []models.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, *c)
	}
	return items, rows.Err()
}

// FindByID retrieves a comment by ID. Returns nil if not found.
func (s *CommentStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Comment, error) {
	c, err := scanComment(s.db.QueryRowContext(ctx, commentSelect+` WHERE c.id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find comment by id: %w", err)
	}
	return c, nil
}

// Create inserts a comment and returns it with its author.
func (s *CommentStore) Create(ctx context.Context, c *models.Comment) (*models.Comment, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO comments (listing_id, user_id, parent_id, text)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, c.ListingID, c.UserID, c.ParentID, c.Text).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}
	return s.FindByID(ctx, id)
}
