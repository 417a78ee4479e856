package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"kavmarket/internal/models"
)

// TagStore reads tags. Tags are written through ListingStore, which
// creates them lazily by slug.
type TagStore struct {
	db *sql.DB
}

// NewTagStore creates a new TagStore.
func NewTagStore(db *sql.DB) *TagStore {
	return &TagStore{db: db}
}

// Popular returns the tags used by the most approved listings, with counts.
func (s *TagStore) Popular(ctx context.Context, limit int) ([]models.TagCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.slug, COUNT(l.id) AS uses
		FROM tags t
		JOIN listing_tags lt ON lt.tag_id = t.id
		JOIN listings l ON l.id = lt.listing_id AND l.status = 'approved'
		GROUP BY t.id
		ORDER BY uses DESC, t.name
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("popular tags: %w", err)
	}
	defer rows.Close()

	items := []models.TagCount{}
	for rows.Next() {
		var tc models.TagCount
		if err := rows.Scan(&tc.ID, &tc.Name, &tc.Slug, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		items = append(items, tc)
	}
	return items, rows.Err()
}

// FindBySlug returns the tag with the given slug, or nil.
func (s *TagStore) FindBySlug(ctx context.Context, slug string) (*models.Tag, error) {
	var t models.Tag
	err := s.db.QueryRowContext(ctx, `SELECT id, name, slug FROM tags WHERE slug = $1`, slug).
		Scan(&t.ID, &t.Name, &t.Slug)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find tag by slug: %w", err)
	}
	return &t, nil
}

// upsertTag returns the id of the tag with slug, inserting it when missing.
// An existing tag keeps its original name.
func upsertTag(ctx context.Context, q querier, slug, name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.QueryRowContext(ctx, `
		INSERT INTO tags (slug, name) VALUES ($1, $2)
		ON CONFLICT (slug) DO UPDATE SET slug = EXCLUDED.slug
		RETURNING id
	`, slug, name).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upsert tag %s: %w", slug, err)
	}
	return id, nil
}
