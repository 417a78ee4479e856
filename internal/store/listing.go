// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"kavmarket/internal/filter"
	"kavmarket/internal/models"
	"kavmarket/internal/pin"
)

var (
	// ErrListingNotFound is returned by mutations whose target row does not exist.
	ErrListingNotFound = errors.New("listing not found")

	// ErrNotApproved is returned when pinning a listing that is not approved.
	ErrNotApproved = errors.New("listing is not approved")
)

// pinLockKey serialises pin reassignment across connections.
const pinLockKey int64 = 0x6b61766d70696e // "kavmpin"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ListingStore handles all listing-related database operations, including
// the feed queries and pin reassignment.
type ListingStore struct {
	db *sql.DB
}

// NewListingStore creates a new ListingStore with the given database connection.
func NewListingStore(db *sql.DB) *ListingStore {
	return &ListingStore{db: db}
}

// listingSelect reads a listing with its author, category and comment count.
const listingSelect = `
	SELECT l.id, l.user_id, l.category_id, l.title, l.description, l.price,
	       l.contacts, l.status, l.published_at, l.moderated_at,
	       l.is_pinned, l.pinned_at, l.pin_starts_at, l.pin_ends_at,
	       l.created_at, l.updated_at,
	       u.id, u.tg_user_id, u.username, u.first_name, u.last_name, u.role,
	       u.is_banned, u.created_at,
	       c.id, c.name, c.slug, c.created_at,
	       (SELECT COUNT(*) FROM comments cm WHERE cm.listing_id = l.id)
	FROM listings l
	JOIN users u ON u.id = l.user_id
	JOIN categories c ON c.id = l.category_id`

// scanListing scans a row produced by listingSelect.
func scanListing(scanner interface{ Scan(...any) error }) (*models.Listing, error) {
	var (
		l     models.Listing
		u     models.User
		c     models.Category
		count int
	)
	err := scanner.Scan(
		&l.ID, &l.UserID, &l.CategoryID, &l.Title, &l.Description, &l.Price,
		&l.Contacts, &l.Status, &l.PublishedAt, &l.ModeratedAt,
		&l.IsPinned, &l.PinnedAt, &l.PinStartsAt, &l.PinEndsAt,
		&l.CreatedAt, &l.UpdatedAt,
		&u.ID, &u.TgUserID, &u.Username, &u.FirstName, &u.LastName, &u.Role,
		&u.IsBanned, &u.CreatedAt,
		&c.ID, &c.Name, &c.Slug, &c.CreatedAt,
		&count,
	)
	if err != nil {
		return nil, err
	}
	l.User = &u
	l.Category = &c
	l.CommentCount = &count
	return &l, nil
}

// feedWhere renders the predicate as a WHERE clause, numbering placeholders
// from 1. The approved/published constraint is always present.
func feedWhere(p filter.Predicate) (string, []any) {
	conds := []string{"l.status = 'approved'", "l.published_at IS NOT NULL"}
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if p.MatchNone {
		conds = append(conds, "FALSE")
	}
	if len(p.CategoryIDs) > 0 {
		conds = append(conds, "l.category_id = ANY("+arg(uuidStrings(p.CategoryIDs))+"::uuid[])")
	}
	if len(p.TagSlugs) > 0 {
		conds = append(conds, `EXISTS (
			SELECT 1 FROM listing_tags lt JOIN tags t ON t.id = lt.tag_id
			WHERE lt.listing_id = l.id AND t.slug = ANY(`+arg(p.TagSlugs)+`::text[]))`)
	}
	if p.Search != "" {
		n := arg("%" + escapeLike(p.Search) + "%")
		conds = append(conds, "(l.title ILIKE "+n+" OR l.description ILIKE "+n+")")
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// FeedPage returns up to limit listings matching p, published strictly
// before the given time when it is non-nil, newest first.
func (s *ListingStore) FeedPage(ctx context.Context, p filter.Predicate, before *time.Time, limit int) ([]models.Listing, error) {
	where, args := feedWhere(p)
	if before != nil {
		args = append(args, *before)
		where += " AND l.published_at < $" + strconv.Itoa(len(args))
	}
	args = append(args, limit)
	query := listingSelect + where +
		" ORDER BY l.published_at DESC, l.id DESC LIMIT $" + strconv.Itoa(len(args))

	items, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("feed page: %w", err)
	}
	return items, nil
}

// FeedCount returns the number of listings matching p.
func (s *ListingStore) FeedCount(ctx context.Context, p filter.Predicate) (int, error) {
	where, args := feedWhere(p)
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM listings l`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("feed count: %w", err)
	}
	return count, nil
}

// PinnedCandidates returns pinned approved listings whose window contains
// now, most recently pinned first.
func (s *ListingStore) PinnedCandidates(ctx context.Context, now time.Time, limit int) ([]models.Listing, error) {
	items, err := s.query(ctx, listingSelect+`
		WHERE l.is_pinned AND l.status = 'approved'
		  AND (l.pin_starts_at IS NULL OR l.pin_starts_at <= $1)
		  AND (l.pin_ends_at IS NULL OR l.pin_ends_at >= $1)
		ORDER BY l.pinned_at DESC NULLS LAST, l.published_at DESC NULLS LAST
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("pinned listings: %w", err)
	}
	return items, nil
}

// PinWindows returns the windows of every pinned approved listing,
// including pins that have not started or have already ended.
func (s *ListingStore) PinWindows(ctx context.Context) ([]pin.Window, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pin_starts_at, pin_ends_at FROM listings
		WHERE is_pinned AND status = 'approved'
	`)
	if err != nil {
		return nil, fmt.Errorf("pin windows: %w", err)
	}
	defer rows.Close()

	var out []pin.Window
	for rows.Next() {
		var w pin.Window
		if err := rows.Scan(&w.StartsAt, &w.EndsAt); err != nil {
			return nil, fmt.Errorf("scan pin window: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// FindByID retrieves a listing with its joined rows. Returns nil if not found.
func (s *ListingStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	l, err := scanListing(s.db.QueryRowContext(ctx, listingSelect+` WHERE l.id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find listing by id: %w", err)
	}

	one := []models.Listing{*l}
	if err := s.hydrate(ctx, one); err != nil {
		return nil, err
	}
	return &one[0], nil
}

// ListByUser returns the user's listings that are not archived, newest first.
func (s *ListingStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Listing, error) {
	items, err := s.query(ctx, listingSelect+`
		WHERE l.user_id = $1 AND l.status <> 'archived'
		ORDER BY l.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list listings by user: %w", err)
	}
	return items, nil
}

// AdminPage returns one page of listings in any state along with the total
// match count. A nil status selects every listing, newest first; a single
// status is returned oldest first so a queue is worked in arrival order.
func (s *ListingStore) AdminPage(ctx context.Context, status *models.ListingStatus, limit, offset int) ([]models.Listing, int, error) {
	where, order := "", "l.created_at DESC, l.id"
	args := []any{}
	if status != nil {
		where, order = "WHERE l.status = $1", "l.created_at ASC, l.id"
		args = append(args, *status)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM listings l `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count admin listings: %w", err)
	}

	n := len(args)
	items, err := s.query(ctx, listingSelect+`
		`+where+`
		ORDER BY `+order+`
		LIMIT $`+strconv.Itoa(n+1)+` OFFSET $`+strconv.Itoa(n+2),
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list admin listings: %w", err)
	}
	return items, total, nil
}

// query runs a listingSelect query and hydrates tags and photos.
func (s *ListingStore) query(ctx context.Context, query string, args ...any) ([]models.Listing, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		items = append(items, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.hydrate(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// hydrate loads tags and photos for all listings with one query each.
func (s *ListingStore) hydrate(ctx context.Context, items []models.Listing) error {
	if len(items) == 0 {
		return nil
	}

	pos := make(map[uuid.UUID]int, len(items))
	ids := make([]string, len(items))
	for i := range items {
		pos[items[i].ID] = i
		ids[i] = items[i].ID.String()
		items[i].Tags = []models.ListingTag{}
		items[i].Photos = []models.Photo{}
	}

	tagRows, err := s.db.QueryContext(ctx, `
		SELECT lt.listing_id, t.id, t.name, t.slug
		FROM listing_tags lt
		JOIN tags t ON t.id = lt.tag_id
		WHERE lt.listing_id = ANY($1::uuid[])
		ORDER BY t.name
	`, ids)
	if err != nil {
		return fmt.Errorf("load listing tags: %w", err)
	}
	defer tagRows.Close()

	for tagRows.Next() {
		var lt models.ListingTag
		if err := tagRows.Scan(&lt.ListingID, &lt.Tag.ID, &lt.Tag.Name, &lt.Tag.Slug); err != nil {
			return fmt.Errorf("scan listing tag: %w", err)
		}
		lt.TagID = lt.Tag.ID
		i := pos[lt.ListingID]
		items[i].Tags = append(items[i].Tags, lt)
	}
	if err := tagRows.Err(); err != nil {
		return fmt.Errorf("load listing tags: %w", err)
	}

	photoRows, err := s.db.QueryContext(ctx, `
		SELECT id, listing_id, s3_key, width, height, "order", created_at
		FROM listing_photos
		WHERE listing_id = ANY($1::uuid[])
		ORDER BY "order", created_at
	`, ids)
	if err != nil {
		return fmt.Errorf("load listing photos: %w", err)
	}
	defer photoRows.Close()

	for photoRows.Next() {
		var ph models.Photo
		if err := photoRows.Scan(&ph.ID, &ph.ListingID, &ph.S3Key, &ph.Width, &ph.Height, &ph.Order, &ph.CreatedAt); err != nil {
			return fmt.Errorf("scan listing photo: %w", err)
		}
		i := pos[ph.ListingID]
		items[i].Photos = append(items[i].Photos, ph)
	}
	if err := photoRows.Err(); err != nil {
		return fmt.Errorf("load listing photos: %w", err)
	}
	return nil
}

// Create inserts a listing together with its tags and photos in one
// transaction. Tags are matched by slug and created when missing; photo
// order follows the slice order.
func (s *ListingStore) Create(ctx context.Context, l *models.Listing, tags []models.Tag, photos []models.Photo) (*models.Listing, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var id uuid.UUID
	err = tx.QueryRowContext(ctx, `
		INSERT INTO listings (user_id, category_id, title, description, price,
		                      contacts, status, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, l.UserID, l.CategoryID, l.Title, l.Description, l.Price,
		l.Contacts, l.Status, l.PublishedAt,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("create listing: %w", err)
	}

	if err := replaceTags(ctx, tx, id, tags); err != nil {
		return nil, err
	}
	if err := replacePhotos(ctx, tx, id, photos); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit listing: %w", err)
	}
	return s.FindByID(ctx, id)
}

// PublishChange is the publish-state transition applied together with a
// content update.
type PublishChange int

const (
	PublishKeep PublishChange = iota
	// PublishApprove publishes a draft or rejected listing.
	PublishApprove
	// PublishWithdraw returns a listing to draft and drops its pin.
	PublishWithdraw
)

// Update rewrites a listing's content columns. Status, publication date and
// pin columns are only touched by change, evaluated against the locked row,
// so a concurrent moderation or pin decision is never overwritten. Nil tags
// or photos leave those sets alone; an empty slice clears them.
func (s *ListingStore) Update(ctx context.Context, l *models.Listing, tags []models.Tag, photos []models.Photo, change PublishChange, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var status models.ListingStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM listings WHERE id = $1 FOR UPDATE`, l.ID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrListingNotFound
	}
	if err != nil {
		return fmt.Errorf("lock listing: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE listings SET
			category_id = $1, title = $2, description = $3, price = $4,
			contacts = $5, updated_at = NOW()
		WHERE id = $6
	`, l.CategoryID, l.Title, l.Description, l.Price, l.Contacts, l.ID); err != nil {
		return fmt.Errorf("update listing: %w", err)
	}

	switch change {
	case PublishApprove:
		if status == models.ListingStatusDraft || status == models.ListingStatusRejected {
			if _, err := tx.ExecContext(ctx, `
				UPDATE listings SET status = 'approved', published_at = COALESCE(published_at, $2)
				WHERE id = $1
			`, l.ID, now); err != nil {
				return fmt.Errorf("publish listing: %w", err)
			}
		}
	case PublishWithdraw:
		if _, err := tx.ExecContext(ctx, `
			UPDATE listings SET status = 'draft', published_at = NULL,
				is_pinned = FALSE, pinned_at = NULL, pin_starts_at = NULL, pin_ends_at = NULL
			WHERE id = $1
		`, l.ID); err != nil {
			return fmt.Errorf("withdraw listing: %w", err)
		}
	}

	if tags != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM listing_tags WHERE listing_id = $1`, l.ID); err != nil {
			return fmt.Errorf("clear listing tags: %w", err)
		}
		if err := replaceTags(ctx, tx, l.ID, tags); err != nil {
			return err
		}
	}
	if photos != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM listing_photos WHERE listing_id = $1`, l.ID); err != nil {
			return fmt.Errorf("clear listing photos: %w", err)
		}
		if err := replacePhotos(ctx, tx, l.ID, photos); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func replaceTags(ctx context.Context, q querier, listingID uuid.UUID, tags []models.Tag) error {
	for _, t := range tags {
		tagID, err := upsertTag(ctx, q, t.Slug, t.Name)
		if err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO listing_tags (listing_id, tag_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, listingID, tagID); err != nil {
			return fmt.Errorf("attach tag %s: %w", t.Slug, err)
		}
	}
	return nil
}

func replacePhotos(ctx context.Context, q querier, listingID uuid.UUID, photos []models.Photo) error {
	for i, ph := range photos {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO listing_photos (listing_id, s3_key, width, height, "order")
			VALUES ($1, $2, $3, $4, $5)
		`, listingID, ph.S3Key, ph.Width, ph.Height, i); err != nil {
			return fmt.Errorf("attach photo: %w", err)
		}
	}
	return nil
}

// SetPinned pins or unpins a listing. Pinning clears every other pin and
// sets the target's fields in one transaction, holding an advisory lock
// so concurrent pins serialise. Unpinning only touches the target.
func (s *ListingStore) SetPinned(ctx context.Context, id uuid.UUID, pinned bool, w pin.Window, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, pinLockKey); err != nil {
		return fmt.Errorf("acquire pin lock: %w", err)
	}

	var status models.ListingStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM listings WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return ErrListingNotFound
	}
	if err != nil {
		return fmt.Errorf("lock listing: %w", err)
	}

	if !pinned {
		if _, err := tx.ExecContext(ctx, `
			UPDATE listings SET is_pinned = FALSE, pinned_at = NULL,
				pin_starts_at = NULL, pin_ends_at = NULL, updated_at = NOW()
			WHERE id = $1
		`, id); err != nil {
			return fmt.Errorf("unpin listing: %w", err)
		}
		return tx.Commit()
	}

	if status != models.ListingStatusApproved {
		return ErrNotApproved
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE listings SET is_pinned = FALSE, pinned_at = NULL,
			pin_starts_at = NULL, pin_ends_at = NULL, updated_at = NOW()
		WHERE is_pinned AND id <> $1
	`, id); err != nil {
		return fmt.Errorf("clear pins: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE listings SET is_pinned = TRUE, pinned_at = $2,
			pin_starts_at = $3, pin_ends_at = $4, updated_at = NOW()
		WHERE id = $1
	`, id, now, w.StartsAt, w.EndsAt); err != nil {
		return fmt.Errorf("pin listing: %w", err)
	}
	return tx.Commit()
}

// SetStatus moves a listing to status. Approval keeps an existing
// published_at or sets it to now; every other status clears it together
// with the pin fields. When moderated is true moderated_at is stamped.
func (s *ListingStore) SetStatus(ctx context.Context, id uuid.UUID, status models.ListingStatus, now time.Time, moderated bool) error {
	var (
		res sql.Result
		err error
	)
	if status == models.ListingStatusApproved {
		res, err = s.db.ExecContext(ctx, `
			UPDATE listings SET status = $2,
				published_at = COALESCE(published_at, $3),
				moderated_at = CASE WHEN $4 THEN $3 ELSE moderated_at END,
				updated_at = NOW()
			WHERE id = $1
		`, id, status, now, moderated)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE listings SET status = $2, published_at = NULL,
				is_pinned = FALSE, pinned_at = NULL, pin_starts_at = NULL, pin_ends_at = NULL,
				moderated_at = CASE WHEN $4 THEN $3 ELSE moderated_at END,
				updated_at = NOW()
			WHERE id = $1
		`, id, status, now, moderated)
	}
	if err != nil {
		return fmt.Errorf("set listing status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrListingNotFound
	}
	return nil
}

// Delete removes a listing and, through cascades, its tags, photos and
// comments. Returns ErrListingNotFound when nothing was deleted.
func (s *ListingStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM listings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrListingNotFound
	}
	return nil
}

// CountPinned returns how many listings currently have is_pinned set.
func (s *ListingStore) CountPinned(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM listings WHERE is_pinned`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pinned: %w", err)
	}
	return n, nil
}

// escapeLike escapes LIKE wildcards so the search term matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
