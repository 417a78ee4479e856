// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"kavmarket/internal/comments"
	"kavmarket/internal/models"
	"kavmarket/internal/pin"
	"kavmarket/internal/present"
	"kavmarket/internal/sanitize"
	"kavmarket/internal/slug"
	"kavmarket/internal/storage"
	"kavmarket/internal/store"
)

// Validation limits for listing input.
const (
	minTitleLen       = 3
	maxTitleLen       = 200
	minDescriptionLen = 10
	maxDescriptionLen = 5000
	maxTags           = 10
	maxTagLen         = 50
	maxPhotos         = 10
	maxContactsLen    = 2000
)

var maxPrice = decimal.RequireFromString("99999999.99")

// PhotoInput describes an uploaded photo being attached to a listing.
type PhotoInput struct {
	S3Key  string `json:"s3Key"`
	Width  *int   `json:"width"`
	Height *int   `json:"height"`
}

// ListingInput is the content of a new listing.
type ListingInput struct {
	Title       string
	Description string
	CategoryID  uuid.UUID
	Price       *decimal.Decimal
	Contacts    *string
	Tags        []string
	Photos      []PhotoInput
	Publish     bool
}

// ListingPatch changes selected fields of a listing. Nil fields are left
// as they are. Price set to an invalid NullDecimal clears the price.
type ListingPatch struct {
	Title       *string
	Description *string
	CategoryID  *uuid.UUID
	Price       *decimal.NullDecimal
	Contacts    *string
	Tags        []string
	Photos      []PhotoInput
	Publish     *bool
}

// ListingDetail is a listing with its threaded comments.
type ListingDetail struct {
	present.ListingView
	Comments []*comments.Node `json:"comments"`
}

// GetListingDetail returns the listing with its comment tree. The comment
// count covers every comment in the tree, replies included.
func (s *Service) GetListingDetail(ctx context.Context, id uuid.UUID) (*ListingDetail, error) {
	l, err := s.listings.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find listing: %w", err)
	}
	if l == nil {
		return nil, fmt.Errorf("listing %s: %w", id, ErrNotFound)
	}

	flat, err := s.comments.ListByListing(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}

	roots := comments.Build(flat)
	d := &ListingDetail{ListingView: s.presenter.Listing(l), Comments: roots}
	d.CommentCount = comments.Count(roots)
	return d, nil
}

// MyListings returns the user's listings that are not archived, newest first.
func (s *Service) MyListings(ctx context.Context, userID uuid.UUID) ([]present.ListingView, error) {
	items, err := s.listings.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.presenter.Listings(items), nil
}

// CreateListing stores a new listing owned by userID. With Publish set it
// is approved immediately; otherwise it starts as a draft.
func (s *Service) CreateListing(ctx context.Context, userID uuid.UUID, in ListingInput) (*present.ListingView, error) {
	in.Title = sanitize.Line(in.Title)
	in.Description = sanitize.Text(in.Description)
	in.Contacts = cleanContacts(in.Contacts)

	if err := validateTitle(in.Title); err != nil {
		return nil, err
	}
	if err := validateDescription(in.Description); err != nil {
		return nil, err
	}
	if err := s.validateCategory(ctx, in.CategoryID); err != nil {
		return nil, err
	}
	if err := validatePrice(in.Price); err != nil {
		return nil, err
	}
	if err := validateContacts(in.Contacts); err != nil {
		return nil, err
	}
	tags, err := buildTags(in.Tags)
	if err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return nil, fmt.Errorf("%w: at least one tag is required", ErrInvalidInput)
	}
	photos, err := buildPhotos(in.Photos)
	if err != nil {
		return nil, err
	}

	l := &models.Listing{
		UserID:      userID,
		CategoryID:  in.CategoryID,
		Title:       in.Title,
		Description: in.Description,
		Contacts:    in.Contacts,
		Status:      models.ListingStatusDraft,
	}
	if in.Price != nil {
		l.Price = decimal.NewNullDecimal(*in.Price)
	}
	if in.Publish {
		now := s.now()
		l.Status = models.ListingStatusApproved
		l.PublishedAt = &now
	}

	created, err := s.listings.Create(ctx, l, tags, photos)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, fmt.Errorf("created listing vanished")
	}
	if created.IsApproved() {
		s.invalidate(ctx)
	}

	slog.Info("listing created", "listing_id", created.ID, "user_id", userID, "status", created.Status)
	v := s.presenter.Listing(created)
	return &v, nil
}

// UpdateListing applies patch to a listing owned by userID. Publishing a
// draft or rejected listing approves it; unpublishing moves it back to
// draft and drops its pin.
func (s *Service) UpdateListing(ctx context.Context, id, userID uuid.UUID, patch ListingPatch) (*present.ListingView, error) {
	l, err := s.ownedListing(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	wasPublic := l.IsApproved()

	if patch.Title != nil {
		l.Title = sanitize.Line(*patch.Title)
		if err := validateTitle(l.Title); err != nil {
			return nil, err
		}
	}
	if patch.Description != nil {
		l.Description = sanitize.Text(*patch.Description)
		if err := validateDescription(l.Description); err != nil {
			return nil, err
		}
	}
	if patch.CategoryID != nil {
		if err := s.validateCategory(ctx, *patch.CategoryID); err != nil {
			return nil, err
		}
		l.CategoryID = *patch.CategoryID
	}
	if patch.Price != nil {
		if patch.Price.Valid {
			if err := validatePrice(&patch.Price.Decimal); err != nil {
				return nil, err
			}
		}
		l.Price = *patch.Price
	}
	if patch.Contacts != nil {
		l.Contacts = cleanContacts(patch.Contacts)
		if err := validateContacts(l.Contacts); err != nil {
			return nil, err
		}
	}

	var tags []models.Tag
	if patch.Tags != nil {
		if tags, err = buildTags(patch.Tags); err != nil {
			return nil, err
		}
		if tags == nil {
			tags = []models.Tag{}
		}
	}
	var photos []models.Photo
	if patch.Photos != nil {
		if photos, err = buildPhotos(patch.Photos); err != nil {
			return nil, err
		}
		if photos == nil {
			photos = []models.Photo{}
		}
	}

	change := store.PublishKeep
	if patch.Publish != nil {
		change = store.PublishWithdraw
		if *patch.Publish {
			change = store.PublishApprove
		}
	}

	if err := s.listings.Update(ctx, l, tags, photos, change, s.now()); err != nil {
		if errors.Is(err, store.ErrListingNotFound) {
			return nil, fmt.Errorf("listing %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	v, err := s.reload(ctx, id)
	if err != nil {
		return nil, err
	}
	if wasPublic || v.Status == string(models.ListingStatusApproved) {
		s.invalidate(ctx)
	}
	return v, nil
}

// DeleteListing archives a listing owned by userID. Archiving clears the
// publication date and any pin.
func (s *Service) DeleteListing(ctx context.Context, id, userID uuid.UUID) error {
	if _, err := s.ownedListing(ctx, id, userID); err != nil {
		return err
	}
	if err := s.listings.SetStatus(ctx, id, models.ListingStatusArchived, s.now(), false); err != nil {
		return mapStoreErr(id, err)
	}
	s.log(ctx, id, &userID, store.AuditStatus, string(models.ListingStatusArchived))
	s.invalidate(ctx)
	return nil
}

// ModerateListing sets a listing's moderation status. Approval keeps an
// existing publication date; any other status clears it and the pin.
func (s *Service) ModerateListing(ctx context.Context, id uuid.UUID, status models.ListingStatus, actorID *uuid.UUID) (*present.ListingView, error) {
	if status != models.ListingStatusApproved && status != models.ListingStatusRejected {
		return nil, fmt.Errorf("%w: status must be approved or rejected", ErrInvalidInput)
	}
	if err := s.listings.SetStatus(ctx, id, status, s.now(), true); err != nil {
		return nil, mapStoreErr(id, err)
	}
	s.log(ctx, id, actorID, store.AuditStatus, string(status))
	s.invalidate(ctx)
	return s.reload(ctx, id)
}

// HardDeleteListing removes a listing row together with its comments,
// tags and photo records. Stored photo objects are removed best-effort.
func (s *Service) HardDeleteListing(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) error {
	l, err := s.listings.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("find listing: %w", err)
	}
	if l == nil {
		return fmt.Errorf("listing %s: %w", id, ErrNotFound)
	}
	if err := s.listings.Delete(ctx, id); err != nil {
		return mapStoreErr(id, err)
	}
	s.log(ctx, id, actorID, store.AuditDelete, l.Title)
	s.invalidate(ctx)

	if s.photos != nil {
		for _, ph := range l.Photos {
			if err := s.photos.Delete(ctx, ph.S3Key); err != nil {
				slog.Warn("failed to delete listing photo", "listing_id", id, "key", ph.S3Key, "error", err)
			}
		}
	}
	return nil
}

// SetPinned pins or unpins a listing. Pinning requires an approved
// listing and replaces any other pin atomically; the window bounds are
// optional. Unpinning ignores the window.
func (s *Service) SetPinned(ctx context.Context, id uuid.UUID, pinned bool, w pin.Window, actorID *uuid.UUID) (*present.ListingView, error) {
	if pinned {
		if err := w.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	} else {
		w = pin.Window{}
	}

	if err := s.listings.SetPinned(ctx, id, pinned, w, s.now()); err != nil {
		return nil, mapStoreErr(id, err)
	}

	action := store.AuditUnpin
	if pinned {
		action = store.AuditPin
	}
	s.log(ctx, id, actorID, action, windowDetail(w))
	s.invalidate(ctx)
	return s.reload(ctx, id)
}

// PresignPhotoUpload returns a presigned URL the client uploads a photo to.
func (s *Service) PresignPhotoUpload(ctx context.Context, filename, contentType string) (*storage.Upload, error) {
	if s.photos == nil {
		return nil, fmt.Errorf("photo storage is not configured")
	}
	up, err := s.photos.PresignUpload(ctx, filename, contentType)
	if errors.Is(err, storage.ErrUnsupportedType) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return up, err
}

func (s *Service) ownedListing(ctx context.Context, id, userID uuid.UUID) (*models.Listing, error) {
	l, err := s.listings.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find listing: %w", err)
	}
	if l == nil {
		return nil, fmt.Errorf("listing %s: %w", id, ErrNotFound)
	}
	if l.UserID != userID {
		return nil, fmt.Errorf("listing %s belongs to another user: %w", id, ErrPolicyViolation)
	}
	return l, nil
}

func (s *Service) reload(ctx context.Context, id uuid.UUID) (*present.ListingView, error) {
	l, err := s.listings.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload listing: %w", err)
	}
	if l == nil {
		return nil, fmt.Errorf("listing %s: %w", id, ErrNotFound)
	}
	v := s.presenter.Listing(l)
	return &v, nil
}

func (s *Service) validateCategory(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("%w: category is required", ErrInvalidInput)
	}
	c, err := s.categories.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("find category: %w", err)
	}
	if c == nil {
		return fmt.Errorf("%w: unknown category %s", ErrInvalidInput, id)
	}
	return nil
}

func mapStoreErr(id uuid.UUID, err error) error {
	switch {
	case errors.Is(err, store.ErrListingNotFound):
		return fmt.Errorf("listing %s: %w", id, ErrNotFound)
	case errors.Is(err, store.ErrNotApproved):
		return fmt.Errorf("listing %s is not approved: %w", id, ErrPolicyViolation)
	}
	return err
}

func windowDetail(w pin.Window) string {
	if w.StartsAt == nil && w.EndsAt == nil {
		return ""
	}
	format := func(t *time.Time) string {
		if t == nil {
			return "-"
		}
		return t.UTC().Format(time.RFC3339)
	}
	return format(w.StartsAt) + ".." + format(w.EndsAt)
}

func validateTitle(title string) error {
	if n := utf8.RuneCountInString(title); n < minTitleLen || n > maxTitleLen {
		return fmt.Errorf("%w: title must be %d to %d characters", ErrInvalidInput, minTitleLen, maxTitleLen)
	}
	return nil
}

func validateDescription(desc string) error {
	if n := utf8.RuneCountInString(desc); n < minDescriptionLen || n > maxDescriptionLen {
		return fmt.Errorf("%w: description must be %d to %d characters", ErrInvalidInput, minDescriptionLen, maxDescriptionLen)
	}
	return nil
}

func validatePrice(p *decimal.Decimal) error {
	if p == nil {
		return nil
	}
	if p.IsNegative() {
		return fmt.Errorf("%w: price cannot be negative", ErrInvalidInput)
	}
	if p.GreaterThan(maxPrice) {
		return fmt.Errorf("%w: price cannot exceed %s", ErrInvalidInput, maxPrice)
	}
	return nil
}

func validateContacts(c *string) error {
	if c != nil && utf8.RuneCountInString(*c) > maxContactsLen {
		return fmt.Errorf("%w: contacts are too long", ErrInvalidInput)
	}
	return nil
}

func cleanContacts(c *string) *string {
	if c == nil {
		return nil
	}
	v := sanitize.Text(*c)
	if v == "" {
		return nil
	}
	return &v
}

// buildTags turns tag names into tags keyed by slug, dropping duplicates
// and names that produce an empty slug.
func buildTags(names []string) ([]models.Tag, error) {
	if len(names) > maxTags {
		return nil, fmt.Errorf("%w: at most %d tags are allowed", ErrInvalidInput, maxTags)
	}
	var out []models.Tag
	seen := make(map[string]bool, len(names))
	for _, raw := range names {
		name := sanitize.Line(raw)
		if utf8.RuneCountInString(name) > maxTagLen {
			return nil, fmt.Errorf("%w: tag %q is longer than %d characters", ErrInvalidInput, name, maxTagLen)
		}
		sl := slug.Generate(name)
		if sl == "" || seen[sl] {
			continue
		}
		seen[sl] = true
		out = append(out, models.Tag{Slug: sl, Name: name})
	}
	return out, nil
}

// buildPhotos validates photo input. Display order follows input order.
func buildPhotos(in []PhotoInput) ([]models.Photo, error) {
	if len(in) > maxPhotos {
		return nil, fmt.Errorf("%w: at most %d photos are allowed", ErrInvalidInput, maxPhotos)
	}
	var out []models.Photo
	for i, ph := range in {
		if ph.S3Key == "" {
			return nil, fmt.Errorf("%w: photo %d has no key", ErrInvalidInput, i+1)
		}
		if (ph.Width != nil && *ph.Width <= 0) || (ph.Height != nil && *ph.Height <= 0) {
			return nil, fmt.Errorf("%w: photo %d has invalid dimensions", ErrInvalidInput, i+1)
		}
		out = append(out, models.Photo{S3Key: ph.S3Key, Width: ph.Width, Height: ph.Height, Order: i})
	}
	return out, nil
}
