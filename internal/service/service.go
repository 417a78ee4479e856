// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package service implements the marketplace operations on top of the
// stores: feed retrieval, listing detail, pinning, moderation and the
// owner's listing lifecycle. It owns the error taxonomy that handlers map
// to HTTP statuses.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"kavmarket/internal/feed"
	"kavmarket/internal/filter"
	"kavmarket/internal/models"
	"kavmarket/internal/pin"
	"kavmarket/internal/present"
	"kavmarket/internal/storage"
	"kavmarket/internal/store"
)

var (
	// ErrNotFound is returned when a listing or comment parent does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPolicyViolation is returned when the caller may not perform the action.
	ErrPolicyViolation = errors.New("policy violation")

	// ErrInvalidInput is returned for request data that fails validation.
	ErrInvalidInput = errors.New("invalid input")
)

// Listings is the listing store contract.
type Listings interface {
	feed.Source
	FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Listing, error)
	Create(ctx context.Context, l *models.Listing, tags []models.Tag, photos []models.Photo) (*models.Listing, error)
	Update(ctx context.Context, l *models.Listing, tags []models.Tag, photos []models.Photo, change store.PublishChange, now time.Time) error
	SetPinned(ctx context.Context, id uuid.UUID, pinned bool, w pin.Window, now time.Time) error
	SetStatus(ctx context.Context, id uuid.UUID, status models.ListingStatus, now time.Time, moderated bool) error
	Delete(ctx context.Context, id uuid.UUID) error
	AdminPage(ctx context.Context, status *models.ListingStatus, limit, offset int) ([]models.Listing, int, error)
	CountPinned(ctx context.Context) (int, error)
	PinWindows(ctx context.Context) ([]pin.Window, error)
}

// Comments is the comment store contract.
type Comments interface {
	ListByListing(ctx context.Context, listingID uuid.UUID) ([]models.Comment, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Comment, error)
	Create(ctx context.Context, c *models.Comment) (*models.Comment, error)
}

// Categories is the category store contract.
type Categories interface {
	filter.CategoryLookup
	List(ctx context.Context) ([]models.Category, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Category, error)
}

// Tags is the tag store contract.
type Tags interface {
	Popular(ctx context.Context, limit int) ([]models.TagCount, error)
}

// Users is the user store contract.
type Users interface {
	Count(ctx context.Context) (int, error)
	List(ctx context.Context, limit, offset int) ([]store.UserActivity, error)
	UpdateAccess(ctx context.Context, id uuid.UUID, role *models.Role, banned *bool) (*models.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// AuditLog records moderation events.
type AuditLog interface {
	Log(ctx context.Context, listingID uuid.UUID, actorID *uuid.UUID, action, detail string)
	ForListing(ctx context.Context, listingID uuid.UUID, limit int) ([]store.AuditEntry, error)
}

// Cache stores serialized responses for cursor-less reads.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) bool
	SetJSON(ctx context.Context, key string, v any)
	SetJSONTTL(ctx context.Context, key string, v any, ttl time.Duration)
	InvalidateAll(ctx context.Context)
}

// Photos issues upload URLs and removes stored photos.
type Photos interface {
	PresignUpload(ctx context.Context, filename, contentType string) (*storage.Upload, error)
	Delete(ctx context.Context, key string) error
}

// Deps bundles the collaborators of a Service. Audit, Cache and Photos
// are optional.
type Deps struct {
	Listings   Listings
	Comments   Comments
	Categories Categories
	Tags       Tags
	Users      Users
	Audit      AuditLog
	Cache      Cache
	Photos     Photos
	Presenter  *present.Presenter
}

// Options tune feed behaviour.
type Options struct {
	PageSize    int
	MaxPageSize int
	PinSlots    int
}

// Service implements the marketplace operations.
type Service struct {
	listings   Listings
	comments   Comments
	categories Categories
	tags       Tags
	users      Users
	audit      AuditLog
	cache      Cache
	photos     Photos
	presenter  *present.Presenter

	resolver  *filter.Resolver
	assembler *feed.Assembler
	maxPage   int
	now       func() time.Time
}

// New creates a Service.
func New(d Deps, opts Options) *Service {
	presenter := d.Presenter
	if presenter == nil {
		presenter = present.New(nil)
	}
	return &Service{
		listings:   d.Listings,
		comments:   d.Comments,
		categories: d.Categories,
		tags:       d.Tags,
		users:      d.Users,
		audit:      d.Audit,
		cache:      d.Cache,
		photos:     d.Photos,
		presenter:  presenter,
		resolver:   filter.NewResolver(d.Categories),
		assembler:  feed.NewAssembler(d.Listings, pin.NewEvaluator(opts.PinSlots), opts.PageSize, opts.MaxPageSize),
		maxPage:    opts.MaxPageSize,
		now:        time.Now,
	}
}

func (s *Service) log(ctx context.Context, listingID uuid.UUID, actorID *uuid.UUID, action, detail string) {
	if s.audit != nil {
		s.audit.Log(ctx, listingID, actorID, action, detail)
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.InvalidateAll(ctx)
	}
}

func (s *Service) cached(ctx context.Context, key string, dst any) bool {
	return s.cache != nil && s.cache.GetJSON(ctx, key, dst)
}

func (s *Service) store(ctx context.Context, key string, v any) {
	if s.cache != nil {
		s.cache.SetJSON(ctx, key, v)
	}
}
