// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ListingStatus represents the moderation lifecycle of a listing.
type ListingStatus string

const (
	ListingStatusDraft    ListingStatus = "draft"
	ListingStatusPending  ListingStatus = "pending"
	ListingStatusApproved ListingStatus = "approved"
	ListingStatusRejected ListingStatus = "rejected"
	ListingStatusArchived ListingStatus = "archived"
)

// Valid reports whether s is one of the known statuses.
func (s ListingStatus) Valid() bool {
	switch s {
	case ListingStatusDraft, ListingStatusPending, ListingStatusApproved,
		ListingStatusRejected, ListingStatusArchived:
		return true
	}
	return false
}

// Listing is a classified ad as stored in the listings table, plus the
// rows joined onto it by the store. PublishedAt is non-nil exactly when
// the status is approved.
type Listing struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	CategoryID  uuid.UUID
	Title       string
	Description string
	Price       decimal.NullDecimal
	Contacts    *string
	Status      ListingStatus
	PublishedAt *time.Time
	ModeratedAt *time.Time

	IsPinned    bool
	PinnedAt    *time.Time
	PinStartsAt *time.Time
	PinEndsAt   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	// Joined rows, populated by ListingStore read methods.
	User         *User
	Category     *Category
	Tags         []ListingTag
	Photos       []Photo
	CommentCount *int
}

// IsApproved returns true if the listing is publicly visible.
func (l *Listing) IsApproved() bool {
	return l.Status == ListingStatusApproved
}

// ListingTag is a row of the listing_tags join table with its tag attached.
type ListingTag struct {
	ListingID uuid.UUID
	TagID     uuid.UUID
	Tag       Tag
}

// Photo is an image attached to a listing. Photos are displayed by Order,
// not by insertion time.
type Photo struct {
	ID        uuid.UUID
	ListingID uuid.UUID
	S3Key     string
	Width     *int
	Height    *int
	Order     int
	CreatedAt time.Time
}
