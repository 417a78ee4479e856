// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package present converts joined listing records into the JSON shapes
// served to clients. Every function here is pure: inputs are read, never
// written, and the same input always yields an equal output.
package present

import (
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"kavmarket/internal/models"
)

// TimeLayout is the ISO-8601 form used for every timestamp on the wire.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// UserView is the public subset of a user. ExternalID carries the Telegram
// id as a string so clients never parse it into a lossy float.
type UserView struct {
	ID         uuid.UUID `json:"id"`
	ExternalID *string   `json:"externalId"`
	Username   *string   `json:"username"`
	FirstName  *string   `json:"firstName"`
	LastName   *string   `json:"lastName"`
}

// PhotoView is a listing photo with its resolved public URL.
type PhotoView struct {
	ID     uuid.UUID `json:"id"`
	URL    string    `json:"url"`
	S3Key  string    `json:"s3Key"`
	Width  *int      `json:"width"`
	Height *int      `json:"height"`
	Order  int       `json:"order"`
}

// ListingView is the wire shape of a listing.
type ListingView struct {
	ID           uuid.UUID        `json:"id"`
	UserID       uuid.UUID        `json:"userId"`
	CategoryID   uuid.UUID        `json:"categoryId"`
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	Price        *float64         `json:"price"`
	Contacts     *string          `json:"contacts"`
	Status       string           `json:"status"`
	PublishedAt  *string          `json:"publishedAt"`
	ModeratedAt  *string          `json:"moderatedAt"`
	IsPinned     bool             `json:"isPinned"`
	PinnedAt     *string          `json:"pinnedAt"`
	PinStartsAt  *string          `json:"pinStartsAt"`
	PinEndsAt    *string          `json:"pinEndsAt"`
	CreatedAt    string           `json:"createdAt"`
	UpdatedAt    string           `json:"updatedAt"`
	Category     *models.Category `json:"category"`
	Tags         []models.Tag     `json:"tags"`
	Photos       []PhotoView      `json:"photos"`
	User         *UserView        `json:"user"`
	CommentCount int              `json:"commentCount"`
}

// Presenter renders listings. PhotoURL resolves a storage key to a public
// URL; when nil the key is returned unchanged.
type Presenter struct {
	PhotoURL func(key string) string
}

// New creates a Presenter that resolves photo keys with photoURL.
func New(photoURL func(key string) string) *Presenter {
	return &Presenter{PhotoURL: photoURL}
}

// Listing converts one joined listing record.
func (p *Presenter) Listing(l *models.Listing) ListingView {
	v := ListingView{
		ID:          l.ID,
		UserID:      l.UserID,
		CategoryID:  l.CategoryID,
		Title:       l.Title,
		Description: l.Description,
		Price:       Price(l),
		Contacts:    copyString(l.Contacts),
		Status:      string(l.Status),
		PublishedAt: Time(l.PublishedAt),
		ModeratedAt: Time(l.ModeratedAt),
		IsPinned:    l.IsPinned,
		PinnedAt:    Time(l.PinnedAt),
		PinStartsAt: Time(l.PinStartsAt),
		PinEndsAt:   Time(l.PinEndsAt),
		CreatedAt:   l.CreatedAt.UTC().Format(TimeLayout),
		UpdatedAt:   l.UpdatedAt.UTC().Format(TimeLayout),
		Tags:        make([]models.Tag, 0, len(l.Tags)),
		Photos:      p.photos(l.Photos),
		User:        User(l.User),
	}

	if l.Category != nil {
		c := *l.Category
		v.Category = &c
	}
	for _, lt := range l.Tags {
		v.Tags = append(v.Tags, lt.Tag)
	}
	if l.CommentCount != nil {
		v.CommentCount = *l.CommentCount
	}
	return v
}

// Listings converts a slice of listings, preserving order. The result is
// never nil.
func (p *Presenter) Listings(ls []models.Listing) []ListingView {
	out := make([]ListingView, 0, len(ls))
	for i := range ls {
		out = append(out, p.Listing(&ls[i]))
	}
	return out
}

func (p *Presenter) photos(in []models.Photo) []PhotoView {
	out := make([]PhotoView, 0, len(in))
	for _, ph := range in {
		url := ph.S3Key
		if p.PhotoURL != nil {
			url = p.PhotoURL(ph.S3Key)
		}
		out = append(out, PhotoView{
			ID:     ph.ID,
			URL:    url,
			S3Key:  ph.S3Key,
			Width:  copyInt(ph.Width),
			Height: copyInt(ph.Height),
			Order:  ph.Order,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// User reduces a user to its public fields. A nil user yields nil.
func User(u *models.User) *UserView {
	if u == nil {
		return nil
	}
	v := &UserView{
		ID:        u.ID,
		Username:  copyString(u.Username),
		FirstName: copyString(u.FirstName),
		LastName:  copyString(u.LastName),
	}
	if u.TgUserID != nil {
		s := strconv.FormatInt(*u.TgUserID, 10)
		v.ExternalID = &s
	}
	return v
}

// AccountView is a user as seen by administrators. Activity counts are
// only present in user listings.
type AccountView struct {
	UserView
	Role          string `json:"role"`
	IsBanned      bool   `json:"isBanned"`
	CreatedAt     string `json:"createdAt"`
	ListingsCount *int   `json:"listingsCount,omitempty"`
	CommentsCount *int   `json:"commentsCount,omitempty"`
}

// Account builds the administrative view of a user.
func Account(u *models.User) AccountView {
	return AccountView{
		UserView:  *User(u),
		Role:      string(u.Role),
		IsBanned:  u.IsBanned,
		CreatedAt: u.CreatedAt.UTC().Format(TimeLayout),
	}
}

// Price converts the listing's decimal price to a float, or nil when the
// listing has none.
func Price(l *models.Listing) *float64 {
	if !l.Price.Valid {
		return nil
	}
	f := l.Price.Decimal.InexactFloat64()
	return &f
}

// Time formats a nullable timestamp in UTC.
func Time(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(TimeLayout)
	return &s
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func copyInt(n *int) *int {
	if n == nil {
		return nil
	}
	c := *n
	return &c
}
