// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package feed assembles pages of the public listing feed. Pages are
// keyset-paginated on published_at descending; featured (pinned) listings
// are a separate view that ignores the cursor.
package feed

import (
	"context"
	"fmt"
	"time"

	"kavmarket/internal/cursor"
	"kavmarket/internal/filter"
	"kavmarket/internal/models"
	"kavmarket/internal/pin"
)

const (
	// DefaultLimit is the page size used when the client does not ask for one.
	DefaultLimit = 20

	// DefaultMaxLimit caps the page size a client may request.
	DefaultMaxLimit = 100
)

// Source is the query contract the assembler needs from the listing store.
type Source interface {
	// FeedPage returns up to limit listings matching p, published strictly
	// before the given time when it is non-nil, newest first.
	FeedPage(ctx context.Context, p filter.Predicate, before *time.Time, limit int) ([]models.Listing, error)
	// FeedCount returns the number of listings matching p, ignoring paging.
	FeedCount(ctx context.Context, p filter.Predicate) (int, error)
	// PinnedCandidates returns pinned approved listings whose window
	// contains now, most recently pinned first, up to limit.
	PinnedCandidates(ctx context.Context, now time.Time, limit int) ([]models.Listing, error)
}

// Page is one page of the feed. Total and HasMore describe the paginated
// set only; featured listings are not counted.
type Page struct {
	Items      []models.Listing
	NextCursor *string
	HasMore    bool
	Total      int
}

// Assembler builds feed pages from a Source.
type Assembler struct {
	src          Source
	pins         *pin.Evaluator
	defaultLimit int
	maxLimit     int
}

// NewAssembler creates an Assembler. Non-positive limits fall back to
// DefaultLimit and DefaultMaxLimit.
func NewAssembler(src Source, pins *pin.Evaluator, defaultLimit, maxLimit int) *Assembler {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &Assembler{src: src, pins: pins, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// Limit normalizes a requested page size.
func (a *Assembler) Limit(requested int) int {
	if requested <= 0 {
		return a.defaultLimit
	}
	if requested > a.maxLimit {
		return a.maxLimit
	}
	return requested
}

// Page returns the page of listings matching p that follows token. A
// malformed token restarts from the first page.
func (a *Assembler) Page(ctx context.Context, p filter.Predicate, token string, limit int) (*Page, error) {
	limit = a.Limit(limit)

	if p.MatchNone {
		return &Page{Items: []models.Listing{}}, nil
	}

	var before *time.Time
	if token != "" {
		if key := cursor.Decode(token); key != nil {
			before = &key.PublishedAt
		}
	}

	rows, err := a.src.FeedPage(ctx, p, before, limit+1)
	if err != nil {
		return nil, fmt.Errorf("feed page: %w", err)
	}

	total, err := a.src.FeedCount(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("feed count: %w", err)
	}

	page := &Page{Items: rows, Total: total}
	if len(rows) > limit {
		page.HasMore = true
		page.Items = rows[:limit]

		last := page.Items[limit-1]
		if last.PublishedAt != nil {
			next := cursor.Encode(cursor.Key{PublishedAt: *last.PublishedAt})
			page.NextCursor = &next
		}
	}
	if page.Items == nil {
		page.Items = []models.Listing{}
	}
	return page, nil
}

// Featured returns the listings currently occupying the featured slots,
// in display order.
func (a *Assembler) Featured(ctx context.Context, now time.Time) ([]models.Listing, error) {
	candidates, err := a.src.PinnedCandidates(ctx, now, a.pins.Slots())
	if err != nil {
		return nil, fmt.Errorf("pinned listings: %w", err)
	}
	return a.pins.Select(candidates, now), nil
}
