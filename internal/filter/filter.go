// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package filter turns user-supplied feed filter tokens into a normalized
// Predicate. Resolution never fails on bad tokens: unknown category slugs
// are dropped and blank values are ignored. Only a store failure while
// looking up categories is reported as an error.
package filter

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"kavmarket/internal/models"
)

// maxSearchLen caps the free-text search term, in runes.
const maxSearchLen = 200

// Query is the raw filter input of a feed request.
type Query struct {
	Search     string
	Category   string   // single category slug, kept for older clients
	Categories []string // multi-select category slugs; wins over Category
	Tags       []string
}

// Predicate is the normalized set of constraints applied to the feed. The
// status constraint (approved with a publication date) is implicit and
// always applied.
type Predicate struct {
	// CategoryIDs restricts the feed to these categories when non-empty.
	CategoryIDs []uuid.UUID
	// TagSlugs keeps listings carrying at least one of these tags.
	TagSlugs []string
	// Search is a case-insensitive substring of the title or description.
	Search string
	// MatchNone is set when a category filter was requested but none of
	// its slugs resolved; the feed is then empty.
	MatchNone bool
}

// CategoryLookup resolves category slugs to ids.
type CategoryLookup interface {
	IDsBySlugs(ctx context.Context, slugs []string) ([]uuid.UUID, error)
}

// Resolver builds predicates, looking category slugs up in the store.
type Resolver struct {
	categories CategoryLookup
}

// NewResolver creates a Resolver backed by the given category lookup.
func NewResolver(categories CategoryLookup) *Resolver {
	return &Resolver{categories: categories}
}

// Resolve normalizes q into a Predicate.
func (r *Resolver) Resolve(ctx context.Context, q Query) (Predicate, error) {
	p := Predicate{
		Search:   normalizeSearch(q.Search),
		TagSlugs: normalizeSlugs(q.Tags),
	}

	slugs := normalizeSlugs(q.Categories)
	if len(slugs) == 0 {
		slugs = normalizeSlugs([]string{q.Category})
	}
	if len(slugs) == 0 {
		return p, nil
	}

	ids, err := r.categories.IDsBySlugs(ctx, slugs)
	if err != nil {
		return Predicate{}, fmt.Errorf("resolve categories: %w", err)
	}
	if len(ids) == 0 {
		p.MatchNone = true
		return p, nil
	}
	p.CategoryIDs = ids
	return p, nil
}

// Matches evaluates the predicate against a listing in memory. Tag
// matching uses the listing's joined tags.
func (p Predicate) Matches(l *models.Listing) bool {
	if p.MatchNone {
		return false
	}
	if l.Status != models.ListingStatusApproved || l.PublishedAt == nil {
		return false
	}

	if len(p.CategoryIDs) > 0 {
		found := false
		for _, id := range p.CategoryIDs {
			if id == l.CategoryID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(p.TagSlugs) > 0 {
		found := false
		for _, lt := range l.Tags {
			for _, s := range p.TagSlugs {
				if lt.Tag.Slug == s {
					found = true
				}
			}
		}
		if !found {
			return false
		}
	}

	if p.Search != "" {
		needle := strings.ToLower(p.Search)
		if !strings.Contains(strings.ToLower(l.Title), needle) &&
			!strings.Contains(strings.ToLower(l.Description), needle) {
			return false
		}
	}
	return true
}

// SplitList splits a comma-separated query parameter such as
// "auto,realty" into its parts. Empty parts are dropped.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// normalizeSearch trims the term and caps its length. A blank term means
// no search filter.
func normalizeSearch(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > maxSearchLen {
		s = string([]rune(s)[:maxSearchLen])
	}
	return s
}

// normalizeSlugs lowercases, trims and de-duplicates slugs, keeping the
// first occurrence order.
func normalizeSlugs(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
