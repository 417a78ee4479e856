package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"kavmarket/internal/cache"
	"kavmarket/internal/filter"
	"kavmarket/internal/models"
	"kavmarket/internal/pin"
	"kavmarket/internal/present"
)

// popularTagLimit is how many tags GetFilters returns.
const popularTagLimit = 20

// FeedQuery is a feed request as received from the client.
type FeedQuery struct {
	filter.Query
	Cursor string
	Limit  int
}

// FeedResponse is one page of the presented feed.
type FeedResponse struct {
	Items      []present.ListingView `json:"items"`
	NextCursor *string               `json:"nextCursor"`
	HasMore    bool                  `json:"hasMore"`
	Total      int                   `json:"total"`
}

// Filters lists the values a client can filter the feed by.
type Filters struct {
	Categories []models.Category `json:"categories"`
	Tags       []models.TagCount `json:"tags"`
	TotalUsers int               `json:"totalUsers"`
}

// GetFeed returns one page of approved listings matching q. A malformed
// cursor restarts from the first page; unknown category slugs yield an
// empty page.
func (s *Service) GetFeed(ctx context.Context, q FeedQuery) (*FeedResponse, error) {
	limit := s.assembler.Limit(q.Limit)

	var key string
	if q.Cursor == "" {
		key = feedKey(q.Query, limit)
		var hit FeedResponse
		if s.cached(ctx, key, &hit) {
			return &hit, nil
		}
	}

	p, err := s.resolver.Resolve(ctx, q.Query)
	if err != nil {
		return nil, err
	}

	page, err := s.assembler.Page(ctx, p, q.Cursor, limit)
	if err != nil {
		return nil, err
	}

	resp := &FeedResponse{
		Items:      s.presenter.Listings(page.Items),
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
		Total:      page.Total,
	}
	if key != "" {
		s.store(ctx, key, resp)
	}
	return resp, nil
}

// GetFeaturedListings returns the listings currently occupying the
// featured slots, most recently pinned first. The cached copy expires no
// later than the next pin window boundary.
func (s *Service) GetFeaturedListings(ctx context.Context) ([]present.ListingView, error) {
	const key = "featured"
	var hit []present.ListingView
	if s.cached(ctx, key, &hit) {
		return hit, nil
	}

	now := s.now()
	featured, err := s.assembler.Featured(ctx, now)
	if err != nil {
		return nil, err
	}
	views := s.presenter.Listings(featured)
	if s.cache == nil {
		return views, nil
	}

	windows, err := s.listings.PinWindows(ctx)
	if err != nil {
		slog.Warn("featured listings not cached", "error", err)
		return views, nil
	}
	if next, ok := pin.NextChange(windows, now); ok {
		s.cache.SetJSONTTL(ctx, key, views, next.Sub(now))
	} else {
		s.cache.SetJSON(ctx, key, views)
	}
	return views, nil
}

// GetFeaturedListing returns the first featured listing, or nil when no
// pin is active.
func (s *Service) GetFeaturedListing(ctx context.Context) (*present.ListingView, error) {
	views, err := s.GetFeaturedListings(ctx)
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, nil
	}
	return &views[0], nil
}

// GetFilters returns the categories, the most used tags and the member count.
func (s *Service) GetFilters(ctx context.Context) (*Filters, error) {
	const key = "filters"
	var hit Filters
	if s.cached(ctx, key, &hit) {
		return &hit, nil
	}

	cats, err := s.categories.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	tags, err := s.tags.Popular(ctx, popularTagLimit)
	if err != nil {
		return nil, fmt.Errorf("popular tags: %w", err)
	}
	users, err := s.users.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}

	f := &Filters{Categories: cats, Tags: tags, TotalUsers: users}
	if f.Categories == nil {
		f.Categories = []models.Category{}
	}
	if f.Tags == nil {
		f.Tags = []models.TagCount{}
	}
	s.store(ctx, key, f)
	return f, nil
}

func feedKey(q filter.Query, limit int) string {
	v := url.Values{}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Category != "" {
		v.Set("category", q.Category)
	}
	if len(q.Categories) > 0 {
		v["categories"] = q.Categories
	}
	if len(q.Tags) > 0 {
		v["tags"] = q.Tags
	}
	v.Set("limit", strconv.Itoa(limit))
	return cache.Key("feed", v)
}
