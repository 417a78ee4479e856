package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"kavmarket/internal/filter"
	"kavmarket/internal/models"
	"kavmarket/internal/pin"
	"kavmarket/internal/storage"
	"kavmarket/internal/store"
)

var errStoreDown = errors.New("connection refused")

// memListings is an in-memory listing store with the same mutation
// semantics as the Postgres one.
type memListings struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]*models.Listing
	users map[uuid.UUID]*models.User
	fail  error
}

func newMemListings() *memListings {
	return &memListings{rows: map[uuid.UUID]*models.Listing{}, users: map[uuid.UUID]*models.User{}}
}

func (m *memListings) put(l models.Listing) *models.Listing {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	cp := l
	m.rows[l.ID] = &cp
	return &cp
}

func (m *memListings) snapshot(filterFn func(*models.Listing) bool) []models.Listing {
	var out []models.Listing
	for _, l := range m.rows {
		if filterFn(l) {
			out = append(out, *l)
		}
	}
	return out
}

func (m *memListings) FeedPage(_ context.Context, p filter.Predicate, before *time.Time, limit int) ([]models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	rows := m.snapshot(func(l *models.Listing) bool {
		return p.Matches(l) && (before == nil || l.PublishedAt.Before(*before))
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].PublishedAt.After(*rows[j].PublishedAt) })
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (m *memListings) FeedCount(_ context.Context, p filter.Predicate) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return 0, m.fail
	}
	return len(m.snapshot(p.Matches)), nil
}

func (m *memListings) PinnedCandidates(_ context.Context, now time.Time, limit int) ([]models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	rows := m.snapshot(func(l *models.Listing) bool { return pin.Active(l, now) })
	pin.Sort(rows)
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (m *memListings) FindByID(_ context.Context, id uuid.UUID) (*models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	l, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (m *memListings) ListByUser(_ context.Context, userID uuid.UUID) ([]models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.snapshot(func(l *models.Listing) bool {
		return l.UserID == userID && l.Status != models.ListingStatusArchived
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
	return rows, nil
}

func (m *memListings) Create(_ context.Context, l *models.Listing, tags []models.Tag, photos []models.Photo) (*models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	cp.ID = uuid.New()
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	cp.Tags = joinTags(cp.ID, tags)
	cp.Photos = append([]models.Photo(nil), photos...)
	m.rows[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memListings) Update(_ context.Context, l *models.Listing, tags []models.Tag, photos []models.Photo, change store.PublishChange, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[l.ID]
	if !ok {
		return store.ErrListingNotFound
	}
	row.CategoryID, row.Title, row.Description = l.CategoryID, l.Title, l.Description
	row.Price, row.Contacts = l.Price, l.Contacts
	switch change {
	case store.PublishApprove:
		if row.Status == models.ListingStatusDraft || row.Status == models.ListingStatusRejected {
			row.Status = models.ListingStatusApproved
			if row.PublishedAt == nil {
				at := now
				row.PublishedAt = &at
			}
		}
	case store.PublishWithdraw:
		row.Status = models.ListingStatusDraft
		row.PublishedAt = nil
		clearPin(row)
	}
	if tags != nil {
		row.Tags = joinTags(row.ID, tags)
	}
	if photos != nil {
		row.Photos = append([]models.Photo(nil), photos...)
	}
	return nil
}

func (m *memListings) SetPinned(_ context.Context, id uuid.UUID, pinned bool, w pin.Window, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	l, ok := m.rows[id]
	if !ok {
		return store.ErrListingNotFound
	}
	if !pinned {
		clearPin(l)
		return nil
	}
	if !l.IsApproved() {
		return store.ErrNotApproved
	}
	for _, other := range m.rows {
		if other.ID != id {
			clearPin(other)
		}
	}
	at := now
	l.IsPinned, l.PinnedAt, l.PinStartsAt, l.PinEndsAt = true, &at, w.StartsAt, w.EndsAt
	return nil
}

func (m *memListings) SetStatus(_ context.Context, id uuid.UUID, status models.ListingStatus, now time.Time, moderated bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.rows[id]
	if !ok {
		return store.ErrListingNotFound
	}
	l.Status = status
	if status == models.ListingStatusApproved {
		if l.PublishedAt == nil {
			at := now
			l.PublishedAt = &at
		}
	} else {
		l.PublishedAt = nil
		clearPin(l)
	}
	if moderated {
		at := now
		l.ModeratedAt = &at
	}
	return nil
}

func (m *memListings) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return store.ErrListingNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memListings) AdminPage(_ context.Context, status *models.ListingStatus, limit, offset int) ([]models.Listing, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, 0, m.fail
	}
	rows := m.snapshot(func(l *models.Listing) bool { return status == nil || l.Status == *status })
	sort.Slice(rows, func(i, j int) bool {
		if status == nil {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
	total := len(rows)
	if offset > len(rows) {
		offset = len(rows)
	}
	rows = rows[offset:]
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, total, nil
}

func (m *memListings) PinWindows(context.Context) ([]pin.Window, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []pin.Window
	for _, l := range m.rows {
		if l.IsPinned && l.IsApproved() {
			out = append(out, pin.Window{StartsAt: l.PinStartsAt, EndsAt: l.PinEndsAt})
		}
	}
	return out, nil
}

func (m *memListings) CountPinned(context.Context) (int, error) {
	return m.pinnedCount(), nil
}

func (m *memListings) pinnedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.rows {
		if l.IsPinned {
			n++
		}
	}
	return n
}

func clearPin(l *models.Listing) {
	l.IsPinned = false
	l.PinnedAt = nil
	l.PinStartsAt = nil
	l.PinEndsAt = nil
}

func joinTags(listingID uuid.UUID, tags []models.Tag) []models.ListingTag {
	out := make([]models.ListingTag, 0, len(tags))
	for _, t := range tags {
		t.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(t.Slug))
		out = append(out, models.ListingTag{ListingID: listingID, TagID: t.ID, Tag: t})
	}
	return out
}

type memComments struct {
	rows []models.Comment
}

func (m *memComments) ListByListing(_ context.Context, listingID uuid.UUID) ([]models.Comment, error) {
	var out []models.Comment
	for _, c := range m.rows {
		if c.ListingID == listingID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memComments) FindByID(_ context.Context, id uuid.UUID) (*models.Comment, error) {
	for _, c := range m.rows {
		if c.ID == id {
			cp := c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memComments) Create(_ context.Context, c *models.Comment) (*models.Comment, error) {
	cp := *c
	cp.ID = uuid.New()
	cp.CreatedAt = time.Now()
	name := "Author"
	cp.User = &models.User{ID: c.UserID, FirstName: &name}
	m.rows = append(m.rows, cp)
	return &cp, nil
}

type memCategories struct {
	rows []models.Category
}

func (m *memCategories) IDsBySlugs(_ context.Context, slugs []string) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for _, c := range m.rows {
		for _, s := range slugs {
			if c.Slug == s {
				out = append(out, c.ID)
			}
		}
	}
	return out, nil
}

func (m *memCategories) List(context.Context) ([]models.Category, error) {
	return m.rows, nil
}

func (m *memCategories) FindByID(_ context.Context, id uuid.UUID) (*models.Category, error) {
	for _, c := range m.rows {
		if c.ID == id {
			cp := c
			return &cp, nil
		}
	}
	return nil, nil
}

type fakeTags struct{ rows []models.TagCount }

func (f fakeTags) Popular(_ context.Context, limit int) ([]models.TagCount, error) {
	if len(f.rows) > limit {
		return f.rows[:limit], nil
	}
	return f.rows, nil
}

// memUsers keeps users newest first, like the Postgres listing order.
type memUsers struct {
	mu    sync.Mutex
	rows  []models.User
	owned map[uuid.UUID]int
}

// newMemUsers seeds n users created one minute apart before base.
func newMemUsers(n int) *memUsers {
	m := &memUsers{owned: map[uuid.UUID]int{}}
	for i := 0; i < n; i++ {
		m.add(models.User{Role: models.RoleUser, CreatedAt: base.Add(-time.Duration(i) * time.Minute)})
	}
	return m
}

func (m *memUsers) add(u models.User) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	m.rows = append(m.rows, u)
	sort.SliceStable(m.rows, func(i, j int) bool { return m.rows[i].CreatedAt.After(m.rows[j].CreatedAt) })
	return u
}

func (m *memUsers) find(id uuid.UUID) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id {
			cp := m.rows[i]
			return &cp
		}
	}
	return nil
}

func (m *memUsers) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows), nil
}

func (m *memUsers) List(_ context.Context, limit, offset int) ([]store.UserActivity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []store.UserActivity{}
	for i := offset; i < len(m.rows) && len(out) < limit; i++ {
		out = append(out, store.UserActivity{User: m.rows[i], Listings: m.owned[m.rows[i].ID]})
	}
	return out, nil
}

func (m *memUsers) UpdateAccess(_ context.Context, id uuid.UUID, role *models.Role, banned *bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID != id {
			continue
		}
		if role != nil {
			m.rows[i].Role = *role
		}
		if banned != nil {
			m.rows[i].IsBanned = *banned
		}
		cp := m.rows[i]
		return &cp, nil
	}
	return nil, nil
}

func (m *memUsers) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return store.ErrUserNotFound
}

type auditEntry struct {
	listingID uuid.UUID
	action    string
	detail    string
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (f *fakeAudit) Log(_ context.Context, listingID uuid.UUID, _ *uuid.UUID, action, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, auditEntry{listingID, action, detail})
}

// ForListing returns the entries of a listing, most recent first.
func (f *fakeAudit) ForListing(_ context.Context, listingID uuid.UUID, limit int) ([]store.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.AuditEntry
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := f.entries[i]
		if e.listingID == listingID {
			out = append(out, store.AuditEntry{ID: int64(i + 1), ListingID: e.listingID, Action: e.action, Detail: e.detail})
		}
	}
	return out, nil
}

// memCache mimics the Valkey feed cache with JSON round trips. ttls holds
// the expiry requested through SetJSONTTL; zero means the default.
type memCache struct {
	data        map[string][]byte
	ttls        map[string]time.Duration
	hits        int
	invalidated int
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *memCache) GetJSON(_ context.Context, key string, dst any) bool {
	b, ok := c.data[key]
	if !ok {
		return false
	}
	c.hits++
	return json.Unmarshal(b, dst) == nil
}

func (c *memCache) SetJSON(_ context.Context, key string, v any) {
	b, _ := json.Marshal(v)
	c.data[key] = b
	c.ttls[key] = 0
}

func (c *memCache) SetJSONTTL(_ context.Context, key string, v any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	b, _ := json.Marshal(v)
	c.data[key] = b
	c.ttls[key] = ttl
}

func (c *memCache) InvalidateAll(context.Context) {
	c.invalidated++
	c.data = map[string][]byte{}
	c.ttls = map[string]time.Duration{}
}

type fakePhotos struct {
	deleted []string
}

func (f *fakePhotos) PresignUpload(_ context.Context, filename, contentType string) (*storage.Upload, error) {
	if contentType != "image/jpeg" {
		return nil, storage.ErrUnsupportedType
	}
	return &storage.Upload{UploadURL: "http://s3/upload", S3Key: "listings/" + filename}, nil
}

func (f *fakePhotos) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}
