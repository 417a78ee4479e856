package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kavmarket/internal/comments"
	"kavmarket/internal/middleware"
	"kavmarket/internal/models"
	"kavmarket/internal/pin"
	"kavmarket/internal/present"
	"kavmarket/internal/service"
	"kavmarket/internal/storage"
	"kavmarket/internal/store"
)

// fakeService records the arguments of the last call and returns err
// from every operation.
type fakeService struct {
	err error

	feedQuery   service.FeedQuery
	input       service.ListingInput
	patch       service.ListingPatch
	userID      uuid.UUID
	listingID   uuid.UUID
	commentText string
	parentID    *uuid.UUID
	pinned      bool
	window      pin.Window
	actorID     *uuid.UUID
	status      models.ListingStatus
	featured    *present.ListingView
	limit       int
	offset      int
	userPatch   service.UserPatch
	selfID      uuid.UUID
}

func (f *fakeService) view(id uuid.UUID) *present.ListingView {
	return &present.ListingView{ID: id, Title: "listing"}
}

func (f *fakeService) GetFeed(_ context.Context, q service.FeedQuery) (*service.FeedResponse, error) {
	f.feedQuery = q
	if f.err != nil {
		return nil, f.err
	}
	return &service.FeedResponse{Items: []present.ListingView{}, Total: 0}, nil
}

func (f *fakeService) GetFilters(context.Context) (*service.Filters, error) {
	return &service.Filters{TotalUsers: 7}, f.err
}

func (f *fakeService) GetFeaturedListing(context.Context) (*present.ListingView, error) {
	return f.featured, f.err
}

func (f *fakeService) GetFeaturedListings(context.Context) ([]present.ListingView, error) {
	if f.featured == nil {
		return []present.ListingView{}, f.err
	}
	return []present.ListingView{*f.featured}, f.err
}

func (f *fakeService) GetListingDetail(_ context.Context, id uuid.UUID) (*service.ListingDetail, error) {
	f.listingID = id
	if f.err != nil {
		return nil, f.err
	}
	return &service.ListingDetail{ListingView: *f.view(id), Comments: []*comments.Node{}}, nil
}

func (f *fakeService) MyListings(_ context.Context, userID uuid.UUID) ([]present.ListingView, error) {
	f.userID = userID
	return []present.ListingView{}, f.err
}

func (f *fakeService) CreateListing(_ context.Context, userID uuid.UUID, in service.ListingInput) (*present.ListingView, error) {
	f.userID, f.input = userID, in
	if f.err != nil {
		return nil, f.err
	}
	return f.view(uuid.New()), nil
}

func (f *fakeService) UpdateListing(_ context.Context, id, userID uuid.UUID, p service.ListingPatch) (*present.ListingView, error) {
	f.listingID, f.userID, f.patch = id, userID, p
	if f.err != nil {
		return nil, f.err
	}
	return f.view(id), nil
}

func (f *fakeService) DeleteListing(_ context.Context, id, userID uuid.UUID) error {
	f.listingID, f.userID = id, userID
	return f.err
}

func (f *fakeService) AddComment(_ context.Context, listingID, userID uuid.UUID, text string, parentID *uuid.UUID) (*comments.Node, error) {
	f.listingID, f.userID, f.commentText, f.parentID = listingID, userID, text, parentID
	if f.err != nil {
		return nil, f.err
	}
	return &comments.Node{ID: uuid.New(), ListingID: listingID, UserID: userID, Text: text}, nil
}

func (f *fakeService) PresignPhotoUpload(_ context.Context, filename, contentType string) (*storage.Upload, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &storage.Upload{UploadURL: "https://s3.local/" + filename, S3Key: "listings/" + filename}, nil
}

func (f *fakeService) SetPinned(_ context.Context, id uuid.UUID, pinned bool, w pin.Window, actorID *uuid.UUID) (*present.ListingView, error) {
	f.listingID, f.pinned, f.window, f.actorID = id, pinned, w, actorID
	if f.err != nil {
		return nil, f.err
	}
	return f.view(id), nil
}

func (f *fakeService) ModerateListing(_ context.Context, id uuid.UUID, status models.ListingStatus, actorID *uuid.UUID) (*present.ListingView, error) {
	f.listingID, f.status, f.actorID = id, status, actorID
	if f.err != nil {
		return nil, f.err
	}
	return f.view(id), nil
}

func (f *fakeService) HardDeleteListing(_ context.Context, id uuid.UUID, actorID *uuid.UUID) error {
	f.listingID, f.actorID = id, actorID
	return f.err
}

func (f *fakeService) ModerationQueue(_ context.Context, status models.ListingStatus, limit, offset int) (*service.ListingPage, error) {
	f.status, f.limit, f.offset = status, limit, offset
	if f.err != nil {
		return nil, f.err
	}
	return &service.ListingPage{Items: []present.ListingView{*f.view(uuid.New())}, Total: 1, Limit: limit, Offset: offset}, nil
}

func (f *fakeService) AllListings(_ context.Context, limit, offset int) (*service.ListingPage, error) {
	f.limit, f.offset = limit, offset
	if f.err != nil {
		return nil, f.err
	}
	return &service.ListingPage{Items: []present.ListingView{}, Limit: limit, Offset: offset, PinnedCount: 1}, nil
}

func (f *fakeService) AdminListing(_ context.Context, id uuid.UUID) (*service.AdminListing, error) {
	f.listingID = id
	if f.err != nil {
		return nil, f.err
	}
	return &service.AdminListing{Listing: *f.view(id), History: []store.AuditEntry{{ID: 1, ListingID: id, Action: store.AuditPin}}}, nil
}

func (f *fakeService) ListUsers(_ context.Context, limit, offset int) (*service.UserPage, error) {
	f.limit, f.offset = limit, offset
	if f.err != nil {
		return nil, f.err
	}
	return &service.UserPage{Items: []present.AccountView{}, Total: 0, Limit: limit, Offset: offset}, nil
}

func (f *fakeService) UpdateUser(_ context.Context, id uuid.UUID, p service.UserPatch, actorID uuid.UUID) (*present.AccountView, error) {
	f.userID, f.userPatch, f.selfID = id, p, actorID
	if f.err != nil {
		return nil, f.err
	}
	v := present.Account(&models.User{ID: id, Role: models.RoleModerator})
	return &v, nil
}

func (f *fakeService) DeleteUser(_ context.Context, id, actorID uuid.UUID) error {
	f.userID, f.selfID = id, actorID
	return f.err
}

type fakeGuests struct {
	id  uuid.UUID
	err error
}

func (g *fakeGuests) GuestID(context.Context) (uuid.UUID, error) { return g.id, g.err }

// testRouter mounts the handlers the way the application router does,
// without the auth guards. user, when set, is placed in the context.
func testRouter(svc ListingService, guests GuestIdentity, user *models.User) http.Handler {
	l := NewListings(svc, guests)
	a := NewAdmin(svc)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if user != nil {
				req = req.WithContext(middleware.WithUser(req.Context(), user))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Get("/api/listings", l.Feed)
	r.Get("/api/listings/filters", l.Filters)
	r.Get("/api/listings/pinned", l.Featured)
	r.Get("/api/listings/pinned/all", l.FeaturedAll)
	r.Get("/api/listings/my", l.My)
	r.Get("/api/listings/{id}", l.Detail)
	r.Post("/api/listings", l.Create)
	r.Put("/api/listings/{id}", l.Update)
	r.Delete("/api/listings/{id}", l.Delete)
	r.Post("/api/listings/{id}/comments", l.AddComment)
	r.Post("/api/listings/upload/presigned", l.Presign)
	r.Get("/api/admin/listings", a.Queue)
	r.Get("/api/admin/listings/all", a.All)
	r.Get("/api/admin/listings/{id}", a.Listing)
	r.Get("/api/admin/users", a.Users)
	r.Patch("/api/admin/users/{id}", a.UpdateUser)
	r.Delete("/api/admin/users/{id}", a.DeleteUser)
	r.Patch("/api/admin/listings/{id}/pin", a.SetPinned)
	r.Patch("/api/admin/listings/{id}/status", a.Moderate)
	r.Delete("/api/admin/listings/{id}", a.HardDelete)
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func member() *models.User {
	return &models.User{ID: uuid.New(), Role: models.RoleUser}
}

func TestFeedQueryParsing(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   service.FeedQuery
	}{
		{
			name:   "no parameters",
			target: "/api/listings",
			want:   service.FeedQuery{},
		},
		{
			name:   "comma lists and search",
			target: "/api/listings?search=bmw&categories=auto,flats&tags=new,%20used&limit=5&cursor=abc",
			want: service.FeedQuery{
				Cursor: "abc",
				Limit:  5,
			},
		},
		{
			name:   "repeated parameters",
			target: "/api/listings?categories=auto&categories=flats&category=jobs",
			want:   service.FeedQuery{},
		},
		{
			name:   "malformed limit",
			target: "/api/listings?limit=lots",
			want:   service.FeedQuery{},
		},
	}
	tests[1].want.Search = "bmw"
	tests[1].want.Categories = []string{"auto", "flats"}
	tests[1].want.Tags = []string{"new", "used"}
	tests[2].want.Category = "jobs"
	tests[2].want.Categories = []string{"auto", "flats"}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{}
			rr := do(t, testRouter(svc, nil, nil), http.MethodGet, tt.target, "")

			require.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, tt.want, svc.feedQuery)
		})
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("listing x: %w", service.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: not yours", service.ErrPolicyViolation), http.StatusForbidden},
		{fmt.Errorf("%w: title too short", service.ErrInvalidInput), http.StatusBadRequest},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			svc := &fakeService{err: tt.err}
			rr := do(t, testRouter(svc, nil, nil), http.MethodGet, "/api/listings/"+uuid.NewString(), "")

			assert.Equal(t, tt.status, rr.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			if tt.status == http.StatusInternalServerError {
				assert.Equal(t, "internal error", body["error"], "internal errors must not leak")
			} else {
				assert.Equal(t, tt.err.Error(), body["error"])
			}
		})
	}
}

func TestMalformedIDIsNotFound(t *testing.T) {
	tests := []struct {
		name, method, target, body string
	}{
		{"detail", http.MethodGet, "/api/listings/not-a-uuid", ""},
		{"comment", http.MethodPost, "/api/listings/not-a-uuid/comments", `{"text":"hello"}`},
		{"admin view", http.MethodGet, "/api/admin/listings/123", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{}
			rr := do(t, testRouter(svc, &fakeGuests{id: uuid.New()}, member()), tt.method, tt.target, tt.body)
			assert.Equal(t, http.StatusNotFound, rr.Code)
			assert.Equal(t, uuid.Nil, svc.listingID, "service must not be called")
		})
	}
}

func TestFeaturedNone(t *testing.T) {
	h := testRouter(&fakeService{}, nil, nil)

	rr := do(t, h, http.MethodGet, "/api/listings/pinned", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "null", strings.TrimSpace(rr.Body.String()))

	rr = do(t, h, http.MethodGet, "/api/listings/pinned/all", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rr.Body.String()))
}

func TestCreateListing(t *testing.T) {
	cat := uuid.New()
	u := member()

	t.Run("full body", func(t *testing.T) {
		svc := &fakeService{}
		body := `{"title":"BMW X5","description":"good condition car","categoryId":"` + cat.String() + `",
			"price":1500000.50,"contacts":{"phone":"+7 900", "telegram":"@seller"},
			"tags":["авто"],"photos":[{"s3Key":"listings/a.jpg","width":800,"height":600}],"publish":true}`
		rr := do(t, testRouter(svc, nil, u), http.MethodPost, "/api/listings", body)

		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		assert.Equal(t, u.ID, svc.userID)
		assert.Equal(t, cat, svc.input.CategoryID)
		assert.True(t, svc.input.Publish)
		require.NotNil(t, svc.input.Price)
		assert.Equal(t, "1500000.5", svc.input.Price.String())
		require.NotNil(t, svc.input.Contacts)
		assert.Equal(t, `{"phone":"+7 900","telegram":"@seller"}`, *svc.input.Contacts)
		require.Len(t, svc.input.Photos, 1)
		assert.Equal(t, "listings/a.jpg", svc.input.Photos[0].S3Key)
	})

	t.Run("contacts as string, no price", func(t *testing.T) {
		svc := &fakeService{}
		body := `{"title":"Sofa","description":"barely used sofa","categoryId":"` + cat.String() + `","contacts":"call me","tags":["x"]}`
		rr := do(t, testRouter(svc, nil, u), http.MethodPost, "/api/listings", body)

		require.Equal(t, http.StatusCreated, rr.Code)
		assert.Nil(t, svc.input.Price)
		require.NotNil(t, svc.input.Contacts)
		assert.Equal(t, "call me", *svc.input.Contacts)
		assert.False(t, svc.input.Publish)
	})

	bad := []struct {
		name string
		body string
	}{
		{"malformed json", `{"title":`},
		{"missing category", `{"title":"Sofa","description":"barely used sofa"}`},
		{"bad category", `{"categoryId":"nope"}`},
		{"price not a number", `{"categoryId":"` + cat.String() + `","price":"cheap"}`},
		{"contacts array", `{"categoryId":"` + cat.String() + `","contacts":[1,2]}`},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{}
			rr := do(t, testRouter(svc, nil, u), http.MethodPost, "/api/listings", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, uuid.Nil, svc.userID, "service must not be called")
		})
	}
}

func TestUpdateListingPatch(t *testing.T) {
	u := member()
	id := uuid.New()

	t.Run("only given fields", func(t *testing.T) {
		svc := &fakeService{}
		rr := do(t, testRouter(svc, nil, u), http.MethodPut, "/api/listings/"+id.String(), `{"title":"New title"}`)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, id, svc.listingID)
		require.NotNil(t, svc.patch.Title)
		assert.Equal(t, "New title", *svc.patch.Title)
		assert.Nil(t, svc.patch.Description)
		assert.Nil(t, svc.patch.Price)
		assert.Nil(t, svc.patch.Tags)
		assert.Nil(t, svc.patch.Photos)
		assert.Nil(t, svc.patch.Publish)
	})

	t.Run("null price clears", func(t *testing.T) {
		svc := &fakeService{}
		rr := do(t, testRouter(svc, nil, u), http.MethodPut, "/api/listings/"+id.String(), `{"price":null,"publish":false,"tags":[]}`)

		require.Equal(t, http.StatusOK, rr.Code)
		require.NotNil(t, svc.patch.Price)
		assert.False(t, svc.patch.Price.Valid)
		require.NotNil(t, svc.patch.Publish)
		assert.False(t, *svc.patch.Publish)
		assert.NotNil(t, svc.patch.Tags)
		assert.Empty(t, svc.patch.Tags)
	})

	t.Run("not the owner", func(t *testing.T) {
		svc := &fakeService{err: fmt.Errorf("%w: not your listing", service.ErrPolicyViolation)}
		rr := do(t, testRouter(svc, nil, u), http.MethodPut, "/api/listings/"+id.String(), `{"title":"x"}`)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestDeleteListing(t *testing.T) {
	u := member()
	id := uuid.New()
	svc := &fakeService{}

	rr := do(t, testRouter(svc, nil, u), http.MethodDelete, "/api/listings/"+id.String(), "")

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, id, svc.listingID)
	assert.Equal(t, u.ID, svc.userID)
}

func TestMyListingsUsesCaller(t *testing.T) {
	u := member()
	svc := &fakeService{}

	rr := do(t, testRouter(svc, nil, u), http.MethodGet, "/api/listings/my", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, u.ID, svc.userID)
}

func TestAddComment(t *testing.T) {
	id := uuid.New()
	parent := uuid.New()
	guest := &fakeGuests{id: uuid.New()}

	t.Run("member", func(t *testing.T) {
		u := member()
		svc := &fakeService{}
		body := `{"text":"Is it available?","parentId":"` + parent.String() + `"}`
		rr := do(t, testRouter(svc, guest, u), http.MethodPost, "/api/listings/"+id.String()+"/comments", body)

		require.Equal(t, http.StatusCreated, rr.Code)
		assert.Equal(t, u.ID, svc.userID)
		assert.Equal(t, "Is it available?", svc.commentText)
		require.NotNil(t, svc.parentID)
		assert.Equal(t, parent, *svc.parentID)
	})

	t.Run("anonymous posts as guest", func(t *testing.T) {
		svc := &fakeService{}
		rr := do(t, testRouter(svc, guest, nil), http.MethodPost, "/api/listings/"+id.String()+"/comments", `{"text":"hello"}`)

		require.Equal(t, http.StatusCreated, rr.Code)
		assert.Equal(t, guest.id, svc.userID)
		assert.Nil(t, svc.parentID)
	})

	t.Run("anonymous without guest account", func(t *testing.T) {
		rr := do(t, testRouter(&fakeService{}, nil, nil), http.MethodPost, "/api/listings/"+id.String()+"/comments", `{"text":"hello"}`)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("guest lookup fails", func(t *testing.T) {
		rr := do(t, testRouter(&fakeService{}, &fakeGuests{err: errors.New("db down")}, nil), http.MethodPost, "/api/listings/"+id.String()+"/comments", `{"text":"hello"}`)
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})

	t.Run("banned member", func(t *testing.T) {
		u := member()
		u.IsBanned = true
		svc := &fakeService{}
		rr := do(t, testRouter(svc, guest, u), http.MethodPost, "/api/listings/"+id.String()+"/comments", `{"text":"hello"}`)
		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.Empty(t, svc.commentText)
	})

	t.Run("bad parent id", func(t *testing.T) {
		rr := do(t, testRouter(&fakeService{}, guest, nil), http.MethodPost, "/api/listings/"+id.String()+"/comments", `{"text":"hi","parentId":"x"}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestPresign(t *testing.T) {
	u := member()

	rr := do(t, testRouter(&fakeService{}, nil, u), http.MethodPost, "/api/listings/upload/presigned", `{"filename":"car.jpg","contentType":"image/jpeg"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var up storage.Upload
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &up))
	assert.Equal(t, "listings/car.jpg", up.S3Key)

	rr = do(t, testRouter(&fakeService{}, nil, u), http.MethodPost, "/api/listings/upload/presigned", `{"filename":"car.jpg"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSetPinned(t *testing.T) {
	mod := &models.User{ID: uuid.New(), Role: models.RoleModerator}
	id := uuid.New()

	t.Run("with window", func(t *testing.T) {
		svc := &fakeService{}
		body := `{"isPinned":true,"pinStartsAt":"2026-03-01T10:00:00Z","pinEndsAt":"2026-03-02T10:00:00+03:00"}`
		rr := do(t, testRouter(svc, nil, mod), http.MethodPatch, "/api/admin/listings/"+id.String()+"/pin", body)

		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.True(t, svc.pinned)
		require.NotNil(t, svc.window.StartsAt)
		require.NotNil(t, svc.window.EndsAt)
		assert.Equal(t, "2026-03-01T10:00:00Z", svc.window.StartsAt.UTC().Format("2006-01-02T15:04:05Z07:00"))
		assert.Equal(t, "2026-03-02T07:00:00Z", svc.window.EndsAt.UTC().Format("2006-01-02T15:04:05Z07:00"))
		require.NotNil(t, svc.actorID)
		assert.Equal(t, mod.ID, *svc.actorID)
	})

	t.Run("unpin", func(t *testing.T) {
		svc := &fakeService{pinned: true}
		rr := do(t, testRouter(svc, nil, mod), http.MethodPatch, "/api/admin/listings/"+id.String()+"/pin", `{"isPinned":false}`)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.False(t, svc.pinned)
		assert.Nil(t, svc.window.StartsAt)
	})

	bad := []struct {
		name string
		body string
	}{
		{"missing flag", `{}`},
		{"bad start", `{"isPinned":true,"pinStartsAt":"tomorrow"}`},
		{"bad end", `{"isPinned":true,"pinEndsAt":"2026-13-01"}`},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, testRouter(&fakeService{}, nil, mod), http.MethodPatch, "/api/admin/listings/"+id.String()+"/pin", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestModerateAndHardDelete(t *testing.T) {
	admin := &models.User{ID: uuid.New(), Role: models.RoleAdmin}
	id := uuid.New()

	svc := &fakeService{}
	rr := do(t, testRouter(svc, nil, admin), http.MethodPatch, "/api/admin/listings/"+id.String()+"/status", `{"status":"rejected"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, models.ListingStatusRejected, svc.status)

	svc = &fakeService{}
	rr = do(t, testRouter(svc, nil, admin), http.MethodDelete, "/api/admin/listings/"+id.String(), "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, id, svc.listingID)
	require.NotNil(t, svc.actorID)
	assert.Equal(t, admin.ID, *svc.actorID)
}
