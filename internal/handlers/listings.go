package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"kavmarket/internal/filter"
	"kavmarket/internal/middleware"
	"kavmarket/internal/service"
)

// Listings groups the public and member listing endpoints.
type Listings struct {
	svc    ListingService
	guests GuestIdentity
}

// NewListings creates the listing handlers. guests may be nil, in which
// case anonymous comments are rejected.
func NewListings(svc ListingService, guests GuestIdentity) *Listings {
	return &Listings{svc: svc, guests: guests}
}

// Feed serves one page of the public feed.
func (h *Listings) Feed(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.GetFeed(r.Context(), feedQuery(r.URL.Query()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// feedQuery reads the feed parameters. List parameters accept both
// comma-separated values and repetition. A malformed limit means the
// default page size.
func feedQuery(v url.Values) service.FeedQuery {
	limit, err := strconv.Atoi(v.Get("limit"))
	if err != nil {
		limit = 0
	}
	return service.FeedQuery{
		Query: filter.Query{
			Search:     v.Get("search"),
			Category:   v.Get("category"),
			Categories: listParam(v, "categories"),
			Tags:       listParam(v, "tags"),
		},
		Cursor: v.Get("cursor"),
		Limit:  limit,
	}
}

func listParam(v url.Values, key string) []string {
	var out []string
	for _, raw := range v[key] {
		out = append(out, filter.SplitList(raw)...)
	}
	return out
}

// Filters lists categories, popular tags and the member count.
func (h *Listings) Filters(w http.ResponseWriter, r *http.Request) {
	f, err := h.svc.GetFilters(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// Featured returns the first featured listing, or null.
func (h *Listings) Featured(w http.ResponseWriter, r *http.Request) {
	l, err := h.svc.GetFeaturedListing(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// FeaturedAll returns every currently featured listing.
func (h *Listings) FeaturedAll(w http.ResponseWriter, r *http.Request) {
	ls, err := h.svc.GetFeaturedListings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ls)
}

// Detail returns a listing with its comment tree.
func (h *Listings) Detail(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := h.svc.GetListingDetail(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// My lists the caller's own listings in every status.
func (h *Listings) My(w http.ResponseWriter, r *http.Request) {
	u := middleware.UserFromCtx(r.Context())
	ls, err := h.svc.MyListings(r.Context(), u.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ls)
}

// listingBody is the JSON body of create and update requests. Raw fields
// keep "absent" apart from "null".
type listingBody struct {
	Title       *string              `json:"title"`
	Description *string              `json:"description"`
	CategoryID  *string              `json:"categoryId"`
	Price       json.RawMessage      `json:"price"`
	Contacts    json.RawMessage      `json:"contacts"`
	Tags        []string             `json:"tags"`
	Photos      []service.PhotoInput `json:"photos"`
	Publish     *bool                `json:"publish"`
}

// Create adds a listing owned by the caller.
func (h *Listings) Create(w http.ResponseWriter, r *http.Request) {
	var body listingBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := body.input()
	if err != nil {
		writeError(w, r, err)
		return
	}

	u := middleware.UserFromCtx(r.Context())
	l, err := h.svc.CreateListing(r.Context(), u.ID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

// Update changes fields of the caller's listing.
func (h *Listings) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body listingBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	patch, err := body.patch()
	if err != nil {
		writeError(w, r, err)
		return
	}

	u := middleware.UserFromCtx(r.Context())
	l, err := h.svc.UpdateListing(r.Context(), id, u.ID, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// Delete archives the caller's listing.
func (h *Listings) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u := middleware.UserFromCtx(r.Context())
	if err := h.svc.DeleteListing(r.Context(), id, u.ID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddComment posts a comment or reply. Without a session the comment is
// attributed to the guest account.
func (h *Listings) AddComment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body struct {
		Text     string  `json:"text"`
		ParentID *string `json:"parentId"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	parentID, err := parseUUID("parentId", body.ParentID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var userID uuid.UUID
	switch u := middleware.UserFromCtx(r.Context()); {
	case u != nil && u.IsBanned:
		writeErrorMsg(w, http.StatusForbidden, "account is banned")
		return
	case u != nil:
		userID = u.ID
	case h.guests != nil:
		if userID, err = h.guests.GuestID(r.Context()); err != nil {
			writeError(w, r, err)
			return
		}
	default:
		writeErrorMsg(w, http.StatusUnauthorized, "authentication required")
		return
	}

	node, err := h.svc.AddComment(r.Context(), id, userID, body.Text, parentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

// Presign returns a presigned upload URL for one listing photo.
func (h *Listings) Presign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Filename    string `json:"filename"`
		ContentType string `json:"contentType"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if body.Filename == "" || body.ContentType == "" {
		writeErrorMsg(w, http.StatusBadRequest, "filename and contentType are required")
		return
	}
	up, err := h.svc.PresignPhotoUpload(r.Context(), body.Filename, body.ContentType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, up)
}

func (b *listingBody) input() (service.ListingInput, error) {
	in := service.ListingInput{
		Tags:   b.Tags,
		Photos: b.Photos,
	}
	if b.Title != nil {
		in.Title = *b.Title
	}
	if b.Description != nil {
		in.Description = *b.Description
	}
	if b.Publish != nil {
		in.Publish = *b.Publish
	}

	cat, err := parseUUID("categoryId", b.CategoryID)
	if err != nil {
		return in, err
	}
	if cat == nil {
		return in, fmt.Errorf("%w: categoryId is required", service.ErrInvalidInput)
	}
	in.CategoryID = *cat

	price, err := parsePrice(b.Price)
	if err != nil {
		return in, err
	}
	if price != nil && price.Valid {
		in.Price = &price.Decimal
	}

	if in.Contacts, err = parseContacts(b.Contacts); err != nil {
		return in, err
	}
	return in, nil
}

func (b *listingBody) patch() (service.ListingPatch, error) {
	p := service.ListingPatch{
		Title:       b.Title,
		Description: b.Description,
		Tags:        b.Tags,
		Photos:      b.Photos,
		Publish:     b.Publish,
	}
	var err error
	if p.CategoryID, err = parseUUID("categoryId", b.CategoryID); err != nil {
		return p, err
	}
	if p.Price, err = parsePrice(b.Price); err != nil {
		return p, err
	}
	if p.Contacts, err = parseContacts(b.Contacts); err != nil {
		return p, err
	}
	return p, nil
}

// parsePrice returns nil when the field is absent and an invalid
// NullDecimal when it is null. Numbers and numeric strings are accepted.
func parsePrice(raw json.RawMessage) (*decimal.NullDecimal, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var d decimal.NullDecimal
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("%w: price must be a number", service.ErrInvalidInput)
	}
	return &d, nil
}

// parseContacts accepts a string or a JSON object. Objects are stored in
// their compact JSON form. Absent and null mean no contacts.
func parseContacts(raw json.RawMessage) (*string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: malformed contacts", service.ErrInvalidInput)
		}
		return &s, nil
	case '{':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return nil, fmt.Errorf("%w: malformed contacts", service.ErrInvalidInput)
		}
		s := buf.String()
		return &s, nil
	default:
		return nil, fmt.Errorf("%w: contacts must be a string or an object", service.ErrInvalidInput)
	}
}
