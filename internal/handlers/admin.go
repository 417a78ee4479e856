// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"kavmarket/internal/middleware"
	"kavmarket/internal/models"
	"kavmarket/internal/pin"
	"kavmarket/internal/service"
)

// Admin groups the moderation and user management endpoints. Role checks
// happen in the router's middleware chain.
type Admin struct {
	svc ListingService
}

// NewAdmin creates the moderation handlers.
func NewAdmin(svc ListingService) *Admin {
	return &Admin{svc: svc}
}

// SetPinned pins or unpins a listing. The window bounds are RFC 3339
// timestamps and either may be omitted.
func (a *Admin) SetPinned(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body struct {
		IsPinned    *bool   `json:"isPinned"`
		PinStartsAt *string `json:"pinStartsAt"`
		PinEndsAt   *string `json:"pinEndsAt"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if body.IsPinned == nil {
		writeErrorMsg(w, http.StatusBadRequest, "isPinned is required")
		return
	}

	var win pin.Window
	if win.StartsAt, err = parseTime("pinStartsAt", body.PinStartsAt); err != nil {
		writeError(w, r, err)
		return
	}
	if win.EndsAt, err = parseTime("pinEndsAt", body.PinEndsAt); err != nil {
		writeError(w, r, err)
		return
	}

	l, err := a.svc.SetPinned(r.Context(), id, *body.IsPinned, win, actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// Moderate approves or rejects a listing.
func (a *Admin) Moderate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	l, err := a.svc.ModerateListing(r.Context(), id, models.ListingStatus(body.Status), actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// HardDelete removes a listing permanently.
func (a *Admin) HardDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.svc.HardDeleteListing(r.Context(), id, actor(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Queue lists listings awaiting a decision. The status query parameter
// selects another state; pending is the default.
func (a *Admin) Queue(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	page, err := a.svc.ModerationQueue(r.Context(), models.ListingStatus(r.URL.Query().Get("status")), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, page)
}

// All lists every listing regardless of status.
func (a *Admin) All(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	page, err := a.svc.AllListings(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, page)
}

// Listing shows one listing in any state with its moderation history.
func (a *Admin) Listing(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := a.svc.AdminListing(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Users lists registered users with their activity counts.
func (a *Admin) Users(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	page, err := a.svc.ListUsers(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// UpdateUser changes a user's role or ban flag.
func (a *Admin) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	self := middleware.UserFromCtx(r.Context())
	if self == nil {
		writeErrorMsg(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var body struct {
		Role     *string `json:"role"`
		IsBanned *bool   `json:"isBanned"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	patch := service.UserPatch{IsBanned: body.IsBanned}
	if body.Role != nil {
		role := models.Role(*body.Role)
		patch.Role = &role
	}
	u, err := a.svc.UpdateUser(r.Context(), id, patch, self.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// DeleteUser removes a user together with their listings and comments.
func (a *Admin) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	self := middleware.UserFromCtx(r.Context())
	if self == nil {
		writeErrorMsg(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := a.svc.DeleteUser(r.Context(), id, self.ID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pageParams reads limit and offset. Malformed values fall back to zero,
// which the service treats as its defaults.
func pageParams(r *http.Request) (limit, offset int) {
	q := r.URL.Query()
	limit, _ = strconv.Atoi(q.Get("limit"))
	offset, _ = strconv.Atoi(q.Get("offset"))
	return limit, offset
}

func actor(r *http.Request) *uuid.UUID {
	if u := middleware.UserFromCtx(r.Context()); u != nil {
		return &u.ID
	}
	return nil
}

func parseTime(field string, s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an RFC 3339 timestamp", service.ErrInvalidInput, field)
	}
	return &t, nil
}
