// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package handlers exposes the listing service over JSON HTTP endpoints.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"kavmarket/internal/comments"
	"kavmarket/internal/models"
	"kavmarket/internal/pin"
	"kavmarket/internal/present"
	"kavmarket/internal/service"
	"kavmarket/internal/storage"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// ListingService is the set of operations the handlers call.
type ListingService interface {
	GetFeed(ctx context.Context, q service.FeedQuery) (*service.FeedResponse, error)
	GetFilters(ctx context.Context) (*service.Filters, error)
	GetFeaturedListing(ctx context.Context) (*present.ListingView, error)
	GetFeaturedListings(ctx context.Context) ([]present.ListingView, error)
	GetListingDetail(ctx context.Context, id uuid.UUID) (*service.ListingDetail, error)
	MyListings(ctx context.Context, userID uuid.UUID) ([]present.ListingView, error)
	CreateListing(ctx context.Context, userID uuid.UUID, in service.ListingInput) (*present.ListingView, error)
	UpdateListing(ctx context.Context, id, userID uuid.UUID, patch service.ListingPatch) (*present.ListingView, error)
	DeleteListing(ctx context.Context, id, userID uuid.UUID) error
	AddComment(ctx context.Context, listingID, userID uuid.UUID, text string, parentID *uuid.UUID) (*comments.Node, error)
	PresignPhotoUpload(ctx context.Context, filename, contentType string) (*storage.Upload, error)
	SetPinned(ctx context.Context, id uuid.UUID, pinned bool, w pin.Window, actorID *uuid.UUID) (*present.ListingView, error)
	ModerateListing(ctx context.Context, id uuid.UUID, status models.ListingStatus, actorID *uuid.UUID) (*present.ListingView, error)
	HardDeleteListing(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) error
	ModerationQueue(ctx context.Context, status models.ListingStatus, limit, offset int) (*service.ListingPage, error)
	AllListings(ctx context.Context, limit, offset int) (*service.ListingPage, error)
	AdminListing(ctx context.Context, id uuid.UUID) (*service.AdminListing, error)
	ListUsers(ctx context.Context, limit, offset int) (*service.UserPage, error)
	UpdateUser(ctx context.Context, id uuid.UUID, patch service.UserPatch, actorID uuid.UUID) (*present.AccountView, error)
	DeleteUser(ctx context.Context, id, actorID uuid.UUID) error
}

// GuestIdentity supplies the account anonymous comments are posted as.
type GuestIdentity interface {
	GuestID(ctx context.Context) (uuid.UUID, error)
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response failed", "error", err)
	}
}

// writeErrorMsg writes {"error": msg}.
func writeErrorMsg(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps a service error to a status code. Unclassified errors
// are logged and reported as 500 without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeErrorMsg(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrPolicyViolation):
		writeErrorMsg(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		writeErrorMsg(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeErrorMsg(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst as is.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("%w: malformed JSON body: %v", service.ErrInvalidInput, err)
}

// pathID parses the {id} URL parameter. An id that is not a UUID cannot
// name any row, so it is reported as not found.
func pathID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("id %q: %w", raw, service.ErrNotFound)
	}
	return id, nil
}

// parseUUID parses an optional id from a request body field.
func parseUUID(field string, s *string) (*uuid.UUID, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s", service.ErrInvalidInput, field)
	}
	return &id, nil
}
