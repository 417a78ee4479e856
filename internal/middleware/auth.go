// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"kavmarket/internal/models"
	"kavmarket/internal/session"
)

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey string

const (
	// UserKey is the context key for the authenticated user.
	UserKey contextKey = "user"
)

// SessionLookup resolves a bearer token to a session.
type SessionLookup interface {
	Get(ctx context.Context, token string) (*session.Data, error)
}

// UserLookup loads the user a session belongs to.
type UserLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// LoadSession resolves the bearer token to a user and stores it in the
// request context. Downstream handlers can access it via UserFromCtx().
// This middleware does NOT enforce authentication; it just loads the
// user if the token is valid. The user row is read on every request so
// role changes and bans apply immediately.
func LoadSession(sessions SessionLookup, users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := session.BearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			data, err := sessions.Get(r.Context(), token)
			if err != nil {
				slog.Warn("session lookup failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if data == nil {
				next.ServeHTTP(w, r)
				return
			}

			u, err := users.FindByID(r.Context(), data.UserID)
			if err != nil {
				slog.Warn("session user lookup failed", "user_id", data.UserID, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if u != nil {
				r = r.WithContext(WithUser(r.Context(), u))
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth returns 401 when no user is loaded and 403 for banned users.
// Must be applied after LoadSession in the middleware chain.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := UserFromCtx(r.Context())
		if u == nil {
			jsonError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if u.IsBanned {
			jsonError(w, http.StatusForbidden, "account is banned")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireModerator returns 403 unless the user is a moderator or admin.
// Must be applied after RequireAuth.
func RequireModerator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := UserFromCtx(r.Context())
		if u == nil || !u.CanModerate() {
			jsonError(w, http.StatusForbidden, "moderator role required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireAdmin returns 403 if the authenticated user is not an admin.
// Must be applied after RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := UserFromCtx(r.Context())
		if u == nil || !u.IsAdmin() {
			jsonError(w, http.StatusForbidden, "admin role required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// WithUser returns a context carrying u.
func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, UserKey, u)
}

// UserFromCtx extracts the authenticated user from the request context.
// Returns nil if no user is loaded.
func UserFromCtx(ctx context.Context) *models.User {
	u, _ := ctx.Value(UserKey).(*models.User)
	return u
}
