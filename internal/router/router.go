// Package router sets up all HTTP routes and middleware chains for the
// listing API. Routes are grouped by the role they require.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"kavmarket/internal/handlers"
	"kavmarket/internal/middleware"
)

// Deps carries what the router wires together.
type Deps struct {
	Sessions    middleware.SessionLookup
	Users       middleware.UserLookup
	RateLimiter *middleware.RateLimiter // nil disables rate limiting
	Listings    *handlers.Listings
	Admin       *handlers.Admin
}

// New creates and returns the configured Chi router with all middleware
// and route groups wired up.
func New(d Deps) chi.Router {
	r := chi.NewRouter()

	// Global middleware, applied to every request. The session is loaded
	// before Logger so request logs carry the user id.
	r.Use(chimw.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.LoadSession(d.Sessions, d.Users))
	r.Use(middleware.Logger)
	r.Use(middleware.SecureHeaders)

	// Health check, not rate limited.
	r.Get("/health", healthHandler)

	r.Route("/api", func(r chi.Router) {
		if d.RateLimiter != nil {
			r.Use(d.RateLimiter.Middleware)
		}

		r.Route("/listings", func(r chi.Router) {
			// Public reads.
			r.Get("/", d.Listings.Feed)
			r.Get("/filters", d.Listings.Filters)
			r.Get("/pinned", d.Listings.Featured)
			r.Get("/pinned/all", d.Listings.FeaturedAll)
			r.Get("/{id}", d.Listings.Detail)

			// Members and guests.
			r.Post("/{id}/comments", d.Listings.AddComment)

			// Members only.
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAuth)
				r.Get("/my", d.Listings.My)
				r.Post("/", d.Listings.Create)
				r.Post("/upload/presigned", d.Listings.Presign)
				r.Put("/{id}", d.Listings.Update)
				r.Delete("/{id}", d.Listings.Delete)
			})
		})

		r.Route("/admin/listings", func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Use(middleware.RequireModerator)

			r.Get("/", d.Admin.Queue)
			r.Get("/all", d.Admin.All)
			r.Get("/{id}", d.Admin.Listing)
			r.Patch("/{id}/pin", d.Admin.SetPinned)
			r.Patch("/{id}/status", d.Admin.Moderate)

			r.With(middleware.RequireAdmin).Delete("/{id}", d.Admin.HardDelete)
		})

		r.Route("/admin/users", func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Use(middleware.RequireModerator)

			r.Get("/", d.Admin.Users)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Patch("/{id}", d.Admin.UpdateUser)
				r.Delete("/{id}", d.Admin.DeleteUser)
			})
		})
	})

	return r
}

// healthHandler returns a simple JSON health check response.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
