package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kavmarket/internal/cache"
	"kavmarket/internal/database"
	"kavmarket/internal/handlers"
	"kavmarket/internal/identity"
	"kavmarket/internal/middleware"
	"kavmarket/internal/present"
	"kavmarket/internal/router"
	"kavmarket/internal/service"
	"kavmarket/internal/session"
	"kavmarket/internal/storage"
	"kavmarket/internal/store"
)

// runServe connects to every backing service, wires the application and
// serves HTTP until SIGINT or SIGTERM.
func runServe(envFile string) error {
	cfg, logCloser, err := bootstrap(envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	defer logCloser.Close()

	slog.Info("configuration loaded",
		"env", cfg.Env,
		"addr", cfg.Addr(),
		"pin_slots", cfg.FeedPinSlots,
	)

	// Connect to PostgreSQL.
	db, err := database.Connect(cfg.DSN())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		return err
	}
	defer db.Close()

	// Run pending migrations.
	if err := database.Migrate(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		return err
	}

	// Seed reference data in development (no-op if it already exists).
	if cfg.IsDev() {
		if err := database.Seed(db); err != nil {
			slog.Error("failed to seed database", "error", err)
			return err
		}
	}

	// Connect to Valkey (sessions and the feed cache).
	valkeyClient, err := cache.ConnectValkey(context.Background(), cache.Options{
		Host:     cfg.ValkeyHost,
		Port:     cfg.ValkeyPort,
		Password: cfg.ValkeyPassword,
	})
	if err != nil {
		slog.Error("failed to connect to valkey", "error", err)
		return err
	}
	defer valkeyClient.Close()

	sessionStore := session.NewStore(valkeyClient)

	// Initialize data stores.
	userStore := store.NewUserStore(db)
	listingStore := store.NewListingStore(db)

	deps := service.Deps{
		Listings:   listingStore,
		Comments:   store.NewCommentStore(db),
		Categories: store.NewCategoryStore(db),
		Tags:       store.NewTagStore(db),
		Users:      userStore,
		Audit:      store.NewAuditStore(db),
	}

	if cfg.FeedCacheTTL > 0 {
		deps.Cache = cache.NewFeedCache(valkeyClient, cfg.FeedCacheTTL)
	} else {
		slog.Warn("feed cache disabled")
	}

	// Connect to S3-compatible photo storage (optional, the API works without it).
	var photoURL func(string) string
	if cfg.S3Enabled() {
		storageClient, err := storage.New(
			cfg.S3Endpoint, cfg.S3Region, cfg.S3AccessKey, cfg.S3SecretKey,
			cfg.S3BucketPublic, cfg.S3PublicURL,
		)
		if err != nil {
			slog.Error("failed to initialize S3 storage", "error", err)
			return err
		}
		if storageClient != nil {
			deps.Photos = storageClient
			photoURL = storageClient.PhotoURL
			slog.Info("s3 storage connected", "endpoint", cfg.S3Endpoint, "bucket", storageClient.Bucket())
		}
	} else {
		slog.Warn("s3 storage not configured, photo uploads disabled")
	}
	deps.Presenter = present.New(photoURL)

	svc := service.New(deps, service.Options{
		PageSize:    cfg.FeedPageSize,
		MaxPageSize: cfg.FeedMaxPageSize,
		PinSlots:    cfg.FeedPinSlots,
	})

	var limiter *middleware.RateLimiter
	if cfg.RateLimitPerMinute > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)
		defer limiter.Stop()
	}

	r := router.New(router.Deps{
		Sessions:    sessionStore,
		Users:       userStore,
		RateLimiter: limiter,
		Listings:    handlers.NewListings(svc, identity.NewGuestProvider(userStore)),
		Admin:       handlers.NewAdmin(svc),
	})

	// Create the HTTP server with sensible timeouts.
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start the server in a goroutine so we can listen for shutdown signals.
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Graceful shutdown: wait for SIGINT or SIGTERM, then drain connections.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig)
	case err := <-serveErr:
		slog.Error("server failed to start", "error", err)
		return err
	}

	// Give active requests up to 30 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		return err
	}

	slog.Info("server stopped gracefully")
	return nil
}
