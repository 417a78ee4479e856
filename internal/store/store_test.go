// store_test.go provides a shared test database helper for all store
// integration tests. Tests are skipped if PostgreSQL is not available.
package store

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"kavmarket/internal/database"
	"kavmarket/internal/models"
)

// testDSN returns the PostgreSQL connection string for testing.
// Uses environment variables with defaults matching docker-compose.yml.
func testDSN() string {
	host := envOr("POSTGRES_HOST", "localhost")
	port := envOr("POSTGRES_PORT", "5432")
	user := envOr("POSTGRES_USER", "kavmarket")
	pass := envOr("POSTGRES_PASSWORD", "changeme")
	name := envOr("POSTGRES_DB", "kavmarket")
	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=disable"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// testDB opens a connection to the test database and runs migrations.
// If the database is unavailable, the test is skipped. A cleanup
// function is registered to close the connection when the test finishes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := testDSN()
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Skipf("skipping integration test: cannot open DB: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("skipping integration test: DB not reachable: %v", err)
	}

	// Run migrations to ensure the schema is current.
	if err := database.Migrate(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	// Downgrade goose global state.
	goose.SetBaseFS(nil)

	t.Cleanup(func() { db.Close() })
	return db
}

// fixture is a user and a category owned by one test. Listings created
// through it are removed when the test finishes.
type fixture struct {
	t        *testing.T
	db       *sql.DB
	user     *models.User
	category *models.Category
}

func newFixture(t *testing.T, db *sql.DB) *fixture {
	t.Helper()
	ctx := context.Background()

	name := "store-test"
	u, err := NewUserStore(db).Create(ctx, &models.User{FirstName: &name})
	if err != nil {
		t.Fatalf("create fixture user: %v", err)
	}

	slug := "test-cat-" + uuid.NewString()[:8]
	c, err := NewCategoryStore(db).Upsert(ctx, slug, "Test "+slug)
	if err != nil {
		t.Fatalf("create fixture category: %v", err)
	}

	t.Cleanup(func() {
		db.Exec("DELETE FROM listings WHERE user_id = $1", u.ID)
		db.Exec("DELETE FROM users WHERE id = $1", u.ID)
		db.Exec("DELETE FROM categories WHERE id = $1", c.ID)
	})
	return &fixture{t: t, db: db, user: u, category: c}
}

// listing inserts a listing with the given status. Approved listings get
// the given publication time.
func (f *fixture) listing(title string, status models.ListingStatus, publishedAt time.Time, tags ...models.Tag) *models.Listing {
	f.t.Helper()

	l := &models.Listing{
		UserID:      f.user.ID,
		CategoryID:  f.category.ID,
		Title:       title,
		Description: "description of " + title,
		Status:      status,
	}
	if status == models.ListingStatusApproved {
		l.PublishedAt = &publishedAt
	}
	created, err := NewListingStore(f.db).Create(context.Background(), l, tags, nil)
	if err != nil {
		f.t.Fatalf("create listing %q: %v", title, err)
	}
	return created
}

// cleanTags removes test tags by slug. Call in t.Cleanup().
func cleanTags(t *testing.T, db *sql.DB, slugs ...string) {
	t.Helper()
	for _, slug := range slugs {
		db.Exec("DELETE FROM tags WHERE slug = $1", slug)
	}
}
