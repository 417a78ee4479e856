package database

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// DefaultCategories is the reference category set a fresh install starts
// with, as slug/name pairs.
var DefaultCategories = []struct{ Slug, Name string }{
	{"electronics", "Электроника"},
	{"furniture", "Мебель"},
	{"clothes", "Одежда"},
	{"auto", "Авто"},
	{"real-estate", "Недвижимость"},
	{"services", "Услуги"},
	{"jobs", "Работа"},
	{"other", "Другое"},
}

// DefaultTags are the tags offered before any listing has created its own.
var DefaultTags = []struct{ Slug, Name string }{
	{"срочно", "Срочно"},
	{"новое", "Новое"},
	{"б-у", "Б/У"},
	{"торг", "Торг"},
	{"доставка", "Доставка"},
}

// Seed populates the reference data. Existing rows are left untouched, so
// it is safe to run on every deploy.
func Seed(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("seed begin tx: %w", err)
	}
	defer tx.Rollback()

	created := 0
	for _, c := range DefaultCategories {
		res, err := tx.Exec(`
			INSERT INTO categories (slug, name) VALUES ($1, $2)
			ON CONFLICT (slug) DO NOTHING
		`, c.Slug, c.Name)
		if err != nil {
			return fmt.Errorf("seed category %s: %w", c.Slug, err)
		}
		n, _ := res.RowsAffected()
		created += int(n)
	}

	for _, t := range DefaultTags {
		if _, err := tx.Exec(`
			INSERT INTO tags (slug, name) VALUES ($1, $2)
			ON CONFLICT (slug) DO NOTHING
		`, t.Slug, t.Name); err != nil {
			return fmt.Errorf("seed tag %s: %w", t.Slug, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed commit: %w", err)
	}

	if created == 0 {
		slog.Info("database already seeded, skipping")
		return nil
	}
	slog.Info("database seeded", "categories", created)
	return nil
}
