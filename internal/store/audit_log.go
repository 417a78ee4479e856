// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// audit_log.go records moderation actions on listings (pin changes, status
// changes, removals) for later review. Each entry captures the listing,
// the acting user and what was done.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Audit actions.
const (
	AuditPin    = "pin"
	AuditUnpin  = "unpin"
	AuditStatus = "status"
	AuditDelete = "delete"
)

// AuditStore handles the listing audit log.
type AuditStore struct {
	db *sql.DB
}

// NewAuditStore creates a new AuditStore.
func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

// Log records a moderation event. Failures are logged and swallowed so
// that auditing never blocks the action itself.
func (s *AuditStore) Log(ctx context.Context, listingID uuid.UUID, actorID *uuid.UUID, action, detail string) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO listing_audit_log (listing_id, actor_id, action, detail)
		VALUES ($1, $2, $3, $4)
	`, listingID, actorID, action, detail)
	if err != nil {
		slog.Warn("failed to write audit log",
			"listing_id", listingID,
			"action", action,
			"error", err,
		)
		return
	}
	slog.Debug("audit log written",
		"listing_id", listingID,
		"action", action,
	)
}

// ForListing returns the most recent audit entries of a listing.
func (s *AuditStore) ForListing(ctx context.Context, listingID uuid.UUID, limit int) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, listing_id, actor_id, action, detail, created_at
		FROM listing_audit_log
		WHERE listing_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, listingID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.ListingID, &e.ActorID, &e.Action, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AuditEntry is a single moderation event.
type AuditEntry struct {
	ID        int64      `json:"id"`
	ListingID uuid.UUID  `json:"listingId"`
	ActorID   *uuid.UUID `json:"actorId"`
	Action    string     `json:"action"`
	Detail    string     `json:"detail"`
	CreatedAt time.Time  `json:"createdAt"`
}
