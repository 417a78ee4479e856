// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package pin decides which listings currently occupy the featured slot.
// A pin may be indefinite, open-ended on either side, or bounded by a
// window; both bounds are inclusive.
package pin

import (
	"errors"
	"sort"
	"time"

	"kavmarket/internal/models"
)

const (
	// DefaultSlots is the number of featured listings shown by default.
	DefaultSlots = 3

	// SingleSlot selects the variant with exactly one featured listing.
	SingleSlot = 1
)

// ErrInvalidWindow is returned when a window ends before it starts.
var ErrInvalidWindow = errors.New("pin window ends before it starts")

// Window bounds a pin in time. A nil bound is open on that side.
type Window struct {
	StartsAt *time.Time
	EndsAt   *time.Time
}

// Validate rejects windows whose end precedes their start.
func (w Window) Validate() error {
	if w.StartsAt != nil && w.EndsAt != nil && w.EndsAt.Before(*w.StartsAt) {
		return ErrInvalidWindow
	}
	return nil
}

// Contains reports whether now falls inside the window, bounds included.
func (w Window) Contains(now time.Time) bool {
	return IsActive(now, w.StartsAt, w.EndsAt)
}

// NextChange returns the earliest moment after now at which any of the
// windows starts or stops containing the clock. Since ends are inclusive,
// a window stops one millisecond after its end. ok is false when no bound
// lies ahead.
func NextChange(windows []Window, now time.Time) (next time.Time, ok bool) {
	consider := func(t time.Time) {
		if t.After(now) && (!ok || t.Before(next)) {
			next, ok = t, true
		}
	}
	for _, w := range windows {
		if w.StartsAt != nil {
			consider(*w.StartsAt)
		}
		if w.EndsAt != nil {
			consider(w.EndsAt.Add(time.Millisecond))
		}
	}
	return next, ok
}

// IsActive applies the activation table for a pinned listing:
//
//	starts  ends   active when
//	nil     nil    always
//	set     nil    starts <= now
//	nil     set    now <= ends
//	set     set    starts <= now <= ends
func IsActive(now time.Time, startsAt, endsAt *time.Time) bool {
	if startsAt != nil && now.Before(*startsAt) {
		return false
	}
	if endsAt != nil && now.After(*endsAt) {
		return false
	}
	return true
}

// Active reports whether l is pinned, approved and inside its window.
func Active(l *models.Listing, now time.Time) bool {
	if !l.IsPinned || !l.IsApproved() {
		return false
	}
	return IsActive(now, l.PinStartsAt, l.PinEndsAt)
}

// Sort orders listings most-recently-pinned first, breaking ties by the
// most recent publication. Missing timestamps sort last.
func Sort(listings []models.Listing) {
	sort.SliceStable(listings, func(i, j int) bool {
		a, b := listings[i], listings[j]
		if c := compareDesc(a.PinnedAt, b.PinnedAt); c != 0 {
			return c < 0
		}
		return compareDesc(a.PublishedAt, b.PublishedAt) < 0
	})
}

// compareDesc returns -1 if a sorts before b in descending order, 1 if
// after, 0 if equal. nil sorts after any timestamp.
func compareDesc(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case a.After(*b):
		return -1
	case a.Before(*b):
		return 1
	}
	return 0
}

// Evaluator selects the featured listings among pin candidates.
type Evaluator struct {
	slots int
}

// NewEvaluator returns an Evaluator that fills up to slots featured
// positions. A non-positive value falls back to DefaultSlots.
func NewEvaluator(slots int) *Evaluator {
	if slots <= 0 {
		slots = DefaultSlots
	}
	return &Evaluator{slots: slots}
}

// Slots returns the number of featured positions.
func (e *Evaluator) Slots() int {
	return e.slots
}

// Select filters candidates down to the ones active at now, orders them
// and truncates to the slot count. The input slice is not modified.
func (e *Evaluator) Select(candidates []models.Listing, now time.Time) []models.Listing {
	active := make([]models.Listing, 0, len(candidates))
	for i := range candidates {
		if Active(&candidates[i], now) {
			active = append(active, candidates[i])
		}
	}
	Sort(active)
	if len(active) > e.slots {
		active = active[:e.slots]
	}
	return active
}
