// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package slug provides URL-friendly slug generation from arbitrary strings.
// Cyrillic letters are kept as they are; tags are mostly Russian words.
package slug

import (
	"regexp"
	"strings"
)

var (
	// separators become a single hyphen.
	separators = regexp.MustCompile(`[\s_/]+`)
	// disallowed matches anything that isn't a Latin or Cyrillic letter, digit, or hyphen.
	disallowed = regexp.MustCompile(`[^a-z0-9\p{Cyrillic}-]`)
	// multipleHyphens collapses consecutive hyphens into one.
	multipleHyphens = regexp.MustCompile(`-{2,}`)
)

// Generate creates a URL-friendly slug from the given string.
// Example: "Б/У Срочно!" → "б-у-срочно"
func Generate(s string) string {
	result := strings.ToLower(strings.TrimSpace(s))
	result = separators.ReplaceAllString(result, "-")
	result = disallowed.ReplaceAllString(result, "")
	result = multipleHyphens.ReplaceAllString(result, "-")
	result = strings.Trim(result, "-")
	return result
}
