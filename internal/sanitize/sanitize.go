// Package sanitize strips markup from user-supplied text before it is
// stored. Listings and comments are plain text; no HTML survives.
package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var policy = bluemonday.StrictPolicy().AddSpaceWhenStrippingTag(true)

// Text removes every HTML tag from s and trims surrounding whitespace.
// Entities escaped by the policy are decoded again, so "a & b" is stored
// as typed.
func Text(s string) string {
	return strings.TrimSpace(html.UnescapeString(policy.Sanitize(s)))
}

// Line is Text for single-line fields: runs of whitespace, newlines
// included, collapse to one space.
func Line(s string) string {
	return strings.Join(strings.Fields(Text(s)), " ")
}
