// Package title sanitizes session labels into display names and
// filesystem-safe slugs.
package title

import (
	"regexp"
	"strings"
)

const (
	// MaxLength caps sanitized titles so directory names stay manageable.
	MaxLength = 60

	// DefaultSlug is used when a label sanitizes down to nothing.
	DefaultSlug = "no_title"
)

var (
	invalidChars = regexp.MustCompile(`[\\/:*?"<>|]+`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// Sanitize strips characters that are invalid in file names, collapses
// whitespace, and caps the length. An empty result becomes DefaultSlug.
func Sanitize(label string) string {
	s := invalidChars.ReplaceAllString(label, "")
	s = whitespace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultSlug
	}
	if r := []rune(s); len(r) > MaxLength {
		s = strings.TrimSpace(string(r[:MaxLength]))
	}
	return s
}

// Slugify converts a label into a lowercase directory-name slug.
func Slugify(label string) string {
	s := Sanitize(label)
	if s == DefaultSlug {
		return DefaultSlug
	}
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, " ", "_")
}
