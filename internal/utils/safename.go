package utils

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// SafeName transforms an arbitrary title into a filesystem-safe name.
// It is the single source of truth for path components: every schema
// substitution goes through it.
func SafeName(name string) string {
	name = norm.NFC.String(name)
	name = strings.ReplaceAll(name, "&", "and")
	name = strings.ReplaceAll(name, "–", "-") // en dash

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ' || r == '-':
			b.WriteRune(r)
		}
	}

	// Collapse runs of spaces left behind by stripped characters
	fields := strings.Fields(b.String())
	return strings.Join(fields, " ")
}

// Slugify derives a URL-safe slug from a display name
func Slugify(name string) string {
	safe := strings.ToLower(SafeName(name))
	return strings.ReplaceAll(safe, " ", "-")
}

// SortName computes the sortable form of a display name by rotating a
// leading "The " to a ", The" suffix.
func SortName(name string) string {
	trimmed := strings.TrimSpace(name)
	if strings.HasPrefix(trimmed, "The ") && len(trimmed) > 4 {
		return trimmed[4:] + ", The"
	}
	return trimmed
}
