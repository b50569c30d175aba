package storage

import (
	"strings"
	"unicode"
)

const reservedChars = `/\:*?"<>|`

// SanitizeSegment turns a chapter title into a single path segment. Titles
// that are already valid segments are returned unchanged, so existing
// downloads keep resolving to the same directory.
func SanitizeSegment(name string) string {
	s := strings.Map(func(r rune) rune {
		if strings.ContainsRune(reservedChars, r) || unicode.IsControl(r) {
			return '_'
		}

		return r
	}, name)

	s = strings.TrimSpace(s)
	s = strings.Trim(s, ".")
	s = strings.TrimSpace(s)

	if s == "" {
		return "_"
	}

	return s
}
