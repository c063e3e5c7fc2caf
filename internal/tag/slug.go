// Package tag provides tag name normalization and slug generation.
package tag

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	// Matches any non-alphanumeric character.
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)
	// Matches multiple hyphens.
	multipleHyphens = regexp.MustCompile(`-+`)
	// Matches runs of whitespace.
	whitespaceRun = regexp.MustCompile(`\s+`)
)

// Slugify converts a tag name to a URL-safe slug.
// "Dynamic Programming" -> "dynamic-programming".
// "C++" -> "c".
// "Graphs/Trees" -> "graphs-trees".
func Slugify(s string) string {
	// Normalize unicode (decompose accented characters).
	s = norm.NFKD.String(s)

	// Remove non-ASCII characters.
	s = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, s)

	s = strings.ToLower(s)

	// Replace non-alphanumeric with hyphens.
	s = nonAlphanumeric.ReplaceAllString(s, "-")

	// Collapse multiple hyphens.
	s = multipleHyphens.ReplaceAllString(s, "-")

	return strings.Trim(s, "-")
}

// NormalizeName canonicalizes a tag name for the unique-name constraint.
// Names that differ only in case or surrounding/internal whitespace map to
// the same normalized form: "  Dynamic   Programming " -> "dynamic programming".
func NormalizeName(s string) string {
	s = norm.NFKC.String(s)
	s = strings.TrimSpace(s)
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.ToLower(s)
}
