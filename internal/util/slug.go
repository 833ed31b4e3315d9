// Package util provides common utility functions.
package util

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	// Matches spaces, underscores, and slashes (for replacement with dashes).
	wordSeparatorRe = regexp.MustCompile(`[\s_/]+`)
	// Matches non-alphanumeric characters (except dashes).
	nonAlphanumericRe = regexp.MustCompile(`[^a-z0-9-]`)
	// Matches multiple consecutive dashes.
	multipleDashRe = regexp.MustCompile(`-+`)
)

// Slugify converts a string to a canonical URL-safe slug. Slugs are the
// source of truth for tag identity and form the stable part of novel URLs.
//
// Normalization rules:
//  1. Decompose accented characters (NFKD) and strip combining marks
//  2. Trim whitespace and lowercase
//  3. Replace spaces, underscores, and slashes with dashes
//  4. Remove remaining non-alphanumeric characters (except dashes)
//  5. Collapse multiple dashes and trim leading/trailing dashes
//
// Examples:
//
//	"Slow Burn"       -> "slow-burn"
//	"Mother of Learning" -> "mother-of-learning"
//	"Café au Lait"    -> "cafe-au-lait"
//	"Sci-Fi/Fantasy"  -> "sci-fi-fantasy"
//	"--leading--"     -> "leading"
func Slugify(input string) string {
	// Decompose accented characters so "é" becomes "e" + combining mark,
	// then drop everything outside ASCII.
	s := norm.NFKD.String(input)
	s = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, s)

	s = strings.ToLower(strings.TrimSpace(s))

	// Replace word separators with dashes before stripping punctuation so
	// "sci-fi/fantasy" keeps its internal boundaries.
	s = wordSeparatorRe.ReplaceAllString(s, "-")
	s = nonAlphanumericRe.ReplaceAllString(s, "")
	s = multipleDashRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	return s
}
