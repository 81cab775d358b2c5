// Package identity decides which character names refer to the same person.
package identity

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// reHonorific matches a leading title followed by whitespace.
	reHonorific = regexp.MustCompile(`(?i)^\s*(mr|mrs|ms|miss|dr|prof|sir|lady|lord)\.?\s+`)
	// reSuffix matches a trailing generational suffix.
	reSuffix = regexp.MustCompile(`(?i)[\s,]+(jr|sr|iii|iv)\.?\s*$`)
)

// Normalize canonicalizes a raw character name: leading honorifics and
// trailing generational suffixes are removed, tokens of one character are
// dropped and whitespace is collapsed. Case is preserved.
//
// Stripping is repeated until the result is stable, so Normalize is
// idempotent.
func Normalize(raw string) string {
	name := raw
	for {
		next := normalizeOnce(name)
		if next == name {
			return next
		}
		name = next
	}
}

func normalizeOnce(name string) string {
	name = reHonorific.ReplaceAllString(name, "")
	name = reSuffix.ReplaceAllString(name, "")

	fields := strings.Fields(name)
	kept := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) <= 1 {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

// Tokens returns the lowercase tokens of the normalized name.
func Tokens(raw string) []string {
	return strings.Fields(strings.ToLower(Normalize(raw)))
}
