package identity

import (
	"strings"
	"unicode/utf8"

	"github.com/ersonp/book-character-tracker/internal/domain/entities"
)

// minMatchTokenLen is the shortest token (exclusive) that may anchor a
// containment or surname match.
const minMatchTokenLen = 2

// Resolve returns the first existing character whose name matches the
// candidate name, or nil. Characters are examined in the given order and
// the first one satisfying any rule wins; rules are not scored against each
// other. The caller is responsible for passing characters of a single book.
func Resolve(candidateName string, existing []*entities.Character) *entities.Character {
	cand := newName(candidateName)
	if cand.normalized == "" {
		return nil
	}

	for _, c := range existing {
		if c == nil {
			continue
		}
		if matches(cand, newName(c.Name), c.Aliases) {
			return c
		}
	}
	return nil
}

// name holds the precomputed forms of a character name.
type name struct {
	normalized string
	tokens     []string
}

func newName(raw string) name {
	n := Normalize(raw)
	return name{
		normalized: n,
		tokens:     strings.Fields(strings.ToLower(n)),
	}
}

// matches applies the resolution rules in order: exact (including known
// aliases), single-token containment, surname plus initial, nickname.
func matches(cand, existing name, aliases []string) bool {
	if cand.normalized == "" || existing.normalized == "" {
		return false
	}
	return exactMatch(cand, existing, aliases) ||
		containmentMatch(cand, existing) ||
		surnameInitialMatch(cand, existing) ||
		nicknameMatch(cand, existing)
}

// NamesMatch reports whether two raw names would resolve to each other.
func NamesMatch(a, b string) bool {
	return matches(newName(a), newName(b), nil)
}

func exactMatch(cand, existing name, aliases []string) bool {
	if strings.EqualFold(cand.normalized, existing.normalized) {
		return true
	}
	for _, a := range aliases {
		if n := Normalize(a); n != "" && strings.EqualFold(cand.normalized, n) {
			return true
		}
	}
	return false
}

func containmentMatch(cand, existing name) bool {
	return singleTokenIn(cand.tokens, existing.tokens) || singleTokenIn(existing.tokens, cand.tokens)
}

// singleTokenIn reports whether single is one significant token contained
// in the multi-token name full.
func singleTokenIn(single, full []string) bool {
	if len(single) != 1 || len(full) <= 1 {
		return false
	}
	tok := single[0]
	if utf8.RuneCountInString(tok) <= minMatchTokenLen {
		return false
	}
	for _, t := range full {
		if t == tok {
			return true
		}
	}
	return false
}

func surnameInitialMatch(cand, existing name) bool {
	if len(cand.tokens) < 2 || len(existing.tokens) < 2 {
		return false
	}
	if !sameSurname(cand.tokens, existing.tokens) {
		return false
	}
	a, b := cand.tokens[0], existing.tokens[0]
	if !isInitial(a) && !isInitial(b) {
		return false
	}
	ra, _ := utf8.DecodeRuneInString(a)
	rb, _ := utf8.DecodeRuneInString(b)
	return ra == rb
}

func nicknameMatch(cand, existing name) bool {
	a, b := cand.tokens[0], existing.tokens[0]
	if len(cand.tokens) >= 2 && len(existing.tokens) >= 2 {
		return FirstNamesMatch(a, b) && last(cand.tokens) == last(existing.tokens)
	}
	// Identical single tokens are left to the containment rule and its
	// length guard.
	return a != b && FirstNamesMatch(a, b)
}

func sameSurname(a, b []string) bool {
	la, lb := last(a), last(b)
	return la == lb && utf8.RuneCountInString(la) > minMatchTokenLen
}

// isInitial reports whether a token is a lone letter with a trailing
// period, e.g. "j.".
func isInitial(tok string) bool {
	trimmed := strings.TrimSuffix(tok, ".")
	return trimmed != tok && utf8.RuneCountInString(trimmed) == 1
}

func last(tokens []string) string {
	return tokens[len(tokens)-1]
}
