// Package chapterview filters character data to what a reader at a given
// chapter is allowed to see.
package chapterview

import "github.com/ersonp/book-character-tracker/internal/domain/entities"

// VisibleCharacters returns the characters that first appear at or before
// uptoChapter, in input order.
func VisibleCharacters(all []*entities.Character, uptoChapter int) []*entities.Character {
	out := make([]*entities.Character, 0, len(all))
	for _, c := range all {
		if c != nil && c.FirstAppearance <= uptoChapter {
			out = append(out, c)
		}
	}
	return out
}

// VisibleRelationships returns the edges established at or before uptoChapter.
func VisibleRelationships(c *entities.Character, uptoChapter int) []entities.Relationship {
	out := make([]entities.Relationship, 0, len(c.Relationships))
	for _, r := range c.Relationships {
		if r.EstablishedInChapter <= uptoChapter {
			out = append(out, r)
		}
	}
	return out
}

// VisibleHistory returns the history entries for chapters at or before uptoChapter.
func VisibleHistory(c *entities.Character, uptoChapter int) []entities.ChapterHistoryEntry {
	out := make([]entities.ChapterHistoryEntry, 0, len(c.ChapterHistory))
	for _, h := range c.ChapterHistory {
		if h.Chapter <= uptoChapter {
			out = append(out, h)
		}
	}
	return out
}

// Snapshot returns deep copies of the visible characters with their
// relationships and history trimmed to uptoChapter. Edges whose target is
// not itself visible are dropped so the result never references a hidden
// character.
func Snapshot(all []*entities.Character, uptoChapter int) []*entities.Character {
	visible := VisibleCharacters(all, uptoChapter)

	ids := make(map[string]struct{}, len(visible))
	for _, c := range visible {
		ids[c.ID] = struct{}{}
	}

	out := make([]*entities.Character, 0, len(visible))
	for _, c := range visible {
		cp := c.Clone()
		rels := VisibleRelationships(c, uptoChapter)
		cp.Relationships = rels[:0]
		for _, r := range rels {
			if _, ok := ids[r.TargetCharacterID]; ok {
				cp.Relationships = append(cp.Relationships, r)
			}
		}
		cp.ChapterHistory = VisibleHistory(cp, uptoChapter)
		out = append(out, cp)
	}
	return out
}
