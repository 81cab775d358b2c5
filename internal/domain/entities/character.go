// Package entities contains core domain data structures.
package entities

import (
	"sort"
	"strings"
	"time"
)

// Status describes whether a character is alive as of the latest observation.
type Status string

const (
	StatusAlive   Status = "Alive"
	StatusDead    Status = "Dead"
	StatusUnknown Status = "Unknown"
)

// ParseStatus maps free text from the extractor to a Status.
// Anything unrecognised is StatusUnknown.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "alive":
		return StatusAlive
	case "dead", "deceased":
		return StatusDead
	default:
		return StatusUnknown
	}
}

// Relevance is the coarse importance ranking of a character.
type Relevance string

const (
	RelevanceMinor      Relevance = "Minor"
	RelevanceSupporting Relevance = "Supporting"
	RelevanceMajor      Relevance = "Major"
)

// ParseRelevance maps free text to a Relevance. The boolean is false when
// the text names no known level.
func ParseRelevance(s string) (Relevance, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minor":
		return RelevanceMinor, true
	case "supporting":
		return RelevanceSupporting, true
	case "major":
		return RelevanceMajor, true
	default:
		return "", false
	}
}

// Rank orders relevance levels: Minor < Supporting < Major.
func (r Relevance) Rank() int {
	switch r {
	case RelevanceMajor:
		return 3
	case RelevanceSupporting:
		return 2
	case RelevanceMinor:
		return 1
	default:
		return 0
	}
}

// Outranks reports whether r is strictly more relevant than other.
func (r Relevance) Outranks(other Relevance) bool {
	return r.Rank() > other.Rank()
}

// ChapterHistoryEntry holds the update notes recorded for one chapter.
type ChapterHistoryEntry struct {
	Chapter int      `json:"chapter"`
	Updates []string `json:"updates"`
}

// Character is one identified person within a single book.
type Character struct {
	ID               string                `json:"id"`
	BookID           string                `json:"book_id"`
	Name             string                `json:"name"`
	Aliases          []string              `json:"aliases,omitempty"`
	Occupation       string                `json:"occupation,omitempty"`
	Age              string                `json:"age,omitempty"`
	Location         string                `json:"location,omitempty"`
	Status           Status                `json:"status"`
	Relevance        Relevance             `json:"relevance"`
	BriefDescription string                `json:"brief_description,omitempty"`
	FirstAppearance  int                   `json:"first_appearance"`
	LastMentioned    int                   `json:"last_mentioned"`
	MentionCount     int                   `json:"mention_count"`
	Relationships    []Relationship        `json:"relationships,omitempty"`
	ChapterHistory   []ChapterHistoryEntry `json:"chapter_history,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

// HasRelationship reports whether an edge with the same target and type exists.
func (c *Character) HasRelationship(targetID string, relType RelationType) bool {
	for i := range c.Relationships {
		if c.Relationships[i].TargetCharacterID == targetID && c.Relationships[i].Type == relType {
			return true
		}
	}
	return false
}

// AddRelationship appends rel unless it would duplicate an existing
// (target, type) pair or point back at the character itself.
// Returns true if the edge was added.
func (c *Character) AddRelationship(rel Relationship) bool {
	if rel.TargetCharacterID == "" || rel.TargetCharacterID == c.ID {
		return false
	}
	if c.HasRelationship(rel.TargetCharacterID, rel.Type) {
		return false
	}
	c.Relationships = append(c.Relationships, rel)
	return true
}

// AddAlias records a name the character was also known by. Empty values
// and duplicates (case-insensitive) are ignored. An alias equal to the
// current name is kept: it records a merged record of the same name.
func (c *Character) AddAlias(alias string) bool {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return false
	}
	for _, a := range c.Aliases {
		if strings.EqualFold(a, alias) {
			return false
		}
	}
	c.Aliases = append(c.Aliases, alias)
	return true
}

// HistoryFor returns the history entry for a chapter, or nil.
func (c *Character) HistoryFor(chapter int) *ChapterHistoryEntry {
	for i := range c.ChapterHistory {
		if c.ChapterHistory[i].Chapter == chapter {
			return &c.ChapterHistory[i]
		}
	}
	return nil
}

// RecordHistory adds notes for a chapter, keeping at most one entry per
// chapter and the list sorted by chapter number.
func (c *Character) RecordHistory(chapter int, updates ...string) {
	if len(updates) == 0 {
		return
	}
	if entry := c.HistoryFor(chapter); entry != nil {
		entry.Updates = append(entry.Updates, updates...)
		return
	}
	c.ChapterHistory = append(c.ChapterHistory, ChapterHistoryEntry{
		Chapter: chapter,
		Updates: append([]string(nil), updates...),
	})
	SortHistory(c.ChapterHistory)
}

// SortHistory orders history entries by chapter number ascending.
func SortHistory(history []ChapterHistoryEntry) {
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Chapter < history[j].Chapter
	})
}

// Clone returns a deep copy of the character.
func (c *Character) Clone() *Character {
	out := *c
	out.Aliases = append([]string(nil), c.Aliases...)
	out.Relationships = append([]Relationship(nil), c.Relationships...)
	out.ChapterHistory = nil
	for _, h := range c.ChapterHistory {
		out.ChapterHistory = append(out.ChapterHistory, ChapterHistoryEntry{
			Chapter: h.Chapter,
			Updates: append([]string(nil), h.Updates...),
		})
	}
	return &out
}
