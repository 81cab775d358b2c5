package entities

import "strings"

// RelationType defines the kind of relationship between characters.
type RelationType string

const (
	RelationFamily       RelationType = "family"
	RelationRomantic     RelationType = "romantic"
	RelationConflict     RelationType = "conflict"
	RelationProfessional RelationType = "professional"
	RelationFriendship   RelationType = "friendship"
	RelationOther        RelationType = "other"
)

// ParseRelationType maps extractor output to a RelationType.
// Unrecognised values become RelationOther.
func ParseRelationType(s string) RelationType {
	switch RelationType(strings.ToLower(strings.TrimSpace(s))) {
	case RelationFamily:
		return RelationFamily
	case RelationRomantic:
		return RelationRomantic
	case RelationConflict:
		return RelationConflict
	case RelationProfessional:
		return RelationProfessional
	case RelationFriendship:
		return RelationFriendship
	default:
		return RelationOther
	}
}

// Relationship is a directed edge stored on the owning character.
type Relationship struct {
	TargetCharacterID    string       `json:"target_character_id"`
	Type                 RelationType `json:"type"`
	Description          string       `json:"description,omitempty"`
	EstablishedInChapter int          `json:"established_in_chapter"`
}
