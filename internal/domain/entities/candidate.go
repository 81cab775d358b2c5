package entities

import "strings"

// CandidateRelationship references another candidate by name.
type CandidateRelationship struct {
	TargetName  string `json:"targetName"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// CandidateCharacter is one observation returned by the extractor for a
// single chapter, not yet matched to a stored character. Empty strings mean
// the attribute was not supplied.
type CandidateCharacter struct {
	Name             string                  `json:"name"`
	Occupation       string                  `json:"occupation,omitempty"`
	Age              string                  `json:"age,omitempty"`
	Location         string                  `json:"location,omitempty"`
	Status           string                  `json:"status,omitempty"`
	Relevance        string                  `json:"relevance,omitempty"`
	BriefDescription string                  `json:"briefDescription,omitempty"`
	Relationships    []CandidateRelationship `json:"relationships,omitempty"`
}

// UnknownValue is the placeholder the extractor uses for missing attributes.
const UnknownValue = "Unknown"

// Known reports whether an attribute value carries information, i.e. it is
// neither blank nor the "Unknown" placeholder.
func Known(value string) bool {
	v := strings.TrimSpace(value)
	return v != "" && !strings.EqualFold(v, UnknownValue)
}
