package mocks

import (
	"context"

	"github.com/ersonp/book-character-tracker/internal/domain/entities"
)

// Extractor is a mock implementation of ports.CharacterExtractor.
type Extractor struct {
	// Candidates is returned when ByText has no entry for the chapter text.
	Candidates []entities.CandidateCharacter
	// ByText maps exact chapter text to the candidates to return.
	ByText map[string][]entities.CandidateCharacter
	// Err is returned instead of candidates when set.
	Err error

	// Calls records the chapter texts received.
	Calls []string
}

// ExtractCharacters returns the configured candidates or error.
func (m *Extractor) ExtractCharacters(_ context.Context, chapterText string) ([]entities.CandidateCharacter, error) {
	m.Calls = append(m.Calls, chapterText)
	if m.Err != nil {
		return nil, m.Err
	}
	if c, ok := m.ByText[chapterText]; ok {
		return c, nil
	}
	return m.Candidates, nil
}
