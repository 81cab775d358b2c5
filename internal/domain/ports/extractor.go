// Package ports defines interfaces for external service communication.
package ports

import (
	"context"

	"github.com/ersonp/book-character-tracker/internal/domain/entities"
)

// CharacterExtractor turns the text of one chapter into candidate
// character observations.
//
// Implementations must fail with an error wrapping
// entities.ErrMalformedExtraction when the upstream output cannot be parsed,
// never return a partial list.
type CharacterExtractor interface {
	ExtractCharacters(ctx context.Context, chapterText string) ([]entities.CandidateCharacter, error)
}
