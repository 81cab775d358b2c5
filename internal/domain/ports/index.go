package ports

import (
	"context"

	"github.com/ersonp/book-character-tracker/internal/domain/entities"
)

// IndexedCharacter pairs a character with its embedding for the vector index.
type IndexedCharacter struct {
	Character *entities.Character
	Embedding []float32
}

// SearchHit is one vector search result.
type SearchHit struct {
	CharacterID string  `json:"character_id"`
	Name        string  `json:"name"`
	Score       float32 `json:"score"`
}

// CharacterIndex stores character embeddings for semantic lookup.
type CharacterIndex interface {
	// EnsureCollection creates the collection if it doesn't exist.
	EnsureCollection(ctx context.Context, vectorSize uint64) error

	// Upsert stores or replaces the given characters.
	Upsert(ctx context.Context, docs []IndexedCharacter) error

	// Delete removes characters by ID.
	Delete(ctx context.Context, ids []string) error

	// DeleteByBook removes every character of a book.
	DeleteByBook(ctx context.Context, bookID string) error

	// DeleteAll removes every indexed character.
	DeleteAll(ctx context.Context) error

	// Search returns the characters of a book most similar to the embedding,
	// restricted to those first appearing at or before uptoChapter.
	Search(ctx context.Context, bookID string, embedding []float32, uptoChapter, limit int) ([]SearchHit, error)

	// Close releases the underlying connection.
	Close() error
}
